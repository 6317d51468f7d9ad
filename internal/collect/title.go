package collect

import "strings"

// TitleMetadata is what ExtractTitleMetadata finds in a feed title.
type TitleMetadata struct {
	Volume      string
	Pages       string
	ActualTitle string
}

// ExtractTitleMetadata parses publisher titles of the form
//
//	Remote Sensing, Vol. 12, Pages 100: A Study of X
//
// into volume "12", pages "100" and title "A Study of X". Any title that does
// not carry both markers, or carries them without values, comes back
// unchanged with empty volume and pages.
func ExtractTitleMetadata(raw string) TitleMetadata {
	fallback := TitleMetadata{ActualTitle: raw}
	if !strings.Contains(raw, ", Vol.") || !strings.Contains(raw, ", Pages") {
		return fallback
	}

	var volume, pages string
	var haveVolume, havePages bool
	for _, part := range strings.Split(raw, ", ") {
		switch {
		case !haveVolume && strings.Contains(part, "Vol."):
			_, after, _ := strings.Cut(part, "Vol.")
			volume = strings.TrimSpace(after)
			haveVolume = true
		case !havePages && strings.Contains(part, "Pages"):
			_, after, _ := strings.Cut(part, "Pages")
			before, _, _ := strings.Cut(after, ":")
			pages = strings.TrimSpace(before)
			havePages = true
		}
	}
	if volume == "" || pages == "" {
		return fallback
	}

	actual := raw
	if _, after, found := strings.Cut(raw, ": "); found {
		actual = after
	}
	return TitleMetadata{Volume: volume, Pages: pages, ActualTitle: actual}
}
