package collect

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/TobiSchelling/journalfeed/internal/database"
)

var (
	// ErrMissingField is returned when an entry has no title or no link.
	ErrMissingField = errors.New("missing required field")
	// ErrMalformedDate is returned when an entry carries a published date
	// that cannot be parsed.
	ErrMalformedDate = errors.New("malformed published date")
)

var stripPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// Normalize maps a raw feed entry onto an untranslated article of journal.
// now is used as the published date when the entry has none.
func Normalize(entry RawEntry, journal database.Journal, now time.Time) (database.Article, error) {
	rawTitle := strings.TrimSpace(entry.Title)
	link := strings.TrimSpace(entry.Link)
	if rawTitle == "" {
		return database.Article{}, fmt.Errorf("%w: title", ErrMissingField)
	}
	if link == "" {
		return database.Article{}, fmt.Errorf("%w: link", ErrMissingField)
	}

	published, err := publishedDate(entry, now)
	if err != nil {
		return database.Article{}, err
	}

	names := nonEmpty(entry.Authors)
	if names == nil {
		names = []string{}
	}
	authors, err := json.Marshal(names)
	if err != nil {
		return database.Article{}, fmt.Errorf("encoding authors: %w", err)
	}

	meta := ExtractTitleMetadata(rawTitle)
	rawSummary := entry.Summary
	if strings.TrimSpace(rawSummary) == "" {
		rawSummary = entry.Description
	}

	return database.Article{
		JournalID:     journal.ID,
		Title:         meta.ActualTitle,
		Volume:        optional(meta.Volume),
		Pages:         optional(meta.Pages),
		Authors:       string(authors),
		PublishedDate: published,
		ExternalID:    externalID(entry),
		Link:          link,
		Summary:       PlainText(rawSummary),
		ImageURL:      optional(imageURL(entry)),
	}, nil
}

func externalID(entry RawEntry) string {
	if doi := strings.TrimSpace(entry.DOI); doi != "" {
		return doi
	}
	return strings.TrimSpace(entry.ID)
}

func publishedDate(entry RawEntry, now time.Time) (string, error) {
	if entry.PublishedParsed != nil && !entry.PublishedParsed.IsZero() {
		return database.FormatDate(*entry.PublishedParsed), nil
	}
	raw := strings.TrimSpace(entry.Published)
	if raw == "" {
		return database.FormatDate(now), nil
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedDate, raw)
	}
	return database.FormatDate(t), nil
}

// PlainText strips HTML markup from s, unescapes entities and collapses
// whitespace.
func PlainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	text := html.UnescapeString(stripPolicy.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}

func imageURL(entry RawEntry) string {
	if u := strings.TrimSpace(entry.ImageURL); u != "" {
		return u
	}
	for _, fragment := range []string{entry.Summary, entry.Description} {
		if !strings.Contains(fragment, "<img") {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
		if err != nil {
			continue
		}
		if src, ok := doc.Find("img[src]").First().Attr("src"); ok && strings.TrimSpace(src) != "" {
			return strings.TrimSpace(src)
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// JournalNameFromURL derives a display name from the last path segment of a
// feed URL, e.g. https://www.mdpi.com/rss/journal/remotesensing becomes
// "Remotesensing". Unparseable URLs yield the URL itself.
func JournalNameFromURL(feedURL string) string {
	u, err := url.Parse(strings.TrimSpace(feedURL))
	if err != nil {
		return feedURL
	}
	path := strings.TrimRight(u.Path, "/")
	segment := path[strings.LastIndex(path, "/")+1:]
	if segment == "" {
		segment = strings.TrimPrefix(u.Host, "www.")
	}
	segment, _, _ = strings.Cut(segment, ".")
	if segment == "" {
		return feedURL
	}
	return cases.Title(language.English).String(segment)
}
