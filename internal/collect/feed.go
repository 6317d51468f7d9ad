package collect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const userAgent = "journalfeed/1.0 (+https://github.com/TobiSchelling/journalfeed)"

// RawEntry is one feed item before normalization. Every field may be empty.
type RawEntry struct {
	Title           string
	Authors         []string
	Link            string
	Published       string
	PublishedParsed *time.Time
	Summary         string // RSS description / Atom summary
	Description     string // content:encoded / Atom content
	DOI             string // prism:doi or a "doi:" dc:identifier
	ID              string // guid / Atom id
	ImageURL        string
}

// Feed is a fetched feed channel.
type Feed struct {
	Title       string
	Description string
	Entries     []RawEntry
}

// Fetcher retrieves feed entries for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string, limit int) (*Feed, error)
}

// FeedParser fetches RSS/Atom feeds with gofeed.
type FeedParser struct {
	timeout time.Duration
}

// NewFeedParser creates a new FeedParser.
func NewFeedParser(timeout time.Duration) *FeedParser {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &FeedParser{timeout: timeout}
}

// Fetch downloads and parses feedURL, returning at most limit entries in feed
// order. A non-positive limit returns every entry.
func (fp *FeedParser) Fetch(ctx context.Context, feedURL string, limit int) (*Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, fp.timeout)
	defer cancel()

	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching feed %s: %w", feedURL, err)
	}
	return convertFeed(feed, limit), nil
}

func convertFeed(feed *gofeed.Feed, limit int) *Feed {
	out := &Feed{
		Title:       strings.TrimSpace(feed.Title),
		Description: strings.TrimSpace(feed.Description),
	}
	items := feed.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	for _, item := range items {
		if item == nil {
			continue
		}
		out.Entries = append(out.Entries, convertItem(item))
	}
	return out
}

func convertItem(item *gofeed.Item) RawEntry {
	return RawEntry{
		Title:           item.Title,
		Authors:         itemAuthors(item),
		Link:            item.Link,
		Published:       item.Published,
		PublishedParsed: item.PublishedParsed,
		Summary:         item.Description,
		Description:     item.Content,
		DOI:             itemDOI(item),
		ID:              item.GUID,
		ImageURL:        itemImage(item),
	}
}

func itemAuthors(item *gofeed.Item) []string {
	// MDPI and most publishers list one dc:creator per author; gofeed may
	// collapse those into a single Person.
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > len(item.Authors) {
		return nonEmpty(item.DublinCoreExt.Creator)
	}
	var names []string
	for _, p := range item.Authors {
		if p != nil {
			names = append(names, p.Name)
		}
	}
	return nonEmpty(names)
}

func itemDOI(item *gofeed.Item) string {
	if v := extensionValue(item.Extensions, "prism", "doi"); v != "" {
		return v
	}
	if item.DublinCoreExt != nil {
		for _, id := range item.DublinCoreExt.Identifier {
			id = strings.TrimSpace(id)
			if strings.HasPrefix(strings.ToLower(id), "doi:") {
				return strings.TrimSpace(id[len("doi:"):])
			}
		}
	}
	return ""
}

func itemImage(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && (enc.Type == "" || strings.HasPrefix(enc.Type, "image/")) {
			return enc.URL
		}
	}
	for _, name := range []string{"thumbnail", "content"} {
		if exts := item.Extensions["media"][name]; len(exts) > 0 && exts[0].Attrs["url"] != "" {
			return exts[0].Attrs["url"]
		}
	}
	if item.Image != nil {
		return item.Image.URL
	}
	return ""
}

func extensionValue(exts ext.Extensions, prefix, name string) string {
	values := exts[prefix][name]
	for _, v := range values {
		if s := strings.TrimSpace(v.Value); s != "" {
			return s
		}
	}
	return ""
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
