package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/TobiSchelling/journalfeed/internal/config"
	"github.com/TobiSchelling/journalfeed/internal/database"
	"github.com/TobiSchelling/journalfeed/internal/metrics"
)

// Store is the storage surface ingestion needs.
type Store interface {
	ArticleFinder
	InsertArticle(ctx context.Context, a *database.Article) (int64, error)
	FindOrCreateJournal(ctx context.Context, name, rssURL, description string) (*database.Journal, error)
	BackfillJournalDescription(ctx context.Context, journalID int64, description string) (bool, error)
	InsertIngestRun(ctx context.Context, r *database.IngestRun) (int64, error)
}

// ArticleError is a feed entry that could not be stored.
type ArticleError struct {
	Title string
	Link  string
	Err   error
}

func (e ArticleError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("%q: %v", e.Title, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Link, e.Err)
}

func (e ArticleError) Unwrap() error { return e.Err }

// Result holds the outcome of ingesting one feed.
type Result struct {
	RunID   string
	FeedURL string
	Journal *database.Journal
	Found   int
	Added   int
	Skipped int
	Errors  []ArticleError
}

// Pipeline ingests feeds into storage as untranslated articles.
type Pipeline struct {
	store   Store
	fetcher Fetcher
	gate    *Gate
	feeds   []config.Feed
	limit   int
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewPipeline creates an ingestion pipeline. feeds supplies names and
// descriptions for known URLs and the list IngestAll walks.
func NewPipeline(store Store, fetcher Fetcher, feeds []config.Feed, limit int, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		store:   store,
		fetcher: fetcher,
		gate:    NewGate(store),
		feeds:   feeds,
		limit:   limit,
		metrics: m,
		now:     time.Now,
	}
}

// Ingest fetches one feed and stores every entry not seen before.
func (p *Pipeline) Ingest(ctx context.Context, feedURL string) (*Result, error) {
	return p.ingest(ctx, uuid.NewString(), feedURL)
}

// IngestAll ingests every configured feed in order under one run ID. A feed
// that fails is logged and skipped; the failures are returned joined.
func (p *Pipeline) IngestAll(ctx context.Context) ([]*Result, error) {
	runID := uuid.NewString()
	var results []*Result
	var errs []error
	for i, feed := range p.feeds {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		lgr.Printf("[INFO] [%d/%d] ingesting %s", i+1, len(p.feeds), feed.URL)
		r, err := p.ingest(ctx, runID, feed.URL)
		if err != nil {
			lgr.Printf("[WARN] feed %s failed: %v", feed.URL, err)
			errs = append(errs, err)
			continue
		}
		results = append(results, r)
	}
	return results, errors.Join(errs...)
}

func (p *Pipeline) ingest(ctx context.Context, runID, feedURL string) (*Result, error) {
	started := time.Now()
	r := &Result{RunID: runID, FeedURL: feedURL}

	name, description := p.feedInfo(feedURL)
	journal, err := p.store.FindOrCreateJournal(ctx, name, feedURL, description)
	if err != nil {
		p.metrics.FeedFailed()
		return nil, fmt.Errorf("resolving journal for %s: %w", feedURL, err)
	}
	r.Journal = journal

	feed, err := p.fetcher.Fetch(ctx, feedURL, p.limit)
	if err != nil {
		p.metrics.FeedFailed()
		return nil, err
	}
	r.Found = len(feed.Entries)

	if journal.Description == "" && feed.Description != "" {
		desc := PlainText(feed.Description)
		if ok, err := p.store.BackfillJournalDescription(ctx, journal.ID, desc); err != nil {
			lgr.Printf("[WARN] backfilling description for %s: %v", journal.Name, err)
		} else if ok {
			journal.Description = desc
		}
	}

	now := p.now()
	for _, entry := range feed.Entries {
		added, err := p.storeEntry(ctx, entry, *journal, now)
		switch {
		case err != nil:
			lgr.Printf("[DEBUG] skipping entry %q: %v", entry.Title, err)
			r.Errors = append(r.Errors, ArticleError{Title: entry.Title, Link: entry.Link, Err: err})
			p.metrics.ArticleFailed(journal.Name)
		case added:
			r.Added++
			p.metrics.ArticleAdded(journal.Name)
		default:
			r.Skipped++
			p.metrics.ArticleSkipped(journal.Name)
		}
	}

	run := &database.IngestRun{
		RunID:      runID,
		FeedURL:    feedURL,
		Added:      r.Added,
		Skipped:    r.Skipped,
		Errors:     len(r.Errors),
		StartedAt:  database.FormatTimestamp(started),
		FinishedAt: database.FormatTimestamp(time.Now()),
	}
	if _, err := p.store.InsertIngestRun(ctx, run); err != nil {
		lgr.Printf("[WARN] recording ingest run for %s: %v", feedURL, err)
	}

	lgr.Printf("[INFO] %s: %d found, %d added, %d skipped, %d errors",
		journal.Name, r.Found, r.Added, r.Skipped, len(r.Errors))
	return r, nil
}

// storeEntry normalizes and stores a single entry. It reports false for a
// duplicate.
func (p *Pipeline) storeEntry(ctx context.Context, entry RawEntry, journal database.Journal, now time.Time) (bool, error) {
	article, err := Normalize(entry, journal, now)
	if err != nil {
		return false, err
	}
	isNew, err := p.gate.IsNew(ctx, article.ExternalID)
	if err != nil || !isNew {
		return false, err
	}
	id, err := p.store.InsertArticle(ctx, &article)
	if err != nil {
		return false, err
	}
	// id == 0: inserted by someone else after the gate check.
	return id > 0, nil
}

// feedInfo returns the configured name and description for feedURL, deriving
// the name from the URL when the feed is not configured or unnamed.
func (p *Pipeline) feedInfo(feedURL string) (name, description string) {
	for _, f := range p.feeds {
		if f.URL == feedURL {
			name, description = strings.TrimSpace(f.Name), strings.TrimSpace(f.Description)
			break
		}
	}
	if name == "" {
		name = JournalNameFromURL(feedURL)
	}
	return name, description
}
