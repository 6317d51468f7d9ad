package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/journalfeed/internal/collect"
	"github.com/TobiSchelling/journalfeed/internal/config"
	"github.com/TobiSchelling/journalfeed/internal/database"
)

type fakeFetcher struct{}

func (fakeFetcher) Fetch(ctx context.Context, feedURL string, limit int) (*collect.Feed, error) {
	return &collect.Feed{
		Description: "A journal",
		Entries: []collect.RawEntry{
			{Title: "J, Vol. 1, Pages 1: First", Link: "https://example.com/1", DOI: "10.1/1", Summary: "Abstract one"},
			{Title: "Second", Link: "https://example.com/2", ID: "urn:2", Summary: "Abstract two"},
		},
	}, nil
}

type fakeProvider struct{}

func (fakeProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return `{"title": "标题", "abstract": "摘要"}`, nil
}

func (fakeProvider) IsConfigured() bool { return true }

type failingProvider struct{ calls int }

func (f *failingProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.calls++
	return "", errors.New("model overloaded")
}

func (f *failingProvider) IsConfigured() bool { return true }

func testSetup(t *testing.T) (*config.Config, *database.DB) {
	t.Helper()
	cfg := &config.Config{
		Feeds:  []config.Feed{{URL: "https://example.com/rss/journal/one", Name: "One"}},
		Ingest: config.Ingest{Limit: 10},
		Scheduler: config.Scheduler{
			BatchSize: 10,
		},
		Translation: config.Translation{MaxAttempts: 3},
	}
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return cfg, db
}

func TestRun(t *testing.T) {
	cfg, db := testSetup(t)
	p := New(cfg, db, fakeProvider{}, nil)
	p.fetcher = fakeFetcher{}

	r := p.Run(context.Background())
	if r.Failed() {
		t.Fatalf("unexpected failure: %+v", r.Steps)
	}
	if len(r.Steps) != 2 {
		t.Fatalf("expected ingest and translate steps, got %+v", r.Steps)
	}
	if !strings.Contains(r.Steps[0].Summary, "2 added") {
		t.Errorf("unexpected ingest summary %q", r.Steps[0].Summary)
	}

	stats, err := db.GetStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalArticles != 2 || stats.Translated != 2 || stats.Untranslated != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestRunWithoutProvider(t *testing.T) {
	cfg, db := testSetup(t)
	p := New(cfg, db, nil, nil)
	p.fetcher = fakeFetcher{}

	r := p.Run(context.Background())
	last := r.Steps[len(r.Steps)-1]
	if last.Name != "Translate" || !errors.Is(last.Err, ErrNoProvider) {
		t.Errorf("expected translate step to fail with ErrNoProvider, got %+v", last)
	}

	stats, _ := db.GetStats(context.Background())
	if stats.Untranslated != 2 {
		t.Errorf("expected ingested articles to stay untranslated, got %+v", stats)
	}
}

func TestRunIsBoundedWhenTranslationsFail(t *testing.T) {
	cfg, db := testSetup(t)
	cfg.Scheduler.BatchSize = 1
	cfg.Translation.MaxAttempts = 1
	provider := &failingProvider{}
	p := New(cfg, db, provider, nil)
	p.fetcher = fakeFetcher{}

	r := p.Run(context.Background())
	last := r.Steps[len(r.Steps)-1]
	if last.Err != nil {
		t.Fatalf("unexpected error: %v", last.Err)
	}
	if !strings.HasPrefix(last.Summary, "2 cycles") {
		t.Errorf("expected one cycle per backlog batch, got %q", last.Summary)
	}
	if provider.calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", provider.calls)
	}
	if cfg.Scheduler.MaxCycles != 0 {
		t.Error("run must not change the caller's config")
	}

	stats, _ := db.GetStats(context.Background())
	if stats.Untranslated != 2 {
		t.Errorf("expected failed articles to stay untranslated, got %+v", stats)
	}
}

func TestRunNoFeeds(t *testing.T) {
	cfg, db := testSetup(t)
	cfg.Feeds = nil
	r := New(cfg, db, fakeProvider{}, nil).Run(context.Background())
	if !r.Failed() || len(r.Steps) != 1 {
		t.Errorf("expected run to stop at ingest, got %+v", r.Steps)
	}
}

func TestDryRun(t *testing.T) {
	cfg, db := testSetup(t)
	cfg.Ingest.FetchAbstracts = true
	r := New(cfg, db, nil, nil).DryRun(context.Background())
	if len(r.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %+v", r.Steps)
	}
	for _, s := range r.Steps {
		if s.Err != nil || !strings.HasPrefix(s.Summary, "[dry-run]") {
			t.Errorf("unexpected step %+v", s)
		}
	}

	stats, _ := db.GetStats(context.Background())
	if stats.TotalArticles != 0 {
		t.Error("dry run must not ingest")
	}
}
