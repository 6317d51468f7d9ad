package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func testJournal(t *testing.T, db *DB) *Journal {
	t.Helper()
	j, err := db.FindOrCreateJournal(context.Background(), "Remote Sensing", "https://www.mdpi.com/rss/journal/remotesensing", "")
	if err != nil {
		t.Fatalf("failed to create journal: %v", err)
	}
	return j
}

func newArticle(journalID int64, externalID, title string) *Article {
	return &Article{
		JournalID:     journalID,
		Title:         title,
		Authors:       `["A. Author"]`,
		PublishedDate: "2026-02-06",
		ExternalID:    externalID,
		Link:          "https://example.com/" + externalID,
		Summary:       "Abstract of " + title,
	}
}

func TestOpenSQLitePrefix(t *testing.T) {
	db, err := Open("sqlite://" + filepath.Join(t.TempDir(), "prefixed.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer db.Close()
	if db.Dialect() != SQLite {
		t.Errorf("expected sqlite dialect, got %q", db.Dialect())
	}
}

func TestInsertArticle(t *testing.T) {
	db := openTestDB(t)
	j := testJournal(t, db)

	a := newArticle(j.ID, "10.3390/rs1", "Test Article")
	a.Volume = ptr("12")
	a.Pages = ptr("100")
	id, err := db.InsertArticle(context.Background(), a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero article ID")
	}

	got, err := db.GetArticleByID(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Volume == nil || *got.Volume != "12" {
		t.Errorf("expected volume 12, got %v", got.Volume)
	}
	if got.ImageURL != nil {
		t.Errorf("expected nil image url, got %q", *got.ImageURL)
	}
	if got.TitleTranslated != nil || got.SummaryTranslated != nil {
		t.Error("expected new article to be untranslated")
	}
}

func TestInsertDuplicateArticle(t *testing.T) {
	db := openTestDB(t)
	j := testJournal(t, db)
	ctx := context.Background()

	if _, err := db.InsertArticle(ctx, newArticle(j.ID, "dup", "First")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, err := db.InsertArticle(ctx, newArticle(j.ID, "dup", "Duplicate"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 0 {
		t.Error("expected 0 for duplicate article")
	}

	stats, _ := db.GetStats(ctx)
	if stats.TotalArticles != 1 {
		t.Errorf("expected 1 article, got %d", stats.TotalArticles)
	}
}

func TestFindArticleByExternalID(t *testing.T) {
	db := openTestDB(t)
	j := testJournal(t, db)
	ctx := context.Background()

	missing, err := db.FindArticleByExternalID(ctx, "10.3390/none")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown external id")
	}

	db.InsertArticle(ctx, newArticle(j.ID, "10.3390/rs2", "Found"))
	found, err := db.FindArticleByExternalID(ctx, "10.3390/rs2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found == nil || found.Title != "Found" {
		t.Errorf("expected to find article, got %+v", found)
	}
}

func TestTranslationLifecycle(t *testing.T) {
	db := openTestDB(t)
	j := testJournal(t, db)
	ctx := context.Background()

	a1, _ := db.InsertArticle(ctx, newArticle(j.ID, "a1", "One"))
	a2, _ := db.InsertArticle(ctx, newArticle(j.ID, "a2", "Two"))
	db.InsertArticle(ctx, newArticle(j.ID, "a3", "Three"))

	untranslated, err := db.ListUntranslated(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(untranslated) != 2 {
		t.Fatalf("expected 2 untranslated, got %d", len(untranslated))
	}
	if untranslated[0].ID != a1 || untranslated[1].ID != a2 {
		t.Errorf("expected insertion order, got %d, %d", untranslated[0].ID, untranslated[1].ID)
	}

	ok, err := db.UpdateTranslation(ctx, a1, "标题", "摘要")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected update to succeed")
	}

	// A second translation of the same article is refused.
	ok, err = db.UpdateTranslation(ctx, a1, "other", "other")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second update to be a no-op")
	}

	got, _ := db.GetArticleByID(ctx, a1)
	if !got.IsTranslated() || *got.TitleTranslated != "标题" || *got.SummaryTranslated != "摘要" {
		t.Errorf("unexpected translation state: %+v", got)
	}

	untranslated, _ = db.ListUntranslated(ctx, 10)
	if len(untranslated) != 2 {
		t.Errorf("expected 2 untranslated after update, got %d", len(untranslated))
	}

	stats, _ := db.GetStats(ctx)
	if stats.Translated != 1 || stats.Untranslated != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestUpdateTranslationMissingArticle(t *testing.T) {
	db := openTestDB(t)
	ok, err := db.UpdateTranslation(context.Background(), 42, "t", "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected false for missing article")
	}
}

func TestMissingSummaryLifecycle(t *testing.T) {
	db := openTestDB(t)
	j := testJournal(t, db)
	ctx := context.Background()

	empty := newArticle(j.ID, "empty", "No abstract")
	empty.Summary = ""
	id, _ := db.InsertArticle(ctx, empty)
	db.InsertArticle(ctx, newArticle(j.ID, "full", "Has abstract"))

	missing, err := db.ListArticlesMissingSummary(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(missing) != 1 || missing[0].ID != id {
		t.Fatalf("expected only the empty article, got %+v", missing)
	}

	if err := db.UpdateArticleSummary(ctx, id, "Fetched abstract"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	missing, _ = db.ListArticlesMissingSummary(ctx, 0)
	if len(missing) != 0 {
		t.Errorf("expected no missing summaries, got %d", len(missing))
	}
}

func TestFindOrCreateJournal(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := db.FindOrCreateJournal(ctx, "Sensors", "https://www.mdpi.com/rss/journal/sensors", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := db.FindOrCreateJournal(ctx, "Other Name", "https://www.mdpi.com/rss/journal/sensors", "MDPI Sensors")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same journal, got %d and %d", first.ID, second.ID)
	}
	if second.Name != "Sensors" {
		t.Errorf("expected name to stay 'Sensors', got %q", second.Name)
	}
	if second.Description != "MDPI Sensors" {
		t.Errorf("expected description backfilled, got %q", second.Description)
	}

	// A set description is never overwritten.
	third, _ := db.FindOrCreateJournal(ctx, "Sensors", "https://www.mdpi.com/rss/journal/sensors", "Changed")
	if third.Description != "MDPI Sensors" {
		t.Errorf("expected description unchanged, got %q", third.Description)
	}

	journals, counts, err := db.ListJournals(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(journals) != 1 || counts[first.ID] != 0 {
		t.Errorf("unexpected journal list %+v %v", journals, counts)
	}
}

func TestIngestRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 6, 8, 0, 0, 0, time.UTC)

	for i, feed := range []string{"https://a.example/rss", "https://b.example/rss"} {
		_, err := db.InsertIngestRun(ctx, &IngestRun{
			RunID:      "run-1",
			FeedURL:    feed,
			Added:      i + 1,
			StartedAt:  FormatTimestamp(now),
			FinishedAt: FormatTimestamp(now.Add(time.Second)),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	runs, err := db.ListIngestRuns(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].FeedURL != "https://b.example/rss" || runs[0].Added != 2 {
		t.Errorf("expected newest run first, got %+v", runs[0])
	}
	if runs[0].StartedAt != "2026-02-06T08:00:00Z" {
		t.Errorf("unexpected started_at %q", runs[0].StartedAt)
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	j := testJournal(t, db)
	ctx := context.Background()

	db.InsertArticle(ctx, newArticle(j.ID, "s1", "A"))
	noAbstract := newArticle(j.ID, "s2", "B")
	noAbstract.Summary = ""
	db.InsertArticle(ctx, noAbstract)

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Journals != 1 || stats.TotalArticles != 2 || stats.Untranslated != 2 || stats.MissingAbstract != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2026, 1, 27, 23, 59, 0, 0, time.UTC)
	if got := FormatDate(d); got != "2026-01-27" {
		t.Errorf("expected 2026-01-27, got %q", got)
	}
}
