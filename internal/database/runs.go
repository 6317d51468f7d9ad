package database

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// InsertIngestRun records the outcome of ingesting one feed.
func (db *DB) InsertIngestRun(ctx context.Context, r *IngestRun) (int64, error) {
	query, args, err := db.sb.Insert("ingest_runs").
		Columns("run_id", "feed_url", "added", "skipped", "errors", "started_at", "finished_at").
		Values(r.RunID, r.FeedURL, r.Added, r.Skipped, r.Errors, r.StartedAt, r.FinishedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building ingest run insert: %w", err)
	}

	var id int64
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("inserting ingest run: %w", err)
	}
	return id, nil
}

// ListIngestRuns returns the most recent ingest runs, newest first.
func (db *DB) ListIngestRuns(ctx context.Context, limit int) ([]IngestRun, error) {
	b := db.sb.Select("id", "run_id", "feed_url", "added", "skipped", "errors", "started_at", "finished_at").
		From("ingest_runs").
		OrderBy("id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building ingest run query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.RunID, &r.FeedURL, &r.Added, &r.Skipped, &r.Errors,
			&r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	counts := []struct {
		dest  *int
		from  string
		where sq.Sqlizer
	}{
		{&s.Journals, "journals", nil},
		{&s.TotalArticles, "articles", nil},
		{&s.Translated, "articles", sq.NotEq{"title_translated": nil}},
		{&s.Untranslated, "articles", sq.Eq{"title_translated": nil}},
		{&s.MissingAbstract, "articles", sq.Eq{"summary": ""}},
	}

	for _, c := range counts {
		b := db.sb.Select("COUNT(*)").From(c.from)
		if c.where != nil {
			b = b.Where(c.where)
		}
		query, args, err := b.ToSql()
		if err != nil {
			return nil, fmt.Errorf("building stats query: %w", err)
		}
		if err := db.conn.QueryRowContext(ctx, query, args...).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", c.from, err)
		}
	}
	return &s, nil
}
