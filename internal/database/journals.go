package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// FindOrCreateJournal returns the journal registered for rssURL, creating it
// if needed. An existing journal with an empty description gets description
// filled in; nothing else about an existing journal changes.
func (db *DB) FindOrCreateJournal(ctx context.Context, name, rssURL, description string) (*Journal, error) {
	j, err := db.GetJournalByURL(ctx, rssURL)
	if err != nil {
		return nil, err
	}
	if j != nil {
		if j.Description == "" && description != "" {
			if _, err := db.BackfillJournalDescription(ctx, j.ID, description); err != nil {
				return nil, err
			}
			j.Description = description
		}
		return j, nil
	}

	query, args, err := db.sb.Insert("journals").
		Columns("name", "rss_url", "description").
		Values(name, rssURL, description).
		Suffix("ON CONFLICT (rss_url) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building journal insert: %w", err)
	}

	var id int64
	err = db.conn.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// Created concurrently by another run.
		return db.GetJournalByURL(ctx, rssURL)
	}
	if err != nil {
		return nil, fmt.Errorf("inserting journal %s: %w", rssURL, err)
	}
	return &Journal{ID: id, Name: name, RSSURL: rssURL, Description: description}, nil
}

// GetJournalByURL returns the journal with the given feed URL, or nil.
func (db *DB) GetJournalByURL(ctx context.Context, rssURL string) (*Journal, error) {
	query, args, err := db.sb.Select("id", "name", "rss_url", "description").
		From("journals").
		Where(sq.Eq{"rss_url": rssURL}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building journal query: %w", err)
	}

	var j Journal
	err = db.conn.QueryRowContext(ctx, query, args...).Scan(&j.ID, &j.Name, &j.RSSURL, &j.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up journal %s: %w", rssURL, err)
	}
	return &j, nil
}

// BackfillJournalDescription sets the description only if it is still empty.
func (db *DB) BackfillJournalDescription(ctx context.Context, journalID int64, description string) (bool, error) {
	if description == "" {
		return false, nil
	}
	query, args, err := db.sb.Update("journals").
		Set("description", description).
		Where(sq.Eq{"id": journalID, "description": ""}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building journal update: %w", err)
	}
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating journal %d: %w", journalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListJournals returns all journals with their article counts, ordered by name.
func (db *DB) ListJournals(ctx context.Context) ([]Journal, map[int64]int, error) {
	query, args, err := db.sb.Select("j.id", "j.name", "j.rss_url", "j.description", "COUNT(a.id)").
		From("journals j").
		LeftJoin("articles a ON a.journal_id = j.id").
		GroupBy("j.id", "j.name", "j.rss_url", "j.description").
		OrderBy("j.name").
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("building journal list: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var journals []Journal
	counts := make(map[int64]int)
	for rows.Next() {
		var j Journal
		var n int
		if err := rows.Scan(&j.ID, &j.Name, &j.RSSURL, &j.Description, &n); err != nil {
			return nil, nil, err
		}
		journals = append(journals, j)
		counts[j.ID] = n
	}
	return journals, counts, rows.Err()
}
