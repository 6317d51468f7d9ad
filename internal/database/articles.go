package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var articleColumns = []string{
	"id", "journal_id", "title", "title_translated", "volume", "pages", "authors",
	"published_date", "external_id", "link", "summary", "summary_translated", "image_url",
}

// InsertArticle inserts an untranslated article. Returns the ID on success,
// 0 if an article with the same external ID already exists.
func (db *DB) InsertArticle(ctx context.Context, a *Article) (int64, error) {
	query, args, err := db.sb.Insert("articles").
		Columns("journal_id", "title", "volume", "pages", "authors",
			"published_date", "external_id", "link", "summary", "image_url").
		Values(a.JournalID, a.Title, a.Volume, a.Pages, a.Authors,
			a.PublishedDate, a.ExternalID, a.Link, a.Summary, a.ImageURL).
		Suffix("ON CONFLICT (external_id) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building article insert: %w", err)
	}

	var id int64
	err = db.conn.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("inserting article %q: %w", a.ExternalID, err)
	}
	return id, nil
}

// FindArticleByExternalID returns the article with the given external ID, or nil.
func (db *DB) FindArticleByExternalID(ctx context.Context, externalID string) (*Article, error) {
	return db.getArticle(ctx, sq.Eq{"external_id": externalID})
}

// GetArticleByID returns a single article by ID, or nil.
func (db *DB) GetArticleByID(ctx context.Context, articleID int64) (*Article, error) {
	return db.getArticle(ctx, sq.Eq{"id": articleID})
}

// ListUntranslated returns up to limit untranslated articles in insertion order.
func (db *DB) ListUntranslated(ctx context.Context, limit int) ([]Article, error) {
	return db.listArticles(ctx, sq.Eq{"title_translated": nil}, limit)
}

// ListArticlesMissingSummary returns untranslated articles whose summary is empty.
func (db *DB) ListArticlesMissingSummary(ctx context.Context, limit int) ([]Article, error) {
	return db.listArticles(ctx, sq.And{
		sq.Eq{"title_translated": nil},
		sq.Eq{"summary": ""},
	}, limit)
}

// UpdateTranslation stores both translated fields in one statement. It only
// touches untranslated rows and reports whether a row was updated.
func (db *DB) UpdateTranslation(ctx context.Context, articleID int64, titleTranslated, summaryTranslated string) (bool, error) {
	query, args, err := db.sb.Update("articles").
		Set("title_translated", titleTranslated).
		Set("summary_translated", summaryTranslated).
		Where(sq.Eq{"id": articleID, "title_translated": nil}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building translation update: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating translation for article %d: %w", articleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateArticleSummary replaces an empty summary with fetched text.
func (db *DB) UpdateArticleSummary(ctx context.Context, articleID int64, summary string) error {
	query, args, err := db.sb.Update("articles").
		Set("summary", summary).
		Where(sq.Eq{"id": articleID, "summary": ""}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building summary update: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating summary for article %d: %w", articleID, err)
	}
	return nil
}

func (db *DB) getArticle(ctx context.Context, where sq.Sqlizer) (*Article, error) {
	query, args, err := db.sb.Select(articleColumns...).From("articles").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building article query: %w", err)
	}

	a, err := scanArticle(db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (db *DB) listArticles(ctx context.Context, where sq.Sqlizer, limit int) ([]Article, error) {
	b := db.sb.Select(articleColumns...).From("articles").Where(where).OrderBy("id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building article query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*Article, error) {
	var a Article
	if err := row.Scan(&a.ID, &a.JournalID, &a.Title, &a.TitleTranslated, &a.Volume, &a.Pages,
		&a.Authors, &a.PublishedDate, &a.ExternalID, &a.Link, &a.Summary,
		&a.SummaryTranslated, &a.ImageURL); err != nil {
		return nil, err
	}
	return &a, nil
}
