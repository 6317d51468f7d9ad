package database

// Migration represents a single schema migration step. Statements are
// executed in order inside one transaction; each dialect has its own DDL.
type Migration struct {
	Version     int
	Description string
	SQLite      []string
	Postgres    []string
}

// statements returns the DDL for the given dialect.
func (m Migration) statements(d Dialect) []string {
	if d == Postgres {
		return m.Postgres
	}
	return m.SQLite
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		SQLite: []string{
			`CREATE TABLE IF NOT EXISTS journals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    rss_url TEXT UNIQUE NOT NULL,
    description TEXT NOT NULL DEFAULT ''
)`,
			`CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    journal_id INTEGER NOT NULL REFERENCES journals(id),
    title TEXT NOT NULL,
    title_translated TEXT,
    volume TEXT,
    pages TEXT,
    authors TEXT NOT NULL DEFAULT '[]',
    published_date TEXT NOT NULL,
    external_id TEXT UNIQUE NOT NULL,
    link TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    summary_translated TEXT,
    image_url TEXT,
    created_at TEXT DEFAULT (datetime('now'))
)`,
			`CREATE INDEX IF NOT EXISTS idx_articles_journal ON articles(journal_id)`,
			`CREATE INDEX IF NOT EXISTS idx_articles_untranslated ON articles(id) WHERE title_translated IS NULL`,
		},
		Postgres: []string{
			`CREATE TABLE IF NOT EXISTS journals (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    rss_url TEXT UNIQUE NOT NULL,
    description TEXT NOT NULL DEFAULT ''
)`,
			`CREATE TABLE IF NOT EXISTS articles (
    id BIGSERIAL PRIMARY KEY,
    journal_id BIGINT NOT NULL REFERENCES journals(id),
    title TEXT NOT NULL,
    title_translated TEXT,
    volume TEXT,
    pages TEXT,
    authors TEXT NOT NULL DEFAULT '[]',
    published_date TEXT NOT NULL,
    external_id TEXT UNIQUE NOT NULL,
    link TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    summary_translated TEXT,
    image_url TEXT,
    created_at TIMESTAMPTZ DEFAULT now()
)`,
			`CREATE INDEX IF NOT EXISTS idx_articles_journal ON articles(journal_id)`,
			`CREATE INDEX IF NOT EXISTS idx_articles_untranslated ON articles(id) WHERE title_translated IS NULL`,
		},
	},
	{
		Version:     2,
		Description: "ingest run reports",
		SQLite: []string{
			`CREATE TABLE IF NOT EXISTS ingest_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    feed_url TEXT NOT NULL,
    added INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    errors INTEGER NOT NULL DEFAULT 0,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_ingest_runs_run ON ingest_runs(run_id)`,
		},
		Postgres: []string{
			`CREATE TABLE IF NOT EXISTS ingest_runs (
    id BIGSERIAL PRIMARY KEY,
    run_id TEXT NOT NULL,
    feed_url TEXT NOT NULL,
    added INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    errors INTEGER NOT NULL DEFAULT 0,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_ingest_runs_run ON ingest_runs(run_id)`,
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
