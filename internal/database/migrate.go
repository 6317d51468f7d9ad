package database

import (
	"database/sql"
	"fmt"

	"github.com/go-pkgz/lgr"
)

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    description TEXT NOT NULL
)`

// getSchemaVersion returns the highest applied migration version.
func getSchemaVersion(db *DB) (int, error) {
	var version sql.NullInt64
	if err := db.conn.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return int(version.Int64), nil
}

// migrate brings the database schema up to the latest version.
// Applied versions are tracked in the schema_migrations table so the same
// bookkeeping works on SQLite and PostgreSQL.
func migrate(db *DB) error {
	if _, err := db.conn.Exec(createMigrationsTable); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	current, err := getSchemaVersion(db)
	if err != nil {
		return err
	}

	if current >= latestVersion() {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		lgr.Printf("[INFO] applying migration %d: %s", m.Version, m.Description)

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		for _, stmt := range m.statements(db.dialect) {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
			}
		}

		query, args, err := db.sb.Insert("schema_migrations").
			Columns("version", "description").
			Values(m.Version, m.Description).
			ToSql()
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("building version insert: %w", err)
		}
		if _, err := tx.Exec(query, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
