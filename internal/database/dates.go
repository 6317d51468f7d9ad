package database

import "time"

// DateLayout is the format of Article.PublishedDate.
const DateLayout = "2006-01-02"

// FormatDate formats t the way published dates are stored.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatTimestamp formats t for ingest run bookkeeping columns.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
