package database

// Journal is a source feed. Articles reference it by JournalID.
type Journal struct {
	ID          int64
	Name        string
	RSSURL      string
	Description string
}

// Article is a normalized feed entry. TitleTranslated == nil means the
// article has not been translated yet.
type Article struct {
	ID                int64
	JournalID         int64
	Title             string
	TitleTranslated   *string
	Volume            *string
	Pages             *string
	Authors           string // JSON array of names
	PublishedDate     string // YYYY-MM-DD
	ExternalID        string
	Link              string
	Summary           string
	SummaryTranslated *string
	ImageURL          *string
}

// IsTranslated reports whether both translated fields are present.
func (a *Article) IsTranslated() bool {
	return a.TitleTranslated != nil && a.SummaryTranslated != nil
}

// IngestRun records the outcome of ingesting one feed.
type IngestRun struct {
	ID         int64
	RunID      string
	FeedURL    string
	Added      int
	Skipped    int
	Errors     int
	StartedAt  string
	FinishedAt string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Journals        int
	TotalArticles   int
	Translated      int
	Untranslated    int
	MissingAbstract int
}
