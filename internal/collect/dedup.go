package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TobiSchelling/journalfeed/internal/database"
)

// ErrNoIdentifier is returned for entries with neither a DOI nor a GUID.
// Such entries cannot be deduplicated and are not stored.
var ErrNoIdentifier = errors.New("entry has no identifier")

// ArticleFinder looks up stored articles by external identifier.
type ArticleFinder interface {
	FindArticleByExternalID(ctx context.Context, externalID string) (*database.Article, error)
}

// Gate decides whether an article is new. Every call hits storage; nothing is
// cached between calls.
type Gate struct {
	finder ArticleFinder
}

// NewGate creates a deduplication gate backed by finder.
func NewGate(finder ArticleFinder) *Gate {
	return &Gate{finder: finder}
}

// IsNew reports whether no stored article has externalID.
func (g *Gate) IsNew(ctx context.Context, externalID string) (bool, error) {
	if strings.TrimSpace(externalID) == "" {
		return false, ErrNoIdentifier
	}
	existing, err := g.finder.FindArticleByExternalID(ctx, externalID)
	if err != nil {
		return false, fmt.Errorf("checking %q: %w", externalID, err)
	}
	return existing == nil, nil
}
