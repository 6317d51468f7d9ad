// Package fetch backfills empty article abstracts from the article's landing
// page. An article without an abstract can never be translated.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/journalfeed/internal/database"
	"github.com/TobiSchelling/journalfeed/internal/metrics"
)

const (
	minAbstractLen   = 100
	maxAbstractRunes = 4000
	maxPageBytes     = 5 << 20
)

// Store is the storage surface the fetcher needs.
type Store interface {
	ListArticlesMissingSummary(ctx context.Context, limit int) ([]database.Article, error)
	UpdateArticleSummary(ctx context.Context, articleID int64, summary string) error
}

// Result holds the results of an abstract fetch run.
type Result struct {
	Fetched int
	Failed  int
}

// AbstractFetcher fills empty summaries via HTTP + readability extraction.
type AbstractFetcher struct {
	store   Store
	client  *http.Client
	metrics *metrics.Metrics
}

// NewAbstractFetcher creates a new abstract fetcher.
func NewAbstractFetcher(store Store, timeout time.Duration, m *metrics.Metrics) *AbstractFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &AbstractFetcher{
		store:   store,
		metrics: m,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// FetchMissing fetches abstracts for up to limit untranslated articles with
// an empty summary. After an HTTP error status the rest of that domain is
// skipped for this run.
func (f *AbstractFetcher) FetchMissing(ctx context.Context, limit int) (*Result, error) {
	articles, err := f.store.ListArticlesMissingSummary(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing articles without abstract: %w", err)
	}
	if len(articles) == 0 {
		lgr.Printf("[INFO] no articles need abstract fetching")
		return &Result{}, nil
	}

	result := &Result{}
	failedDomains := make(map[string]struct{})

	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		domain := ""
		if u, err := url.Parse(article.Link); err == nil {
			domain = strings.ToLower(u.Host)
		}
		if _, failed := failedDomains[domain]; failed {
			result.Failed++
			continue
		}

		abstract, err := f.fetchAbstract(ctx, article.Link)
		if err != nil {
			result.Failed++
			var he *httpError
			if errors.As(err, &he) && domain != "" {
				failedDomains[domain] = struct{}{}
				lgr.Printf("[WARN] HTTP %d for %s, skipping remaining from %s", he.code, article.Link, domain)
			} else {
				lgr.Printf("[WARN] fetching %s: %v", article.Link, err)
			}
			continue
		}
		if abstract == "" {
			result.Failed++
			lgr.Printf("[DEBUG] no extractable abstract from %s", article.Link)
			continue
		}

		if err := f.store.UpdateArticleSummary(ctx, article.ID, abstract); err != nil {
			result.Failed++
			lgr.Printf("[ERROR] storing abstract for article %d: %v", article.ID, err)
			continue
		}
		result.Fetched++
		f.metrics.AbstractFetched()
		lgr.Printf("[INFO] fetched abstract for: %s", article.Title)
	}

	lgr.Printf("[INFO] abstract fetch complete: %d fetched, %d failed", result.Fetched, result.Failed)
	return result, nil
}

func (f *AbstractFetcher) fetchAbstract(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "journalfeed/1.0 (journal aggregator)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", nil
	}

	// Journal landing pages usually carry the abstract as the page
	// description; fall back to the extracted body text.
	if excerpt := strings.TrimSpace(article.Excerpt); len(excerpt) >= minAbstractLen {
		return excerpt, nil
	}
	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) < minAbstractLen {
		return "", nil
	}
	if r := []rune(text); len(r) > maxAbstractRunes {
		text = string(r[:maxAbstractRunes]) + "..."
	}
	return text, nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.code, http.StatusText(e.code))
}
