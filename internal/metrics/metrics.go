// Package metrics holds the Prometheus counters for ingestion and
// translation runs. journalfeed is a batch job, so counters are pushed to a
// Pushgateway at the end of a command instead of being scraped.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Translation outcomes.
const (
	OutcomeTranslated = "translated"
	OutcomeFailed     = "failed"
	OutcomeStoreError = "store_error"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	articlesAdded       *prometheus.CounterVec
	articlesSkipped     *prometheus.CounterVec
	articleErrors       *prometheus.CounterVec
	feedFailures        prometheus.Counter
	translationAttempts prometheus.Counter
	translations        *prometheus.CounterVec
	abstractsFetched    prometheus.Counter
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		articlesAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journalfeed_articles_added_total",
			Help: "Articles stored by ingestion.",
		}, []string{"journal"}),
		articlesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journalfeed_articles_skipped_total",
			Help: "Feed entries skipped because the article already exists.",
		}, []string{"journal"}),
		articleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journalfeed_article_errors_total",
			Help: "Feed entries that failed normalization, deduplication or insertion.",
		}, []string{"journal"}),
		feedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journalfeed_feed_failures_total",
			Help: "Feeds that could not be ingested at all.",
		}),
		translationAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journalfeed_translation_attempts_total",
			Help: "Translation provider calls, including retries.",
		}),
		translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journalfeed_translations_total",
			Help: "Translation tasks by outcome.",
		}, []string{"outcome"}),
		abstractsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journalfeed_abstracts_fetched_total",
			Help: "Empty abstracts filled from the article page.",
		}),
	}
	m.registry.MustRegister(
		m.articlesAdded,
		m.articlesSkipped,
		m.articleErrors,
		m.feedFailures,
		m.translationAttempts,
		m.translations,
		m.abstractsFetched,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ArticleAdded counts an article stored for journal.
func (m *Metrics) ArticleAdded(journal string) {
	if m != nil {
		m.articlesAdded.WithLabelValues(journal).Inc()
	}
}

// ArticleSkipped counts an entry that was already stored.
func (m *Metrics) ArticleSkipped(journal string) {
	if m != nil {
		m.articlesSkipped.WithLabelValues(journal).Inc()
	}
}

// ArticleFailed counts an entry that could not be normalized or stored.
func (m *Metrics) ArticleFailed(journal string) {
	if m != nil {
		m.articleErrors.WithLabelValues(journal).Inc()
	}
}

// FeedFailed counts a feed that could not be ingested at all.
func (m *Metrics) FeedFailed() {
	if m != nil {
		m.feedFailures.Inc()
	}
}

// TranslationAttempt counts one provider call made for a translation.
func (m *Metrics) TranslationAttempt() {
	if m != nil {
		m.translationAttempts.Inc()
	}
}

// Translation counts a finished scheduler task by outcome.
func (m *Metrics) Translation(outcome string) {
	if m != nil {
		m.translations.WithLabelValues(outcome).Inc()
	}
}

// AbstractFetched counts a summary filled from an article page.
func (m *Metrics) AbstractFetched() {
	if m != nil {
		m.abstractsFetched.Inc()
	}
}

// Push sends all collected metrics to a Pushgateway. An empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
