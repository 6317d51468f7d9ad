package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/TobiSchelling/journalfeed/internal/collect"
	"github.com/TobiSchelling/journalfeed/internal/config"
	"github.com/TobiSchelling/journalfeed/internal/database"
	"github.com/TobiSchelling/journalfeed/internal/fetch"
	"github.com/TobiSchelling/journalfeed/internal/llm"
	"github.com/TobiSchelling/journalfeed/internal/metrics"
	"github.com/TobiSchelling/journalfeed/internal/scheduler"
	"github.com/TobiSchelling/journalfeed/internal/translate"
)

// ErrNoProvider is returned by steps that need an LLM when none is usable.
var ErrNoProvider = errors.New("no translation provider configured")

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult
}

// Failed reports whether any step failed.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Pipeline orchestrates ingest, abstract fetching and translation.
type Pipeline struct {
	cfg      *config.Config
	db       *database.DB
	provider llm.Provider
	metrics  *metrics.Metrics

	fetcher collect.Fetcher
}

// New creates a new pipeline. provider may be nil; the translate step then
// fails with ErrNoProvider.
func New(cfg *config.Config, db *database.DB, provider llm.Provider, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		db:       db,
		provider: provider,
		metrics:  m,
		fetcher:  collect.NewFeedParser(60 * time.Second),
	}
}

// NewProvider creates the LLM provider described by the translation config.
// The API key is read from the environment variable named by api_key_env.
// Returns nil when no provider is usable.
func NewProvider(cfg *config.Config) llm.Provider {
	t := cfg.Translation
	return llm.CreateProvider(llm.Options{
		Provider:  t.Provider,
		Model:     t.Model,
		BaseURL:   t.BaseURL,
		OllamaURL: t.OllamaURL,
		APIKey:    os.Getenv(t.APIKeyEnv),
	})
}

// Run executes ingest, fetch and translate in order. A failed ingest stops
// the run; the other steps report their error and continue. Unless
// scheduler.max_cycles is set, translation stops after as many cycles as the
// backlog fills.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &Result{}

	// Step 1: Ingest
	step := p.runIngest(ctx)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	// Step 2: Fetch missing abstracts
	if p.cfg.Ingest.FetchAbstracts {
		r.Steps = append(r.Steps, p.runFetch(ctx))
	}

	// Step 3: Translate
	r.Steps = append(r.Steps, p.runTranslate(ctx))
	return r
}

// DryRun shows what would be done without executing.
func (p *Pipeline) DryRun(ctx context.Context) *Result {
	r := &Result{}

	feeds, err := p.cfg.AllFeeds()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Ingest", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Ingest",
		Summary: fmt.Sprintf("[dry-run] would ingest %d feeds (limit %d entries each)", len(feeds), p.cfg.Ingest.Limit),
	})

	stats, err := p.db.GetStats(ctx)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Stats", Err: err})
		return r
	}
	if p.cfg.Ingest.FetchAbstracts {
		r.Steps = append(r.Steps, StepResult{
			Name:    "Fetch",
			Summary: fmt.Sprintf("[dry-run] %d articles need an abstract", stats.MissingAbstract),
		})
	}

	batches := (stats.Untranslated + p.cfg.Scheduler.BatchSize - 1) / p.cfg.Scheduler.BatchSize
	r.Steps = append(r.Steps, StepResult{
		Name: "Translate",
		Summary: fmt.Sprintf("[dry-run] %d articles need translation (%d batches of %d)",
			stats.Untranslated, batches, p.cfg.Scheduler.BatchSize),
	})
	return r
}

func (p *Pipeline) runIngest(ctx context.Context) StepResult {
	lgr.Printf("[INFO] step 1/3: ingesting feeds...")
	feeds, err := p.cfg.AllFeeds()
	if err != nil {
		return StepResult{Name: "Ingest", Err: err}
	}
	if len(feeds) == 0 {
		return StepResult{Name: "Ingest", Err: errors.New("no feeds configured")}
	}

	ingester := collect.NewPipeline(p.db, p.fetcher, feeds, p.cfg.Ingest.Limit, p.metrics)
	results, err := ingester.IngestAll(ctx)
	var found, added, skipped, failed int
	for _, res := range results {
		found += res.Found
		added += res.Added
		skipped += res.Skipped
		failed += len(res.Errors)
	}
	summary := fmt.Sprintf("%d/%d feeds: %d entries, %d added, %d skipped, %d errors",
		len(results), len(feeds), found, added, skipped, failed)
	if err != nil && len(results) == 0 {
		return StepResult{Name: "Ingest", Summary: summary, Err: err}
	}
	return StepResult{Name: "Ingest", Summary: summary}
}

func (p *Pipeline) runFetch(ctx context.Context) StepResult {
	lgr.Printf("[INFO] step 2/3: fetching missing abstracts...")
	fetcher := fetch.NewAbstractFetcher(p.db, 15*time.Second, p.metrics)
	result, err := fetcher.FetchMissing(ctx, p.cfg.Ingest.Limit)
	if err != nil {
		return StepResult{Name: "Fetch", Err: err}
	}
	return StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("Fetched %d abstracts, %d failed", result.Fetched, result.Failed),
	}
}

func (p *Pipeline) runTranslate(ctx context.Context) StepResult {
	lgr.Printf("[INFO] step 3/3: translating articles...")
	if p.provider == nil {
		return StepResult{Name: "Translate", Err: ErrNoProvider}
	}
	cfg := *p.cfg
	if cfg.Scheduler.MaxCycles == 0 {
		cycles, err := p.backlogCycles(ctx)
		if err != nil {
			return StepResult{Name: "Translate", Err: err}
		}
		cfg.Scheduler.MaxCycles = cycles
	}
	sched := NewScheduler(&cfg, p.db, p.provider, p.metrics)
	result, err := sched.Run(ctx)
	if err != nil {
		return StepResult{Name: "Translate", Err: err}
	}
	return StepResult{
		Name: "Translate",
		Summary: fmt.Sprintf("%d cycles: %d translated, %d failed",
			result.Cycles, result.Translated, result.Failed),
	}
}

// backlogCycles is how many batches the current backlog fills. Failed
// articles are drawn again first, so an unbounded run could keep retrying
// the same batch and never exit.
func (p *Pipeline) backlogCycles(ctx context.Context) (int, error) {
	stats, err := p.db.GetStats(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting untranslated articles: %w", err)
	}
	size := p.cfg.Scheduler.BatchSize
	if size <= 0 {
		size = 10
	}
	return max(1, (stats.Untranslated+size-1)/size), nil
}

// NewScheduler wires a translation scheduler from config. Retries inside a
// scheduled task use scheduler.retry_delay rather than translation.retry_delay.
func NewScheduler(cfg *config.Config, db *database.DB, provider llm.Provider, m *metrics.Metrics) *scheduler.Scheduler {
	opts := translate.OptionsFromConfig(cfg.Translation, m)
	opts.RetryDelay = cfg.Scheduler.RetryDelay
	svc := translate.NewService(provider, opts)
	return scheduler.New(db, svc, scheduler.Options{
		BatchSize:  cfg.Scheduler.BatchSize,
		BatchDelay: cfg.Scheduler.BatchDelay,
		TaskDelay:  cfg.Scheduler.TaskDelay,
		MaxCycles:  cfg.Scheduler.MaxCycles,
		Metrics:    m,
	})
}
