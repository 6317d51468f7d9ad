// Package scheduler drains the backlog of untranslated articles in paced,
// concurrent batches.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/journalfeed/internal/database"
	"github.com/TobiSchelling/journalfeed/internal/metrics"
	"github.com/TobiSchelling/journalfeed/internal/translate"
)

// Store is the storage surface the scheduler needs.
type Store interface {
	ListUntranslated(ctx context.Context, limit int) ([]database.Article, error)
	UpdateTranslation(ctx context.Context, articleID int64, titleTranslated, summaryTranslated string) (bool, error)
}

// Translator translates one article.
type Translator interface {
	Translate(ctx context.Context, title, summary string) (translate.Translation, error)
}

// Options configures batching and pacing.
type Options struct {
	BatchSize  int
	BatchDelay time.Duration
	TaskDelay  time.Duration
	// MaxCycles bounds the number of batches; 0 runs until the backlog is empty.
	MaxCycles int
	Metrics   *metrics.Metrics
}

// Result summarizes a scheduler run.
type Result struct {
	Cycles     int
	Attempted  int
	Translated int
	Failed     int
}

// Scheduler runs translation batches against a store.
type Scheduler struct {
	store      Store
	translator Translator
	opts       Options
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a scheduler. A non-positive batch size falls back to 10.
func New(store Store, translator Translator, opts Options) *Scheduler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	return &Scheduler{store: store, translator: translator, opts: opts, sleep: sleepContext}
}

// Run translates batches until no untranslated article is left, MaxCycles is
// reached, or ctx is cancelled. Cancellation is only observed between
// batches: a batch that has started always runs to completion.
func (s *Scheduler) Run(ctx context.Context) (*Result, error) {
	r := &Result{}
	for {
		if ctx.Err() != nil {
			lgr.Printf("[INFO] stop requested, exiting after %d cycles", r.Cycles)
			return r, nil
		}
		if s.opts.MaxCycles > 0 && r.Cycles >= s.opts.MaxCycles {
			lgr.Printf("[INFO] reached max cycles (%d)", s.opts.MaxCycles)
			return r, nil
		}

		batch, err := s.store.ListUntranslated(ctx, s.opts.BatchSize)
		if err != nil {
			return r, err
		}
		if len(batch) == 0 {
			lgr.Printf("[INFO] no untranslated articles left")
			return r, nil
		}

		r.Cycles++
		lgr.Printf("[INFO] cycle %d: translating %d articles", r.Cycles, len(batch))
		translated := s.runBatch(context.WithoutCancel(ctx), batch)
		r.Attempted += len(batch)
		r.Translated += translated
		r.Failed += len(batch) - translated
		lgr.Printf("[INFO] cycle %d: %d/%d translated", r.Cycles, translated, len(batch))

		if s.opts.MaxCycles > 0 && r.Cycles >= s.opts.MaxCycles {
			continue
		}
		if err := s.sleep(ctx, s.opts.BatchDelay); err != nil {
			lgr.Printf("[INFO] stop requested during batch delay")
			return r, nil
		}
	}
}

// runBatch translates every article concurrently and returns how many were
// persisted. A failure only affects its own article.
func (s *Scheduler) runBatch(ctx context.Context, batch []database.Article) int {
	var (
		mu         sync.Mutex
		translated int
	)
	var g errgroup.Group
	g.SetLimit(len(batch))
	for _, article := range batch {
		g.Go(func() error {
			if s.translateOne(ctx, article) {
				mu.Lock()
				translated++
				mu.Unlock()
			}
			// ctx is detached from cancellation, so the delay always runs out.
			_ = s.sleep(ctx, s.opts.TaskDelay)
			return nil
		})
	}
	_ = g.Wait() // tasks never return an error
	return translated
}

func (s *Scheduler) translateOne(ctx context.Context, article database.Article) bool {
	lgr.Printf("[DEBUG] translating article %d: %s", article.ID, truncate(article.Title, 50))
	tr, err := s.translator.Translate(ctx, article.Title, article.Summary)
	if err != nil {
		lgr.Printf("[WARN] article %d not translated: %v", article.ID, err)
		s.opts.Metrics.Translation(metrics.OutcomeFailed)
		return false
	}

	ok, err := s.store.UpdateTranslation(ctx, article.ID, tr.Title, tr.Summary)
	if err != nil {
		lgr.Printf("[ERROR] storing translation for article %d: %v", article.ID, err)
		s.opts.Metrics.Translation(metrics.OutcomeStoreError)
		return false
	}
	if !ok {
		// Translated concurrently by another process; nothing to do.
		lgr.Printf("[DEBUG] article %d was already translated", article.ID)
		return false
	}
	s.opts.Metrics.Translation(metrics.OutcomeTranslated)
	return true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
