// Package translate turns an article's title and abstract into the target
// language with an LLM provider, retrying a bounded number of times.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/journalfeed/internal/config"
	"github.com/TobiSchelling/journalfeed/internal/llm"
	"github.com/TobiSchelling/journalfeed/internal/metrics"
)

const translatePrompt = `Translate the following English journal article title and abstract into %s.

Title: %s
Abstract: %s

Respond with ONLY this JSON, with both fields translated:
{
    "title": "translated title",
    "abstract": "translated abstract"
}`

var (
	// ErrProvider wraps a failed provider call.
	ErrProvider = errors.New("translation provider error")
	// ErrMalformedResponse means the provider answered with something that is
	// not a JSON object with a non-empty title and abstract.
	ErrMalformedResponse = errors.New("malformed translation response")
)

// Error is returned once every attempt has failed. Err is the last failure.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("translation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Translation is a translated title and abstract.
type Translation struct {
	Title   string
	Summary string
}

// Options configures a Service.
type Options struct {
	TargetLanguage    string
	MaxTokens         int
	MaxAttempts       int
	RetryDelay        time.Duration
	RequestsPerMinute int
	Metrics           *metrics.Metrics
}

// Service translates articles. It is safe for concurrent use as long as the
// provider is.
type Service struct {
	provider llm.Provider
	opts     Options
	limiter  *rate.Limiter
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewService creates a translation service. Zero options fall back to
// Simplified Chinese, 2000 tokens and 3 attempts.
func NewService(provider llm.Provider, opts Options) *Service {
	if opts.TargetLanguage == "" {
		opts.TargetLanguage = "Simplified Chinese"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	s := &Service{provider: provider, opts: opts, sleep: sleepContext}
	if opts.RequestsPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return s
}

// Translate translates title and summary, calling the provider at most
// MaxAttempts times with RetryDelay between attempts. It never returns the
// source text as a translation.
func (s *Service) Translate(ctx context.Context, title, summary string) (Translation, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		tr, err := s.attempt(ctx, title, summary)
		if err == nil {
			lgr.Printf("[DEBUG] translated %q (attempt %d/%d)", title, attempt, s.opts.MaxAttempts)
			return tr, nil
		}
		lastErr = err
		lgr.Printf("[WARN] translation attempt %d/%d failed: %v", attempt, s.opts.MaxAttempts, err)

		if attempt < s.opts.MaxAttempts {
			if err := s.sleep(ctx, s.opts.RetryDelay); err != nil {
				return Translation{}, &Error{Attempts: attempt, Err: err}
			}
		}
	}
	return Translation{}, &Error{Attempts: s.opts.MaxAttempts, Err: lastErr}
}

func (s *Service) attempt(ctx context.Context, title, summary string) (Translation, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return Translation{}, fmt.Errorf("%w: %v", ErrProvider, err)
		}
	}

	s.opts.Metrics.TranslationAttempt()
	prompt := fmt.Sprintf(translatePrompt, s.opts.TargetLanguage, title, summary)
	text, err := s.provider.Generate(ctx, prompt, s.opts.MaxTokens)
	if err != nil {
		return Translation{}, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return parseTranslation(text)
}

func parseTranslation(text string) (Translation, error) {
	var payload struct {
		Title    string `json:"title"`
		Abstract string `json:"abstract"`
	}
	if err := llm.DecodeJSONResponse(text, &payload); err != nil {
		return Translation{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	tr := Translation{
		Title:   strings.TrimSpace(payload.Title),
		Summary: strings.TrimSpace(payload.Abstract),
	}
	if tr.Title == "" || tr.Summary == "" {
		return Translation{}, fmt.Errorf("%w: empty title or abstract", ErrMalformedResponse)
	}
	return tr, nil
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

// OptionsFromConfig builds service options from the translation config
// section.
func OptionsFromConfig(cfg config.Translation, m *metrics.Metrics) Options {
	return Options{
		TargetLanguage:    cfg.TargetLanguage,
		MaxTokens:         cfg.MaxTokens,
		MaxAttempts:       cfg.MaxAttempts,
		RetryDelay:        cfg.RetryDelay,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Metrics:           m,
	}
}
