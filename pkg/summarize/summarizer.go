package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/elonfeng/govdigest/internal/retry"
	"github.com/elonfeng/govdigest/pkg/country"
	"github.com/elonfeng/govdigest/pkg/source"
)

// Scope names the granularity a summarization call works at.
type Scope string

const (
	ScopeRelease       Scope = "release"
	ScopeCountry       Scope = "country"
	ScopeGlobal        Scope = "global"
	ScopeWeeklyCountry Scope = "weekly_country"
	ScopeWeeklyGlobal  Scope = "weekly_global"
)

// SummarizationError reports that one unit of text could not be summarized
// after retries.
type SummarizationError struct {
	Scope   Scope
	Subject string
	Err     error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("summarize %s %s: %v", e.Scope, e.Subject, e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }

// CountryText is a country rollup fed into the global prompt.
type CountryText struct {
	Name    string
	Title   string
	Summary string
}

// DayText is one day's title and summary, used for weekly prompts.
type DayText struct {
	Date    string
	Title   string
	Summary string
}

// CountryWeek is one country's daily rollups across a week.
type CountryWeek struct {
	Code string
	Name string
	Days []DayText
}

// Observer is notified after every completion attempt sequence.
type Observer func(scope Scope, err error)

// Summarizer produces titles and summaries at every digest granularity over
// a single Completer.
type Summarizer struct {
	completer Completer
	limiter   *rate.Limiter
	retry     retry.Config
	logger    *slog.Logger
	observe   Observer
}

// Option customizes a Summarizer.
type Option func(*Summarizer)

// WithRateLimit caps completion calls per second across all goroutines.
func WithRateLimit(perSecond float64) Option {
	return func(s *Summarizer) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Summarizer) { s.logger = l }
}

// WithObserver registers a callback invoked once per summarization call.
func WithObserver(o Observer) Option {
	return func(s *Summarizer) { s.observe = o }
}

// New creates a summarizer.
func New(c Completer, rc retry.Config, opts ...Option) *Summarizer {
	s := &Summarizer{
		completer: c,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		retry:     rc,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SummarizeRelease distills a single release into a card-sized title and summary.
func (s *Summarizer) SummarizeRelease(ctx context.Context, r source.Release) (Result, error) {
	body := r.Body
	if body == "" {
		body = r.Title
	}
	p := releasePrompt(r.Title, r.Ministry, country.Name(r.Country), body)
	return s.titleSummary(ctx, ScopeRelease, fmt.Sprintf("%s/%d", r.Country, r.ID), p)
}

// SummarizeCountry writes a country-of-the-day rollup from release summaries.
// A single release only gets a new headline; its summary is reused.
func (s *Summarizer) SummarizeCountry(ctx context.Context, countryName string, releases []Result) (Result, error) {
	if len(releases) == 0 {
		return Result{}, &SummarizationError{Scope: ScopeCountry, Subject: countryName, Err: fmt.Errorf("no release summaries")}
	}

	if len(releases) == 1 {
		p := countryHeadlinePrompt(countryName, releases[0])
		title, err := complete(ctx, s, ScopeCountry, countryName, p, ParseHeadline)
		if err != nil {
			return Result{}, err
		}
		return Result{Title: title, Summary: releases[0].Summary}, nil
	}

	return s.titleSummary(ctx, ScopeCountry, countryName, countryPrompt(countryName, releases))
}

// SummarizeGlobal writes the cross-country daily narrative from country rollups.
func (s *Summarizer) SummarizeGlobal(ctx context.Context, countries []CountryText) (Result, error) {
	if len(countries) == 0 {
		return Result{}, &SummarizationError{Scope: ScopeGlobal, Subject: "daily", Err: fmt.Errorf("no country rollups")}
	}
	return s.titleSummary(ctx, ScopeGlobal, "daily", globalPrompt(countries))
}

// SummarizeWeeklyCountry merges one country's daily rollups for a week.
func (s *Summarizer) SummarizeWeeklyCountry(ctx context.Context, countryName string, days []DayText) (Result, error) {
	return s.titleSummary(ctx, ScopeWeeklyCountry, countryName, weeklyCountryPrompt(countryName, days))
}

// SummarizeWeeklyGlobal writes the weekly recap from daily headlines and
// per-country day lines.
func (s *Summarizer) SummarizeWeeklyGlobal(ctx context.Context, dailies []DayText, countries []CountryWeek) (Result, error) {
	return s.titleSummary(ctx, ScopeWeeklyGlobal, "weekly", weeklyGlobalPrompt(dailies, countries))
}

func (s *Summarizer) titleSummary(ctx context.Context, scope Scope, subject string, p prompt) (Result, error) {
	return complete(ctx, s, scope, subject, p, ParseTitleSummary)
}

func complete[T any](ctx context.Context, s *Summarizer, scope Scope, subject string, p prompt, parse func(string) (T, error)) (T, error) {
	out, err := retry.Do(ctx, s.retry, func(ctx context.Context) (T, error) {
		var zero T
		if err := s.limiter.Wait(ctx); err != nil {
			return zero, retry.Permanent(err)
		}
		raw, err := s.completer.Complete(ctx, p.system, p.user)
		if err != nil {
			return zero, err
		}
		return parse(raw)
	}, func(err error, wait time.Duration) {
		s.logger.Warn("llm retry", "scope", scope, "subject", subject, "wait", wait, "error", err)
	})

	if s.observe != nil {
		s.observe(scope, err)
	}
	if err != nil {
		var zero T
		return zero, &SummarizationError{Scope: scope, Subject: subject, Err: err}
	}
	return out, nil
}
