// Package pipeline turns fetched press releases into persisted daily and
// weekly digests. Which dates are done is always derived from the store, so
// a run can be repeated over any range without duplicating work.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/elonfeng/govdigest/internal/lock"
	"github.com/elonfeng/govdigest/internal/logger"
	"github.com/elonfeng/govdigest/internal/metrics"
	"github.com/elonfeng/govdigest/internal/store"
	"github.com/elonfeng/govdigest/pkg/country"
	"github.com/elonfeng/govdigest/pkg/source"
	"github.com/elonfeng/govdigest/pkg/summarize"
)

// Summarizer is the subset of summarize.Summarizer the pipeline drives.
type Summarizer interface {
	SummarizeRelease(ctx context.Context, r source.Release) (summarize.Result, error)
	SummarizeCountry(ctx context.Context, countryName string, releases []summarize.Result) (summarize.Result, error)
	SummarizeGlobal(ctx context.Context, countries []summarize.CountryText) (summarize.Result, error)
	SummarizeWeeklyCountry(ctx context.Context, countryName string, days []summarize.DayText) (summarize.Result, error)
	SummarizeWeeklyGlobal(ctx context.Context, dailies []summarize.DayText, countries []summarize.CountryWeek) (summarize.Result, error)
}

// FallbackPolicy decides what happens when a country rollup cannot be
// summarized.
type FallbackPolicy string

const (
	// FallbackDegrade keeps the country with text built from its release titles.
	FallbackDegrade FallbackPolicy = "degrade"
	// FallbackFail fails the whole day.
	FallbackFail FallbackPolicy = "fail"
)

// Options configures a Pipeline. Zero values get defaults in New.
type Options struct {
	Countries             []string
	Concurrency           int
	MaxReleasesPerCountry int
	WeekEnd               time.Weekday
	CountryFallback       FallbackPolicy
	PruneDays             int
	Filter                *source.Filter
	Locker                lock.Locker
	Metrics               *metrics.Metrics
	Logger                *slog.Logger
	Now                   func() time.Time
}

// Pipeline orchestrates fetch, summarize, aggregate and commit for a range
// of dates. It holds no state between runs.
type Pipeline struct {
	store      store.Store
	fetcher    source.Fetcher
	summarizer Summarizer
	opts       Options
}

// New creates a pipeline.
func New(s store.Store, f source.Fetcher, sum Summarizer, opts Options) *Pipeline {
	if len(opts.Countries) == 0 {
		opts.Countries = country.Codes()
	} else {
		opts.Countries = slices.Clone(opts.Countries)
		slices.Sort(opts.Countries)
		opts.Countries = slices.Compact(opts.Countries)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.CountryFallback == "" {
		opts.CountryFallback = FallbackDegrade
	}
	if opts.Locker == nil {
		opts.Locker = lock.Noop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{store: s, fetcher: f, summarizer: sum, opts: opts}
}

// Run processes every missing date in r, oldest first, then rolls up any
// complete week that still has no weekly digest, whether or not r touches it. Day-level failures are recorded in the report
// and do not stop the run; a PersistenceError does. Cancellation is honored
// between days.
func (p *Pipeline) Run(ctx context.Context, r Range) (*Report, error) {
	rep := &Report{RunID: uuid.NewString(), Started: p.opts.Now()}
	log := logger.WithRun(p.opts.Logger, rep.RunID)

	err := p.run(ctx, log, r, rep)
	rep.Finished = p.opts.Now()
	rep.Err = err
	p.opts.Metrics.ObserveRun(rep.Started, rep.Count(Success) > 0)

	if err != nil {
		log.Error("run aborted", "error", err)
		return rep, err
	}
	log.Info("run done",
		"success", rep.Count(Success),
		"skipped", rep.Count(Skipped),
		"failed", rep.Count(Failed),
		"weeks", len(rep.Weeks),
	)
	return rep, nil
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, r Range, rep *Report) error {
	release, err := p.opts.Locker.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("release run lock", "error", err)
		}
	}()

	dates, err := r.Dates(p.opts.Now())
	if err != nil {
		return err
	}
	log.Info("run planned", "from", r.From.Format(source.DateLayout), "to", r.To.Format(source.DateLayout), "dates", len(dates))

	weeks := newWeekTracker(p.opts.WeekEnd)
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			log.Warn("run cancelled before day", "date", date.Format(source.DateLayout))
			return err
		}

		day := date.Format(source.DateLayout)
		weeks.touch(date)

		exists, err := p.store.HasDailyDigest(ctx, day)
		if err != nil {
			return &PersistenceError{Op: "has daily digest " + day, Err: err}
		}
		if exists {
			rep.Days = append(rep.Days, DayOutcome{Date: day, Kind: Skipped, Reason: ReasonExists})
			p.opts.Metrics.DaysTotal.WithLabelValues(string(Skipped)).Inc()
			continue
		}

		out, err := p.processDay(ctx, log.With("date", day), date)
		rep.Days = append(rep.Days, out)
		p.opts.Metrics.DaysTotal.WithLabelValues(string(out.Kind)).Inc()
		if err != nil {
			return err
		}

		if out.Kind == Success && ctx.Err() == nil {
			if err := p.rollupWeek(ctx, log, weeks, weekContaining(date, p.opts.WeekEnd), rep); err != nil {
				return err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.touchUnrolled(ctx, weeks); err != nil {
		return err
	}
	for _, end := range weeks.pending() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.rollupWeek(ctx, log, weeks, end, rep); err != nil {
			return err
		}
	}

	if p.opts.PruneDays > 0 {
		cutoff := p.opts.Now().UTC().AddDate(0, 0, -p.opts.PruneDays).Format(source.DateLayout)
		daily, weekly, err := p.store.Prune(ctx, cutoff)
		if err != nil {
			return &PersistenceError{Op: "prune", Err: err}
		}
		rep.PrunedDaily, rep.PrunedWeekly = daily, weekly
		if daily+weekly > 0 {
			log.Info("pruned old digests", "cutoff", cutoff, "daily", daily, "weekly", weekly)
		}
	}
	return nil
}

// RollupWeeks attempts the weekly digest for every window touching r
// without processing any day.
func (p *Pipeline) RollupWeeks(ctx context.Context, r Range) (*Report, error) {
	rep := &Report{RunID: uuid.NewString(), Started: p.opts.Now()}
	log := logger.WithRun(p.opts.Logger, rep.RunID)

	err := func() error {
		release, err := p.opts.Locker.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire run lock: %w", err)
		}
		defer release(context.WithoutCancel(ctx))

		dates, err := r.Dates(p.opts.Now())
		if err != nil {
			return err
		}
		weeks := newWeekTracker(p.opts.WeekEnd)
		for _, d := range dates {
			weeks.touch(d)
		}
		for _, end := range weeks.pending() {
			if err := p.rollupWeek(ctx, log, weeks, end, rep); err != nil {
				return err
			}
		}
		return nil
	}()

	rep.Finished = p.opts.Now()
	rep.Err = err
	return rep, err
}
