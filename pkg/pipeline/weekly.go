package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/govdigest/internal/store"
	"github.com/elonfeng/govdigest/pkg/source"
	"github.com/elonfeng/govdigest/pkg/summarize"
)

const daysPerWeek = 7

// rollupWeek builds and commits the weekly digest ending on end when all
// seven daily digests exist and no weekly digest does. Incomplete windows
// are left for a later call. Only persistence errors are returned.
func (p *Pipeline) rollupWeek(ctx context.Context, log *slog.Logger, weeks *weekTracker, end time.Time, rep *Report) error {
	if weeks.attempted[end.Format(source.DateLayout)] {
		return nil
	}

	weekEnd := end.Format(source.DateLayout)
	weekStart := end.AddDate(0, 0, -(daysPerWeek - 1)).Format(source.DateLayout)
	log = log.With("week_end", weekEnd)

	exists, err := p.store.HasWeeklyDigest(ctx, weekEnd)
	if err != nil {
		return &PersistenceError{Op: "has weekly digest " + weekEnd, Err: err}
	}
	if exists {
		weeks.claim(end)
		return nil
	}

	days, err := p.store.DailyDigestsBetween(ctx, weekStart, weekEnd)
	if err != nil {
		return &PersistenceError{Op: "daily digests " + weekStart + ".." + weekEnd, Err: err}
	}
	if len(days) < daysPerWeek {
		log.Debug("week deferred", "reason", ReasonIncomplete, "days", len(days))
		return nil
	}
	weeks.claim(end)

	out := p.buildWeek(ctx, log, weekStart, weekEnd, days)
	if out.Kind == Success {
		if err := p.store.CommitWeeklyDigest(ctx, out.Digest); err != nil {
			perr := &PersistenceError{Op: "commit weekly digest " + weekEnd, Err: err}
			out.Kind, out.Reason, out.Err, out.Digest = Failed, "commit failed", perr, nil
			rep.Weeks = append(rep.Weeks, out)
			p.opts.Metrics.WeeksTotal.WithLabelValues(string(Failed)).Inc()
			return perr
		}
		log.Info("week committed", "countries", len(out.Digest.Countries))
	}
	rep.Weeks = append(rep.Weeks, out)
	p.opts.Metrics.WeeksTotal.WithLabelValues(string(out.Kind)).Inc()
	return nil
}

// touchUnrolled adds the windows of stored days that no weekly digest
// covers, so a week whose rollup failed earlier is retried by any later run.
// The lookback stops at the prune cutoff when pruning is enabled.
func (p *Pipeline) touchUnrolled(ctx context.Context, weeks *weekTracker) error {
	since := ""
	if p.opts.PruneDays > 0 {
		since = p.opts.Now().UTC().AddDate(0, 0, -p.opts.PruneDays).Format(source.DateLayout)
	}
	dates, err := p.store.DatesWithoutWeekly(ctx, since)
	if err != nil {
		return &PersistenceError{Op: "dates without weekly", Err: err}
	}
	for _, d := range dates {
		date, err := time.Parse(source.DateLayout, d)
		if err != nil {
			return &PersistenceError{Op: "parse stored date " + d, Err: err}
		}
		weeks.touch(date)
	}
	return nil
}

// buildWeek summarizes each country's week, then the global week. A country
// failure degrades or fails the week per the fallback policy; a global
// failure fails it so the next run retries.
func (p *Pipeline) buildWeek(ctx context.Context, log *slog.Logger, weekStart, weekEnd string, days []store.DailyDigest) WeekOutcome {
	out := WeekOutcome{WeekStart: weekStart, WeekEnd: weekEnd}

	dailies := make([]summarize.DayText, len(days))
	for i, d := range days {
		dailies[i] = summarize.DayText{Date: d.Date, Title: d.GlobalTitle, Summary: d.GlobalSummary}
	}
	weeksByCountry := groupByCountry(days)

	results := make([]summarize.Result, len(weeksByCountry))
	warnings := make([]error, len(weeksByCountry))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, cw := range weeksByCountry {
		g.Go(func() error {
			res, err := p.summarizer.SummarizeWeeklyCountry(gctx, cw.Name, cw.Days)
			if err == nil {
				results[i] = res
				return nil
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if p.opts.CountryFallback == FallbackFail {
				return fmt.Errorf("weekly country %s: %w", cw.Code, err)
			}
			warnings[i] = err
			log.Warn("weekly country rollup degraded", "country", cw.Code, "error", err)
			titles := make([]string, 0, len(cw.Days))
			for _, d := range cw.Days {
				titles = append(titles, d.Title)
			}
			results[i] = fallbackRollup(titles)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("week failed", "error", err)
		out.Kind, out.Reason, out.Err = Failed, "country rollup failed", err
		return out
	}
	for _, w := range warnings {
		if w != nil {
			out.Warnings = append(out.Warnings, w)
		}
	}

	global, err := p.summarizer.SummarizeWeeklyGlobal(ctx, dailies, weeksByCountry)
	if err != nil {
		log.Error("weekly global rollup failed", "error", err)
		out.Kind, out.Reason, out.Err = Failed, "global rollup failed", err
		return out
	}

	digest := &store.WeeklyDigest{
		WeekStart:     weekStart,
		WeekEnd:       weekEnd,
		GlobalTitle:   global.Title,
		GlobalSummary: global.Summary,
	}
	for i, cw := range weeksByCountry {
		digest.Countries = append(digest.Countries, store.WeeklyCountryDigest{
			CountryCode: cw.Code,
			CountryName: cw.Name,
			Title:       results[i].Title,
			Summary:     results[i].Summary,
		})
	}
	out.Kind, out.Digest = Success, digest
	return out
}

// groupByCountry merges the week's country rollups per country, ordered by
// country name, with each country's days in date order.
func groupByCountry(days []store.DailyDigest) []summarize.CountryWeek {
	index := make(map[string]int)
	var weeks []summarize.CountryWeek
	for _, d := range days {
		for _, c := range d.Countries {
			i, ok := index[c.CountryCode]
			if !ok {
				i = len(weeks)
				index[c.CountryCode] = i
				weeks = append(weeks, summarize.CountryWeek{Code: c.CountryCode, Name: c.CountryName})
			}
			weeks[i].Days = append(weeks[i].Days, summarize.DayText{Date: d.Date, Title: c.Title, Summary: c.Summary})
		}
	}
	slices.SortFunc(weeks, func(a, b summarize.CountryWeek) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
	return weeks
}
