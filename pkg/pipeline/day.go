package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/govdigest/internal/store"
	"github.com/elonfeng/govdigest/pkg/country"
	"github.com/elonfeng/govdigest/pkg/source"
	"github.com/elonfeng/govdigest/pkg/summarize"
)

// fallbackTitles is how many release titles a degraded rollup joins.
const fallbackTitles = 3

// countryWork carries one country through a day. Each goroutine owns
// exactly one element, so no locking is needed.
type countryWork struct {
	code     string
	name     string
	fetched  []source.Release
	fresh    []source.Release
	fetchErr error
	digest   *store.CountryDigest
	warnings []error
}

// processDay builds and commits one date. The returned error is non-nil
// only for failures that must end the run.
func (p *Pipeline) processDay(ctx context.Context, log *slog.Logger, date time.Time) (DayOutcome, error) {
	day := date.Format(source.DateLayout)
	start := time.Now()
	out := DayOutcome{Date: day}
	finish := func(kind OutcomeKind, reason string, err error) DayOutcome {
		out.Kind, out.Reason, out.Err = kind, reason, err
		out.Duration = time.Since(start)
		return out
	}

	work := make([]countryWork, len(p.opts.Countries))
	for i, code := range p.opts.Countries {
		work[i] = countryWork{code: code, name: country.Name(code)}
	}

	p.fetchAll(ctx, log, date, work)
	if err := ctx.Err(); err != nil {
		return finish(Failed, "cancelled", err), nil
	}

	deduped, err := p.selectFresh(ctx, work)
	if err != nil {
		perr := &PersistenceError{Op: "summarized releases " + day, Err: err}
		return finish(Failed, "store unavailable", perr), perr
	}
	if deduped > 0 {
		log.Debug("skipped already summarized releases", "count", deduped)
	}

	if err := p.summarizeCountries(ctx, log, work); err != nil {
		for _, w := range work {
			out.Warnings = append(out.Warnings, w.warnings...)
		}
		if ctx.Err() != nil {
			return finish(Failed, "cancelled", err), nil
		}
		log.Error("day failed", "error", err)
		return finish(Failed, "country rollup failed", err), nil
	}

	var countries []store.CountryDigest
	var fetchErrs []error
	for _, w := range work {
		out.Warnings = append(out.Warnings, w.warnings...)
		if w.fetchErr != nil {
			fetchErrs = append(fetchErrs, w.fetchErr)
		}
		if w.digest != nil {
			countries = append(countries, *w.digest)
		}
	}

	if len(countries) == 0 {
		if len(fetchErrs) > 0 {
			err := &AggregationError{Date: day, Err: errors.Join(fetchErrs...)}
			log.Warn("day has no content and fetches failed", "fetch_errors", len(fetchErrs))
			return finish(Failed, "fetch failed", err), nil
		}
		log.Info("day skipped", "reason", ReasonNoContent)
		return finish(Skipped, ReasonNoContent, &AggregationError{Date: day, Err: errNoContent}), nil
	}

	slices.SortFunc(countries, func(a, b store.CountryDigest) int {
		if c := strings.Compare(a.CountryName, b.CountryName); c != 0 {
			return c
		}
		return strings.Compare(a.CountryCode, b.CountryCode)
	})

	texts := make([]summarize.CountryText, len(countries))
	for i, c := range countries {
		texts[i] = summarize.CountryText{Name: c.CountryName, Title: c.Title, Summary: c.Summary}
	}
	global, err := p.summarizer.SummarizeGlobal(ctx, texts)
	if err != nil {
		log.Error("global rollup failed", "error", err)
		return finish(Failed, "global rollup failed", err), nil
	}

	digest := &store.DailyDigest{
		Date:          day,
		GlobalTitle:   global.Title,
		GlobalSummary: global.Summary,
		Countries:     countries,
	}
	if err := p.store.CommitDailyDigest(ctx, digest); err != nil {
		perr := &PersistenceError{Op: "commit daily digest " + day, Err: err}
		return finish(Failed, "commit failed", perr), perr
	}

	releases := 0
	for _, c := range countries {
		releases += len(c.Releases)
	}
	p.opts.Metrics.ReleasesSummarized.Add(float64(releases))
	p.opts.Metrics.ReleasesDeduped.Add(float64(deduped))

	out.Digest = digest
	log.Info("day committed", "countries", len(countries), "releases", releases, "warnings", len(out.Warnings))
	return finish(Success, "", nil), nil
}

// fetchAll lists releases for every country concurrently. Fetch errors are
// kept on the country and never abort siblings. Releases returned alongside
// an error are still used.
func (p *Pipeline) fetchAll(ctx context.Context, log *slog.Logger, date time.Time, work []countryWork) {
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i := range work {
		w := &work[i]
		g.Go(func() error {
			releases, err := p.fetcher.Fetch(ctx, w.code, date)
			w.fetched = releases
			if err != nil {
				w.fetchErr = err
				w.warnings = append(w.warnings, err)
				p.opts.Metrics.FetchErrorsTotal.WithLabelValues(w.code).Inc()
				log.Warn("fetch failed", "country", w.code, "partial", len(releases), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// selectFresh drops releases that are already summarized, repeated within
// the day or excluded by keyword, then applies the per-country cap. Countries
// are visited in code order so a release listed under two countries lands in
// the first one.
func (p *Pipeline) selectFresh(ctx context.Context, work []countryWork) (int, error) {
	var ids []int64
	for _, w := range work {
		for _, r := range w.fetched {
			ids = append(ids, r.ID)
		}
	}
	done, err := p.store.SummarizedReleases(ctx, ids)
	if err != nil {
		return 0, err
	}

	deduped := 0
	seen := make(map[int64]bool, len(ids))
	for i := range work {
		w := &work[i]
		releases := slices.Clone(w.fetched)
		slices.SortFunc(releases, func(a, b source.Release) int { return cmp.Compare(a.ID, b.ID) })

		for _, r := range releases {
			if done[r.ID] {
				deduped++
				continue
			}
			if seen[r.ID] || !p.opts.Filter.Allows(r) {
				continue
			}
			seen[r.ID] = true
			w.fresh = append(w.fresh, r)
		}
		if limit := p.opts.MaxReleasesPerCountry; limit > 0 && len(w.fresh) > limit {
			w.fresh = w.fresh[:limit]
		}
	}
	return deduped, nil
}

// summarizeCountries hydrates, summarizes and rolls up each country with
// fresh releases. It returns an error only when the fallback policy is
// FallbackFail and a country rollup failed, or the context ended.
func (p *Pipeline) summarizeCountries(ctx context.Context, log *slog.Logger, work []countryWork) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i := range work {
		w := &work[i]
		if len(w.fresh) == 0 {
			continue
		}
		g.Go(func() error {
			return p.summarizeCountry(gctx, log.With("country", w.code), w)
		})
	}
	return g.Wait()
}

func (p *Pipeline) summarizeCountry(ctx context.Context, log *slog.Logger, w *countryWork) error {
	releases, err := source.Hydrate(ctx, p.fetcher, w.fresh)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.fetchErr = err
		w.warnings = append(w.warnings, err)
		log.Warn("hydrate failed", "error", err)
		return nil
	}

	var summaries []store.ReleaseSummary
	var results []summarize.Result
	for _, r := range releases {
		res, err := p.summarizer.SummarizeRelease(ctx, r)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.warnings = append(w.warnings, err)
			log.Warn("release skipped", "release_id", r.ID, "error", err)
			continue
		}
		results = append(results, res)
		summaries = append(summaries, store.ReleaseSummary{
			ReleaseID:   r.ID,
			Title:       res.Title,
			Summary:     res.Summary,
			OriginalURL: r.URL,
			Ministry:    r.Ministry,
		})
	}
	if len(summaries) == 0 {
		log.Info("country omitted, no release summaries")
		return nil
	}

	rollup, err := p.summarizer.SummarizeCountry(ctx, w.name, results)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.opts.CountryFallback == FallbackFail {
			return fmt.Errorf("country %s: %w", w.code, err)
		}
		w.warnings = append(w.warnings, err)
		log.Warn("country rollup degraded", "error", err)
		rollup = fallbackRollup(titlesOf(results))
	}

	w.digest = &store.CountryDigest{
		CountryCode: w.code,
		CountryName: w.name,
		Title:       rollup.Title,
		Summary:     rollup.Summary,
		Releases:    summaries,
	}
	return nil
}

// fallbackRollup builds deterministic rollup text from lower-level titles:
// the first title as headline and up to three titles as the summary.
func fallbackRollup(titles []string) summarize.Result {
	if len(titles) == 0 {
		return summarize.Result{}
	}
	n := min(len(titles), fallbackTitles)
	return summarize.Result{Title: titles[0], Summary: strings.Join(titles[:n], "; ")}
}

func titlesOf(results []summarize.Result) []string {
	titles := make([]string, 0, len(results))
	for _, r := range results {
		titles = append(titles, r.Title)
	}
	return titles
}
