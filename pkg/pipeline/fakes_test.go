package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/govdigest/internal/store"
	"github.com/elonfeng/govdigest/pkg/source"
	"github.com/elonfeng/govdigest/pkg/summarize"
)

var testNow = time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	t, err := time.Parse(source.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func rangeOf(from, to string) Range {
	return Range{From: day(from), To: day(to)}
}

// fakeFetcher serves releases keyed by date and country and counts calls.
type fakeFetcher struct {
	mu       sync.Mutex
	releases map[string]map[string][]source.Release
	errs     map[string]error // keyed by country
	calls    map[string]int   // keyed by "date/country"
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		releases: map[string]map[string][]source.Release{},
		errs:     map[string]error{},
		calls:    map[string]int{},
	}
}

func (f *fakeFetcher) add(date, country string, ids ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releases[date] == nil {
		f.releases[date] = map[string][]source.Release{}
	}
	for _, id := range ids {
		f.releases[date][country] = append(f.releases[date][country], source.Release{
			ID:      id,
			Country: country,
			Title:   fmt.Sprintf("Release %d", id),
			Body:    fmt.Sprintf("Body of release %d", id),
			URL:     fmt.Sprintf("https://gov.example/%s/%d", strings.ToLower(country), id),
		})
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, country string, date time.Time) ([]source.Release, error) {
	d := date.Format(source.DateLayout)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[d+"/"+country]++
	if err := f.errs[country]; err != nil {
		return nil, &source.FetchError{Country: country, Date: d, Err: err}
	}
	return append([]source.Release(nil), f.releases[d][country]...), nil
}

func (f *fakeFetcher) callsFor(country string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k, v := range f.calls {
		if strings.HasSuffix(k, "/"+country) {
			n += v
		}
	}
	return n
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.calls {
		n += v
	}
	return n
}

// fakeSummarizer returns deterministic text and can be told to fail.
type fakeSummarizer struct {
	mu               sync.Mutex
	calls            map[string]int
	releaseIDs       []int64
	failRelease      map[int64]bool
	failCountry      map[string]bool
	failGlobal       bool
	failWeeklyGlobal bool
	weeklyCountries  [][]summarize.CountryWeek
}

func newFakeSummarizer() *fakeSummarizer {
	return &fakeSummarizer{calls: map[string]int{}, failRelease: map[int64]bool{}, failCountry: map[string]bool{}}
}

var errLLM = errors.New("llm unavailable")

func (s *fakeSummarizer) record(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[scope]++
}

func (s *fakeSummarizer) count(scope string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[scope]
}

func (s *fakeSummarizer) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.calls {
		n += v
	}
	return n
}

func (s *fakeSummarizer) SummarizeRelease(_ context.Context, r source.Release) (summarize.Result, error) {
	s.record("release")
	s.mu.Lock()
	s.releaseIDs = append(s.releaseIDs, r.ID)
	fail := s.failRelease[r.ID]
	s.mu.Unlock()
	if fail {
		return summarize.Result{}, &summarize.SummarizationError{Scope: summarize.ScopeRelease, Subject: fmt.Sprint(r.ID), Err: errLLM}
	}
	return summarize.Result{Title: fmt.Sprintf("T%d", r.ID), Summary: fmt.Sprintf("S%d", r.ID)}, nil
}

func (s *fakeSummarizer) SummarizeCountry(_ context.Context, name string, releases []summarize.Result) (summarize.Result, error) {
	s.record("country")
	s.mu.Lock()
	fail := s.failCountry[name]
	s.mu.Unlock()
	if fail {
		return summarize.Result{}, &summarize.SummarizationError{Scope: summarize.ScopeCountry, Subject: name, Err: errLLM}
	}
	return summarize.Result{Title: "C:" + name, Summary: fmt.Sprintf("%d releases", len(releases))}, nil
}

func (s *fakeSummarizer) SummarizeGlobal(_ context.Context, countries []summarize.CountryText) (summarize.Result, error) {
	s.record("global")
	if s.failGlobal {
		return summarize.Result{}, &summarize.SummarizationError{Scope: summarize.ScopeGlobal, Subject: "daily", Err: errLLM}
	}
	names := make([]string, len(countries))
	for i, c := range countries {
		names[i] = c.Name
	}
	return summarize.Result{Title: "G", Summary: strings.Join(names, ",")}, nil
}

func (s *fakeSummarizer) SummarizeWeeklyCountry(_ context.Context, name string, days []summarize.DayText) (summarize.Result, error) {
	s.record("weekly_country")
	return summarize.Result{Title: "WC:" + name, Summary: fmt.Sprintf("%d days", len(days))}, nil
}

func (s *fakeSummarizer) SummarizeWeeklyGlobal(_ context.Context, dailies []summarize.DayText, countries []summarize.CountryWeek) (summarize.Result, error) {
	s.record("weekly_global")
	s.mu.Lock()
	s.weeklyCountries = append(s.weeklyCountries, countries)
	s.mu.Unlock()
	if s.failWeeklyGlobal {
		return summarize.Result{}, &summarize.SummarizationError{Scope: summarize.ScopeWeeklyGlobal, Subject: "weekly", Err: errLLM}
	}
	return summarize.Result{Title: "WG", Summary: fmt.Sprintf("%d days", len(dailies))}, nil
}

// hookStore lets tests fail or observe daily commits.
type hookStore struct {
	store.Store
	commitErr   error
	afterCommit func()
}

func (h *hookStore) CommitDailyDigest(ctx context.Context, d *store.DailyDigest) error {
	if h.commitErr != nil {
		return h.commitErr
	}
	if err := h.Store.CommitDailyDigest(ctx, d); err != nil {
		return err
	}
	if h.afterCommit != nil {
		h.afterCommit()
	}
	return nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, _ := newTestStoreAt(t)
	return s
}

func newTestStoreAt(t *testing.T) (*store.SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "digests.db")
	s, err := store.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

var digestTables = []string{"daily_digest", "country_digest", "release_summary", "weekly_digest", "weekly_country_digest"}

// dumpTables reads every digest row, created_at included, over a separate
// connection.
func dumpTables(t *testing.T, path string) map[string][]map[string]any {
	t.Helper()
	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	dump := make(map[string][]map[string]any, len(digestTables))
	for _, table := range digestTables {
		rows, err := db.Queryx("SELECT * FROM " + table + " ORDER BY id")
		require.NoError(t, err)
		dump[table] = []map[string]any{}
		for rows.Next() {
			row := map[string]any{}
			require.NoError(t, rows.MapScan(row))
			dump[table] = append(dump[table], row)
		}
		require.NoError(t, rows.Err())
		rows.Close()
	}
	return dump
}

func testOptions(countries ...string) Options {
	return Options{
		Countries:   countries,
		Concurrency: 3,
		WeekEnd:     time.Sunday,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         func() time.Time { return testNow },
	}
}

// seedDay commits a minimal digest directly, bypassing the pipeline.
func seedDay(t *testing.T, s store.Store, date string, countries ...string) {
	t.Helper()
	d := &store.DailyDigest{Date: date, GlobalTitle: "seed", GlobalSummary: "seed " + date}
	for _, c := range countries {
		d.Countries = append(d.Countries, store.CountryDigest{
			CountryCode: c, CountryName: c, Title: "seed " + c, Summary: "seed",
		})
	}
	require.NoError(t, s.CommitDailyDigest(t.Context(), d))
}
