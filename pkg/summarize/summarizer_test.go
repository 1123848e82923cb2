package summarize

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/govdigest/internal/retry"
	"github.com/elonfeng/govdigest/pkg/source"
)

type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   []string
}

func (c *scriptedCompleter) Complete(_ context.Context, system, user string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := len(c.calls)
	c.calls = append(c.calls, user)
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return "", errors.New("no scripted reply")
}

var fastRetry = retry.Config{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestSummarizeRelease(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"Budget passes\n**€50bn** approved by parliament."}}
	s := New(c, fastRetry)

	got, err := s.SummarizeRelease(t.Context(), source.Release{ID: 42, Country: "FR", Title: "Budget", Ministry: "Finance", Body: "Parliament approved..."})
	require.NoError(t, err)
	assert.Equal(t, Result{Title: "Budget passes", Summary: "**€50bn** approved by parliament."}, got)

	require.Len(t, c.calls, 1)
	assert.Contains(t, c.calls[0], "Country: France")
	assert.Contains(t, c.calls[0], "Ministry: Finance")
	assert.Contains(t, c.calls[0], "Parliament approved...")
}

func TestSummarizeReleaseRetriesMalformed(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"only a title", "Title\nSummary"}}
	var observed []error
	s := New(c, fastRetry, WithObserver(func(_ Scope, err error) { observed = append(observed, err) }))

	got, err := s.SummarizeRelease(t.Context(), source.Release{ID: 1, Country: "US", Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Title", got.Title)
	assert.Len(t, c.calls, 2)
	assert.Equal(t, []error{nil}, observed)
}

func TestSummarizeReleasePersistentFailure(t *testing.T) {
	boom := errors.New("gateway timeout")
	c := &scriptedCompleter{errs: []error{boom, boom, boom}}
	s := New(c, fastRetry)

	_, err := s.SummarizeRelease(t.Context(), source.Release{ID: 7, Country: "JP", Title: "x"})
	require.Error(t, err)

	var se *SummarizationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ScopeRelease, se.Scope)
	assert.Equal(t, "JP/7", se.Subject)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, c.calls, 3)
}

func TestSummarizePermanentErrorNotRetried(t *testing.T) {
	c := &scriptedCompleter{errs: []error{retry.Permanent(errors.New("status 401"))}}
	s := New(c, fastRetry)

	_, err := s.SummarizeGlobal(t.Context(), []CountryText{{Name: "Japan", Title: "t", Summary: "s"}})
	require.Error(t, err)
	assert.Len(t, c.calls, 1)
}

func TestSummarizeCountrySingleReleaseReusesSummary(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"\"Germany expands rail fund.\""}}
	s := New(c, fastRetry)

	got, err := s.SummarizeCountry(t.Context(), "Germany", []Result{{Title: "Rail", Summary: "Fund grows by **€2bn**."}})
	require.NoError(t, err)
	assert.Equal(t, Result{Title: "Germany expands rail fund", Summary: "Fund grows by **€2bn**."}, got)
	assert.Contains(t, c.calls[0], "Return only the headline")
}

func TestSummarizeCountryMultipleReleases(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"Busy day in Ottawa\nTwo stories, one thread."}}
	s := New(c, fastRetry)

	got, err := s.SummarizeCountry(t.Context(), "Canada", []Result{{Title: "A", Summary: "a"}, {Title: "B", Summary: "b"}})
	require.NoError(t, err)
	assert.Equal(t, "Busy day in Ottawa", got.Title)
	assert.Contains(t, c.calls[0], "- A: a")
	assert.Contains(t, c.calls[0], "- B: b")
}

func TestSummarizeCountryEmptyIsError(t *testing.T) {
	s := New(&scriptedCompleter{}, fastRetry)
	_, err := s.SummarizeCountry(t.Context(), "Canada", nil)

	var se *SummarizationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ScopeCountry, se.Scope)
}

func TestSummarizeGlobalUsesRollupsOnly(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"World today\nThreads connect."}}
	s := New(c, fastRetry)

	_, err := s.SummarizeGlobal(t.Context(), []CountryText{
		{Name: "France", Title: "Budget", Summary: "Passed."},
		{Name: "Japan", Title: "Rates", Summary: "Held."},
	})
	require.NoError(t, err)
	assert.Contains(t, c.calls[0], "**France** (Budget): Passed.")
	assert.Contains(t, c.calls[0], "**Japan** (Rates): Held.")
}

func TestSummarizeWeekly(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"Week in France\nRecap.", "Week in review\nBig week."}}
	s := New(c, fastRetry)

	days := []DayText{{Date: "2026-02-16", Title: "Mon", Summary: "m"}, {Date: "2026-02-17", Title: "Tue", Summary: "t"}}
	wc, err := s.SummarizeWeeklyCountry(t.Context(), "France", days)
	require.NoError(t, err)
	assert.Equal(t, "Week in France", wc.Title)
	assert.Contains(t, c.calls[0], "- 2026-02-16: Mon - m")

	wg, err := s.SummarizeWeeklyGlobal(t.Context(), days, []CountryWeek{{Code: "FR", Name: "France", Days: days}})
	require.NoError(t, err)
	assert.Equal(t, "Week in review", wg.Title)
	assert.True(t, strings.Contains(c.calls[1], "**2026-02-17**: Tue"))
	assert.Contains(t, c.calls[1], "**France**:")
}

func TestWithRateLimitStillCompletes(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"A\nb", "C\nd"}}
	s := New(c, fastRetry, WithRateLimit(1000))

	for range 2 {
		_, err := s.SummarizeWeeklyCountry(t.Context(), "X", nil)
		require.NoError(t, err)
	}
	assert.Len(t, c.calls, 2)
}
