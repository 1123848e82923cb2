package source

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	releases []Release
	err      error
}

func (s stubFetcher) Fetch(context.Context, string, time.Time) ([]Release, error) {
	return s.releases, s.err
}

func TestMultiMergesAndSortsByID(t *testing.T) {
	m := NewMulti(
		stubFetcher{releases: []Release{{ID: 9, Body: "x"}, {ID: 2, Body: "y"}}},
		nil,
		stubFetcher{releases: []Release{{ID: 2, Body: "dup"}, {ID: 5, Body: "z"}}},
	)

	got, err := m.Fetch(t.Context(), "US", time.Now())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{2, 5, 9}, []int64{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "y", got[0].Body)
}

func TestMultiKeepsHealthyMembersOnError(t *testing.T) {
	boom := &FetchError{Country: "US", Err: errors.New("down")}
	m := NewMulti(stubFetcher{releases: []Release{{ID: 1}}}, stubFetcher{err: boom})

	got, err := m.Fetch(t.Context(), "US", time.Now())
	assert.ErrorIs(t, err, boom)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
}

func TestMultiAllMembersFail(t *testing.T) {
	down := errors.New("down")
	gone := errors.New("gone")
	m := NewMulti(stubFetcher{err: down}, stubFetcher{err: gone})

	got, err := m.Fetch(t.Context(), "US", time.Now())
	assert.Nil(t, got)
	assert.ErrorIs(t, err, down)
	assert.ErrorIs(t, err, gone)
}

func TestHydrateWithoutHydratorIsIdentity(t *testing.T) {
	in := []Release{{ID: 1}}
	got, err := Hydrate(t.Context(), stubFetcher{}, in)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestFilter(t *testing.T) {
	f := NewFilter([]string{"Vacancy", " tender "})
	assert.True(t, f.Allows(Release{Title: "Budget approved"}))
	assert.False(t, f.Allows(Release{Title: "Job vacancy: clerk"}))
	assert.False(t, f.Allows(Release{Title: "Notice", Ministry: "Tender Board"}))

	kept := f.Apply([]Release{{ID: 1, Title: "ok"}, {ID: 2, Title: "tender call"}})
	require.Len(t, kept, 1)
	assert.Equal(t, int64(1), kept[0].ID)

	var nilFilter *Filter
	assert.True(t, nilFilter.Allows(Release{Title: "vacancy"}))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Hello world & co", CleanText("<div>Hello\n\n  <b>world</b> &amp; co</div>", 0))
	assert.Equal(t, "héllo", CleanText(strings.Repeat("héllo", 3), 5))
}
