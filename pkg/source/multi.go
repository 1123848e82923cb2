package source

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Multi merges several fetchers. Releases are deduplicated by ID and sorted
// by ID so the listing is stable regardless of fetcher order. A failing member
// does not hide the others: Fetch returns what the healthy members listed
// together with the joined member errors.
type Multi struct {
	fetchers []Fetcher
}

// NewMulti combines fetchers; nil entries are ignored.
func NewMulti(fetchers ...Fetcher) *Multi {
	m := &Multi{}
	for _, f := range fetchers {
		if f != nil {
			m.fetchers = append(m.fetchers, f)
		}
	}
	return m
}

func (m *Multi) Fetch(ctx context.Context, countryCode string, date time.Time) ([]Release, error) {
	seen := make(map[int64]bool)
	var all []Release
	var errs []error
	for _, f := range m.fetchers {
		releases, err := f.Fetch(ctx, countryCode, date)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, r := range releases {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			all = append(all, r)
		}
	}
	if len(errs) == len(m.fetchers) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, errors.Join(errs...)
}

// Hydrate passes releases without a body to the hydrating member for their
// origin; releases that already carry a body are kept as is.
func (m *Multi) Hydrate(ctx context.Context, releases []Release) ([]Release, error) {
	byOrigin := make(map[Origin][]Release)
	for _, r := range releases {
		if r.Body == "" {
			byOrigin[r.Origin] = append(byOrigin[r.Origin], r)
		}
	}

	filled := make(map[int64]Release)
	for _, f := range m.fetchers {
		h, ok := f.(Hydrator)
		if !ok {
			continue
		}
		origin := originOf(f)
		need := byOrigin[origin]
		if len(need) == 0 {
			continue
		}
		got, err := h.Hydrate(ctx, need)
		if err != nil {
			return nil, err
		}
		for _, r := range got {
			filled[r.ID] = r
		}
		delete(byOrigin, origin)
	}

	out := make([]Release, 0, len(releases))
	for _, r := range releases {
		if r.Body != "" {
			out = append(out, r)
			continue
		}
		if full, ok := filled[r.ID]; ok {
			out = append(out, full)
		} else if _, pending := byOrigin[r.Origin]; pending {
			// No hydrator for this origin; keep the brief release.
			out = append(out, r)
		}
	}
	return out, nil
}

func originOf(f Fetcher) Origin {
	switch f.(type) {
	case *NewsAPI:
		return OriginNewsAPI
	case *FeedSource:
		return OriginFeed
	}
	return ""
}
