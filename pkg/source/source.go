package source

import (
	"context"
	"fmt"
	"time"
)

// Origin identifies which fetcher produced a release.
type Origin string

const (
	OriginNewsAPI Origin = "newsapi"
	OriginFeed    Origin = "feed"
)

// DateLayout is the calendar date format used on the wire and in storage.
const DateLayout = "2006-01-02"

// Release is one government press release. ID is the stable identity supplied
// by the source and is the deduplication key.
type Release struct {
	ID          int64
	Country     string
	Title       string
	Body        string
	URL         string
	Ministry    string
	PublishedAt time.Time
	Origin      Origin
}

// Fetcher returns the releases a country published on a calendar date.
// Zero releases is a valid result. A fetcher may return releases together
// with an error when only part of the listing could be read.
type Fetcher interface {
	Fetch(ctx context.Context, countryCode string, date time.Time) ([]Release, error)
}

// Hydrator fills in release bodies for fetchers whose listing is brief.
// Releases the source no longer knows are dropped from the result.
type Hydrator interface {
	Hydrate(ctx context.Context, releases []Release) ([]Release, error)
}

// Hydrate fills bodies through f when it is a Hydrator and returns releases
// unchanged otherwise.
func Hydrate(ctx context.Context, f Fetcher, releases []Release) ([]Release, error) {
	h, ok := f.(Hydrator)
	if !ok || len(releases) == 0 {
		return releases, nil
	}
	return h.Hydrate(ctx, releases)
}

// FetchError aborts processing of one (country, date) pair.
type FetchError struct {
	Country string
	Date    string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Country, e.Date, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
