package source

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/elonfeng/govdigest/internal/retry"
)

// Feed is a government RSS/Atom feed attached to one country.
type Feed struct {
	Country string
	Name    string
	URL     string
}

// FeedSource turns government RSS/Atom feeds into releases.
type FeedSource struct {
	client *http.Client
	parser *gofeed.Parser
	feeds  map[string][]Feed
	retry  retry.Config
}

// NewFeedSource creates a feed source. Feeds are grouped by country code.
func NewFeedSource(feeds []Feed, timeout time.Duration, rc retry.Config) *FeedSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	byCountry := make(map[string][]Feed)
	for _, f := range feeds {
		byCountry[f.Country] = append(byCountry[f.Country], f)
	}
	return &FeedSource{
		client: &http.Client{Timeout: timeout},
		parser: gofeed.NewParser(),
		feeds:  byCountry,
		retry:  rc,
	}
}

// Fetch returns feed entries published on date (UTC) for countryCode.
// Any feed failing after retries fails the whole pair, so a day is never
// built from a partial listing.
func (s *FeedSource) Fetch(ctx context.Context, countryCode string, date time.Time) ([]Release, error) {
	day := date.UTC().Format(DateLayout)

	var releases []Release
	for _, feed := range s.feeds[countryCode] {
		parsed, err := retry.Do(ctx, s.retry, func(ctx context.Context) (*gofeed.Feed, error) {
			return s.fetchFeed(ctx, feed)
		}, nil)
		if err != nil {
			return nil, &FetchError{Country: countryCode, Date: day, Err: err}
		}

		for _, entry := range parsed.Items {
			published := entry.PublishedParsed
			if published == nil {
				published = entry.UpdatedParsed
			}
			if published == nil || published.UTC().Format(DateLayout) != day {
				continue
			}

			link := entry.Link
			if link == "" && len(entry.Links) > 0 {
				link = entry.Links[0]
			}
			key := entry.GUID
			if key == "" {
				key = link
			}
			body := entry.Content
			if body == "" {
				body = entry.Description
			}

			releases = append(releases, Release{
				ID:          FeedReleaseID(feed.URL, key),
				Country:     countryCode,
				Title:       CleanText(entry.Title, 300),
				Body:        CleanText(body, MaxBodyChars),
				URL:         link,
				Ministry:    feed.Name,
				PublishedAt: published.UTC(),
				Origin:      OriginFeed,
			})
		}
	}

	sort.Slice(releases, func(i, j int) bool { return releases[i].ID < releases[j].ID })
	return releases, nil
}

func (s *FeedSource) fetchFeed(ctx context.Context, feed Feed) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create feed request %s: %w", feed.Name, err))
	}
	req.Header.Set("User-Agent", "govdigest/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feed.Name, err)
	}
	defer resp.Body.Close()

	if err := retry.CheckStatus(resp.StatusCode, ""); err != nil {
		return nil, fmt.Errorf("feed %s: %w", feed.Name, err)
	}

	parsed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("parse feed %s: %w", feed.Name, err))
	}
	return parsed, nil
}

// FeedReleaseID derives a stable positive id from a feed URL and entry key.
func FeedReleaseID(feedURL, key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(feedURL))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}
