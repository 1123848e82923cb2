package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/govdigest/internal/retry"
)

// NewsAPIConfig configures the world-news release API client.
type NewsAPIConfig struct {
	BaseURL   string
	APIKey    string
	PerPage   int
	BatchSize int
	Timeout   time.Duration
	Retry     retry.Config
}

// NewsAPI lists releases per (country, date) and batch-fetches their bodies.
type NewsAPI struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	perPage   int
	batchSize int
	retry     retry.Config
}

// NewNewsAPI creates a new news API client.
func NewNewsAPI(cfg NewsAPIConfig) *NewsAPI {
	if cfg.PerPage <= 0 {
		cfg.PerPage = 100
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &NewsAPI{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		perPage:   cfg.PerPage,
		batchSize: cfg.BatchSize,
		retry:     cfg.Retry,
	}
}

type apiRelease struct {
	ID          int64  `json:"id"`
	Country     string `json:"country"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	Ministry    string `json:"ministry"`
	PublishedAt string `json:"published_at"`
}

func (r apiRelease) toRelease(fallbackCountry string) Release {
	country := r.Country
	if country == "" {
		country = fallbackCountry
	}
	return Release{
		ID:          r.ID,
		Country:     country,
		Title:       strings.TrimSpace(r.Title),
		Body:        CleanText(r.Content, MaxBodyChars),
		URL:         r.URL,
		Ministry:    strings.TrimSpace(r.Ministry),
		PublishedAt: parsePublished(r.PublishedAt),
		Origin:      OriginNewsAPI,
	}
}

func parsePublished(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Fetch lists the brief releases for countryCode published on date.
func (a *NewsAPI) Fetch(ctx context.Context, countryCode string, date time.Time) ([]Release, error) {
	day := date.Format(DateLayout)

	params := url.Values{}
	params.Set("country", countryCode)
	params.Set("date_from", day)
	params.Set("date_to", day)
	params.Set("per_page", strconv.Itoa(a.perPage))
	params.Set("fields", "brief")
	endpoint := a.baseURL + "/v1/releases?" + params.Encode()

	data, err := retry.Do(ctx, a.retry, func(ctx context.Context) ([]apiRelease, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("create releases request: %w", err))
		}
		var page struct {
			Data []apiRelease `json:"data"`
		}
		if err := a.do(req, &page); err != nil {
			return nil, err
		}
		return page.Data, nil
	}, nil)
	if err != nil {
		return nil, &FetchError{Country: countryCode, Date: day, Err: err}
	}

	releases := make([]Release, 0, len(data))
	for _, r := range data {
		releases = append(releases, r.toRelease(countryCode))
	}
	return releases, nil
}

// Hydrate batch-fetches full content for releases, in chunks of BatchSize.
// Releases the API does not return are dropped; order is preserved.
func (a *NewsAPI) Hydrate(ctx context.Context, releases []Release) ([]Release, error) {
	details := make(map[int64]apiRelease, len(releases))

	for start := 0; start < len(releases); start += a.batchSize {
		end := min(start+a.batchSize, len(releases))
		ids := make([]int64, 0, end-start)
		for _, r := range releases[start:end] {
			ids = append(ids, r.ID)
		}

		body, _ := json.Marshal(map[string]any{"ids": ids})
		got, err := retry.Do(ctx, a.retry, func(ctx context.Context) ([]apiRelease, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/releases/batch", bytes.NewReader(body))
			if err != nil {
				return nil, retry.Permanent(fmt.Errorf("create batch request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")
			var out []apiRelease
			if err := a.do(req, &out); err != nil {
				return nil, err
			}
			return out, nil
		}, nil)
		if err != nil {
			country, day := "", ""
			if len(releases) > 0 {
				country = releases[0].Country
				day = releases[0].PublishedAt.Format(DateLayout)
			}
			return nil, &FetchError{Country: country, Date: day, Err: fmt.Errorf("batch fetch %d ids: %w", len(ids), err)}
		}
		for _, d := range got {
			details[d.ID] = d
		}
	}

	hydrated := make([]Release, 0, len(releases))
	for _, r := range releases {
		d, ok := details[r.ID]
		if !ok {
			continue
		}
		full := d.toRelease(r.Country)
		if full.Title == "" {
			full.Title = r.Title
		}
		if full.PublishedAt.IsZero() {
			full.PublishedAt = r.PublishedAt
		}
		hydrated = append(hydrated, full)
	}
	return hydrated, nil
}

func (a *NewsAPI) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "govdigest/1.0")
	if a.apiKey != "" {
		req.Header.Set("X-API-Key", a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("call news api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return retry.CheckStatus(resp.StatusCode, strings.TrimSpace(string(b)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode news api response: %w", err)
	}
	return nil
}
