package source

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/govdigest/internal/retry"
)

var testRetry = retry.Config{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func newTestAPI(url string) *NewsAPI {
	return NewNewsAPI(NewsAPIConfig{BaseURL: url, APIKey: "secret", BatchSize: 2, Retry: testRetry})
}

func TestNewsAPIFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/releases", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		q := r.URL.Query()
		assert.Equal(t, "FR", q.Get("country"))
		assert.Equal(t, "2026-02-17", q.Get("date_from"))
		assert.Equal(t, "2026-02-17", q.Get("date_to"))
		assert.Equal(t, "brief", q.Get("fields"))

		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"id": 42, "title": " Budget vote ", "url": "https://gouv.fr/42", "ministry": "Finance", "published_at": "2026-02-17T09:00:00Z"},
			{"id": 43, "title": "Farm aid", "url": "https://gouv.fr/43"},
		}})
	}))
	defer srv.Close()

	releases, err := newTestAPI(srv.URL).Fetch(t.Context(), "FR", time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, releases, 2)
	assert.Equal(t, int64(42), releases[0].ID)
	assert.Equal(t, "Budget vote", releases[0].Title)
	assert.Equal(t, "FR", releases[0].Country)
	assert.Equal(t, "Finance", releases[0].Ministry)
	assert.Equal(t, OriginNewsAPI, releases[0].Origin)
	assert.Empty(t, releases[0].Body)
}

func TestNewsAPIFetchEmptyIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	releases, err := newTestAPI(srv.URL).Fetch(t.Context(), "JP", time.Now())
	require.NoError(t, err)
	assert.Empty(t, releases)
}

func TestNewsAPIFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data":[{"id":1,"title":"ok"}]}`))
	}))
	defer srv.Close()

	releases, err := newTestAPI(srv.URL).Fetch(t.Context(), "US", time.Now())
	require.NoError(t, err)
	assert.Len(t, releases, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewsAPIFetchExhaustedRetriesIsFetchError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestAPI(srv.URL).Fetch(t.Context(), "DE", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "DE", fe.Country)
	assert.Equal(t, "2026-01-05", fe.Date)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewsAPIFetchAuthErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestAPI(srv.URL).Fetch(t.Context(), "DE", time.Now())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewsAPIHydrateChunksAndDropsUnknown(t *testing.T) {
	var batches [][]int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/releases/batch", r.URL.Path)
		var req struct {
			IDs []int64 `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batches = append(batches, req.IDs)

		var out []map[string]any
		for _, id := range req.IDs {
			if id == 3 {
				continue
			}
			out = append(out, map[string]any{"id": id, "title": "full", "content": "<p>Body &amp; more</p>"})
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	in := []Release{{ID: 1, Country: "IT"}, {ID: 2, Country: "IT"}, {ID: 3, Country: "IT"}}
	got, err := newTestAPI(srv.URL).Hydrate(t.Context(), in)
	require.NoError(t, err)

	assert.Equal(t, [][]int64{{1, 2}, {3}}, batches)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "Body & more", got[0].Body)
	assert.Equal(t, "IT", got[1].Country)
}
