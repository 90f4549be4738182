package fred

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string, maxAttempts int) *Client {
	t.Helper()
	c, err := NewClient(Config{
		APIKey:            "test-key",
		BaseURL:           baseURL,
		MaxAttempts:       maxAttempts,
		RequestsPerSecond: 1000,
		Burst:             1000,
	}, testLogger())
	require.NoError(t, err)
	return c
}

const observationsPayload = `{
	"observations": [
		{"date": "2024-01-02", "value": "4.01"},
		{"date": "2024-01-03", "value": "."},
		{"date": "2024-01-04", "value": "3.99"}
	]
}`

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{}, testLogger())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestObservations(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, observationsPayload)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1)
	s, err := c.Observations(context.Background(), SeriesDGS10, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Equal(t, 3, s.Len())
	col, ok := s.Column("value")
	require.True(t, ok)
	assert.Equal(t, domain.KindPercent, col.Kind)
	assert.InDelta(t, 4.01, col.Values[0], 1e-12)
	assert.True(t, domain.IsMissing(col.Values[1]), `"." observation maps to missing`)
	assert.InDelta(t, 3.99, col.Values[2], 1e-12)

	q := gotQuery.Load().(url.Values)
	assert.Equal(t, SeriesDGS10, q.Get("series_id"))
	assert.Equal(t, "test-key", q.Get("api_key"))
	assert.Equal(t, "json", q.Get("file_type"))
	assert.Equal(t, "2024-01-01", q.Get("observation_start"))
}

func TestObservationsRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, observationsPayload)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	s, err := c.Observations(context.Background(), SeriesBAA, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, int32(3), calls.Load())
}

func TestObservationsExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	_, err := c.Observations(context.Background(), SeriesAAA, time.Time{})
	require.Error(t, err)
	assert.True(t, apperrors.IsSourceUnavailable(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestObservationsMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"observations": [{"date": "not-a-date", "value": "4.0"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1)
	_, err := c.Observations(context.Background(), SeriesDGS2, time.Time{})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
}

func TestObservationsCaching(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, observationsPayload)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1)
	ctx := context.Background()

	first, err := c.Observations(ctx, SeriesDGS10, time.Time{})
	require.NoError(t, err)
	second, err := c.Observations(ctx, SeriesDGS10, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "second pull served from cache")

	// Cached results are defensive copies: mutating one must not leak into
	// the next pull.
	first.Columns[0].Values[0] = -1
	assert.InDelta(t, 4.01, second.Columns[0].Values[0], 1e-12)

	// A different start date is a different cache entry.
	_, err = c.Observations(ctx, SeriesDGS10, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, backoffDelay(1))
	assert.Equal(t, 750*time.Millisecond, backoffDelay(2))
	assert.Equal(t, 1125*time.Millisecond, backoffDelay(3))
}

func TestObservationsContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, observationsPayload)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(t, srv.URL, 1)
	_, err := c.Observations(ctx, SeriesDGS10, time.Time{})
	require.Error(t, err)
}
