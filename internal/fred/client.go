package fred

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	apperrors "macropipe/internal/errors"
	"macropipe/pkg/contracts/domain"
)

// DefaultBaseURL is the FRED observations endpoint.
const DefaultBaseURL = "https://api.stlouisfed.org/fred/series/observations"

// Series IDs the default datasets pull.
const (
	SeriesDGS10 = "DGS10" // 10-year treasury constant maturity
	SeriesDGS2  = "DGS2"  // 2-year treasury constant maturity
	SeriesBAA   = "BAA"   // Moody's Baa corporate bond yield
	SeriesAAA   = "AAA"   // Moody's Aaa corporate bond yield
)

// Config controls the FRED client. Zero values fall back to the defaults
// below; only APIKey is mandatory.
type Config struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	// RequestsPerSecond throttles outgoing calls; FRED rate-limits API keys.
	RequestsPerSecond float64
	Burst             int
	CacheTTL          time.Duration
}

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultRPS         = 2.0
	defaultBurst       = 4
	defaultCacheTTL    = 15 * time.Minute
)

// Client fetches observation series from FRED. It rate-limits and caches:
// repeated pulls of the same series within the TTL never hit the network.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cache   *gocache.Cache
	logger  *slog.Logger
}

// NewClient validates the config and applies defaults.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.NewConfigError("fred api key is required", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cache:   gocache.New(cfg.CacheTTL, cfg.CacheTTL/2),
		logger:  logger,
	}, nil
}

// observationsResponse mirrors the subset of the FRED payload we read.
type observationsResponse struct {
	Observations []observation `json:"observations"`
}

type observation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

// Observations fetches one series from start onward. Observations FRED
// reports as "." (market closed, value not available) become missing values.
// The returned series carries a single percent column named "value".
func (c *Client) Observations(ctx context.Context, seriesID string, start time.Time) (*domain.Series, error) {
	key := cacheKey(seriesID, start)
	if cached, ok := c.cache.Get(key); ok {
		c.logger.DebugContext(ctx, "fred cache hit", slog.String("series_id", seriesID))
		return cached.(*domain.Series).Clone(), nil
	}

	body, err := c.fetch(ctx, seriesID, start)
	if err != nil {
		return nil, err
	}

	series, err := parseObservations(seriesID, body)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, series.Clone(), gocache.DefaultExpiration)
	c.logger.InfoContext(ctx, "fred series fetched",
		slog.String("series_id", seriesID),
		slog.Int("observations", series.Len()))
	return series, nil
}

// fetch performs the HTTP call with retries. Each failed attempt waits a
// little longer before the next one.
func (c *Client) fetch(ctx context.Context, seriesID string, start time.Time) ([]byte, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, apperrors.NewConfigError(fmt.Sprintf("invalid fred base url %q", c.cfg.BaseURL), err)
	}
	q := u.Query()
	q.Set("series_id", seriesID)
	q.Set("api_key", c.cfg.APIKey)
	q.Set("file_type", "json")
	if !start.IsZero() {
		q.Set("observation_start", start.Format("2006-01-02"))
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.doRequest(ctx, u.String())
		if err == nil {
			return body, nil
		}
		lastErr = err
		c.logger.WarnContext(ctx, "fred request failed",
			slog.String("series_id", seriesID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.cfg.MaxAttempts),
			slog.String("error", err.Error()))

		if attempt < c.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDelay(attempt)):
			}
		}
	}

	return nil, apperrors.NewSourceUnavailableError(
		fmt.Sprintf("fred series %s unavailable after %d attempts", seriesID, c.cfg.MaxAttempts), lastErr)
}

const backoffBase = 500 * time.Millisecond

// backoffDelay returns the wait before retry attempt+1, growing 1.5x per
// failed attempt: 500ms, 750ms, 1.125s, ...
func backoffDelay(attempt int) time.Duration {
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d += d / 2
	}
	return d
}

func (c *Client) doRequest(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fred returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// parseObservations decodes the FRED payload into a raw series. Dates are
// kept in delivery order; downstream cleaning handles sorting and duplicates.
func parseObservations(seriesID string, body []byte) (*domain.Series, error) {
	var payload observationsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("fred series %s: malformed payload", seriesID), err)
	}

	dates := make([]time.Time, 0, len(payload.Observations))
	values := make([]float64, 0, len(payload.Observations))
	for _, obs := range payload.Observations {
		d, err := time.Parse("2006-01-02", obs.Date)
		if err != nil {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("fred series %s: bad observation date %q", seriesID, obs.Date), err)
		}
		v := domain.Missing()
		if obs.Value != "." && obs.Value != "" {
			parsed, perr := strconv.ParseFloat(obs.Value, 64)
			if perr != nil {
				return nil, apperrors.NewParsingError(
					fmt.Sprintf("fred series %s: bad observation value %q at %s", seriesID, obs.Value, obs.Date), perr)
			}
			v = parsed
		}
		dates = append(dates, d)
		values = append(values, v)
	}

	return domain.NewSeries(seriesID, dates, domain.Column{
		Name:   "value",
		Kind:   domain.KindPercent,
		Values: values,
	})
}

func cacheKey(seriesID string, start time.Time) string {
	return seriesID + "|" + start.Format("2006-01-02")
}
