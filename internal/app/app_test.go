package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macropipe/internal/config"
	"macropipe/internal/infrastructure"
)

func testAppConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Logging.Output = "console"
	cfg.Schedule.Enabled = false
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestApplication(t *testing.T) *Application {
	t.Helper()
	infrastructure.ResetLoggerForTesting()

	app, err := NewApplicationWithConfig(testAppConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, app.Stop(context.Background()))
	})
	return app
}

func TestApplicationWiring(t *testing.T) {
	app := newTestApplication(t)

	assert.NotNil(t, app.Router)
	assert.NotNil(t, app.Server)
	assert.NotNil(t, app.DataService)
	assert.NotNil(t, app.HealthService)
	assert.NotNil(t, app.Persister)
	assert.NotNil(t, app.Metrics)
	// no API key configured, so no source client
	assert.Nil(t, app.FredClient)
	// scheduling disabled in the test config
	assert.Nil(t, app.Scheduler)
}

func TestApplicationRoutes(t *testing.T) {
	app := newTestApplication(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/api/health", http.StatusOK},
		{"liveness", http.MethodGet, "/api/health/live", http.StatusOK},
		{"readiness", http.MethodGet, "/api/health/ready", http.StatusOK},
		{"version", http.MethodGet, "/api/version", http.StatusOK},
		{"stats", http.MethodGet, "/api/stats", http.StatusOK},
		{"series list", http.MethodGet, "/api/data/series", http.StatusOK},
		{"unknown series", http.MethodGet, "/api/data/series/nope", http.StatusNotFound},
		{"merged before run", http.MethodGet, "/api/data/merged", http.StatusNotFound},
		{"run status", http.MethodGet, "/api/operations/status", http.StatusOK},
		{"no report yet", http.MethodGet, "/api/operations/reports/latest", http.StatusNotFound},
		{"prometheus", http.MethodGet, "/metrics", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			app.Router.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestSchedulerEnabled(t *testing.T) {
	infrastructure.ResetLoggerForTesting()

	cfg := testAppConfig(t)
	cfg.Schedule.Enabled = true
	cfg.Schedule.Cron = "0 22 * * 1-5"

	app, err := NewApplicationWithConfig(cfg)
	require.NoError(t, err)
	defer app.Stop(context.Background())

	assert.NotNil(t, app.Scheduler)
}
