package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the Prometheus scrape endpoint. scrape is the
// handler built by the OTel prometheus exporter; when metrics are disabled
// it falls back to the default registry so the route still answers.
func MetricsHandler(scrape http.Handler) http.Handler {
	if scrape != nil {
		return scrape
	}
	return promhttp.Handler()
}
