package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fs-delta-tracker/internal/metrics"
)

const metricsScrapeTimeout = 10 * time.Second

// MetricsHandler serves the Prometheus registry. Store gauges are refreshed
// from the store on every scrape, so a scan finalized since the last
// collector tick is already visible.
func (h *Handlers) MetricsHandler() http.Handler {
	exposition := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:          zap.NewStdLog(h.logger.Named("metrics")),
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
		Timeout:           metricsScrapeTimeout,
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordStats(h.store.GetStats())
		exposition.ServeHTTP(w, r)
	})
}
