package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"fs-delta-tracker/internal/middleware"
)

// RouterConfig selects optional endpoints and middleware behavior.
type RouterConfig struct {
	MetricsEnabled  bool
	LogHealthChecks bool
	Logger          *zap.Logger
	// Compression applies to change listings. Nil uses
	// middleware.DefaultCompressionConfig.
	Compression *middleware.CompressionConfig
}

// NewRouter registers the reporting API on a new mux.Router.
func NewRouter(h *Handlers, cfg RouterConfig) (*mux.Router, error) {
	compressCfg := middleware.DefaultCompressionConfig()
	if cfg.Compression != nil {
		compressCfg = *cfg.Compression
	}
	compress, err := middleware.Compression(compressCfg)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()

	logCfg := middleware.DefaultLoggingConfig()
	logCfg.LogHealthChecks = cfg.LogHealthChecks
	logCfg.SkipPaths = []string{"/metrics"}
	r.Use(middleware.Logger(logCfg, cfg.Logger))
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet).Name("health")
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead).Name("livez")
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet).Name("version")
	if cfg.MetricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet).Name("metrics")
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/scans", h.ListScans).Methods(http.MethodGet).Name("listScans")
	api.HandleFunc("/scans/{id:[0-9]+}", h.GetScan).Methods(http.MethodGet).Name("getScan")
	api.Handle("/scans/{id:[0-9]+}/changes", compress(http.HandlerFunc(h.ListChanges))).
		Methods(http.MethodGet).Name("listChanges")

	return r, nil
}
