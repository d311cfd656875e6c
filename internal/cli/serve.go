package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fs-delta-tracker/internal/handlers"
	"fs-delta-tracker/internal/metrics"
	"fs-delta-tracker/internal/startup"
)

const (
	statsInterval   = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan reporting API and Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("listen-addr", "", "HTTP listen address (default :8080)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	startTime := time.Now()
	startup.LogConfig(a.cfg)
	a.configureMemory()

	dbStart := time.Now()
	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer closeDB(db, a.logger)
	startup.LogDatabaseInit(time.Since(dbStart))

	if a.cfg.MetricsEnabled {
		metrics.InitializeMetrics()
	}
	collector := metrics.NewCollector(db, statsInterval)
	collector.Start()
	defer collector.Stop()

	h := handlers.New(db, a.logger.Named("handlers"))
	router, err := handlers.NewRouter(h, handlers.RouterConfig{
		MetricsEnabled:  a.cfg.MetricsEnabled,
		LogHealthChecks: a.cfg.LogHealthChecks,
		Logger:          a.logger,
	})
	if err != nil {
		return err
	}
	startup.LogHTTPRoutes(router, a.cfg.LogHealthChecks)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	startup.LogServerStarted(startup.ServerConfig{
		ListenAddr:      a.cfg.ListenAddr,
		MetricsEnabled:  a.cfg.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case sig := <-sigChan:
		startup.LogShutdownInitiated(sig.String())
	case <-ctx.Done():
		startup.LogShutdownInitiated(ctx.Err().Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("Server shutdown error", zap.Error(err))
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping metrics collector")
	collector.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")

	startup.LogShutdownComplete()
	return nil
}
