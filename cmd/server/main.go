// stac-layer server entry point
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rkm/stac-layer/internal/config"
	"github.com/rkm/stac-layer/internal/logger"
	"github.com/rkm/stac-layer/internal/metrics"
	"github.com/rkm/stac-layer/pkg/server"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version   = "dev"
	revision  = ""
	buildDate = ""
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("starting stac-layer",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	opts := server.FromConfig(cfg, log)
	opts.Build = metrics.BuildInfo{Version: version, Revision: revision, BuildDate: buildDate}

	srv, err := server.New(opts)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("received shutdown signal", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	log.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	log.Info("server stopped")
	return nil
}
