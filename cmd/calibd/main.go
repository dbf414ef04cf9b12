package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chromaflow/calibration-core/internal/calibd"
	"github.com/chromaflow/calibration-core/pkg/logger"
)

func main() {
	var httpAddr string
	var logLevel string
	var dataDir string
	var configPath string

	flag.StringVar(&httpAddr, "http-addr", ":8080", "HTTP listen address")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&dataDir, "data-dir", ".", "directory experiment profile paths resolve against")
	flag.StringVar(&configPath, "config", "", "calibration job file to start at boot")
	flag.Parse()

	logger.SetDefault(logger.NewText(logLevel, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if configPath != "" && dataDir == "." {
		dataDir = filepath.Dir(configPath)
	}

	store := calibd.NewJobStore()
	service := calibd.NewService(store).
		WithBaseDir(dataDir).
		WithNotifier(calibd.NewNotifier())

	if configPath != "" {
		rec, err := calibd.BootstrapJob(store, service, configPath)
		if err != nil {
			logger.Error("failed to start calibration from file", "path", configPath, "error", err)
			os.Exit(1)
		}
		// The job file's log level takes precedence over the flag.
		if lvl := rec.Config.LogLevel; lvl != "" && lvl != logLevel {
			logger.SetDefault(logger.NewText(lvl, os.Stdout))
		}
		logger.Info("calibration started from file", "job_id", rec.ID, "path", configPath)
	}

	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           calibd.NewHTTPServer(store, service).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// No WriteTimeout: the events endpoint holds its SSE stream open
		// for the lifetime of a run.
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
}
