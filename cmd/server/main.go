package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/postpack/internal/api"
	"github.com/dgallion1/postpack/internal/codec"
	"github.com/dgallion1/postpack/internal/config"
	"github.com/dgallion1/postpack/internal/content"
	"github.com/dgallion1/postpack/internal/metrics"
	"github.com/dgallion1/postpack/internal/pipeline"
	"github.com/dgallion1/postpack/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.CloudinaryCloudName == "" {
		log.Warn("no media cloud configured; stored images cannot be expanded")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(cfg.StatsWindow)

	// Initialize storage.
	st, err := store.New(ctx, cfg, log)
	if err != nil {
		log.Error("open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}

	// Initialize the codec and post service.
	cc := cfg.CodecConfig()
	cc.Logger = log
	cc.OnFallback = m.ObserveFallback
	svc := content.NewService(codec.New(cc), st, content.Options{
		Context:   cfg.MediaContext(),
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
		Metrics:   m,
		Logger:    log,
	})

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, svc, m, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(svc, orch, m, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		st.Close()
	}()

	log.Info("starting postpack", "port", cfg.Port, "store", cfg.StoreBackend, "rules", len(svc.Codec().Rules()))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
	log.Info("shutdown complete")
}
