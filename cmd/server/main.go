package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediasrv/internal/catalog"
	"mediasrv/internal/ffmpeg"
	"mediasrv/internal/hls"
	"mediasrv/internal/platform/config"
	"mediasrv/internal/platform/logger"
	"mediasrv/internal/platform/metrics"
	"mediasrv/internal/session"
	"mediasrv/internal/stream"
	"mediasrv/internal/transcode"

	"github.com/go-chi/chi/v5"
)

func main() {
	_ = config.Load()
	cfg := config.FromEnv()
	shutdownTimeout := config.GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	cat := catalog.New(cfg.VideoDir)
	if err := cat.Index(); err != nil {
		log.Error("catalog index failed", "error", err)
		os.Exit(1)
	}
	log.Info("catalog indexed", "dir", cfg.VideoDir, "assets", len(cat.Assets()))

	runner := ffmpeg.NewRunner(cfg.FFmpegPath, cfg.FFprobePath, log)
	locks := transcode.NewLockTable(cfg.VideoDir)

	// Backfill missing artifacts, then re-index so freshly written files and
	// anything another instance produced are both visible, then pre-package
	// segmented delivery. All failures here are per-artifact and non-fatal.
	ctx := context.Background()
	transcode.NewCoordinator(cat, locks, runner, log, met).Backfill(ctx)
	if err := cat.Index(); err != nil {
		log.Error("re-index after backfill failed", "error", err)
		os.Exit(1)
	}
	hls.NewPackager(cat, runner, log).PackageAll(ctx)

	registry := stream.NewRegistry(log)
	launcher := stream.NewLauncher(cat, runner, registry, log, met)
	handler := session.NewHandler(cat, launcher, cfg.ServerName, log, met)
	acceptor := session.NewAcceptor(handler, cfg.MaxSessions, log, met)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		log.Error("listen failed", "port", cfg.Port, "error", err)
		os.Exit(1)
	}

	go func() {
		if err := acceptor.Serve(ctx, ln); err != nil {
			log.Error("acceptor error", "error", err)
			os.Exit(1)
		}
	}()

	r := chi.NewRouter()
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetActiveSessions(acceptor.Active()) }).ServeHTTP(w, req)
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	admin := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: r}

	go func() {
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server running",
		"port", cfg.Port,
		"metrics_port", cfg.MetricsPort,
		"max_sessions", cfg.MaxSessions,
		"server_name", cfg.ServerName,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining sessions")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := acceptor.Shutdown(shutdownCtx); err != nil {
		log.Warn("sessions still active at shutdown deadline", "error", err)
	}
	registry.Shutdown(shutdownCtx)
	if err := admin.Shutdown(shutdownCtx); err != nil {
		log.Error("admin shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
