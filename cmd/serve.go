package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"speech-affect/pkg/api"
	"speech-affect/pkg/asr"
	"speech-affect/pkg/audio"
	"speech-affect/pkg/pipeline"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configPath)
		},
	}
}

func serve(configPath string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c := buildComponents(cfg, log, reg)

	ffmpegCheck := func() error { return audio.CheckFFmpeg(cfg.Transcode.Binary) }
	if err := ffmpegCheck(); err != nil {
		log.Warn("ffmpeg unavailable", zap.Error(err))
	}
	checkScorer(c, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := pipeline.NewManager(cfg.Pipeline, c.analyzer, c.metrics, log)
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	handlers := api.NewHandlers(manager, api.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Transcriber:    asr.NewClient(cfg.ASR.URL, cfg.ASR.Timeout),
		Scorer:         c.scorer,
		FFmpegCheck:    ffmpegCheck,
		Log:            log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewRouter(handlers, reg, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server",
			zap.String("address", cfg.Server.Address),
			zap.String("model", c.scorer.Model()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		manager.Stop()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	manager.Stop()

	log.Info("Server exited")
	return nil
}

// checkScorer logs whether the scorer sidecar is up. A missing scorer is
// not fatal; /ready reports it until the model loads.
func checkScorer(c *components, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hr, err := c.scorer.Health(ctx)
	switch {
	case err != nil:
		log.Warn("scorer unreachable", zap.Error(err))
	case !hr.ModelLoaded:
		log.Warn("scorer model not loaded yet", zap.String("model", hr.Model))
	default:
		log.Info("scorer ready", zap.String("model", hr.Model))
	}
}
