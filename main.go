package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/ultra-bg-remover/config"
	"github.com/chaos-io/ultra-bg-remover/imaging"
	"github.com/chaos-io/ultra-bg-remover/janitor"
	"github.com/chaos-io/ultra-bg-remover/logging"
	"github.com/chaos-io/ultra-bg-remover/pipeline"
	"github.com/chaos-io/ultra-bg-remover/rembg"
	"github.com/chaos-io/ultra-bg-remover/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	remover, err := rembg.New(cfg)
	if err != nil {
		return err
	}
	if err := rembg.CheckHealth(ctx, remover); err != nil {
		slog.Warn("background removal backend not available", "backend", cfg.RemBGBackend, "err", err)
	}

	finalizer := imaging.NewFinalizer(imaging.Options{
		Quality:          cfg.PNGQuality,
		CompressionLevel: cfg.PNGCompression,
		MaxDimension:     cfg.MaxDimension,
		MaxPixels:        cfg.MaxPixels,
	})
	svc := pipeline.NewService(remover, finalizer)

	if cfg.JanitorSchedule != "" {
		j := janitor.New(cfg.UploadDir, cfg.JanitorMaxAge)
		if err := j.Start(cfg.JanitorSchedule); err != nil {
			return err
		}
		defer j.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.New(cfg, svc).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info(server.Name+" server running", "addr", "http://localhost"+cfg.Addr(), "backend", cfg.RemBGBackend)
		slog.Info("Ready to process images! Use POST /remove-background with 'image' file field")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
