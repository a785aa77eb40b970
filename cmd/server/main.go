package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/fruit-classifier/internal/classify"
	"github.com/Brownie44l1/fruit-classifier/internal/config"
	"github.com/Brownie44l1/fruit-classifier/internal/feed"
	"github.com/Brownie44l1/fruit-classifier/internal/handlers"
	"github.com/Brownie44l1/fruit-classifier/internal/history"
	"github.com/Brownie44l1/fruit-classifier/internal/logger"
	"github.com/Brownie44l1/fruit-classifier/internal/model"
	"github.com/Brownie44l1/fruit-classifier/internal/preprocess"
)

func openHistory(cfg *config.Config, lg *logger.Logger) (history.Store, func(), error) {
	switch cfg.HistoryBackend {
	case config.BackendSQLite:
		store, err := history.NewSQLiteStore(cfg.HistoryDBPath, lg)
		if err != nil {
			return nil, nil, err
		}
		lg.Info("History database: %s", cfg.HistoryDBPath)
		return store, func() { store.Close() }, nil
	case config.BackendJSON:
		store, err := history.NewFileStore(cfg.HistoryPath, lg)
		if err != nil {
			return nil, nil, err
		}
		lg.Info("History file: %s", cfg.HistoryPath)
		return store, func() {}, nil
	default:
		return nil, nil, errors.New("unknown HISTORY_BACKEND " + cfg.HistoryBackend)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lg, err := logger.New(cfg.LogDirectory)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if err := run(cfg, lg); err != nil {
		lg.Error("%v", err)
		lg.Close()
		os.Exit(1)
	}
	lg.Close()
}

// run owns every resource after the logger so its deferred cleanup always
// runs before main exits.
func run(cfg *config.Config, lg *logger.Logger) error {
	lg.Info("Loading model from: %s", cfg.ModelPath)

	loader := model.NewONNXLoader(cfg.ModelPath, cfg.MetadataPath, cfg.OnnxRuntimeLib)
	defer loader.Close()

	classifier, err := loader.Get()
	if err != nil {
		return fmt.Errorf("failed to load model, make sure %s exists: %w", cfg.ModelPath, err)
	}

	store, closeStore, err := openHistory(cfg, lg)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := feed.NewHub(lg)
	go hub.Run(ctx)

	opts := preprocess.Options{Normalize: cfg.NormalizePixels, MaxPixels: cfg.MaxImagePixels}
	service := classify.NewService(loader, store, hub, opts, lg)
	handler := handlers.NewHandler(service, lg, cfg.MaxUploadSize)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(handler, hub),
	}

	lg.Info("Server starting on port %s", cfg.Port)
	lg.Info("Classes: %v", classifier.Labels())
	lg.Info("Normalize pixels: %v, max upload size: %d bytes, max image pixels: %d",
		cfg.NormalizePixels, cfg.MaxUploadSize, cfg.MaxImagePixels)
	lg.Info("Endpoints:")
	lg.Info("  GET  /health          - Health check")
	lg.Info("  POST /predict         - Raw tensor prediction")
	lg.Info("  POST /predict/image   - Predict from image upload")
	lg.Info("  GET  /history         - Past predictions and stats")
	lg.Info("  GET  /history/stats   - Prediction count and average confidence")
	lg.Info("  GET  /ws/history      - Live prediction feed")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			lg.Error("Shutdown failed: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	lg.Info("Server stopped")
	return nil
}
