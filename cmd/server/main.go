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

	"golang.org/x/sync/errgroup"

	"github.com/korjavin/caloriediary/internal/api"
	"github.com/korjavin/caloriediary/internal/catalog"
	"github.com/korjavin/caloriediary/internal/config"
	"github.com/korjavin/caloriediary/internal/diary"
	"github.com/korjavin/caloriediary/internal/metrics"
	"github.com/korjavin/caloriediary/internal/middleware"
	"github.com/korjavin/caloriediary/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server exited")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if len(cfg.APIKeys) == 0 {
		slog.Warn("API_KEYS not set, all requests will be accepted without authentication")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("opening store", "data_dir", cfg.DataDir)
	s, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer s.Close()

	manifest, err := store.ReadManifest(cfg.DataDir)
	if err != nil {
		slog.Warn("manifest unreadable", "error", err)
		manifest = nil
	} else {
		slog.Info("manifest loaded", "schema_version", manifest.SchemaVersion, "created_at", manifest.CreatedAt)
	}

	reg := metrics.NewRegistry()
	s.OpHist = reg.Register("store_op", metrics.BucketsStore)

	client := catalog.NewClient(cfg.CatalogURL, cfg.CatalogTimeout)
	client.FetchHist = reg.Register("catalog_fetch", metrics.BucketsFetch)

	d := diary.New(client, s, diary.Options{
		Debounce:      cfg.SearchDebounce,
		NoticeTimeout: cfg.NoticeTimeout,
		Logger:        logger,
	})
	defer d.Close()
	if err := d.Reload(ctx); err != nil {
		return err
	}
	slog.Info("diary loaded", "entries", len(d.Snapshot().Entries), "catalog_url", cfg.CatalogURL)

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, cfg.APIKeys, &api.Handler{
		Diary:       d,
		Finder:      s,
		Manifest:    manifest,
		Registry:    reg,
		CheckOrigin: middleware.OriginChecker(cfg.CORSOrigins),
	})

	// Middleware chain (outer to inner): Logging → CORS → RateLimit → mux
	handler := middleware.Chain(
		mux,
		middleware.Logging(logger),
		middleware.CORS(cfg.CORSOrigins),
		middleware.RateLimit(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No WriteTimeout: /api/v1/stream connections are long-lived.
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server...")
		// Closing the diary ends open streams so Shutdown does not wait on them.
		d.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
		return nil
	})
	return g.Wait()
}
