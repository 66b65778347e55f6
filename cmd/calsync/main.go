package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/calsync/internal/calsync"
	"github.com/dukerupert/calsync/internal/config"
	"github.com/dukerupert/calsync/internal/database"
	"github.com/dukerupert/calsync/internal/gcal"
	"github.com/dukerupert/calsync/internal/logging"
	"github.com/dukerupert/calsync/internal/metafile"
	"github.com/dukerupert/calsync/internal/server"
	"github.com/dukerupert/calsync/internal/store"
	ws "github.com/dukerupert/calsync/internal/websocket"
)

func main() {
	cfg, err := config.Load(os.Getenv("CALSYNC_CONFIG"), os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error("calsync exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var meta calsync.MetadataStore = store.NewSyncMetadataStore(db)
	if cfg.MetadataPath != "" {
		meta = metafile.New(cfg.MetadataPath)
		logger.Info("using file metadata store", "path", cfg.MetadataPath)
	}

	gsvc, err := gcal.NewService(ctx, cfg.GoogleCredentials, cfg.GoogleToken, logger.With("component", "oauth"))
	if err != nil {
		return fmt.Errorf("google calendar: %w", err)
	}
	remote := gcal.NewClient(gsvc, logger.With("component", "gcal"))

	hub := ws.NewHub(logger.With("component", "websocket"))

	svc, err := calsync.New(ctx, calsync.Config{
		PageSize:   cfg.MaxResults,
		PastDays:   cfg.FullSyncPastDays,
		FutureDays: cfg.FullSyncFutureDays,
	}, remote, store.NewEventStore(db), meta, hub.BroadcastSyncStatus, logger.With("component", "calsync"))
	if err != nil {
		return err
	}

	if cfg.SyncCron != "" {
		sched, err := calsync.NewScheduler(svc, cfg.SyncCron, logger.With("component", "scheduler"))
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	} else {
		logger.Info("scheduled sync disabled")
	}

	srv := server.New(db, hub, svc, server.Config{
		WSOrigins:     cfg.WSOrigins,
		SyncRateLimit: cfg.SyncRateLimit,
	}, logger)
	go srv.RateLimiter().RunCleanup(ctx, 5*time.Minute)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv.Router(),
		ReadTimeout: 5 * time.Second,
		// A full sync of a large calendar runs inside the request.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("calsync listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
