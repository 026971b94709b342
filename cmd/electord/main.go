// Command electord runs a single leader-election candidate against
// MongoDB, exposing its state over HTTP and Prometheus metrics. The work
// it performs while leading is a placeholder cron job; embedders link
// against package election/mongoelect directly rather than running this
// binary in production.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fleetctl/mongoelect/election"
	"github.com/fleetctl/mongoelect/internal/config"
	"github.com/fleetctl/mongoelect/internal/database"
	"github.com/fleetctl/mongoelect/internal/httpapi"
	"github.com/fleetctl/mongoelect/internal/metrics"
	"github.com/fleetctl/mongoelect/pkg/middleware"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	config.InitLogger(cfg)

	slog.Info("starting electord", "version", version, "election_key", cfg.ElectionKey)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTimeout)
	if err != nil {
		slog.Error("failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Disconnect(context.Background()); err != nil {
			slog.Error("failed to disconnect from MongoDB", "error", err)
		}
	}()

	leaderWork := cron.New()
	_, err = leaderWork.AddFunc("@every 1m", func() {
		slog.Info("performing leader-only work")
	})
	if err != nil {
		slog.Error("failed to schedule leader work", "error", err)
		os.Exit(1)
	}

	elector, err := election.New(ctx, db.Database, cfg.ElectionKey,
		election.WithTTL(cfg.ElectionTTL),
		election.WithAppVersion(version),
		election.WithReportStatus(cfg.ElectionReportStatus),
		election.WithLockCollection(cfg.ElectionLockCollection),
		election.WithStatusCollection(cfg.ElectionStatusCollection),
		election.WithPollObserver(metrics.PollObserver(cfg.ElectionKey)),
		election.WithCallbacks(metrics.WrapCallbacks(cfg.ElectionKey, election.Callbacks{
			OnLeader: func() {
				slog.Info("became leader", "key", cfg.ElectionKey)
				leaderWork.Start()
			},
			OnLeaderLoss: func() {
				slog.Info("lost leadership", "key", cfg.ElectionKey)
				leaderWork.Stop()
			},
		})),
	)
	if err != nil {
		slog.Error("failed to construct elector", "error", err)
		os.Exit(1)
	}

	elector.Start(ctx)

	corsConfig := middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		AllowCredentials: cfg.CORSAllowCredentials,
		MaxAge:           cfg.CORSMaxAge,
	}

	healthHandler := httpapi.NewHealthHandler(db.Client, version)
	electionHandler := httpapi.NewElectionHandler(elector, cfg.ElectionKey)
	router := httpapi.NewRouter(healthHandler, electionHandler, corsConfig)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	go func() {
		slog.Info("starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	slog.Info("received shutdown signal, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	slog.Info("stopping elector...")
	if err := elector.Stop(shutdownCtx); err != nil {
		slog.Error("elector stop error", "error", err)
	}
	leaderWork.Stop()

	slog.Info("shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("electord stopped")
}
