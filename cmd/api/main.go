// Package main is the entry point for the parking API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pkordes/parking-ledger/api"
	"github.com/pkordes/parking-ledger/internal/config"
	"github.com/pkordes/parking-ledger/internal/events"
	"github.com/pkordes/parking-ledger/internal/fare"
	"github.com/pkordes/parking-ledger/internal/handler"
	"github.com/pkordes/parking-ledger/internal/ledger"
	"github.com/pkordes/parking-ledger/internal/metrics"
	"github.com/pkordes/parking-ledger/internal/middleware"
	"github.com/pkordes/parking-ledger/internal/repo"
	"github.com/pkordes/parking-ledger/internal/service"
	"github.com/pkordes/parking-ledger/migrations"
)

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		// Use plain stderr before the logger is configured.
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	// JSON handler writes machine-readable output suitable for log aggregators.
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Core -------------------------------------------------------------
	// The ledger is the only owner of stay state. Everything else reads it
	// through the service or hears about it through the hub.
	// Transitions are published while the plate is locked, so every
	// subscriber sees one plate's events in the order they happened.
	policy := fare.NewPolicy(cfg.HourlyRate, cfg.Currency)
	hub := events.NewHub()
	stays := ledger.New(policy, ledger.WithPublisher(hub))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, stays.OpenCount)
	hub.OnDrop = func(subscriber string) {
		m.EventDropped(subscriber)
		logger.Warn("event dropped", "subscriber", subscriber)
	}

	g, gctx := errgroup.WithContext(ctx)

	// --- Archive (optional) -----------------------------------------------
	// With DATABASE_URL set, migrations run, the ledger is restored from the
	// archive, and the archiver subscribes before any request is served.
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		// Verify the DB is reachable before accepting traffic.
		if err := pool.Ping(ctx); err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		slog.Info("database connection established")

		if err := migrate(ctx, pool); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		archiver := service.NewArchiver(repo.NewStayRepo(pool), m, logger)
		restored, err := archiver.Load(ctx)
		if err != nil {
			slog.Error("failed to load archived stays", "error", err)
			os.Exit(1)
		}
		if err := stays.Restore(restored); err != nil {
			slog.Error("archived stays are inconsistent", "error", err)
			os.Exit(1)
		}
		slog.Info("ledger restored", "stays", len(restored), "parked", stays.OpenCount())

		// The archive subscription is lossless: a dropped exit would leave a
		// stale open row behind.
		feed, cancel := hub.SubscribeAll("archive")
		defer cancel()
		g.Go(func() error {
			return archiver.Run(gctx, feed)
		})
	} else {
		slog.Warn("DATABASE_URL not set; stays are kept in memory only")
	}

	svc := service.NewStayService(stays, policy,
		service.WithLocation(cfg.Location),
		service.WithMetrics(m),
		service.WithLogger(logger),
	)

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger → Metrics →
	// Recoverer → CORS → MaxBody.
	// RequestID generates a unique trace ID per request.
	// RealIP sets r.RemoteAddr from X-Forwarded-For / X-Real-IP (safe behind a proxy).
	// SlogLogger writes one structured JSON log line per request.
	// Recoverer catches panics and returns HTTP 500 instead of crashing.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(middleware.NewRequestMetrics(reg))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		//nolint:errcheck
		w.Write(api.OpenAPI)
	})

	server := handler.NewServer(svc,
		handler.WithEventSource(hub),
		handler.WithStreamBuffer(cfg.EventBuffer),
		handler.WithAllowedOrigins(cfg.CORSOrigins),
		handler.WithLogger(logger),
	)
	r.Mount("/", server.Routes())

	// --- HTTP Server ------------------------------------------------------
	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	// WebSocket connections are hijacked and manage their own deadlines.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		slog.Info("server starting", "addr", srv.Addr, "hourly_rate", policy.HourlyRate().String(), "currency", policy.Currency())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown: wait for a signal (or a failed goroutine), then give
	// in-flight requests up to 15 seconds to complete. Closing the hub ends
	// every event stream and lets the archiver write what is queued and return.
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		hub.Close()
		return err
	})

	// SIGHUP re-reads the configuration and applies a new hourly rate.
	// Stays already closed keep their fare.
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				reloadRate(logger, policy)
			}
		}
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// migrate applies every pending goose migration through a database/sql
// handle borrowed from the pool.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		slog.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

func reloadRate(logger *slog.Logger, policy *fare.Policy) {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("config reload failed; keeping current rate", "error", err)
		return
	}
	old := policy.HourlyRate()
	if err := policy.SetHourlyRate(cfg.HourlyRate); err != nil {
		logger.Error("config reload failed; keeping current rate", "error", err)
		return
	}
	logger.Info("hourly rate reloaded", "old", old.String(), "new", cfg.HourlyRate.String())
}
