// Package main is the entry point for the tilery named-map gateway.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tilery/internal/adapter"
	"tilery/internal/cache"
	"tilery/internal/config"
	"tilery/internal/database"
	"tilery/internal/handlers"
	"tilery/internal/metadata"
	"tilery/internal/metrics"
	"tilery/internal/middleware"
	"tilery/internal/models"
	"tilery/internal/namedmaps"
	"tilery/internal/querytables"
	"tilery/internal/router"
	"tilery/internal/store"
)

func main() {
	// Structured logger — outputs JSON in production, text in development.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
	)

	// Connect to PostgreSQL (template storage).
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run pending migrations.
	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to Valkey (metadata + layergroup response cache).
	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		os.Exit(1)
	}
	defer valkeyClient.Close()

	meta := metadata.New(valkeyClient)

	// Seed development metadata so a fresh checkout can instantiate maps
	// against the app database (no-op if the owner already exists).
	if cfg.IsDev() {
		devDB := models.DatabaseParams{
			User: cfg.DBUser,
			Pass: cfg.DBPassword,
			Host: cfg.DBHost,
			Port: cfg.DBPort,
			Name: cfg.DBName,
		}
		if err := meta.SeedDevOwner(context.Background(), "dev", devDB, "dev_api_key"); err != nil {
			slog.Error("failed to seed dev owner", "error", err)
			os.Exit(1)
		}
	}

	// Operational metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Data stores and per-owner connection pools.
	templateStore := store.NewTemplateStore(db)
	pools := database.NewOwnerPools()
	defer pools.Close()

	// MapConfig adapter chain, applied in order during resolution.
	adapters := adapter.NewChain(adapter.SQLWrap{}, adapter.Defaults{}, adapter.Datasource{}, adapter.Analysis{})

	// Resolution pipeline dependencies.
	deps := namedmaps.Deps{
		Templates:      templateStore,
		Metadata:       meta,
		Limits:         meta,
		Adapter:        adapters,
		Connections:    pools,
		Introspector:   querytables.NewIntrospector(),
		AffectedTables: namedmaps.NewAffectedTablesCache(m),
		Metrics:        m,
	}
	providers := namedmaps.NewProviderCache(deps)

	layergroups := cache.NewLayergroupCache(valkeyClient, cache.DefaultLayergroupTTL)

	// Create handler groups with their dependencies.
	templateHandlers := handlers.NewTemplates(templateStore, providers, layergroups)
	namedHandlers := handlers.NewNamed(providers, layergroups, m)

	// Instantiation rate limiter.
	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	defer limiter.Stop()

	// Set up the Chi router with all middleware and routes.
	r := router.New(templateHandlers, namedHandlers, meta, limiter, reg)

	// Create the HTTP server with sensible timeouts.
	// WriteTimeout accommodates cold instantiations that run EXPLAIN
	// against slow owner databases.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	// Give active requests up to 30 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}
