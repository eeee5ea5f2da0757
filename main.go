package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource/all"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/cache"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/config"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/handlers"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/logging"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/metrics"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/middleware"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Int("datasources", len(cfg.DataSources)),
	)
	if dump, err := cfg.Redacted(); err == nil {
		logger.Debug("Effective configuration", zap.String("config", dump))
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Prefix)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newCacheStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize cache", zap.Error(err))
	}

	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		MaxConnectionsPerTenant: cfg.Datasource.MaxConnectionsPerTenant,
		PoolMaxConns:            cfg.Datasource.PoolMaxConns,
		PoolMinConns:            cfg.Datasource.PoolMinConns,
		IdleSeconds:             cfg.Datasource.IdleSeconds,
		ConnectTimeout:          cfg.Datasource.ConnectionTimeout(),
	}, logger, m)

	factory := datasource.NewConnectorFactory(datasource.Deps{ConnMgr: connMgr, Logger: logger, Metrics: m})
	svc := services.NewQueryService(factory, store, services.QueryServiceConfig{
		DefaultCacheTTL:    cfg.Cache.DefaultTTL(),
		DefaultTimeout:     cfg.Query.Timeout(),
		MaxResultRows:      cfg.Query.MaxResultRows,
		MaxQueryLength:     cfg.Query.MaxQueryLength,
		HealthCheckTimeout: cfg.Query.HealthCheckTimeout(),
	}, logger, m)

	registerConfiguredSources(ctx, cfg, svc, logger)

	mux := http.NewServeMux()
	var cacheHealth handlers.CacheHealth
	if store != nil {
		cacheHealth = store
	}
	handlers.NewHealthHandler(cfg, svc, cacheHealth, logger).RegisterRoutes(mux)
	handlers.NewQueriesHandler(svc, logger).RegisterRoutes(mux)
	handlers.NewDatasourcesHandler(svc, logger).RegisterRoutes(mux)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           middleware.Chain(mux, middleware.RequestID, middleware.Recover(logger), middleware.RequestLogger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-query-engine",
			zap.String("addr", server.Addr),
			zap.Bool("tls", cfg.TLSCertPath != ""),
		)
		var err error
		if cfg.TLSCertPath != "" {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := svc.Close(); err != nil {
		logger.Error("Failed to close query service", zap.Error(err))
	}
	if err := connMgr.Close(); err != nil {
		logger.Error("Failed to close connection manager", zap.Error(err))
	}
}

func newCacheStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		client, err := cache.NewRedisClient(ctx, cache.RedisOptions{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		return cache.NewRedisStore(client, logger), nil
	case "none":
		return nil, nil
	default:
		return cache.NewMemoryStore(logger, cache.WithMaxEntries(cfg.Cache.MaxEntries)), nil
	}
}

// registerConfiguredSources registers the data sources listed in config.
// A source that fails to connect is logged and skipped so the rest still serve.
func registerConfiguredSources(ctx context.Context, cfg *config.Config, svc services.QueryService, logger *zap.Logger) {
	for _, ds := range cfg.DataSources {
		connCfg, err := datasource.ParseConnectionConfig(ds.ID, ds.TenantID, ds.Type, ds.Name, ds.Config)
		if err != nil {
			logger.Error("Invalid data source config", zap.String("datasource_id", ds.ID), zap.Error(err))
			continue
		}
		connCfg.Description = ds.Description

		if err := svc.RegisterDataSource(ctx, connCfg); err != nil {
			logger.Error("Failed to register data source",
				zap.String("datasource_id", ds.ID),
				logging.ErrorField(err),
			)
			continue
		}
		logger.Info("Registered data source",
			zap.String("datasource_id", ds.ID),
			zap.String("type", string(connCfg.Type)),
		)
	}
}
