package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cadencehq/authcore/pkg/audit"
	"github.com/cadencehq/authcore/pkg/authn"
	"github.com/cadencehq/authcore/pkg/config"
	"github.com/cadencehq/authcore/pkg/httputil"
	"github.com/cadencehq/authcore/pkg/middleware"
	"github.com/cadencehq/authcore/pkg/observability"
	"github.com/cadencehq/authcore/pkg/policy"
	"github.com/cadencehq/authcore/pkg/tenants"
)

func main() {
	// Bootstrap logging until the configured logger is available
	boot := logrus.New()
	boot.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.WithError(err).Fatal("Failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", observability.Version).Info("Starting authcore")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// OpenTelemetry
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OpenTelemetry")
	}

	// PostgreSQL
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open database")
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)
	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	logger.Info("Connected to PostgreSQL")

	// Redis (optional): invalidation bus and rate limiting
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable, continuing without invalidation bus and rate limiting")
			redisClient = nil
		} else {
			logger.WithField("addr", cfg.Redis.Addr).Info("Connected to Redis")
		}
	}

	// Metrics
	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Audit trail
	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize audit logger")
	}

	// Membership store and access resolver
	store := tenants.NewPostgresStore(db)
	resolver := tenants.NewResolver(store, logger, metrics,
		tenants.WithCacheSize(cfg.Cache.Size),
		tenants.WithCacheTTL(cfg.Cache.TTL),
	)

	bus := tenants.NewInvalidationBus(redisClient, logger, metrics)
	store.OnMembershipChange(func(ctx context.Context, userID string) {
		resolver.InvalidateUser(ctx, userID)
		bus.Publish(ctx, userID)
	})
	if redisClient != nil {
		go func() {
			defer observability.RecoverPanic(logger, "invalidation bus listener")
			if err := bus.Listen(ctx, resolver); err != nil {
				logger.WithError(err).Error("Invalidation bus listener stopped")
			}
		}()
	}

	// Authentication
	var authenticator authn.Authenticator
	switch cfg.Auth.Mode {
	case "oidc":
		oidcAuth, err := authn.NewOIDCAuthenticator(ctx, authn.OIDCConfig{
			IssuerURL: cfg.Auth.OIDCIssuerURL,
			ClientID:  cfg.Auth.OIDCClientID,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize OIDC authenticator")
		}
		authenticator = oidcAuth
		logger.WithField("issuer", cfg.Auth.OIDCIssuerURL).Info("Using OIDC authentication")
	default:
		authenticator = authn.NewTokenAuthenticator()
		logger.Warn("Using in-memory token authentication, not suitable for production")
	}

	// Middleware pipeline
	authMW := middleware.NewAuthMiddleware(authenticator, logger, metrics, false)
	tenantMW := middleware.NewTenantMiddleware(logger, metrics)
	authorizer := middleware.NewAuthorizer(resolver, logger, metrics, auditLogger)

	// Route policy (optional): overrides per-route requirements
	protect := authorizer.Protect
	if cfg.Policy.Path != "" {
		provider, err := policy.Load(cfg.Policy.Path)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load route policy")
		}
		logger.WithField("routes", len(provider.Routes())).Info("Route policy loaded")
		if cfg.Policy.Watch {
			go func() {
				defer observability.RecoverPanic(logger, "policy watcher")
				if err := provider.Watch(ctx, logger); err != nil && err != context.Canceled {
					logger.WithError(err).Error("Route policy watcher stopped")
				}
			}()
		}
		protect = provider.Protect(authorizer)
	}

	router := mux.NewRouter()
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware(logger))
	router.Use(httputil.RecoveryMiddleware(logger))
	if metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	if redisClient != nil {
		router.Use(middleware.NewRateLimitMiddleware(redisClient, logger).Handler)
	}
	router.Use(authMW.Handler)
	router.Use(tenantMW.Handler)

	handlers := tenants.NewHandlers(store, logger, auditLogger)
	handlers.RegisterRoutes(router, protect)

	var handler http.Handler = router
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(router, "authcore")
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes
	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db, redisClient)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}
	go func() {
		logger.WithField("port", cfg.Server.HealthPort).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	// Expired invitations are swept hourly
	janitor := cron.New()
	janitor.AddFunc("@hourly", func() {
		defer observability.RecoverPanic(logger, "invitation cleanup")
		removed, err := store.CleanupExpiredInvitations(context.Background())
		if err != nil {
			logger.WithError(err).Error("Failed to clean up expired invitations")
			return
		}
		if removed > 0 {
			logger.WithField("removed", removed).Info("Cleaned up expired invitations")
		}
	})
	janitor.Start()

	go func() {
		logger.WithField("addr", server.Addr).Info("API server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("API server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancel()
		janitor.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(healthServer.Shutdown)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		if redisClient != nil {
			return redisClient.Close()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return db.Close()
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}
