// Package observability carries the service's logging, metrics,
// health and tracing infrastructure.
//
// Logging is structured JSON over slog:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tenant_id", id).Info("membership resolved")
//
// Prometheus metrics register against a caller-owned registry; all
// families carry the authcore_ prefix:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordDecision("deny", "missing_permission", elapsed)
//	metrics.MembershipsActive.Set(float64(count))
//
// Every Metrics helper is safe on a nil receiver, so callers can skip
// the nil checks when metrics are disabled.
//
// Health probes treat postgres as required and redis as optional: a
// database outage reports unhealthy (503), a redis outage degrades:
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// Tracing and OTLP metric export initialize together:
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	...
//	observability.ShutdownOTel(ctx, providers, logger)
package observability
