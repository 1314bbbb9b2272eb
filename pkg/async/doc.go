// Package async provides safe concurrent execution for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery,
// timeout enforcement, and context cancellation.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 5*time.Second, "audit write", logger, func(ctx context.Context) error {
//		return auditLogger.Log(ctx, event)
//	})
//
// # Use Cases
//
// Audit trail writes, cache invalidation publishing, any side effect that
// must not block or fail the request being served.
//
// # Related Packages
//
//   - pkg/middleware: Uses SafeGo for audit writes off the decision path
//   - pkg/tenants: Uses SafeGo for audit writes in management handlers
package async
