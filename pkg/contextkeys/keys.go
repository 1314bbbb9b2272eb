// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *authn.Identity
	// Set by: middleware.Authenticate (pkg/middleware/auth.go)
	// Required by: tenant resolution, authorization pipeline
	// Type: *authn.Identity
	IdentityKey Key = "identity"

	// TenantIDKey contains the resolved tenant identifier
	// Set by: middleware.ResolveTenant (pkg/middleware/tenant.go)
	// Required by: membership loading, tenant-scoped handlers
	// Type: string
	TenantIDKey Key = "tenant_id"

	// AccessKey contains *tenants.Access, the resolved authorization
	// context for the request
	// Set by: middleware.Authorize after a successful evaluation
	// Required by: downstream handlers; handlers never re-resolve
	// Type: *tenants.Access
	AccessKey Key = "access"

	// RequestIDKey contains the request correlation id
	// Set by: middleware.Authorize, generated per request
	// Used by: logger, denial responses
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: observability middleware
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithIdentity adds the authenticated identity to the context
func WithIdentity(ctx context.Context, identity any) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithTenantID adds the resolved tenant id to the context
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// TenantID retrieves the resolved tenant id, or "" when absent
func TenantID(ctx context.Context) string {
	if id, ok := ctx.Value(TenantIDKey).(string); ok {
		return id
	}
	return ""
}

// WithAccess adds the resolved authorization context to the context
func WithAccess(ctx context.Context, access any) context.Context {
	return context.WithValue(ctx, AccessKey, access)
}

// WithRequestID adds the request correlation id to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request correlation id, or "" when absent
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
