// Package httputil holds the JSON request/response helpers and generic HTTP
// middleware shared by the handlers in pkg/tenants and pkg/middleware.
//
// Responses are raw JSON bodies, no envelope:
//
//	httputil.WriteSuccess(w, members)
//	httputil.WriteCreated(w, invitation)
//	httputil.WriteBadRequest(w, "user_id is required")
//
// Request parsing reads gorilla/mux path vars and query parameters, with
// *OrError variants that write the 400 themselves:
//
//	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenant_id")
//	if !ok {
//		return
//	}
//	limit, err := httputil.ParseQueryInt(r, "limit", 50)
//
// Middleware composes with Chain:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)
//
// RequestIDMiddleware honors an inbound X-Request-ID, generates a UUID
// otherwise, and stores the ID in the request context via pkg/contextkeys so
// authorization denials and audit events can carry it.
//
// Authentication and authorization middleware live in pkg/middleware.
package httputil
