package middleware

import (
	"net/http"
	"strings"

	"github.com/cadencehq/authcore/pkg/authn"
	"github.com/cadencehq/authcore/pkg/contextkeys"
	"github.com/cadencehq/authcore/pkg/httputil"
	"github.com/cadencehq/authcore/pkg/observability"
)

// AuthMiddleware authenticates requests before they reach tenant
// resolution.
type AuthMiddleware struct {
	authenticator authn.Authenticator
	logger        *observability.Logger
	metrics       *observability.Metrics
	optional      bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator authn.Authenticator, logger *observability.Logger, metrics *observability.Metrics, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		logger:        logger,
		metrics:       metrics,
		optional:      optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract token from Authorization header
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.metrics.RecordAuthnFailure("missing_header")
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.metrics.RecordAuthnFailure("malformed_header")
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		identity, err := m.authenticator.Authenticate(r.Context(), parts[1])
		if err != nil {
			m.metrics.RecordAuthnFailure("invalid_credential")
			m.logger.WithError(err).Debug("authentication failed")
			httputil.WriteUnauthorized(w, "invalid or expired credential")
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity extracts the authenticated identity from a request, or
// nil when authentication has not run.
func GetIdentity(r *http.Request) *authn.Identity {
	identity, ok := r.Context().Value(contextkeys.IdentityKey).(*authn.Identity)
	if !ok {
		return nil
	}
	return identity
}
