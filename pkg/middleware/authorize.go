package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cadencehq/authcore/pkg/async"
	"github.com/cadencehq/authcore/pkg/audit"
	"github.com/cadencehq/authcore/pkg/contextkeys"
	"github.com/cadencehq/authcore/pkg/httputil"
	"github.com/cadencehq/authcore/pkg/observability"
	"github.com/cadencehq/authcore/pkg/rbac"
	"github.com/cadencehq/authcore/pkg/tenants"
)

// Requirement declares what a route demands from the caller. Exactly
// one admission rule applies, in this order: Validate, Permission,
// Permissions, the Resource/Action/Scope triple, Roles, MinRole. A
// zero Requirement admits any authenticated caller.
//
// Conditions, when present, must hold in addition to the admission
// rule.
type Requirement struct {
	// Permission names a single required permission key.
	Permission string

	// Permissions names a set of permission keys. Any one admits
	// unless RequireAll is set.
	Permissions []string
	RequireAll  bool

	// Resource, Action and Scope name a permission structurally
	// instead of by key.
	Resource rbac.Resource
	Action   rbac.Action
	Scope    rbac.Scope

	// Roles is an allow-list of role ids.
	Roles []string

	// MinRole admits any system role ranking at or above it.
	MinRole string

	// Conditions are evaluated against the merged condition context.
	Conditions []rbac.Condition

	// ConditionContext supplies request-derived fields for Conditions.
	ConditionContext func(r *http.Request, access *tenants.Access) map[string]interface{}

	// Validate is a custom admission check. It preempts every other
	// rule.
	Validate func(r *http.Request, access *tenants.Access) bool

	// RequireTenant rejects requests whose target tenant could not be
	// resolved.
	RequireTenant bool
}

// empty reports whether no admission rule is configured.
func (req Requirement) empty() bool {
	return req.Validate == nil &&
		req.Permission == "" &&
		len(req.Permissions) == 0 &&
		req.Resource == "" &&
		len(req.Roles) == 0 &&
		req.MinRole == ""
}

// Authorizer evaluates route requirements against resolved access.
type Authorizer struct {
	service tenants.AuthorizationService
	logger  *observability.Logger
	metrics *observability.Metrics
	audit   audit.Logger
}

// NewAuthorizer creates a new authorization middleware
func NewAuthorizer(service tenants.AuthorizationService, logger *observability.Logger, metrics *observability.Metrics, auditLogger audit.Logger) *Authorizer {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Authorizer{service: service, logger: logger, metrics: metrics, audit: auditLogger}
}

// Require returns middleware enforcing req. Authentication and tenant
// resolution middleware must run before it.
func (a *Authorizer) Require(req Requirement) func(http.Handler) http.Handler {
	return a.RequireFunc(func() Requirement { return req })
}

// RequireFunc is Require with the requirement resolved on every
// request, so callers backed by a reloadable policy pick up edits
// without re-registering routes.
func (a *Authorizer) RequireFunc(resolve func() Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			req := resolve()
			requestID := contextkeys.RequestID(r.Context())
			if requestID == "" {
				requestID = uuid.NewString()
				r = r.WithContext(contextkeys.WithRequestID(r.Context(), requestID))
			}
			logger := a.logger.WithField("request_id", requestID)

			defer func() {
				if rec := recover(); rec != nil {
					logger.WithField("panic", rec).Error("authorization panicked")
					a.metrics.RecordDecision("error", "panic", time.Since(start))
					writeInternal(w, requestID)
				}
			}()

			identity := GetIdentity(r)
			if identity == nil {
				a.metrics.RecordDecision("deny", "unauthenticated", time.Since(start))
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			logger = logger.WithField("user_id", identity.UserID)

			tenantID := contextkeys.TenantID(r.Context())
			if tenantID == "" {
				if req.RequireTenant {
					a.metrics.RecordDecision("deny", "no_tenant", time.Since(start))
					httputil.WriteBadRequest(w, "tenant could not be determined")
					return
				}
				if id, err := a.service.DefaultTenant(r.Context(), identity.UserID); err == nil {
					tenantID = id
					r = r.WithContext(contextkeys.WithTenantID(r.Context(), tenantID))
				}
			}

			var access *tenants.Access
			if tenantID != "" {
				resolved, err := a.service.Resolve(r.Context(), identity.UserID, tenantID)
				switch {
				case err == nil:
					access = resolved
				case errors.Is(err, tenants.ErrNoMembership):
					// evaluated below as no access
				default:
					// Resolution failures read as no membership rather
					// than a pass.
					logger.WithError(err).WithField("tenant_id", tenantID).Error("access resolution failed")
				}
			}

			decision, reason := a.evaluate(r, req, access)
			a.metrics.RecordDecision(decision, reason, time.Since(start))
			if decision != "allow" {
				logger.WithField("reason", reason).WithField("path", r.URL.Path).Debug("request denied")
				a.recordDenial(r, identity.UserID, tenantID, requestID, reason)
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			if access != nil {
				r = r.WithContext(contextkeys.WithAccess(r.Context(), access))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// evaluate applies the admission rules. Returns the decision and the
// rule that produced it.
func (a *Authorizer) evaluate(r *http.Request, req Requirement, access *tenants.Access) (string, string) {
	// A tenant-required route needs an active membership even when no
	// other admission rule is configured.
	if req.RequireTenant && access == nil {
		return "deny", "no_membership"
	}

	if req.Validate != nil {
		if !req.Validate(r, access) {
			return "deny", "validate"
		}
		return a.checkConditions(r, req, access)
	}

	if req.empty() {
		return a.checkConditions(r, req, access)
	}

	// Every remaining rule needs an active membership.
	if access == nil {
		return "deny", "no_membership"
	}

	switch {
	case req.Permission != "":
		if !rbac.HasPermission(access.Permissions, req.Permission) {
			return "deny", "permission"
		}
	case len(req.Permissions) > 0:
		if req.RequireAll {
			if !rbac.HasAll(access.Permissions, req.Permissions...) {
				return "deny", "permission"
			}
		} else if !rbac.HasAny(access.Permissions, req.Permissions...) {
			return "deny", "permission"
		}
	case req.Resource != "":
		if !rbac.CanAccess(access.Permissions, req.Resource, req.Action, req.Scope) {
			return "deny", "permission"
		}
	case len(req.Roles) > 0:
		if !roleAllowed(access.Role.ID, req.Roles) {
			return "deny", "role"
		}
	case req.MinRole != "":
		if !rbac.SatisfiesMinRole(access.Role.ID, req.MinRole) {
			return "deny", "min_role"
		}
	}

	return a.checkConditions(r, req, access)
}

func (a *Authorizer) checkConditions(r *http.Request, req Requirement, access *tenants.Access) (string, string) {
	if len(req.Conditions) == 0 {
		return "allow", "ok"
	}
	condCtx := map[string]interface{}{}
	if access != nil {
		condCtx["user_id"] = access.UserID
		condCtx["tenant_id"] = access.TenantID
		condCtx["role"] = access.Role.ID
	}
	if req.ConditionContext != nil {
		for k, v := range req.ConditionContext(r, access) {
			condCtx[k] = v
		}
	}
	if !rbac.EvaluateConditions(req.Conditions, condCtx) {
		return "deny", "conditions"
	}
	return "allow", "ok"
}

func roleAllowed(roleID string, allowed []string) bool {
	for _, id := range allowed {
		if id == roleID {
			return true
		}
	}
	return false
}

// recordDenial writes the audit event off the request path so a slow
// audit store cannot delay the 403.
func (a *Authorizer) recordDenial(r *http.Request, userID, tenantID, requestID, reason string) {
	event := &audit.Event{
		EventType: audit.EventTypeAuthzDenied,
		Status:    audit.EventStatusDenied,
		UserID:    userID,
		TenantID:  tenantID,
		RequestID: requestID,
		Method:    r.Method,
		Path:      r.URL.Path,
		Reason:    reason,
	}
	async.SafeGo(r.Context(), 5*time.Second, "audit authz denial", a.logger, func(ctx context.Context) error {
		return a.audit.Log(ctx, event)
	})
}

func writeInternal(w http.ResponseWriter, requestID string) {
	httputil.WriteDetailedError(w, http.StatusInternalServerError,
		errors.New("internal server error"),
		map[string]string{"request_id": requestID})
}

// Protect wraps a handler with a permission-keyed requirement. An
// empty permission admits any authenticated caller. Matches the
// signature tenant management handlers expect when registering routes.
func (a *Authorizer) Protect(handler http.HandlerFunc, permission string) http.Handler {
	req := Requirement{Permission: permission, RequireTenant: permission != ""}
	return a.Require(req)(handler)
}
