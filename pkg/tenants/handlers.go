package tenants

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cadencehq/authcore/pkg/async"
	"github.com/cadencehq/authcore/pkg/audit"
	"github.com/cadencehq/authcore/pkg/authn"
	"github.com/cadencehq/authcore/pkg/contextkeys"
	"github.com/cadencehq/authcore/pkg/httputil"
	"github.com/cadencehq/authcore/pkg/observability"
	"github.com/cadencehq/authcore/pkg/rbac"
)

// AccessFromContext retrieves the resolved access for the request, or
// nil when authorization has not run.
func AccessFromContext(ctx context.Context) *Access {
	if access, ok := ctx.Value(contextkeys.AccessKey).(*Access); ok {
		return access
	}
	return nil
}

// auditWriteTimeout bounds the detached audit insert.
const auditWriteTimeout = 5 * time.Second

func identityUserID(ctx context.Context) string {
	if identity, ok := ctx.Value(contextkeys.IdentityKey).(*authn.Identity); ok && identity != nil {
		return identity.UserID
	}
	return ""
}

// Handlers provides HTTP handlers for membership and role management
type Handlers struct {
	store  *PostgresStore
	logger *observability.Logger
	audit  audit.Logger
}

// NewHandlers creates new tenant management handlers
func NewHandlers(store *PostgresStore, logger *observability.Logger, auditLogger audit.Logger) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Handlers{store: store, logger: logger, audit: auditLogger}
}

func (h *Handlers) record(ctx context.Context, eventType audit.EventType, tenantID, subjectID, role, detail string) {
	event := &audit.Event{
		EventType: eventType,
		Status:    audit.EventStatusSuccess,
		UserID:    identityUserID(ctx),
		TenantID:  tenantID,
		SubjectID: subjectID,
		Role:      role,
		Reason:    detail,
	}
	async.SafeGo(ctx, auditWriteTimeout, "audit "+string(eventType), h.logger, func(ctx context.Context) error {
		return h.audit.Log(ctx, event)
	})
}

// RegisterRoutes registers all tenant management routes. Authorization
// requirements are attached per route by the caller.
func (h *Handlers) RegisterRoutes(router *mux.Router, protect func(http.HandlerFunc, string) http.Handler) {
	// Authorization context (consumed by client mirrors)
	router.Handle("/v1/authz/context", protect(h.GetAuthzContext, "")).Methods("GET")

	// Member management
	router.Handle("/v1/tenants/{tenant_id}/members", protect(h.ListMembers, rbac.Key(rbac.ResourceMembers, rbac.ActionView, ""))).Methods("GET")
	router.Handle("/v1/tenants/{tenant_id}/members", protect(h.AddMember, rbac.Key(rbac.ResourceMembers, rbac.ActionInvite, ""))).Methods("POST")
	router.Handle("/v1/tenants/{tenant_id}/members/{user_id}", protect(h.UpdateMember, rbac.Key(rbac.ResourceMembers, rbac.ActionUpdate, ""))).Methods("PUT")
	router.Handle("/v1/tenants/{tenant_id}/members/{user_id}", protect(h.RemoveMember, rbac.Key(rbac.ResourceMembers, rbac.ActionRemove, ""))).Methods("DELETE")

	// Role management
	router.Handle("/v1/tenants/{tenant_id}/roles", protect(h.ListRoles, rbac.Key(rbac.ResourceRoles, rbac.ActionView, ""))).Methods("GET")
	router.Handle("/v1/tenants/{tenant_id}/roles", protect(h.UpsertRole, rbac.Key(rbac.ResourceRoles, rbac.ActionManage, ""))).Methods("PUT")

	// Invitations
	router.Handle("/v1/tenants/{tenant_id}/invitations", protect(h.CreateInvitation, rbac.Key(rbac.ResourceMembers, rbac.ActionInvite, ""))).Methods("POST")
	router.Handle("/v1/tenants/{tenant_id}/invitations/{id}", protect(h.RevokeInvitation, rbac.Key(rbac.ResourceMembers, rbac.ActionRemove, ""))).Methods("DELETE")
	router.Handle("/v1/invitations/accept", protect(h.AcceptInvitation, "")).Methods("POST")

	// Audit trail
	router.Handle("/v1/tenants/{tenant_id}/audit", protect(h.SearchAuditLogs, rbac.Key(rbac.ResourceSettings, rbac.ActionView, ""))).Methods("GET")
}

// SearchAuditLogs lists recorded audit events for a tenant, newest
// first. Returns 404 when the configured audit sink cannot be queried.
func (h *Handlers) SearchAuditLogs(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenant_id")
	if !ok {
		return
	}

	searcher, ok := h.audit.(audit.Searcher)
	if !ok {
		httputil.WriteNotFoundError(w, "audit log is not enabled")
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, "limit must be an integer")
		return
	}

	events, err := searcher.Search(r.Context(), audit.SearchFilter{
		TenantID:  tenantID,
		UserID:    httputil.ParseQueryString(r, "user_id", ""),
		EventType: audit.EventType(httputil.ParseQueryString(r, "event_type", "")),
		Limit:     limit,
	})
	if err != nil {
		h.logger.WithError(err).WithField("tenant_id", tenantID).Error("failed to search audit logs")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, events)
}

// GetAuthzContext returns the caller's resolved access for the current
// tenant. Client mirrors fetch this on login and on tenant switch.
func (h *Handlers) GetAuthzContext(w http.ResponseWriter, r *http.Request) {
	access := AccessFromContext(r.Context())
	if access == nil {
		httputil.WriteForbidden(w, "no tenant access")
		return
	}
	httputil.WriteSuccess(w, access)
}

// ListMembers returns every membership in the tenant.
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenant_id")
	if !ok {
		return
	}

	members, err := h.store.ListMembers(r.Context(), tenantID)
	if err != nil {
		h.logger.WithError(err).WithField("tenant_id", tenantID).Error("failed to list members")
		httputil.WriteInternalError(w, err)
		return
	}
	if members == nil {
		members = []Membership{}
	}
	httputil.WriteSuccess(w, members)
}

// AddMember creates an active membership directly, bypassing the
// invitation flow.
func (h *Handlers) AddMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenant_id")
	if !ok {
		return
	}

	var req struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") || !httputil.RequireNonEmpty(w, req.Role, "role") {
		return
	}

	membership := &Membership{
		UserID:   req.UserID,
		TenantID: tenantID,
		Role:     req.Role,
	}
	if err := h.store.AddMember(r.Context(), membership); err != nil {
		if errors.Is(err, ErrMembershipExists) {
			httputil.WriteConflict(w, "user is already a member of this tenant")
			return
		}
		h.logger.WithError(err).WithField("tenant_id", tenantID).Error("failed to add member")
		httputil.WriteInternalError(w, err)
		return
	}
	h.record(r.Context(), audit.EventTypeMemberAdd, tenantID, req.UserID, req.Role, "")
	httputil.WriteCreated(w, membership)
}

// UpdateMember changes a member's role, status, or both.
func (h *Handlers) UpdateMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenant_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
	if !ok {
		return
	}

	var req struct {
		Role   string `json:"role,omitempty"`
		Status string `json:"status,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Role == "" && req.Status == "" {
		httputil.WriteValidationError(w, "role or status is required")
		return
	}

	ctx := r.Context()
	if req.Role != "" {
		if err := h.store.UpdateMemberRole(ctx, tenantID, userID, req.Role); err != nil {
			h.writeMemberError(w, err, tenantID, userID, "failed to update member role")
			return
		}
		h.record(ctx, audit.EventTypeMemberRoleChange, tenantID, userID, req.Role, "")
	}
	if req.Status != "" {
		status := MembershipStatus(req.Status)
		if status != StatusActive && status != StatusInactive && status != StatusPending {
			httputil.WriteValidationError(w, "invalid status")
			return
		}
		if err := h.store.SetMemberStatus(ctx, tenantID, userID, status); err != nil {
			h.writeMemberError(w, err, tenantID, userID, "failed to update member status")
			return
		}
		h.record(ctx, audit.EventTypeMemberStatusChange, tenantID, userID, "", req.Status)
	}
	httputil.WriteNoContent(w)
}

// RemoveMember deletes a membership.
func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenant_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.store.RemoveMember(r.Context(), tenantID, userID); err != nil {
		h.writeMemberError(w, err, tenantID, userID, "failed to remove member")
		return
	}
	h.record(r.Context(), audit.EventTypeMemberRemove, tenantID, userID, "", "")
	httputil.WriteNoContent(w)
}

// ListRoles returns the tenant's custom roles alongside the system
// roles every tenant has.
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenant_id")
	if !ok {
		return
	}

	custom, err := h.store.ListTenantRoles(r.Context(), tenantID)
	if err != nil {
		h.logger.WithError(err).WithField("tenant_id", tenantID).Error("failed to list tenant roles")
		httputil.WriteInternalError(w, err)
		return
	}
	if custom == nil {
		custom = []TenantRole{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"system": rbac.SystemRoles(),
		"custom": custom,
	})
}

// UpsertRole creates or replaces a tenant-defined role. Permission
// names outside the catalog are rejected.
func (h *Handlers) UpsertRole(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenant_id")
	if !ok {
		return
	}

	var req struct {
		Name        string   `json:"name"`
		Permissions []string `json:"permissions"`
		Color       string   `json:"color,omitempty"`
		Icon        string   `json:"icon,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if _, isSystem := rbac.SystemRole(req.Name); isSystem {
		httputil.WriteValidationError(w, "cannot redefine a system role")
		return
	}
	for _, p := range req.Permissions {
		if !rbac.Known(p) {
			httputil.WriteValidationError(w, "unknown permission: "+p)
			return
		}
	}

	role := &TenantRole{
		TenantID:    tenantID,
		Name:        req.Name,
		Permissions: req.Permissions,
		Color:       req.Color,
		Icon:        req.Icon,
	}
	if err := h.store.UpsertTenantRole(r.Context(), role); err != nil {
		h.logger.WithError(err).WithField("tenant_id", tenantID).Error("failed to upsert role")
		httputil.WriteInternalError(w, err)
		return
	}
	h.record(r.Context(), audit.EventTypeRoleUpsert, tenantID, "", req.Name, "")
	httputil.WriteSuccess(w, role)
}

// CreateInvitation issues an invitation token for an email address.
func (h *Handlers) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenant_id")
	if !ok {
		return
	}

	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
		TTL   string `json:"ttl,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") || !httputil.RequireNonEmpty(w, req.Role, "role") {
		return
	}

	inv := &Invitation{
		TenantID: tenantID,
		Email:    req.Email,
		Role:     req.Role,
	}
	if access := AccessFromContext(r.Context()); access != nil {
		inv.InvitedBy = access.UserID
	}
	if req.TTL != "" {
		ttl, err := time.ParseDuration(req.TTL)
		if err != nil || ttl <= 0 {
			httputil.WriteValidationError(w, "invalid ttl")
			return
		}
		inv.InvitedAt = time.Now().UTC()
		inv.ExpiresAt = inv.InvitedAt.Add(ttl)
	}

	if err := h.store.CreateInvitation(r.Context(), inv); err != nil {
		h.logger.WithError(err).WithField("tenant_id", tenantID).Error("failed to create invitation")
		httputil.WriteInternalError(w, err)
		return
	}
	h.record(r.Context(), audit.EventTypeInviteCreate, tenantID, req.Email, req.Role, "")
	httputil.WriteCreated(w, inv)
}

// RevokeInvitation deletes an unaccepted invitation.
func (h *Handlers) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "tenant_id")
	if !ok {
		return
	}
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.RevokeInvitation(r.Context(), id); err != nil {
		if errors.Is(err, ErrInvitationInvalid) {
			httputil.WriteNotFoundError(w, "invitation not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	h.record(r.Context(), audit.EventTypeInviteRevoke, tenantID, id, "", "")
	httputil.WriteNoContent(w)
}

// AcceptInvitation redeems an invitation token for the authenticated
// user. Requires authentication but no tenant membership.
func (h *Handlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Token, "token") {
		return
	}

	identity := identityUserID(r.Context())
	if identity == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	membership, err := h.store.AcceptInvitation(r.Context(), req.Token, identity)
	if err != nil {
		if errors.Is(err, ErrInvitationInvalid) {
			httputil.WriteErrorMessage(w, http.StatusGone, "invitation is no longer valid")
			return
		}
		h.logger.WithError(err).Error("failed to accept invitation")
		httputil.WriteInternalError(w, err)
		return
	}
	h.record(r.Context(), audit.EventTypeInviteAccept, membership.TenantID, identity, membership.Role, "")
	httputil.WriteCreated(w, membership)
}

func (h *Handlers) writeMemberError(w http.ResponseWriter, err error, tenantID, userID, msg string) {
	if errors.Is(err, ErrNoMembership) {
		httputil.WriteNotFoundError(w, "membership not found")
		return
	}
	h.logger.WithError(err).
		WithField("tenant_id", tenantID).
		WithField("user_id", userID).
		Error(msg)
	httputil.WriteInternalError(w, err)
}
