package tenants

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/cadencehq/authcore/pkg/audit"
	"github.com/cadencehq/authcore/pkg/authn"
	"github.com/cadencehq/authcore/pkg/contextkeys"
	"github.com/cadencehq/authcore/pkg/observability"
)

// newTestRouter registers the management routes with a pass-through
// protect that only injects the caller identity. Authorization is
// covered by the middleware package tests.
func newTestRouter(t *testing.T, store *PostgresStore, callerID string) *mux.Router {
	t.Helper()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	handlers := NewHandlers(store, logger, audit.NopLogger{})

	protect := func(h http.HandlerFunc, _ string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if callerID != "" {
				identity := &authn.Identity{UserID: callerID}
				r = r.WithContext(contextkeys.WithIdentity(r.Context(), identity))
			}
			h(w, r)
		})
	}

	router := mux.NewRouter()
	handlers.RegisterRoutes(router, protect)
	return router
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListMembersHandler(t *testing.T) {
	db := setupTestDB(t)
	store := NewPostgresStore(db)
	router := newTestRouter(t, store, "u-admin")
	ctx := t.Context()

	if err := store.AddMember(ctx, &Membership{UserID: "u1", TenantID: "t1", Role: "agent"}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := store.AddMember(ctx, &Membership{UserID: "u2", TenantID: "t1", Role: "manager"}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	rec := doJSON(t, router, "GET", "/v1/tenants/t1/members", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var members []Membership
	if err := json.Unmarshal(rec.Body.Bytes(), &members); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("expected 2 members, got %d", len(members))
	}
}

func TestListMembersHandlerEmptyTenant(t *testing.T) {
	db := setupTestDB(t)
	router := newTestRouter(t, NewPostgresStore(db), "u-admin")

	rec := doJSON(t, router, "GET", "/v1/tenants/empty/members", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body == "null\n" {
		t.Error("expected empty array, got null")
	}
}

func TestAddMemberHandler(t *testing.T) {
	db := setupTestDB(t)
	store := NewPostgresStore(db)
	router := newTestRouter(t, store, "u-admin")

	rec := doJSON(t, router, "POST", "/v1/tenants/t1/members", map[string]string{
		"user_id": "u-new",
		"role":    "agent",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	m, err := store.GetActiveMembership(t.Context(), "u-new", "t1")
	if err != nil {
		t.Fatalf("membership not created: %v", err)
	}
	if m.Role != "agent" {
		t.Errorf("expected role agent, got %s", m.Role)
	}

	rec = doJSON(t, router, "POST", "/v1/tenants/t1/members", map[string]string{
		"user_id": "u-new",
		"role":    "viewer",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate member, got %d", rec.Code)
	}
}

func TestAddMemberHandlerValidation(t *testing.T) {
	db := setupTestDB(t)
	router := newTestRouter(t, NewPostgresStore(db), "u-admin")

	rec := doJSON(t, router, "POST", "/v1/tenants/t1/members", map[string]string{"role": "agent"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing user_id, got %d", rec.Code)
	}
}

func TestUpdateMemberHandler(t *testing.T) {
	db := setupTestDB(t)
	store := NewPostgresStore(db)
	router := newTestRouter(t, store, "u-admin")
	ctx := t.Context()

	if err := store.AddMember(ctx, &Membership{UserID: "u1", TenantID: "t1", Role: "agent"}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	rec := doJSON(t, router, "PUT", "/v1/tenants/t1/members/u1", map[string]string{"role": "manager"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	m, err := store.GetActiveMembership(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("GetActiveMembership failed: %v", err)
	}
	if m.Role != "manager" {
		t.Errorf("expected role manager, got %s", m.Role)
	}

	// Unknown member yields 404
	rec = doJSON(t, router, "PUT", "/v1/tenants/t1/members/u-ghost", map[string]string{"role": "manager"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown member, got %d", rec.Code)
	}

	// Neither role nor status is a validation error
	rec = doJSON(t, router, "PUT", "/v1/tenants/t1/members/u1", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty update, got %d", rec.Code)
	}
}

func TestRemoveMemberHandler(t *testing.T) {
	db := setupTestDB(t)
	store := NewPostgresStore(db)
	router := newTestRouter(t, store, "u-admin")

	if err := store.AddMember(t.Context(), &Membership{UserID: "u1", TenantID: "t1", Role: "agent"}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	rec := doJSON(t, router, "DELETE", "/v1/tenants/t1/members/u1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = doJSON(t, router, "DELETE", "/v1/tenants/t1/members/u1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestUpsertRoleHandler(t *testing.T) {
	db := setupTestDB(t)
	store := NewPostgresStore(db)
	router := newTestRouter(t, store, "u-admin")

	rec := doJSON(t, router, "PUT", "/v1/tenants/t1/roles", map[string]interface{}{
		"name":        "auditor",
		"permissions": []string{"CLIENTS_VIEW_ALL"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	role, err := store.GetTenantRole(t.Context(), "t1", "auditor")
	if err != nil {
		t.Fatalf("GetTenantRole failed: %v", err)
	}
	if len(role.Permissions) != 1 {
		t.Errorf("expected 1 permission, got %d", len(role.Permissions))
	}
}

func TestUpsertRoleHandlerRejectsSystemName(t *testing.T) {
	db := setupTestDB(t)
	router := newTestRouter(t, NewPostgresStore(db), "u-admin")

	rec := doJSON(t, router, "PUT", "/v1/tenants/t1/roles", map[string]interface{}{
		"name":        "admin",
		"permissions": []string{"CLIENTS_VIEW_ALL"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for system role name, got %d", rec.Code)
	}
}

func TestUpsertRoleHandlerRejectsUnknownPermission(t *testing.T) {
	db := setupTestDB(t)
	router := newTestRouter(t, NewPostgresStore(db), "u-admin")

	rec := doJSON(t, router, "PUT", "/v1/tenants/t1/roles", map[string]interface{}{
		"name":        "auditor",
		"permissions": []string{"NOT_A_PERMISSION"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown permission, got %d", rec.Code)
	}
}

func TestListRolesHandlerIncludesSystemRoles(t *testing.T) {
	db := setupTestDB(t)
	router := newTestRouter(t, NewPostgresStore(db), "u-admin")

	rec := doJSON(t, router, "GET", "/v1/tenants/t1/roles", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		System []json.RawMessage `json:"system"`
		Custom []TenantRole      `json:"custom"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.System) != 5 {
		t.Errorf("expected 5 system roles, got %d", len(resp.System))
	}
	if len(resp.Custom) != 0 {
		t.Errorf("expected no custom roles, got %d", len(resp.Custom))
	}
}

func TestInvitationHandlers(t *testing.T) {
	db := setupTestDB(t)
	store := NewPostgresStore(db)
	router := newTestRouter(t, store, "u-invitee")

	rec := doJSON(t, router, "POST", "/v1/tenants/t1/invitations", map[string]string{
		"email": "new@example.com",
		"role":  "agent",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var inv Invitation
	if err := json.Unmarshal(rec.Body.Bytes(), &inv); err != nil {
		t.Fatalf("failed to decode invitation: %v", err)
	}
	if inv.Token == "" {
		t.Fatal("expected invitation token in response")
	}

	rec = doJSON(t, router, "POST", "/v1/invitations/accept", map[string]string{"token": inv.Token})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on accept, got %d: %s", rec.Code, rec.Body.String())
	}

	if _, err := store.GetActiveMembership(t.Context(), "u-invitee", "t1"); err != nil {
		t.Errorf("expected membership after accept, got %v", err)
	}

	// A used token is gone
	rec = doJSON(t, router, "POST", "/v1/invitations/accept", map[string]string{"token": inv.Token})
	if rec.Code != http.StatusGone {
		t.Errorf("expected 410 for reused token, got %d", rec.Code)
	}
}

func TestRevokeInvitationHandler(t *testing.T) {
	db := setupTestDB(t)
	store := NewPostgresStore(db)
	router := newTestRouter(t, store, "u-admin")

	inv := &Invitation{TenantID: "t1", Email: "x@example.com", Role: "agent"}
	if err := store.CreateInvitation(t.Context(), inv); err != nil {
		t.Fatalf("CreateInvitation failed: %v", err)
	}

	rec := doJSON(t, router, "DELETE", "/v1/tenants/t1/invitations/"+inv.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = doJSON(t, router, "DELETE", "/v1/tenants/t1/invitations/"+inv.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for revoked invitation, got %d", rec.Code)
	}
}

// searchableAudit is an in-memory audit sink implementing both Logger
// and Searcher.
type searchableAudit struct {
	events []audit.Event
	filter audit.SearchFilter
}

func (s *searchableAudit) Log(ctx context.Context, event *audit.Event) error {
	s.events = append(s.events, *event)
	return nil
}

func (s *searchableAudit) Search(ctx context.Context, filter audit.SearchFilter) ([]audit.Event, error) {
	s.filter = filter
	return s.events, nil
}

func TestSearchAuditLogsHandler(t *testing.T) {
	db := setupTestDB(t)
	sink := &searchableAudit{events: []audit.Event{
		{EventType: audit.EventTypeAuthzDenied, TenantID: "t1", UserID: "u1"},
	}}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	handlers := NewHandlers(NewPostgresStore(db), logger, sink)

	router := mux.NewRouter()
	handlers.RegisterRoutes(router, func(h http.HandlerFunc, _ string) http.Handler { return h })

	rec := doJSON(t, router, "GET", "/v1/tenants/t1/audit?user_id=u1&limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var events []audit.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(events) != 1 || events[0].EventType != audit.EventTypeAuthzDenied {
		t.Errorf("unexpected events: %+v", events)
	}

	if sink.filter.TenantID != "t1" || sink.filter.UserID != "u1" || sink.filter.Limit != 10 {
		t.Errorf("filter not propagated: %+v", sink.filter)
	}
}

func TestSearchAuditLogsHandlerWithoutSearcher(t *testing.T) {
	db := setupTestDB(t)
	router := newTestRouter(t, NewPostgresStore(db), "u-admin")

	rec := doJSON(t, router, "GET", "/v1/tenants/t1/audit", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when audit sink cannot be searched, got %d", rec.Code)
	}
}
