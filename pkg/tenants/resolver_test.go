package tenants

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cadencehq/authcore/pkg/observability"
	"github.com/cadencehq/authcore/pkg/rbac"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Minimal tables for testing
	_, err = db.Exec(`
		CREATE TABLE tenant_memberships (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			role TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			joined_at TIMESTAMP NOT NULL,
			UNIQUE(user_id, tenant_id)
		);

		CREATE TABLE tenant_roles (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			permissions TEXT NOT NULL DEFAULT '[]',
			color TEXT,
			icon TEXT,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(tenant_id, name)
		);

		CREATE TABLE tenant_invitations (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			email TEXT NOT NULL,
			role TEXT NOT NULL,
			token TEXT NOT NULL,
			invited_by TEXT,
			invited_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			accepted_at TIMESTAMP,
			accepted_by TEXT,
			UNIQUE(tenant_id, email)
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func newTestResolver(t *testing.T, store Store) *Resolver {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewResolver(store, logger, metrics)
}

func TestResolveSystemRole(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(setupTestDB(t))
	resolver := newTestResolver(t, store)

	if err := store.AddMember(ctx, &Membership{UserID: "u1", TenantID: "t1", Role: rbac.RoleManager}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	access, err := resolver.Resolve(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if access.Role.ID != rbac.RoleManager {
		t.Errorf("Role.ID = %q, want %q", access.Role.ID, rbac.RoleManager)
	}
	if !access.Role.IsSystem {
		t.Error("Expected system role")
	}
	if !rbac.HasPermission(access.Permissions, "CLIENTS_VIEW_TEAM") {
		t.Error("Expected manager to hold CLIENTS_VIEW_TEAM")
	}
	if rbac.HasPermission(access.Permissions, "BILLING_MANAGE") {
		t.Error("Manager must not hold BILLING_MANAGE")
	}
}

func TestResolveCustomRole(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(setupTestDB(t))
	resolver := newTestResolver(t, store)

	err := store.UpsertTenantRole(ctx, &TenantRole{
		TenantID:    "t1",
		Name:        "support",
		Permissions: []string{"CLIENTS_VIEW_OWN", "TASKS_VIEW_TEAM"},
	})
	if err != nil {
		t.Fatalf("UpsertTenantRole failed: %v", err)
	}
	if err := store.AddMember(ctx, &Membership{UserID: "u1", TenantID: "t1", Role: "support"}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	access, err := resolver.Resolve(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if access.Role.IsSystem {
		t.Error("Expected custom role")
	}
	if len(access.Permissions) != 2 {
		t.Fatalf("Expected 2 permissions, got %d", len(access.Permissions))
	}
	if !rbac.HasPermission(access.Permissions, "TASKS_VIEW_TEAM") {
		t.Error("Expected TASKS_VIEW_TEAM")
	}
}

func TestResolveCustomRoleShadowsNothing(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(setupTestDB(t))
	resolver := newTestResolver(t, store)

	// A tenant role named like a system role must not override it.
	err := store.UpsertTenantRole(ctx, &TenantRole{
		TenantID:    "t1",
		Name:        rbac.RoleViewer,
		Permissions: []string{"BILLING_MANAGE"},
	})
	if err != nil {
		t.Fatalf("UpsertTenantRole failed: %v", err)
	}
	if err := store.AddMember(ctx, &Membership{UserID: "u1", TenantID: "t1", Role: rbac.RoleViewer}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	access, err := resolver.Resolve(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !access.Role.IsSystem {
		t.Error("System role must win over a same-named tenant role")
	}
	if rbac.HasPermission(access.Permissions, "BILLING_MANAGE") {
		t.Error("Viewer must not gain BILLING_MANAGE from a shadow role")
	}
}

func TestResolveUnknownRole(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(setupTestDB(t))
	resolver := newTestResolver(t, store)

	if err := store.AddMember(ctx, &Membership{UserID: "u1", TenantID: "t1", Role: "ghost"}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	access, err := resolver.Resolve(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(access.Permissions) != 0 {
		t.Errorf("Unknown role must grant nothing, got %v", access.Permissions)
	}
}

func TestResolveMalformedRolePermissions(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewPostgresStore(db)
	resolver := newTestResolver(t, store)

	_, err := db.Exec(`
		INSERT INTO tenant_roles (id, tenant_id, name, permissions, created_at)
		VALUES ('r1', 't1', 'broken', 'not-json', ?)
	`, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to insert role: %v", err)
	}
	if err := store.AddMember(ctx, &Membership{UserID: "u1", TenantID: "t1", Role: "broken"}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	access, err := resolver.Resolve(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(access.Permissions) != 0 {
		t.Errorf("Malformed permissions must degrade to empty, got %v", access.Permissions)
	}
}

func TestResolveNoMembership(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(setupTestDB(t))
	resolver := newTestResolver(t, store)

	if _, err := resolver.Resolve(ctx, "u1", "t1"); !errors.Is(err, ErrNoMembership) {
		t.Errorf("Expected ErrNoMembership, got %v", err)
	}
}

func TestResolveInactiveMembership(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(setupTestDB(t))
	resolver := newTestResolver(t, store)

	for i, status := range []MembershipStatus{StatusPending, StatusInactive} {
		userID := string(rune('a' + i))
		if err := store.AddMember(ctx, &Membership{UserID: userID, TenantID: "t1", Role: rbac.RoleOwner, Status: status}); err != nil {
			t.Fatalf("AddMember failed: %v", err)
		}
		if _, err := resolver.Resolve(ctx, userID, "t1"); !errors.Is(err, ErrNoMembership) {
			t.Errorf("Status %q: expected ErrNoMembership, got %v", status, err)
		}
	}
}

func TestResolveCachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(setupTestDB(t))
	resolver := newTestResolver(t, store)

	if err := store.AddMember(ctx, &Membership{UserID: "u1", TenantID: "t1", Role: rbac.RoleViewer}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if _, err := resolver.Resolve(ctx, "u1", "t1"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// No hook wired yet, so the stale entry survives the role change.
	if err := store.UpdateMemberRole(ctx, "t1", "u1", rbac.RoleAdmin); err != nil {
		t.Fatalf("UpdateMemberRole failed: %v", err)
	}
	access, err := resolver.Resolve(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if access.Role.ID != rbac.RoleViewer {
		t.Errorf("Expected cached viewer role, got %q", access.Role.ID)
	}

	resolver.InvalidateUser(ctx, "u1")
	access, err = resolver.Resolve(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if access.Role.ID != rbac.RoleAdmin {
		t.Errorf("Expected admin after invalidation, got %q", access.Role.ID)
	}
}

func TestStoreHookInvalidatesResolver(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(setupTestDB(t))
	resolver := newTestResolver(t, store)
	store.OnMembershipChange(func(ctx context.Context, userID string) {
		resolver.InvalidateUser(ctx, userID)
	})

	if err := store.AddMember(ctx, &Membership{UserID: "u1", TenantID: "t1", Role: rbac.RoleViewer}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if _, err := resolver.Resolve(ctx, "u1", "t1"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := store.UpdateMemberRole(ctx, "t1", "u1", rbac.RoleAdmin); err != nil {
		t.Fatalf("UpdateMemberRole failed: %v", err)
	}

	access, err := resolver.Resolve(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if access.Role.ID != rbac.RoleAdmin {
		t.Errorf("Expected admin after hook invalidation, got %q", access.Role.ID)
	}
}

func TestDefaultTenant(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(setupTestDB(t))
	resolver := newTestResolver(t, store)

	now := time.Now().UTC()
	memberships := []Membership{
		{UserID: "u1", TenantID: "t-later", Role: rbac.RoleViewer, JoinedAt: now},
		{UserID: "u1", TenantID: "t-first", Role: rbac.RoleViewer, JoinedAt: now.Add(-24 * time.Hour)},
		{UserID: "u1", TenantID: "t-pending", Role: rbac.RoleViewer, Status: StatusPending, JoinedAt: now.Add(-48 * time.Hour)},
	}
	for i := range memberships {
		if err := store.AddMember(ctx, &memberships[i]); err != nil {
			t.Fatalf("AddMember failed: %v", err)
		}
	}

	tenantID, err := resolver.DefaultTenant(ctx, "u1")
	if err != nil {
		t.Fatalf("DefaultTenant failed: %v", err)
	}
	if tenantID != "t-first" {
		t.Errorf("DefaultTenant = %q, want t-first", tenantID)
	}

	if _, err := resolver.DefaultTenant(ctx, "nobody"); !errors.Is(err, ErrNoMembership) {
		t.Errorf("Expected ErrNoMembership, got %v", err)
	}
}

func TestRemoveMemberRevokesAccess(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(setupTestDB(t))
	resolver := newTestResolver(t, store)
	store.OnMembershipChange(func(ctx context.Context, userID string) {
		resolver.InvalidateUser(ctx, userID)
	})

	if err := store.AddMember(ctx, &Membership{UserID: "u1", TenantID: "t1", Role: rbac.RoleOwner}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if _, err := resolver.Resolve(ctx, "u1", "t1"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if err := store.RemoveMember(ctx, "t1", "u1"); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if _, err := resolver.Resolve(ctx, "u1", "t1"); !errors.Is(err, ErrNoMembership) {
		t.Errorf("Expected ErrNoMembership after removal, got %v", err)
	}

	if err := store.RemoveMember(ctx, "t1", "u1"); !errors.Is(err, ErrNoMembership) {
		t.Errorf("Expected ErrNoMembership on double removal, got %v", err)
	}
}
