//go:build integration

package tenants

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cadencehq/authcore/pkg/rbac"
)

const integrationSchema = `
CREATE TABLE tenant_memberships (
	id        TEXT PRIMARY KEY,
	user_id   TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	role      TEXT NOT NULL,
	status    TEXT NOT NULL,
	joined_at TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, tenant_id)
);
CREATE TABLE tenant_roles (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	name        TEXT NOT NULL,
	permissions TEXT NOT NULL,
	color       TEXT,
	icon        TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (tenant_id, name)
);
CREATE TABLE tenant_invitations (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	email       TEXT NOT NULL,
	role        TEXT NOT NULL,
	token       TEXT NOT NULL,
	invited_by  TEXT,
	invited_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	accepted_at TIMESTAMPTZ,
	accepted_by TEXT,
	UNIQUE (tenant_id, email)
);
`

// setupPostgresContainer starts a disposable PostgreSQL instance and
// applies the schema. Skips when no container runtime is available.
func setupPostgresContainer(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	if _, err := testcontainers.ProviderDocker.GetProvider(); err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("authcore_test"),
		postgres.WithUsername("authcore"),
		postgres.WithPassword("authcore_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}
	if _, err := db.Exec(integrationSchema); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}
	return db
}

func TestPostgresStoreMembershipLifecycle(t *testing.T) {
	db := setupPostgresContainer(t)
	store := NewPostgresStore(db)
	ctx := context.Background()

	m := &Membership{UserID: "u1", TenantID: "t1", Role: rbac.RoleManager}
	if err := store.AddMember(ctx, m); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	got, err := store.GetActiveMembership(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("GetActiveMembership failed: %v", err)
	}
	if got.Role != rbac.RoleManager {
		t.Errorf("Expected role %s, got %s", rbac.RoleManager, got.Role)
	}
	if got.Status != StatusActive {
		t.Errorf("Expected active status, got %s", got.Status)
	}

	if err := store.UpdateMemberRole(ctx, "t1", "u1", rbac.RoleViewer); err != nil {
		t.Fatalf("UpdateMemberRole failed: %v", err)
	}
	got, err = store.GetActiveMembership(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("GetActiveMembership after update failed: %v", err)
	}
	if got.Role != rbac.RoleViewer {
		t.Errorf("Expected role %s after update, got %s", rbac.RoleViewer, got.Role)
	}

	if err := store.SetMemberStatus(ctx, "t1", "u1", StatusInactive); err != nil {
		t.Fatalf("SetMemberStatus failed: %v", err)
	}
	if _, err := store.GetActiveMembership(ctx, "u1", "t1"); err != ErrNoMembership {
		t.Errorf("Expected ErrNoMembership for inactive member, got %v", err)
	}

	if err := store.RemoveMember(ctx, "t1", "u1"); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if err := store.RemoveMember(ctx, "t1", "u1"); err != ErrNoMembership {
		t.Errorf("Expected ErrNoMembership on second remove, got %v", err)
	}
}

func TestPostgresStoreRoleUpsert(t *testing.T) {
	db := setupPostgresContainer(t)
	store := NewPostgresStore(db)
	ctx := context.Background()

	role := &TenantRole{
		TenantID:    "t1",
		Name:        "auditor",
		Permissions: []string{"CLIENTS_VIEW_ALL", "REPORTS_VIEW_ALL"},
		Color:       "#336699",
	}
	if err := store.UpsertTenantRole(ctx, role); err != nil {
		t.Fatalf("UpsertTenantRole failed: %v", err)
	}

	// Upsert with the same name replaces permissions
	role.Permissions = []string{"CLIENTS_VIEW_ALL"}
	if err := store.UpsertTenantRole(ctx, role); err != nil {
		t.Fatalf("UpsertTenantRole replace failed: %v", err)
	}

	got, err := store.GetTenantRole(ctx, "t1", "auditor")
	if err != nil {
		t.Fatalf("GetTenantRole failed: %v", err)
	}
	if len(got.Permissions) != 1 || got.Permissions[0] != "CLIENTS_VIEW_ALL" {
		t.Errorf("Expected replaced permissions, got %v", got.Permissions)
	}

	roles, err := store.ListTenantRoles(ctx, "t1")
	if err != nil {
		t.Fatalf("ListTenantRoles failed: %v", err)
	}
	if len(roles) != 1 {
		t.Errorf("Expected 1 role, got %d", len(roles))
	}
}

func TestPostgresStoreInvitationFlow(t *testing.T) {
	db := setupPostgresContainer(t)
	store := NewPostgresStore(db)
	ctx := context.Background()

	inv := &Invitation{TenantID: "t1", Email: "new@example.com", Role: rbac.RoleAgent}
	if err := store.CreateInvitation(ctx, inv); err != nil {
		t.Fatalf("CreateInvitation failed: %v", err)
	}
	if inv.Token == "" {
		t.Fatal("Expected invitation token to be set")
	}

	membership, err := store.AcceptInvitation(ctx, inv.Token, "u-new")
	if err != nil {
		t.Fatalf("AcceptInvitation failed: %v", err)
	}
	if membership.Role != rbac.RoleAgent {
		t.Errorf("Expected role %s, got %s", rbac.RoleAgent, membership.Role)
	}

	if _, err := store.GetActiveMembership(ctx, "u-new", "t1"); err != nil {
		t.Errorf("Expected active membership after accept, got %v", err)
	}

	// Tokens are single use
	if _, err := store.AcceptInvitation(ctx, inv.Token, "u-other"); err == nil {
		t.Error("Expected second accept to fail")
	}
}
