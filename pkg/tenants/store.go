package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// isUniqueViolation matches constraint errors from both postgres and
// the sqlite driver used in tests.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique")
}

// Store is the read surface the Resolver depends on. The full
// administrative surface lives on PostgresStore; the Resolver only
// ever reads.
type Store interface {
	// GetActiveMembership returns the membership row for (user,
	// tenant) with status = active, or ErrNoMembership.
	GetActiveMembership(ctx context.Context, userID, tenantID string) (*Membership, error)

	// ListActiveMemberships returns every active membership for a
	// user, ordered by joined_at ascending.
	ListActiveMemberships(ctx context.Context, userID string) ([]Membership, error)

	// GetTenantRole returns a tenant-defined custom role, or
	// ErrRoleNotFound.
	GetTenantRole(ctx context.Context, tenantID, name string) (*TenantRole, error)
}

// InvalidationHook is called after every membership mutation with the
// affected user id, so cached resolutions can be evicted.
type InvalidationHook func(ctx context.Context, userID string)

// PostgresStore persists memberships, tenant roles and invitations.
// The SQL sticks to $n placeholders and portable expressions so the
// same store runs against in-memory sqlite in tests.
type PostgresStore struct {
	db       *sql.DB
	onChange InvalidationHook
}

// NewPostgresStore creates a store over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OnMembershipChange registers a hook invoked after each mutation.
func (s *PostgresStore) OnMembershipChange(hook InvalidationHook) {
	s.onChange = hook
}

func (s *PostgresStore) notify(ctx context.Context, userID string) {
	if s.onChange != nil {
		s.onChange(ctx, userID)
	}
}

// GetActiveMembership implements Store.
func (s *PostgresStore) GetActiveMembership(ctx context.Context, userID, tenantID string) (*Membership, error) {
	query := `
		SELECT id, user_id, tenant_id, role, status, joined_at
		FROM tenant_memberships
		WHERE user_id = $1 AND tenant_id = $2 AND status = $3
	`

	var m Membership
	err := s.db.QueryRowContext(ctx, query, userID, tenantID, StatusActive).Scan(
		&m.ID, &m.UserID, &m.TenantID, &m.Role, &m.Status, &m.JoinedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNoMembership
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

// ListActiveMemberships implements Store.
func (s *PostgresStore) ListActiveMemberships(ctx context.Context, userID string) ([]Membership, error) {
	query := `
		SELECT id, user_id, tenant_id, role, status, joined_at
		FROM tenant_memberships
		WHERE user_id = $1 AND status = $2
		ORDER BY joined_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ID, &m.UserID, &m.TenantID, &m.Role, &m.Status, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// ListMembers returns every membership row of a tenant regardless of
// status, ordered by joined_at.
func (s *PostgresStore) ListMembers(ctx context.Context, tenantID string) ([]Membership, error) {
	query := `
		SELECT id, user_id, tenant_id, role, status, joined_at
		FROM tenant_memberships
		WHERE tenant_id = $1
		ORDER BY joined_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ID, &m.UserID, &m.TenantID, &m.Role, &m.Status, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetTenantRole implements Store. A row whose permission list fails to
// parse is returned with an empty list: a tenant with broken role data
// loses access rather than gaining it.
func (s *PostgresStore) GetTenantRole(ctx context.Context, tenantID, name string) (*TenantRole, error) {
	query := `
		SELECT id, tenant_id, name, permissions, color, icon, created_at
		FROM tenant_roles
		WHERE tenant_id = $1 AND name = $2
	`

	var role TenantRole
	var permissionsJSON string
	var color, icon sql.NullString
	err := s.db.QueryRowContext(ctx, query, tenantID, name).Scan(
		&role.ID, &role.TenantID, &role.Name, &permissionsJSON, &color, &icon, &role.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant role: %w", err)
	}

	role.Color = color.String
	role.Icon = icon.String
	if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil || role.Permissions == nil {
		role.Permissions = []string{}
	}
	return &role, nil
}

// ListTenantRoles returns every role a tenant has defined, ordered by
// name.
func (s *PostgresStore) ListTenantRoles(ctx context.Context, tenantID string) ([]TenantRole, error) {
	query := `
		SELECT id, tenant_id, name, permissions, color, icon, created_at
		FROM tenant_roles
		WHERE tenant_id = $1
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant roles: %w", err)
	}
	defer rows.Close()

	var roles []TenantRole
	for rows.Next() {
		var role TenantRole
		var permissionsJSON string
		var color, icon sql.NullString
		if err := rows.Scan(&role.ID, &role.TenantID, &role.Name, &permissionsJSON, &color, &icon, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant role: %w", err)
		}
		role.Color = color.String
		role.Icon = icon.String
		if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil || role.Permissions == nil {
			role.Permissions = []string{}
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpsertTenantRole creates or replaces a tenant-defined role.
func (s *PostgresStore) UpsertTenantRole(ctx context.Context, role *TenantRole) error {
	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO tenant_roles (id, tenant_id, name, permissions, color, icon, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, name) DO UPDATE
		SET permissions = EXCLUDED.permissions, color = EXCLUDED.color, icon = EXCLUDED.icon
	`
	if _, err := s.db.ExecContext(ctx, query,
		role.ID, role.TenantID, role.Name, string(permissionsJSON), role.Color, role.Icon, role.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert tenant role: %w", err)
	}
	return nil
}

// AddMember creates a membership row. Status defaults to active.
func (s *PostgresStore) AddMember(ctx context.Context, m *Membership) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO tenant_memberships (id, user_id, tenant_id, role, status, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.ExecContext(ctx, query,
		m.ID, m.UserID, m.TenantID, m.Role, m.Status, m.JoinedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrMembershipExists
		}
		return fmt.Errorf("failed to add member: %w", err)
	}

	s.notify(ctx, m.UserID)
	return nil
}

// UpdateMemberRole changes the role on an existing membership.
func (s *PostgresStore) UpdateMemberRole(ctx context.Context, tenantID, userID, role string) error {
	query := `UPDATE tenant_memberships SET role = $1 WHERE tenant_id = $2 AND user_id = $3`
	result, err := s.db.ExecContext(ctx, query, role, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return ErrNoMembership
	}

	s.notify(ctx, userID)
	return nil
}

// SetMemberStatus transitions a membership between active, inactive
// and pending.
func (s *PostgresStore) SetMemberStatus(ctx context.Context, tenantID, userID string, status MembershipStatus) error {
	query := `UPDATE tenant_memberships SET status = $1 WHERE tenant_id = $2 AND user_id = $3`
	result, err := s.db.ExecContext(ctx, query, status, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to set member status: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return ErrNoMembership
	}

	s.notify(ctx, userID)
	return nil
}

// RemoveMember deletes a membership row.
func (s *PostgresStore) RemoveMember(ctx context.Context, tenantID, userID string) error {
	query := `DELETE FROM tenant_memberships WHERE tenant_id = $1 AND user_id = $2`
	result, err := s.db.ExecContext(ctx, query, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return ErrNoMembership
	}

	s.notify(ctx, userID)
	return nil
}
