package tenants

import (
	"context"
	"errors"
	"time"

	"github.com/cadencehq/authcore/pkg/rbac"
)

// MembershipStatus represents the activity state of a membership row.
// Only active memberships may grant permissions.
type MembershipStatus string

const (
	StatusActive   MembershipStatus = "active"
	StatusInactive MembershipStatus = "inactive"
	StatusPending  MembershipStatus = "pending"
)

// Membership links a user to a tenant with a role and a status. A user
// holds at most one membership row per tenant and may belong to
// multiple tenants.
type Membership struct {
	ID       string           `json:"id"`
	UserID   string           `json:"user_id"`
	TenantID string           `json:"tenant_id"`
	Role     string           `json:"role"`
	Status   MembershipStatus `json:"status"`
	JoinedAt time.Time        `json:"joined_at"`
}

// TenantRole is a tenant-defined custom role row as stored externally.
// Permissions reference catalog keys by name; malformed rows resolve
// to an empty list, never an error.
type TenantRole struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	Color       string    `json:"color,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Invitation is a pending offer to join a tenant. Accepting one
// creates an active membership.
type Invitation struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	Token      string     `json:"token"`
	InvitedBy  string     `json:"invited_by,omitempty"`
	InvitedAt  time.Time  `json:"invited_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy string     `json:"accepted_by,omitempty"`
}

// Access is the resolved, request-scoped authorization context: who
// the user is inside a tenant and exactly what they may do there. It
// is built fresh per request and handed downstream as an explicit
// value; it must never be reused across membership changes.
type Access struct {
	UserID      string      `json:"user_id"`
	TenantID    string      `json:"tenant_id"`
	Role        rbac.Role   `json:"role"`
	Permissions []string    `json:"permissions"`
	Membership  *Membership `json:"membership,omitempty"`
}

// Sentinel errors surfaced by the store and resolver.
var (
	// ErrNoMembership means no active membership row exists for the
	// (user, tenant) pair, or the user has no tenants at all.
	ErrNoMembership = errors.New("tenants: no active membership")
	// ErrRoleNotFound means a tenant-defined role row is absent.
	ErrRoleNotFound = errors.New("tenants: role not found")
	// ErrInvitationInvalid covers unknown, expired and already
	// accepted invitation tokens.
	ErrInvitationInvalid = errors.New("tenants: invitation invalid")
	// ErrMembershipExists means the (user, tenant) pair already has a
	// membership row.
	ErrMembershipExists = errors.New("tenants: membership already exists")
)

// AuthorizationService is the single resolution contract shared by the
// server pipeline and the client-side mirror, so the two surfaces
// cannot drift. The live implementation is Resolver; pkg/client ships
// an HTTP-fetch implementation for UI processes.
type AuthorizationService interface {
	// Resolve returns the effective access for a user within a tenant,
	// or ErrNoMembership when no active membership exists.
	Resolve(ctx context.Context, userID, tenantID string) (*Access, error)

	// DefaultTenant picks the user's earliest-joined active tenant,
	// or ErrNoMembership when the user has no tenant context.
	DefaultTenant(ctx context.Context, userID string) (string, error)
}
