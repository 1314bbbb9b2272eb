package client

import (
	"context"
	"sync"

	"github.com/cadencehq/authcore/pkg/rbac"
	"github.com/cadencehq/authcore/pkg/tenants"
)

// Mirror holds the latest verified access for one user and answers
// permission checks locally. Tenant switches resolve against the
// service; a switch that fails verification leaves the previous
// access in place.
//
// Switches may overlap. The one issued last wins regardless of the
// order their responses arrive in.
type Mirror struct {
	service tenants.AuthorizationService
	userID  string

	mu       sync.RWMutex
	current  *tenants.Access
	seq      uint64 // issue order of the newest switch
	applied  uint64 // issue order of the switch that produced current
	onChange []func(*tenants.Access)
}

// NewMirror creates an empty mirror for userID. Call SwitchTenant to
// populate it.
func NewMirror(service tenants.AuthorizationService, userID string) *Mirror {
	return &Mirror{service: service, userID: userID}
}

// OnChange registers a callback fired whenever the mirrored access
// changes. Callbacks run on the switching goroutine.
func (m *Mirror) OnChange(fn func(*tenants.Access)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// SwitchTenant verifies access to tenantID and, on success, makes it
// the mirrored tenant. On failure the mirror keeps its previous
// access and the error is returned.
func (m *Mirror) SwitchTenant(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	m.seq++
	issued := m.seq
	m.mu.Unlock()

	access, err := m.service.Resolve(ctx, m.userID, tenantID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if issued < m.applied {
		// A newer switch already landed.
		m.mu.Unlock()
		return nil
	}
	m.applied = issued
	m.current = access
	callbacks := make([]func(*tenants.Access), len(m.onChange))
	copy(callbacks, m.onChange)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(access)
	}
	return nil
}

// Refresh re-verifies the current tenant, picking up role changes.
func (m *Mirror) Refresh(ctx context.Context) error {
	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()
	if current == nil {
		return tenants.ErrNoMembership
	}
	return m.SwitchTenant(ctx, current.TenantID)
}

// Current returns the mirrored access, or nil before the first
// successful switch.
func (m *Mirror) Current() *tenants.Access {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// TenantID returns the mirrored tenant, or "".
func (m *Mirror) TenantID() string {
	if access := m.Current(); access != nil {
		return access.TenantID
	}
	return ""
}

// HasPermission checks the mirrored permission list for an exact key.
func (m *Mirror) HasPermission(name string) bool {
	access := m.Current()
	return access != nil && rbac.HasPermission(access.Permissions, name)
}

// HasAny reports whether any of the named permissions is held.
func (m *Mirror) HasAny(names ...string) bool {
	access := m.Current()
	return access != nil && rbac.HasAny(access.Permissions, names...)
}

// CanAccess checks a structural permission against the mirror.
func (m *Mirror) CanAccess(resource rbac.Resource, action rbac.Action, scope rbac.Scope) bool {
	access := m.Current()
	return access != nil && rbac.CanAccess(access.Permissions, resource, action, scope)
}

// AccessLevel returns the widest scope the mirrored access grants on
// resource, defaulting to own.
func (m *Mirror) AccessLevel(resource rbac.Resource) rbac.Scope {
	access := m.Current()
	if access == nil {
		return rbac.ScopeOwn
	}
	return rbac.AccessLevel(access.Permissions, resource)
}
