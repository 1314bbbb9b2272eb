package rbac

import "strings"

// Resource represents a resource type in the system
type Resource string

const (
	ResourceClients  Resource = "clients"
	ResourceDeals    Resource = "deals"
	ResourceTasks    Resource = "tasks"
	ResourceMessages Resource = "messages"
	ResourceReports  Resource = "reports"
	ResourceMembers  Resource = "members"
	ResourceRoles    Resource = "roles"
	ResourceSettings Resource = "settings"
	ResourceBilling  Resource = "billing"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
	ActionInvite Action = "invite"
	ActionRemove Action = "remove"
	ActionManage Action = "manage"
	ActionAssign Action = "assign"
)

// Scope represents the data-visibility breadth of a granted permission.
// Scopes form a total order: own < team < tenant < all.
type Scope string

const (
	// ScopeOwn limits visibility to records authored by the caller.
	ScopeOwn Scope = "own"
	// ScopeTeam widens visibility to the caller's team.
	ScopeTeam Scope = "team"
	// ScopeTenant widens visibility to the whole organization.
	ScopeTenant Scope = "tenant"
	// ScopeAll is platform-level, cross-tenant visibility.
	ScopeAll Scope = "all"
)

var scopeRanks = map[Scope]int{
	ScopeOwn:    0,
	ScopeTeam:   1,
	ScopeTenant: 2,
	ScopeAll:    3,
}

// ScopeRank returns the position of a scope in the visibility order,
// or -1 for an unknown scope.
func ScopeRank(s Scope) int {
	if rank, ok := scopeRanks[s]; ok {
		return rank
	}
	return -1
}

// WiderThan reports whether s grants wider visibility than other.
func (s Scope) WiderThan(other Scope) bool {
	return ScopeRank(s) > ScopeRank(other)
}

// Permission represents an atomic grantable capability. Scope is
// optional; a permission without a scope is a base capability such as
// CLIENTS_CREATE. Permissions are immutable value objects.
type Permission struct {
	Resource   Resource    `json:"resource"`
	Action     Action      `json:"action"`
	Scope      Scope       `json:"scope,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Key returns the canonical permission name for p.
func (p Permission) Key() string {
	return Key(p.Resource, p.Action, p.Scope)
}

// Key builds the canonical RESOURCE_ACTION[_SCOPE] permission name
// (uppercase, underscore-joined). An empty scope yields the unscoped
// RESOURCE_ACTION form.
func Key(resource Resource, action Action, scope Scope) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(string(resource)))
	b.WriteByte('_')
	b.WriteString(strings.ToUpper(string(action)))
	if scope != "" {
		b.WriteByte('_')
		b.WriteString(strings.ToUpper(string(scope)))
	}
	return b.String()
}

// Role represents a named permission grouping. System roles are
// global, immutable and identical across tenants; custom roles are
// tenant-scoped and supplied by the external tenant-role store.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
	IsSystem    bool     `json:"is_system"`
	TenantID    string   `json:"tenant_id,omitempty"`
	Color       string   `json:"color,omitempty"`
	Icon        string   `json:"icon,omitempty"`
}
