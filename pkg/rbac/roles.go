package rbac

// System role identifiers
const (
	RoleViewer  = "viewer"
	RoleAgent   = "agent"
	RoleManager = "manager"
	RoleAdmin   = "admin"
	RoleOwner   = "owner"
)

// roleRanks is the fixed hierarchy used for minimum-role checks. It is
// independent of the permission-name lists.
var roleRanks = map[string]int{
	RoleViewer:  0,
	RoleAgent:   1,
	RoleManager: 2,
	RoleAdmin:   3,
	RoleOwner:   4,
}

// RoleRank returns the hierarchy rank of a system role id. Custom and
// unknown roles sit below every system role and return -1, so they
// never satisfy a minimum-role requirement.
func RoleRank(roleID string) int {
	if rank, ok := roleRanks[roleID]; ok {
		return rank
	}
	return -1
}

// SatisfiesMinRole reports whether roleID ranks at or above minRoleID
// in the fixed hierarchy.
func SatisfiesMinRole(roleID, minRoleID string) bool {
	min, ok := roleRanks[minRoleID]
	if !ok {
		return false
	}
	return RoleRank(roleID) >= min
}

// systemRoles is the compile-time role registry. Lists are built
// cumulatively: each rank extends the one below it.
var systemRoles = buildSystemRoles()

func buildSystemRoles() map[string]Role {
	viewer := []string{
		Key(ResourceReports, ActionView, ScopeOwn),
	}
	for _, r := range recordResources {
		viewer = append(viewer, Key(r, ActionView, ScopeOwn))
	}

	agent := append([]string{}, viewer...)
	for _, r := range recordResources {
		agent = append(agent,
			Key(r, ActionCreate, ""),
			Key(r, ActionUpdate, ScopeOwn),
			Key(r, ActionDelete, ScopeOwn),
		)
	}

	manager := append([]string{}, agent...)
	manager = append(manager,
		Key(ResourceReports, ActionView, ScopeTeam),
		Key(ResourceReports, ActionExport, ""),
		Key(ResourceMembers, ActionView, ""),
	)
	for _, r := range recordResources {
		manager = append(manager,
			Key(r, ActionView, ScopeTeam),
			Key(r, ActionUpdate, ScopeTeam),
			Key(r, ActionDelete, ScopeTeam),
			Key(r, ActionAssign, ""),
		)
	}

	admin := append([]string{}, manager...)
	admin = append(admin,
		Key(ResourceReports, ActionView, ScopeTenant),
		Key(ResourceMembers, ActionInvite, ""),
		Key(ResourceMembers, ActionUpdate, ""),
		Key(ResourceMembers, ActionRemove, ""),
		Key(ResourceRoles, ActionView, ""),
		Key(ResourceRoles, ActionManage, ""),
		Key(ResourceSettings, ActionView, ""),
		Key(ResourceSettings, ActionUpdate, ""),
	)
	for _, r := range recordResources {
		admin = append(admin,
			Key(r, ActionView, ScopeTenant),
			Key(r, ActionUpdate, ScopeTenant),
			Key(r, ActionDelete, ScopeTenant),
			Key(r, ActionView, ScopeAll),
			Key(r, ActionUpdate, ScopeAll),
			Key(r, ActionDelete, ScopeAll),
		)
	}

	owner := append([]string{}, admin...)
	owner = append(owner,
		Key(ResourceReports, ActionView, ScopeAll),
		Key(ResourceBilling, ActionView, ""),
		Key(ResourceBilling, ActionManage, ""),
	)

	return map[string]Role{
		RoleViewer: {
			ID:          RoleViewer,
			Name:        "Viewer",
			Description: "Read-only access to own records",
			Permissions: viewer,
			IsSystem:    true,
		},
		RoleAgent: {
			ID:          RoleAgent,
			Name:        "Agent",
			Description: "Works own clients, deals, tasks and messages",
			Permissions: agent,
			IsSystem:    true,
		},
		RoleManager: {
			ID:          RoleManager,
			Name:        "Manager",
			Description: "Team-wide visibility and assignment",
			Permissions: manager,
			IsSystem:    true,
		},
		RoleAdmin: {
			ID:          RoleAdmin,
			Name:        "Admin",
			Description: "Organization-wide administration",
			Permissions: admin,
			IsSystem:    true,
		},
		RoleOwner: {
			ID:          RoleOwner,
			Name:        "Owner",
			Description: "Full access including billing",
			Permissions: owner,
			IsSystem:    true,
		},
	}
}

// SystemRole returns a system role by id.
func SystemRole(roleID string) (Role, bool) {
	role, ok := systemRoles[roleID]
	return role, ok
}

// SystemRoles returns all system roles ordered by ascending rank.
func SystemRoles() []Role {
	return []Role{
		systemRoles[RoleViewer],
		systemRoles[RoleAgent],
		systemRoles[RoleManager],
		systemRoles[RoleAdmin],
		systemRoles[RoleOwner],
	}
}

// CustomRole wraps tenant-defined role data from the external store
// into the shared Role shape.
func CustomRole(tenantID, name string, permissions []string, color, icon string) Role {
	if permissions == nil {
		permissions = []string{}
	}
	return Role{
		ID:          name,
		Name:        name,
		Permissions: permissions,
		IsSystem:    false,
		TenantID:    tenantID,
		Color:       color,
		Icon:        icon,
	}
}
