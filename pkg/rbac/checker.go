package rbac

// HasPermission reports whether the granted permission-name list
// contains name exactly.
func HasPermission(granted []string, name string) bool {
	for _, g := range granted {
		if g == name {
			return true
		}
	}
	return false
}

// HasAny reports whether at least one of names is granted. An empty
// names list grants nothing.
func HasAny(granted []string, names ...string) bool {
	set := permissionSet(granted)
	for _, n := range names {
		if _, ok := set[n]; ok {
			return true
		}
	}
	return false
}

// HasAll reports whether every one of names is granted.
func HasAll(granted []string, names ...string) bool {
	set := permissionSet(granted)
	for _, n := range names {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

// CanAccess builds the canonical key for (resource, action, scope) and
// checks exact membership. Scopes are not implicitly compatible: a
// grant of CLIENTS_UPDATE_ALL does not satisfy CLIENTS_UPDATE_TEAM.
func CanAccess(granted []string, resource Resource, action Action, scope Scope) bool {
	return HasPermission(granted, Key(resource, action, scope))
}

// accessLevelActions is the fixed probe order for AccessLevel. VIEW is
// trusted before UPDATE before DELETE; changing this order would
// under- or over-report the effective scope.
var accessLevelActions = []Action{ActionView, ActionUpdate, ActionDelete}

// AccessLevel resolves the widest visibility scope granted for a
// resource. For each probe action in order it checks the _ALL then the
// _TEAM variant; the first match wins. A user always has at least the
// most restrictive level, so the default is ScopeOwn.
func AccessLevel(granted []string, resource Resource) Scope {
	set := permissionSet(granted)
	for _, action := range accessLevelActions {
		if _, ok := set[Key(resource, action, ScopeAll)]; ok {
			return ScopeAll
		}
		if _, ok := set[Key(resource, action, ScopeTeam)]; ok {
			return ScopeTeam
		}
	}
	return ScopeOwn
}

func permissionSet(granted []string) map[string]struct{} {
	set := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		set[g] = struct{}{}
	}
	return set
}
