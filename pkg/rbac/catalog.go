package rbac

import "sort"

// catalog maps a permission name to the permissions it grants. Built
// once at package init and never mutated afterwards.
var catalog = buildCatalog()

// recordResources are the business entities that carry the full
// view/update/delete matrix across every scope.
var recordResources = []Resource{
	ResourceClients,
	ResourceDeals,
	ResourceTasks,
	ResourceMessages,
}

func buildCatalog() map[string][]Permission {
	c := make(map[string][]Permission)
	add := func(p Permission) {
		key := p.Key()
		c[key] = append(c[key], p)
	}

	for _, r := range recordResources {
		add(Permission{Resource: r, Action: ActionCreate})
		add(Permission{Resource: r, Action: ActionAssign})
		for _, a := range []Action{ActionView, ActionUpdate, ActionDelete} {
			for _, s := range []Scope{ScopeOwn, ScopeTeam, ScopeTenant, ScopeAll} {
				add(Permission{Resource: r, Action: a, Scope: s})
			}
		}
	}

	for _, s := range []Scope{ScopeOwn, ScopeTeam, ScopeTenant, ScopeAll} {
		add(Permission{Resource: ResourceReports, Action: ActionView, Scope: s})
	}
	add(Permission{Resource: ResourceReports, Action: ActionExport})

	add(Permission{Resource: ResourceMembers, Action: ActionView})
	add(Permission{Resource: ResourceMembers, Action: ActionInvite})
	add(Permission{Resource: ResourceMembers, Action: ActionUpdate})
	add(Permission{Resource: ResourceMembers, Action: ActionRemove})

	add(Permission{Resource: ResourceRoles, Action: ActionView})
	add(Permission{Resource: ResourceRoles, Action: ActionManage})

	add(Permission{Resource: ResourceSettings, Action: ActionView})
	add(Permission{Resource: ResourceSettings, Action: ActionUpdate})

	add(Permission{Resource: ResourceBilling, Action: ActionView})
	add(Permission{Resource: ResourceBilling, Action: ActionManage})

	return c
}

// Lookup returns the permissions granted by a permission name. It is
// total over the closed catalog: an unknown name yields an empty
// slice, never an error. Callers must not mutate the result.
func Lookup(name string) []Permission {
	return catalog[name]
}

// Known reports whether a permission name exists in the catalog.
func Known(name string) bool {
	_, ok := catalog[name]
	return ok
}

// CatalogKeys returns every permission name in the catalog, sorted.
func CatalogKeys() []string {
	keys := make([]string, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
