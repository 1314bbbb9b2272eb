// Package rbac implements the permission model for the multi-tenant
// authorization layer: the static permission catalog, the system role
// registry and hierarchy, pure permission-checking functions over
// resolved permission-name lists, and the contextual condition
// evaluator.
//
// Permission names follow the canonical RESOURCE_ACTION or
// RESOURCE_ACTION_SCOPE key format (uppercase, underscore-joined),
// e.g. CLIENTS_UPDATE_TEAM. The catalog and system roles are
// compile-time constants; tenant-defined custom roles are loaded at
// resolution time by pkg/tenants and wrapped into the same Role shape.
package rbac
