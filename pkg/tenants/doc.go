// Package tenants resolves tenant memberships into effective
// authorization contexts. It owns the membership and custom-role
// store, the invitation lifecycle, and the Resolver that turns a
// (user, tenant) pair into the role and permission-name list the
// request pipeline evaluates against.
//
// All resolution is read-only; membership mutations go through the
// store's administrative methods and publish cache invalidation so no
// resolved context outlives a membership change.
package tenants
