package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cadencehq/authcore/pkg/observability"
	"github.com/cadencehq/authcore/pkg/rbac"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheSize = 4096
	defaultCacheTTL  = 30 * time.Second
)

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCacheTTL overrides the resolution cache TTL.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) { r.cacheTTL = ttl }
}

// WithCacheSize overrides the resolution cache capacity.
func WithCacheSize(size int) ResolverOption {
	return func(r *Resolver) { r.cacheSize = size }
}

// Resolver turns (user, tenant) pairs into an effective Access by
// joining the membership against the role registry. Resolutions are
// cached with a short TTL, and concurrent requests for the same pair
// collapse into a single store read.
type Resolver struct {
	store     Store
	logger    *observability.Logger
	metrics   *observability.Metrics
	cache     *expirable.LRU[string, *Access]
	group     singleflight.Group
	cacheTTL  time.Duration
	cacheSize int
}

// NewResolver creates a Resolver backed by store.
func NewResolver(store Store, logger *observability.Logger, metrics *observability.Metrics, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:     store,
		logger:    logger,
		metrics:   metrics,
		cacheTTL:  defaultCacheTTL,
		cacheSize: defaultCacheSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cache = expirable.NewLRU[string, *Access](r.cacheSize, nil, r.cacheTTL)
	return r
}

func cacheKey(userID, tenantID string) string {
	return userID + "|" + tenantID
}

// Resolve returns the effective access for userID within tenantID.
// Returns ErrNoMembership when the user has no active membership
// there. Store failures propagate so callers can fail closed.
func (r *Resolver) Resolve(ctx context.Context, userID, tenantID string) (*Access, error) {
	key := cacheKey(userID, tenantID)
	if access, ok := r.cache.Get(key); ok {
		r.metrics.RecordCacheHit("resolver")
		return access, nil
	}
	r.metrics.RecordCacheMiss("resolver")

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		access, err := r.resolve(ctx, userID, tenantID)
		if err != nil {
			return nil, err
		}
		r.cache.Add(key, access)
		return access, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Access), nil
}

func (r *Resolver) resolve(ctx context.Context, userID, tenantID string) (*Access, error) {
	membership, err := r.store.GetActiveMembership(ctx, userID, tenantID)
	if err != nil {
		if !errors.Is(err, ErrNoMembership) {
			r.logger.WithError(err).
				WithField("user_id", userID).
				WithField("tenant_id", tenantID).
				Error("membership lookup failed")
		}
		return nil, err
	}

	role, err := r.effectiveRole(ctx, membership)
	if err != nil {
		return nil, err
	}

	return &Access{
		UserID:      userID,
		TenantID:    tenantID,
		Role:        role,
		Permissions: role.Permissions,
		Membership:  membership,
	}, nil
}

// effectiveRole maps a membership's role name to its permission list.
// System roles win over tenant-defined roles of the same name. An
// unknown role resolves to an empty permission list rather than an
// error, so a stale membership degrades to "no access" instead of
// breaking the request.
func (r *Resolver) effectiveRole(ctx context.Context, m *Membership) (rbac.Role, error) {
	if role, ok := rbac.SystemRole(m.Role); ok {
		return role, nil
	}

	custom, err := r.store.GetTenantRole(ctx, m.TenantID, m.Role)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			r.logger.WithField("tenant_id", m.TenantID).
				WithField("role", m.Role).
				Warn("membership references unknown role")
			return rbac.CustomRole(m.TenantID, m.Role, nil, "", ""), nil
		}
		return rbac.Role{}, fmt.Errorf("failed to load role %q: %w", m.Role, err)
	}
	return rbac.CustomRole(custom.TenantID, custom.Name, custom.Permissions, custom.Color, custom.Icon), nil
}

// DefaultTenant returns the tenant of the user's earliest active
// membership, or ErrNoMembership when the user belongs to none.
func (r *Resolver) DefaultTenant(ctx context.Context, userID string) (string, error) {
	memberships, err := r.store.ListActiveMemberships(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(memberships) == 0 {
		return "", ErrNoMembership
	}
	return memberships[0].TenantID, nil
}

// InvalidateUser evicts every cached resolution for userID. Called on
// membership and role changes, locally and via the invalidation bus.
func (r *Resolver) InvalidateUser(ctx context.Context, userID string) {
	for _, key := range r.cache.Keys() {
		if len(key) > len(userID) && key[:len(userID)] == userID && key[len(userID)] == '|' {
			r.cache.Remove(key)
		}
	}
}
