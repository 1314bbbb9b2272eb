package policy

import (
	"fmt"
	"net/http"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cadencehq/authcore/pkg/middleware"
	"github.com/cadencehq/authcore/pkg/rbac"
	"github.com/cadencehq/authcore/pkg/tenants"
)

// RouteRule is the YAML shape of one route's requirement.
type RouteRule struct {
	Permission    string          `yaml:"permission,omitempty"`
	Permissions   []string        `yaml:"permissions,omitempty"`
	RequireAll    bool            `yaml:"require_all,omitempty"`
	Resource      string          `yaml:"resource,omitempty"`
	Action        string          `yaml:"action,omitempty"`
	Scope         string          `yaml:"scope,omitempty"`
	Roles         []string        `yaml:"roles,omitempty"`
	MinRole       string          `yaml:"min_role,omitempty"`
	Conditions    []ConditionRule `yaml:"conditions,omitempty"`
	RequireTenant bool            `yaml:"require_tenant,omitempty"`
}

// ConditionRule is the YAML shape of one contextual condition.
type ConditionRule struct {
	Field    string      `yaml:"field"`
	Operator string      `yaml:"operator"`
	Value    interface{} `yaml:"value"`
}

// Document is the root of a policy file.
type Document struct {
	Routes map[string]RouteRule `yaml:"routes"`
}

// Requirement converts a rule into its middleware form.
func (r RouteRule) Requirement() middleware.Requirement {
	req := middleware.Requirement{
		Permission:    r.Permission,
		Permissions:   r.Permissions,
		RequireAll:    r.RequireAll,
		Resource:      rbac.Resource(r.Resource),
		Action:        rbac.Action(r.Action),
		Scope:         rbac.Scope(r.Scope),
		Roles:         r.Roles,
		MinRole:       r.MinRole,
		RequireTenant: r.RequireTenant,
	}
	for _, c := range r.Conditions {
		req.Conditions = append(req.Conditions, rbac.Condition{
			Field:    c.Field,
			Operator: rbac.Operator(c.Operator),
			Value:    c.Value,
		})
	}
	return req
}

// validate rejects rules that reference names outside the registries.
// Misspelled permissions would otherwise deny every request to the
// route and be hard to spot.
func (d *Document) validate() error {
	for name, rule := range d.Routes {
		if rule.Permission != "" && !rbac.Known(rule.Permission) {
			return fmt.Errorf("route %q: unknown permission %q", name, rule.Permission)
		}
		for _, p := range rule.Permissions {
			if !rbac.Known(p) {
				return fmt.Errorf("route %q: unknown permission %q", name, p)
			}
		}
		if rule.MinRole != "" {
			if _, ok := rbac.SystemRole(rule.MinRole); !ok {
				return fmt.Errorf("route %q: unknown role %q", name, rule.MinRole)
			}
		}
	}
	return nil
}

// Provider holds the currently loaded policy.
type Provider struct {
	mu     sync.RWMutex
	path   string
	routes map[string]middleware.Requirement
}

// Load reads and validates a policy file.
func Load(path string) (*Provider, error) {
	p := &Provider{path: path, routes: map[string]middleware.Requirement{}}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the policy file. On failure the current policy is
// kept and the error returned.
func (p *Provider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := doc.validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}

	routes := make(map[string]middleware.Requirement, len(doc.Routes))
	for name, rule := range doc.Routes {
		routes[name] = rule.Requirement()
	}

	p.mu.Lock()
	p.routes = routes
	p.mu.Unlock()
	return nil
}

// Route returns the requirement for a named route. Unknown routes get
// a deny-everything requirement rather than a default allow.
func (p *Provider) Route(name string) middleware.Requirement {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if req, ok := p.routes[name]; ok {
		return req
	}
	return middleware.Requirement{
		Validate: func(*http.Request, *tenants.Access) bool { return false },
	}
}

// Lookup returns the requirement for a named route and whether the
// policy names it.
func (p *Provider) Lookup(name string) (middleware.Requirement, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	req, ok := p.routes[name]
	return req, ok
}

// Protect returns a route guard that prefers the policy's requirement
// over the built-in one. Routes the policy does not name keep their
// built-in permission. The lookup happens per request, so a reloaded
// policy applies without re-registering routes.
func (p *Provider) Protect(a *middleware.Authorizer) func(http.HandlerFunc, string) http.Handler {
	return func(handler http.HandlerFunc, permission string) http.Handler {
		return a.RequireFunc(func() middleware.Requirement {
			if req, ok := p.Lookup(permission); ok {
				return req
			}
			return middleware.Requirement{Permission: permission, RequireTenant: permission != ""}
		})(handler)
	}
}

// Routes returns the names of all loaded routes.
func (p *Provider) Routes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.routes))
	for name := range p.routes {
		names = append(names, name)
	}
	return names
}
