package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/cadencehq/authcore/pkg/contextkeys"
	"github.com/cadencehq/authcore/pkg/observability"
)

const (
	// TenantHeader carries an explicit tenant id on requests whose URL
	// does not encode one.
	TenantHeader = "X-Tenant-ID"

	// TenantQueryParam is the query string fallback.
	TenantQueryParam = "tenant_id"

	maxTenantBodyPeek = 1 << 20 // 1MB
)

// TenantMiddleware resolves which tenant a request targets and stores
// it in the context. Resolution never fails the request here; routes
// that need a tenant reject later during evaluation.
type TenantMiddleware struct {
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewTenantMiddleware creates a new tenant resolution middleware
func NewTenantMiddleware(logger *observability.Logger, metrics *observability.Metrics) *TenantMiddleware {
	return &TenantMiddleware{logger: logger, metrics: metrics}
}

// Handler wraps an HTTP handler with tenant resolution
func (m *TenantMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, source := ResolveTenantID(r)
		if tenantID != "" {
			m.metrics.RecordTenantResolution(source)
			ctx := contextkeys.WithTenantID(r.Context(), tenantID)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// ResolveTenantID extracts the target tenant from a request. Sources
// are tried in a fixed order and the first non-empty hit wins:
//
//  1. a /tenants/{id}/ path segment
//  2. the tenant_id query parameter
//  3. a tenant_id field in a JSON body, for mutating methods
//  4. the X-Tenant-ID header
//  5. the request's subdomain
//
// The second return value names the winning source.
func ResolveTenantID(r *http.Request) (string, string) {
	if id := tenantFromPath(r.URL.Path); id != "" {
		return id, "path"
	}
	if id := r.URL.Query().Get(TenantQueryParam); id != "" {
		return id, "query"
	}
	if id := tenantFromBody(r); id != "" {
		return id, "body"
	}
	if id := r.Header.Get(TenantHeader); id != "" {
		return id, "header"
	}
	if id := tenantFromHost(r.Host); id != "" {
		return id, "subdomain"
	}
	return "", ""
}

// tenantFromPath finds the segment following "tenants" in the URL
// path.
func tenantFromPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		if segment == "tenants" && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}

// tenantFromBody peeks into a JSON body for a tenant_id field. The
// body is restored so handlers can still read it. Unreadable or
// non-JSON bodies resolve to nothing rather than an error.
func tenantFromBody(r *http.Request) string {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return ""
	}
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxTenantBodyPeek))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var fields struct {
		TenantID string `json:"tenant_id"`
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	return fields.TenantID
}

// tenantFromHost treats the first host label as a tenant slug.
// Reserved labels and bare or IP hosts yield nothing.
func tenantFromHost(host string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}
	sub := labels[0]
	switch sub {
	case "", "www", "api", "app", "localhost":
		return ""
	}
	return sub
}
