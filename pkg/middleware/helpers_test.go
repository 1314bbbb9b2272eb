package middleware

import (
	"context"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cadencehq/authcore/pkg/authn"
	"github.com/cadencehq/authcore/pkg/contextkeys"
	"github.com/cadencehq/authcore/pkg/observability"
	"github.com/cadencehq/authcore/pkg/tenants"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

func tenantIDFrom(r *http.Request) string {
	return contextkeys.TenantID(r.Context())
}

// fakeService serves canned access values keyed by "user|tenant".
type fakeService struct {
	access         map[string]*tenants.Access
	defaultTenants map[string]string
	err            error
}

func (f *fakeService) Resolve(ctx context.Context, userID, tenantID string) (*tenants.Access, error) {
	if f.err != nil {
		return nil, f.err
	}
	access, ok := f.access[userID+"|"+tenantID]
	if !ok {
		return nil, tenants.ErrNoMembership
	}
	return access, nil
}

func (f *fakeService) DefaultTenant(ctx context.Context, userID string) (string, error) {
	if id, ok := f.defaultTenants[userID]; ok {
		return id, nil
	}
	return "", tenants.ErrNoMembership
}

func withIdentity(r *http.Request, userID string) *http.Request {
	identity := &authn.Identity{UserID: userID}
	return r.WithContext(contextkeys.WithIdentity(r.Context(), identity))
}

func withTenant(r *http.Request, tenantID string) *http.Request {
	return r.WithContext(contextkeys.WithTenantID(r.Context(), tenantID))
}
