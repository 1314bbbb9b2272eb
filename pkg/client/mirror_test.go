package client

import (
	"context"
	"sync"
	"testing"

	"github.com/cadencehq/authcore/pkg/rbac"
	"github.com/cadencehq/authcore/pkg/tenants"
)

// blockingService lets each Resolve call be released manually so
// tests can control response ordering.
type blockingService struct {
	mu      sync.Mutex
	access  map[string]*tenants.Access
	waiters map[string]chan struct{}
	entered map[string]chan struct{}
}

func newBlockingService() *blockingService {
	return &blockingService{
		access:  map[string]*tenants.Access{},
		waiters: map[string]chan struct{}{},
		entered: map[string]chan struct{}{},
	}
}

func (s *blockingService) add(tenantID string, role string) {
	roleDef, _ := rbac.SystemRole(role)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access[tenantID] = &tenants.Access{
		UserID:      "u1",
		TenantID:    tenantID,
		Role:        roleDef,
		Permissions: roleDef.Permissions,
	}
}

// hold blocks Resolve calls for tenantID until the returned release
// channel is closed. The entered channel signals that a call has
// reached the gate.
func (s *blockingService) hold(tenantID string) (release, entered chan struct{}) {
	release = make(chan struct{})
	entered = make(chan struct{}, 1)
	s.mu.Lock()
	s.waiters[tenantID] = release
	s.entered[tenantID] = entered
	s.mu.Unlock()
	return release, entered
}

func (s *blockingService) Resolve(ctx context.Context, _, tenantID string) (*tenants.Access, error) {
	s.mu.Lock()
	gate := s.waiters[tenantID]
	entered := s.entered[tenantID]
	s.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	access, ok := s.access[tenantID]
	if !ok {
		return nil, tenants.ErrNoMembership
	}
	return access, nil
}

func (s *blockingService) DefaultTenant(ctx context.Context, _ string) (string, error) {
	return "", tenants.ErrNoMembership
}

func TestMirrorSwitchTenant(t *testing.T) {
	service := newBlockingService()
	service.add("t1", rbac.RoleManager)
	mirror := NewMirror(service, "u1")

	if mirror.Current() != nil {
		t.Fatal("Fresh mirror must hold no access")
	}
	if mirror.HasPermission("CLIENTS_VIEW_TEAM") {
		t.Error("Empty mirror must deny everything")
	}

	if err := mirror.SwitchTenant(context.Background(), "t1"); err != nil {
		t.Fatalf("SwitchTenant failed: %v", err)
	}
	if mirror.TenantID() != "t1" {
		t.Errorf("TenantID = %q, want t1", mirror.TenantID())
	}
	if !mirror.HasPermission("CLIENTS_VIEW_TEAM") {
		t.Error("Manager mirror must hold CLIENTS_VIEW_TEAM")
	}
	if mirror.CanAccess(rbac.ResourceBilling, rbac.ActionManage, "") {
		t.Error("Manager mirror must not grant billing")
	}
	if level := mirror.AccessLevel(rbac.ResourceClients); level != rbac.ScopeTeam {
		t.Errorf("AccessLevel = %q, want team", level)
	}
}

func TestMirrorHasAnyEmptyDenies(t *testing.T) {
	service := newBlockingService()
	service.add("t1", rbac.RoleManager)
	mirror := NewMirror(service, "u1")

	if err := mirror.SwitchTenant(context.Background(), "t1"); err != nil {
		t.Fatalf("SwitchTenant failed: %v", err)
	}
	if !mirror.HasAny("CLIENTS_VIEW_TEAM", "BILLING_MANAGE") {
		t.Error("Manager mirror must match one of the names")
	}
	if mirror.HasAny() {
		t.Error("An empty name list must grant nothing")
	}
}

func TestMirrorFailedSwitchKeepsPrevious(t *testing.T) {
	service := newBlockingService()
	service.add("t1", rbac.RoleAgent)
	mirror := NewMirror(service, "u1")

	if err := mirror.SwitchTenant(context.Background(), "t1"); err != nil {
		t.Fatalf("SwitchTenant failed: %v", err)
	}
	if err := mirror.SwitchTenant(context.Background(), "t-forbidden"); err == nil {
		t.Fatal("Expected switch to unknown tenant to fail")
	}

	if mirror.TenantID() != "t1" {
		t.Errorf("Failed switch must keep t1, got %q", mirror.TenantID())
	}
}

func TestMirrorLatestSwitchWins(t *testing.T) {
	service := newBlockingService()
	service.add("t-slow", rbac.RoleOwner)
	service.add("t-fast", rbac.RoleViewer)
	mirror := NewMirror(service, "u1")

	slowGate, slowEntered := service.hold("t-slow")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mirror.SwitchTenant(context.Background(), "t-slow")
	}()
	<-slowEntered // slow switch is issued and in flight

	// The later switch completes first.
	if err := mirror.SwitchTenant(context.Background(), "t-fast"); err != nil {
		t.Fatalf("SwitchTenant failed: %v", err)
	}

	close(slowGate)
	wg.Wait()

	if mirror.TenantID() != "t-fast" {
		t.Errorf("TenantID = %q, want t-fast (latest switch wins)", mirror.TenantID())
	}
}

func TestMirrorOnChange(t *testing.T) {
	service := newBlockingService()
	service.add("t1", rbac.RoleViewer)
	mirror := NewMirror(service, "u1")

	var seen []string
	mirror.OnChange(func(access *tenants.Access) {
		seen = append(seen, access.TenantID)
	})

	if err := mirror.SwitchTenant(context.Background(), "t1"); err != nil {
		t.Fatalf("SwitchTenant failed: %v", err)
	}
	if err := mirror.SwitchTenant(context.Background(), "missing"); err == nil {
		t.Fatal("Expected failure")
	}

	if len(seen) != 1 || seen[0] != "t1" {
		t.Errorf("OnChange fired %v, want [t1]", seen)
	}
}

func TestMirrorRefresh(t *testing.T) {
	service := newBlockingService()
	service.add("t1", rbac.RoleViewer)
	mirror := NewMirror(service, "u1")

	if err := mirror.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh on an empty mirror must fail")
	}

	if err := mirror.SwitchTenant(context.Background(), "t1"); err != nil {
		t.Fatalf("SwitchTenant failed: %v", err)
	}

	// A role change lands on the next refresh.
	service.add("t1", rbac.RoleAdmin)
	if err := mirror.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !mirror.HasPermission("ROLES_MANAGE") {
		t.Error("Refreshed mirror must hold admin permissions")
	}
}
