package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"voiceops-platform/internal/callwindow"
	"voiceops-platform/internal/dispatch"
)

type noopProvider struct{ name string }

func (p noopProvider) Name() string { return p.name }

func (p noopProvider) Place(ctx context.Context, req dispatch.PlaceRequest) (dispatch.PlaceResult, error) {
	return dispatch.PlaceResult{}, nil
}

func (p noopProvider) ListActiveCalls(ctx context.Context) ([]dispatch.ActiveCall, error) {
	return nil, dispatch.ErrUnsupported
}

func newTestService() (*Service, *MemoryRepo) {
	repo := NewMemoryRepo()
	svc := NewService(repo, map[string]dispatch.Provider{"vapi": noopProvider{name: "vapi"}})
	svc.clock = func() time.Time { return time.Unix(1700000000, 0) }
	return svc, repo
}

func TestSave_RejectsUnknownProvider(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Save(context.Background(), Agent{
		TenantID: "t1", Name: "closer", Provider: "twilio", ExternalAgentID: "x",
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSave_RejectsInvalidWindow(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Save(context.Background(), Agent{
		TenantID: "t1", Name: "closer", Provider: "vapi", ExternalAgentID: "x",
		Window: &callwindow.Window{StartHour: 17, EndHour: 9, DaysOfWeek: []time.Weekday{time.Monday}},
	})
	if err == nil {
		t.Fatalf("expected overnight window rejection")
	}
}

func TestForAgent_ResolvesRoute(t *testing.T) {
	svc, _ := newTestService()
	a, err := svc.Save(context.Background(), Agent{
		TenantID: "t1", Name: "closer", Provider: "vapi",
		ExternalAgentID: "asst-1", FromNumber: "+15550001111", IsActive: true,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	route, err := svc.ForAgent(context.Background(), "t1", a.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if route.ExternalAgentID != "asst-1" || route.FromNumber != "+15550001111" {
		t.Fatalf("unexpected route: %+v", route)
	}
	if route.Provider.Name() != "vapi" {
		t.Fatalf("provider %q", route.Provider.Name())
	}
}

func TestForAgent_InactiveDoesNotRoute(t *testing.T) {
	svc, _ := newTestService()
	a, _ := svc.Save(context.Background(), Agent{
		TenantID: "t1", Name: "closer", Provider: "vapi", ExternalAgentID: "asst-1",
	})
	if _, err := svc.ForAgent(context.Background(), "t1", a.ID); err == nil {
		t.Fatalf("expected inactive agent to fail resolution")
	}
}

func TestForAgent_TenantScoped(t *testing.T) {
	svc, _ := newTestService()
	a, _ := svc.Save(context.Background(), Agent{
		TenantID: "t1", Name: "closer", Provider: "vapi", ExternalAgentID: "asst-1", IsActive: true,
	})
	if _, err := svc.ForAgent(context.Background(), "t2", a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}
}
