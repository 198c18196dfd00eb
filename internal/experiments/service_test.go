package experiments

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
)

func seededService(repo Repository) *Service {
	return NewService(repo, rand.New(rand.NewSource(1)))
}

func runningExperiment(t *testing.T, repo *MemoryRepo, variants []Variant) Experiment {
	t.Helper()
	svc := seededService(repo)
	exp, err := svc.Create(context.Background(), Experiment{
		TenantID: "t1", AgentID: "a1", Name: "greeting-test", Status: StatusRunning,
	}, variants)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return exp
}

func TestCreate_Validation(t *testing.T) {
	svc := seededService(NewMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Experiment{TenantID: "t1", AgentID: "a1", Name: "x"}, []Variant{
		{Name: "control", IsControl: true, TrafficWeight: 50},
	})
	if !errors.Is(err, ErrTooFewVariants) {
		t.Fatalf("expected ErrTooFewVariants, got %v", err)
	}

	_, err = svc.Create(ctx, Experiment{TenantID: "t1", AgentID: "a1", Name: "x"}, []Variant{
		{Name: "a", TrafficWeight: 50},
		{Name: "b", TrafficWeight: 50},
	})
	if !errors.Is(err, ErrControlCount) {
		t.Fatalf("expected ErrControlCount, got %v", err)
	}

	_, err = svc.Create(ctx, Experiment{TenantID: "t1", AgentID: "a1", Name: "x"}, []Variant{
		{Name: "control", IsControl: true, TrafficWeight: -1},
		{Name: "b", TrafficWeight: 50},
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for negative weight, got %v", err)
	}
}

func TestStart_MakesExperimentResolvable(t *testing.T) {
	repo := NewMemoryRepo()
	svc := seededService(repo)
	ctx := context.Background()

	exp, err := svc.Create(ctx, Experiment{TenantID: "t1", AgentID: "a1", Name: "greeting-test"}, []Variant{
		{Name: "control", IsControl: true, TrafficWeight: 50},
		{Name: "b", TrafficWeight: 50, Prompt: "p"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if exp.Status != StatusDraft {
		t.Fatalf("new experiments start in draft, got %q", exp.Status)
	}
	if a := svc.Resolve(ctx, "t1", "a1"); a != nil {
		t.Fatalf("draft experiment must not resolve, got %+v", a)
	}

	if err := svc.Start(ctx, "t1", exp.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if a := svc.Resolve(ctx, "t1", "a1"); a == nil {
		t.Fatal("running experiment must resolve an assignment")
	}
}

func TestStart_SecondRunningForAgentRejected(t *testing.T) {
	repo := NewMemoryRepo()
	svc := seededService(repo)
	ctx := context.Background()

	variants := []Variant{
		{Name: "control", IsControl: true, TrafficWeight: 50},
		{Name: "b", TrafficWeight: 50, Prompt: "p"},
	}
	first, err := svc.Create(ctx, Experiment{TenantID: "t1", AgentID: "a1", Name: "one"}, variants)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.Create(ctx, Experiment{TenantID: "t1", AgentID: "a1", Name: "two"}, variants)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Start(ctx, "t1", first.ID); err != nil {
		t.Fatalf("start first: %v", err)
	}
	if err := svc.Start(ctx, "t1", second.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second running experiment for the agent must be rejected, got %v", err)
	}

	if err := svc.Pause(ctx, "t1", first.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := svc.Start(ctx, "t1", second.ID); err != nil {
		t.Fatalf("start after pause: %v", err)
	}
}

func TestPause_StopsResolution(t *testing.T) {
	repo := NewMemoryRepo()
	svc := seededService(repo)
	ctx := context.Background()

	exp, err := svc.Create(ctx, Experiment{TenantID: "t1", AgentID: "a1", Name: "x"}, []Variant{
		{Name: "control", IsControl: true, TrafficWeight: 50},
		{Name: "b", TrafficWeight: 50, Prompt: "p"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Start(ctx, "t1", exp.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Pause(ctx, "t1", exp.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if a := svc.Resolve(ctx, "t1", "a1"); a != nil {
		t.Fatalf("paused experiment must not resolve, got %+v", a)
	}
	if err := svc.Pause(ctx, "t1", exp.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("pausing a paused experiment must fail the guard, got %v", err)
	}
}

func TestResolve_NoRunningExperiment(t *testing.T) {
	svc := seededService(NewMemoryRepo())
	if a := svc.Resolve(context.Background(), "t1", "a1"); a != nil {
		t.Fatalf("expected nil assignment, got %+v", a)
	}
}

func TestResolve_LookupErrorsAreSwallowed(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(brokenFind{repo}, rand.New(rand.NewSource(1)))
	if a := svc.Resolve(context.Background(), "t1", "a1"); a != nil {
		t.Fatalf("expected nil assignment on repo error, got %+v", a)
	}
}

type brokenFind struct{ *MemoryRepo }

func (brokenFind) FindRunning(ctx context.Context, tenantID, agentID string) (Experiment, bool, error) {
	return Experiment{}, false, errors.New("db down")
}

func TestResolve_ControlClearsPromptOverride(t *testing.T) {
	repo := NewMemoryRepo()
	runningExperiment(t, repo, []Variant{
		{Name: "control", IsControl: true, TrafficWeight: 1, Prompt: "should-not-leak"},
		{Name: "b", TrafficWeight: 0, Prompt: "variant prompt"},
	})

	svc := seededService(repo)
	a := svc.Resolve(context.Background(), "t1", "a1")
	if a == nil {
		t.Fatalf("expected an assignment")
	}
	if !a.IsControl {
		t.Fatalf("expected control with all weight on control")
	}
	if a.PromptOverride != "" {
		t.Fatalf("control must not carry a prompt override, got %q", a.PromptOverride)
	}
}

func TestResolve_WeightedDistribution(t *testing.T) {
	repo := NewMemoryRepo()
	runningExperiment(t, repo, []Variant{
		{Name: "control", IsControl: true, TrafficWeight: 50},
		{Name: "variantB", TrafficWeight: 50, Prompt: "p"},
	})
	svc := seededService(repo)

	const trials = 10000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		a := svc.Resolve(context.Background(), "t1", "a1")
		if a == nil {
			t.Fatalf("trial %d: expected an assignment", i)
		}
		counts[a.VariantName]++
	}

	for _, name := range []string{"control", "variantB"} {
		frac := float64(counts[name]) / trials
		if math.Abs(frac-0.5) > 0.05 {
			t.Fatalf("%s selected %.3f of trials, want 0.5±0.05", name, frac)
		}
	}
}

func TestResolve_ZeroWeightSumFallsBackToUniform(t *testing.T) {
	repo := NewMemoryRepo()
	runningExperiment(t, repo, []Variant{
		{Name: "control", IsControl: true, TrafficWeight: 0},
		{Name: "b", TrafficWeight: 0},
		{Name: "c", TrafficWeight: 0},
	})
	svc := seededService(repo)

	const trials = 9000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		a := svc.Resolve(context.Background(), "t1", "a1")
		if a == nil {
			t.Fatalf("expected an assignment")
		}
		counts[a.VariantName]++
	}
	for name, n := range counts {
		frac := float64(n) / trials
		if math.Abs(frac-1.0/3.0) > 0.05 {
			t.Fatalf("%s selected %.3f of trials, want ~1/3", name, frac)
		}
	}
}

func TestResolve_ProportionalToWeights(t *testing.T) {
	repo := NewMemoryRepo()
	runningExperiment(t, repo, []Variant{
		{Name: "control", IsControl: true, TrafficWeight: 10},
		{Name: "heavy", TrafficWeight: 30, Prompt: "p"},
	})
	svc := seededService(repo)

	const trials = 10000
	heavy := 0
	for i := 0; i < trials; i++ {
		if a := svc.Resolve(context.Background(), "t1", "a1"); a != nil && a.VariantName == "heavy" {
			heavy++
		}
	}
	frac := float64(heavy) / trials
	if math.Abs(frac-0.75) > 0.05 {
		t.Fatalf("heavy selected %.3f of trials, want 0.75±0.05", frac)
	}
}
