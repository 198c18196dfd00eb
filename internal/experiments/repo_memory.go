package experiments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu          sync.Mutex
	experiments map[string]Experiment
	variants    map[string][]Variant // experiment id -> variants
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		experiments: make(map[string]Experiment),
		variants:    make(map[string][]Variant),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, exp Experiment, variants []Variant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.experiments[exp.ID] = exp
	vs := make([]Variant, len(variants))
	copy(vs, variants)
	r.variants[exp.ID] = vs
	return nil
}

func (r *MemoryRepo) FindRunning(ctx context.Context, tenantID, agentID string) (Experiment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.experiments {
		if e.TenantID == tenantID && e.AgentID == agentID && e.Status == StatusRunning {
			return e, true, nil
		}
	}
	return Experiment{}, false, nil
}

func (r *MemoryRepo) ListVariants(ctx context.Context, tenantID, experimentID string) ([]Variant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.experiments[experimentID]
	if !ok || e.TenantID != tenantID {
		return nil, ErrNotFound
	}
	out := make([]Variant, len(r.variants[experimentID]))
	copy(out, r.variants[experimentID])
	// Control first, matching the Postgres ordering contract.
	sort.SliceStable(out, func(i, j int) bool { return out[i].IsControl && !out[j].IsControl })
	return out, nil
}

func (r *MemoryRepo) SetStatus(ctx context.Context, tenantID, experimentID string, to Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.experiments[experimentID]
	if !ok || e.TenantID != tenantID {
		return ErrNotFound
	}
	switch to {
	case StatusRunning:
		if e.Status != StatusDraft && e.Status != StatusPaused {
			return ErrNotFound
		}
		for id, other := range r.experiments {
			if id != e.ID && other.TenantID == e.TenantID &&
				other.AgentID == e.AgentID && other.Status == StatusRunning {
				return ErrNotFound
			}
		}
	case StatusPaused:
		if e.Status != StatusRunning {
			return ErrNotFound
		}
	default:
		return ErrInvalidArgument
	}
	e.Status = to
	e.UpdatedAt = at
	r.experiments[experimentID] = e
	return nil
}

func (r *MemoryRepo) Complete(ctx context.Context, tenantID, experimentID, winnerVariantID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.experiments[experimentID]
	if !ok || e.TenantID != tenantID {
		return ErrNotFound
	}
	e.Status = StatusCompleted
	e.WinnerVariantID = winnerVariantID
	e.UpdatedAt = at
	r.experiments[experimentID] = e
	return nil
}
