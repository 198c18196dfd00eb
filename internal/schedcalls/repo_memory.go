package schedcalls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]ScheduledCall
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[string]ScheduledCall)}
}

func (r *MemoryRepo) Create(ctx context.Context, sc ScheduledCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[sc.ID] = sc
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, tenantID, id string) (ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.records[id]
	if !ok || sc.TenantID != tenantID {
		return ScheduledCall{}, ErrNotFound
	}
	return sc, nil
}

func (r *MemoryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ScheduledCall
	for _, sc := range r.records {
		if sc.Status == StatusScheduled && !sc.ScheduledAt.After(now) {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) MarkInitiated(ctx context.Context, tenantID, id, externalCallID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.records[id]
	if !ok || sc.TenantID != tenantID {
		return false, nil
	}
	if sc.Status != StatusPending && sc.Status != StatusScheduled {
		return false, nil
	}
	sc.Status = StatusInitiated
	sc.ExternalCallID = externalCallID
	sc.UpdatedAt = at
	r.records[id] = sc
	return true, nil
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, tenantID, id, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.records[id]
	if !ok || sc.TenantID != tenantID || sc.Status.Terminal() {
		return false, nil
	}
	sc.Status = StatusFailed
	sc.FailureReason = reason
	sc.CompletedAt = &at
	sc.UpdatedAt = at
	r.records[id] = sc
	return true, nil
}

func (r *MemoryRepo) Reschedule(ctx context.Context, tenantID, id string, scheduledAt, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.records[id]
	if !ok || sc.TenantID != tenantID {
		return false, nil
	}
	if sc.Status != StatusPending && sc.Status != StatusScheduled {
		return false, nil
	}
	sc.Status = StatusScheduled
	sc.ScheduledAt = scheduledAt
	sc.UpdatedAt = at
	r.records[id] = sc
	return true, nil
}

func (r *MemoryRepo) CompleteByExternalID(ctx context.Context, tenantID, externalCallID string, status Status, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sc := range r.records {
		if sc.TenantID != tenantID || sc.ExternalCallID != externalCallID {
			continue
		}
		if sc.Status != StatusInitiated {
			return false, nil
		}
		sc.Status = status
		sc.CompletedAt = &at
		sc.UpdatedAt = at
		r.records[id] = sc
		return true, nil
	}
	return false, nil
}

func (r *MemoryRepo) Cancel(ctx context.Context, tenantID, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.records[id]
	if !ok || sc.TenantID != tenantID {
		return false, nil
	}
	if sc.Status != StatusPending && sc.Status != StatusScheduled {
		return false, nil
	}
	sc.Status = StatusCanceled
	sc.UpdatedAt = at
	r.records[id] = sc
	return true, nil
}
