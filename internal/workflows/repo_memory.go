package workflows

import (
	"context"
	"sync"

	"voiceops-platform/internal/calls"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu        sync.Mutex
	workflows map[string]Workflow
	logs      []ExecutionLog
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{workflows: make(map[string]Workflow)}
}

func (r *MemoryRepo) Save(ctx context.Context, w Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[w.ID] = w
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, tenantID, id string) (Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workflows[id]
	if !ok || w.TenantID != tenantID {
		return Workflow{}, ErrNotFound
	}
	return w, nil
}

func (r *MemoryRepo) ListByTenant(ctx context.Context, tenantID string) ([]Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Workflow
	for _, w := range r.workflows {
		if w.TenantID == tenantID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListByTrigger(ctx context.Context, tenantID string, trigger calls.EventType) ([]Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Workflow
	for _, w := range r.workflows {
		if w.TenantID == tenantID && w.Trigger == trigger {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *MemoryRepo) AppendLog(ctx context.Context, l ExecutionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, l)
	return nil
}

// Logs returns a copy of the appended execution logs.
func (r *MemoryRepo) Logs() []ExecutionLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ExecutionLog, len(r.logs))
	copy(out, r.logs)
	return out
}
