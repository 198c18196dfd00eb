package calls

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("calls: not found")

// Repository persists call records. Upsert keys on (tenant_id,
// external_call_id) so started/ended webhooks for the same call collapse
// into one row.
type Repository interface {
	Upsert(ctx context.Context, c Call) error
	GetByExternalID(ctx context.Context, tenantID, externalCallID string) (Call, error)
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]Call, error)
	ListByRange(ctx context.Context, tenantID string, from, to time.Time) ([]Call, error)
}

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu    sync.Mutex
	calls map[string]Call
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{calls: make(map[string]Call)}
}

func key(tenantID, externalCallID string) string { return tenantID + "/" + externalCallID }

func (r *MemoryRepo) Upsert(ctx context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(c.TenantID, c.ExternalCallID)
	if prev, ok := r.calls[k]; ok {
		c.CallID = prev.CallID
		c.CreatedAt = prev.CreatedAt
	}
	r.calls[k] = c
	return nil
}

func (r *MemoryRepo) GetByExternalID(ctx context.Context, tenantID, externalCallID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[key(tenantID, externalCallID)]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) ListByRange(ctx context.Context, tenantID string, from, to time.Time) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.TenantID == tenantID && !c.CreatedAt.Before(from) && c.CreatedAt.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListByTenant(ctx context.Context, tenantID string, limit int) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
