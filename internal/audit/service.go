package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records pipeline audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogDelay records that the system pushed a call out past the requested time.
func (s *Service) LogDelay(ctx context.Context, tenantID, agentID, scheduledCallID, reason, message string) error {
	return s.Append(ctx, Event{
		TenantID:        tenantID,
		Type:            EventTypeCallDelayed,
		AgentID:         agentID,
		ScheduledCallID: scheduledCallID,
		Reason:          reason,
		Message:         message,
	})
}

// LogDispatched records a successful provider dispatch.
func (s *Service) LogDispatched(ctx context.Context, tenantID, agentID, scheduledCallID, externalCallID string) error {
	return s.Append(ctx, Event{
		TenantID:        tenantID,
		Type:            EventTypeCallDispatched,
		AgentID:         agentID,
		ScheduledCallID: scheduledCallID,
		ExternalCallID:  externalCallID,
		Message:         "call dispatched",
	})
}

// LogDispatchFailed records a dispatch that exhausted its retry budget.
func (s *Service) LogDispatchFailed(ctx context.Context, tenantID, agentID, scheduledCallID, reason string) error {
	return s.Append(ctx, Event{
		TenantID:        tenantID,
		Type:            EventTypeDispatchFailed,
		AgentID:         agentID,
		ScheduledCallID: scheduledCallID,
		Reason:          "provider_error",
		Message:         reason,
	})
}
