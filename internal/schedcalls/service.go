package schedcalls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"voiceops-platform/internal/audit"
	"voiceops-platform/internal/callwindow"
	"voiceops-platform/internal/dispatch"
	"voiceops-platform/internal/experiments"
	"voiceops-platform/pkg/logger"
)

// Repository is the persistence contract for scheduled calls.
//
// Tenancy invariant: tenant_id is required and enforced in all queries.
// Conditional updates return (false, nil) when the predicate did not match;
// that is how terminal-status protection and idempotent webhook replays are
// implemented, so repos must not turn a zero-row update into an error.
type Repository interface {
	Create(ctx context.Context, sc ScheduledCall) error
	GetByID(ctx context.Context, tenantID, id string) (ScheduledCall, error)

	// ListDue returns scheduled records whose scheduled_at has passed, across
	// tenants, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]ScheduledCall, error)

	// MarkInitiated promotes a pending/scheduled record and sets its external
	// call id. Returns false if the record was already promoted or terminal.
	MarkInitiated(ctx context.Context, tenantID, id, externalCallID string, at time.Time) (bool, error)

	// MarkFailed fails a non-terminal record with a human-readable reason.
	MarkFailed(ctx context.Context, tenantID, id, reason string, at time.Time) (bool, error)

	// Reschedule pushes a not-yet-dispatched record to a later fire time.
	// Returns false if the record was already promoted or terminal.
	Reschedule(ctx context.Context, tenantID, id string, scheduledAt, at time.Time) (bool, error)

	// CompleteByExternalID moves an initiated record to completed/failed.
	// Returns false when no initiated record matches (unknown id or replay).
	CompleteByExternalID(ctx context.Context, tenantID, externalCallID string, status Status, at time.Time) (bool, error)

	// Cancel cancels a record that has not been dispatched yet.
	Cancel(ctx context.Context, tenantID, id string, at time.Time) (bool, error)
}

// ExperimentResolver picks a prompt override for one dispatch, or nil.
// Satisfied by experiments.Service.
type ExperimentResolver interface {
	Resolve(ctx context.Context, tenantID, agentID string) *experiments.Assignment
}

// AgentRoute is how an agent reaches its voice provider.
type AgentRoute struct {
	Provider        dispatch.Provider
	ExternalAgentID string
	FromNumber      string
}

// ProviderResolver maps a tenant's agent to its provider capability.
// Which provider and credentials apply is tenant configuration, resolved
// outside this package.
type ProviderResolver interface {
	ForAgent(ctx context.Context, tenantID, agentID string) (AgentRoute, error)
}

// Limiter caps concurrent dispatches per tenant. A slot is acquired at the
// dispatch choke point and must balance with exactly one Release: on dispatch
// failure here, or from the webhook path once a completion applies.
type Limiter interface {
	Acquire(ctx context.Context, tenantID string) (bool, error)
	Release(ctx context.Context, tenantID string) error
}

// capRetryInterval is how far a cap-rejected record is pushed out before the
// scheduler re-checks it.
const capRetryInterval = 5 * time.Minute

var (
	ErrInvalidArgument = errors.New("schedcalls: invalid argument")
	ErrNotFound        = errors.New("schedcalls: not found")
)

// Service owns the ScheduledCall state machine.
//
// pending -> {scheduled, initiated} -> {completed, failed}; canceled reachable
// from pending/scheduled only. All transitions funnel through the Repository's
// conditional updates so replays and races collapse to no-ops.
type Service struct {
	repo        Repository
	dispatcher  *dispatch.Dispatcher
	providers   ProviderResolver
	experiments ExperimentResolver
	audit       *audit.Service
	limiter     Limiter

	clock func() time.Time
}

func NewService(repo Repository, d *dispatch.Dispatcher, providers ProviderResolver, exp ExperimentResolver, auditSvc *audit.Service, limiter Limiter) *Service {
	return &Service{
		repo:        repo,
		dispatcher:  d,
		providers:   providers,
		experiments: exp,
		audit:       auditSvc,
		limiter:     limiter,
		clock:       time.Now,
	}
}

// TriggerRequest is one inbound "place a call" request.
type TriggerRequest struct {
	TenantID    string
	AgentID     string
	ToNumber    string
	ContactName string

	// RequestedAt is an explicit future fire time, when the caller asked for
	// one. Nil means "now".
	RequestedAt *time.Time

	// LeadTimezone and Window drive the calling-window check. A nil Window
	// means the agency has no calling-window policy.
	LeadTimezone string
	Window       *callwindow.Window

	TriggerSource string
	Metadata      map[string]string
}

func (r TriggerRequest) validate() error {
	if r.TenantID == "" || r.AgentID == "" || r.ToNumber == "" {
		return ErrInvalidArgument
	}
	return nil
}

// Trigger decides whether the call fires now or later and writes the
// lifecycle record reflecting that decision.
//
// Deferral rules, in order:
// 1. explicit future RequestedAt -> scheduled at that time
// 2. calling window says "not now" -> scheduled at the next valid instant,
//    timezone_delayed=true
// 3. otherwise dispatch immediately; the record reflects the outcome either
//    way (a failed dispatch leaves a failed row, never no row).
func (s *Service) Trigger(ctx context.Context, req TriggerRequest) (ScheduledCall, error) {
	if err := req.validate(); err != nil {
		return ScheduledCall{}, err
	}
	now := s.clock().UTC()

	sc := ScheduledCall{
		ID:            uuid.NewString(),
		TenantID:      req.TenantID,
		AgentID:       req.AgentID,
		ToNumber:      req.ToNumber,
		ContactName:   req.ContactName,
		LeadTimezone:  req.LeadTimezone,
		TriggerSource: req.TriggerSource,
		Metadata:      req.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// 1) Caller asked for a future time.
	if req.RequestedAt != nil && req.RequestedAt.After(now) {
		at := req.RequestedAt.UTC()
		sc.Status = StatusScheduled
		sc.ScheduledAt = at
		sc.OriginalScheduledAt = &at
		if err := s.repo.Create(ctx, sc); err != nil {
			return ScheduledCall{}, err
		}
		return sc, nil
	}

	// 2) Calling-window policy.
	if req.Window != nil {
		ok, err := callwindow.IsWithinWindow(req.LeadTimezone, *req.Window, now)
		if err != nil && !errors.Is(err, callwindow.ErrUnknownTimezone) {
			return ScheduledCall{}, err
		}
		// Unknown timezone fails open: proceed to immediate dispatch.
		if err == nil && !ok {
			next, nerr := callwindow.NextValidInstant(req.LeadTimezone, *req.Window, now)
			if nerr != nil {
				return ScheduledCall{}, nerr
			}
			orig := now
			if req.RequestedAt != nil {
				orig = req.RequestedAt.UTC()
			}
			sc.Status = StatusScheduled
			sc.ScheduledAt = next.UTC()
			sc.OriginalScheduledAt = &orig
			sc.TimezoneDelayed = true
			if err := s.repo.Create(ctx, sc); err != nil {
				return ScheduledCall{}, err
			}
			s.logDelay(ctx, sc, "outside_calling_window",
				fmt.Sprintf("deferred to %s (%s)", sc.ScheduledAt.Format(time.RFC3339), req.LeadTimezone))
			return sc, nil
		}
	}

	// 3) Immediate dispatch. Create the pending row first so a crash
	// mid-dispatch still leaves an auditable record. The concurrency cap is
	// checked inside dispatchRecord so triggered and scheduler-driven
	// dispatches go through the same gate.
	sc.Status = StatusPending
	sc.ScheduledAt = now
	if err := s.repo.Create(ctx, sc); err != nil {
		return ScheduledCall{}, err
	}
	return s.dispatchRecord(ctx, sc)
}

// DispatchDue promotes and dispatches every scheduled record whose fire time
// has passed. Called by the Scheduler; safe to call concurrently because
// MarkInitiated admits exactly one writer per record.
func (s *Service) DispatchDue(ctx context.Context, limit int) (int, error) {
	now := s.clock().UTC()
	due, err := s.repo.ListDue(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	log := logger.From(ctx)

	dispatched := 0
	for _, sc := range due {
		if ctx.Err() != nil {
			return dispatched, ctx.Err()
		}
		out, err := s.dispatchRecord(ctx, sc)
		if err != nil {
			// Record-level failures are already persisted; keep draining.
			log.Warn("due dispatch failed", "scheduled_call_id", sc.ID, "err", err)
			continue
		}
		// Cap-rejected records come back still scheduled; only count real
		// promotions.
		if out.Status == StatusInitiated {
			dispatched++
		}
	}
	return dispatched, nil
}

// dispatchRecord places the provider call for one record and writes the
// outcome. It is the single choke point for the tenant concurrency cap, so
// triggered and scheduler-driven dispatches account identically. Experiment
// resolution is best-effort and never blocks dispatch.
func (s *Service) dispatchRecord(ctx context.Context, sc ScheduledCall) (ScheduledCall, error) {
	now := s.clock().UTC()
	log := logger.From(ctx)

	holding := false
	if s.limiter != nil {
		acquired, err := s.limiter.Acquire(ctx, sc.TenantID)
		switch {
		case err != nil:
			log.Warn("concurrency cap check failed, dispatching anyway", "tenant_id", sc.TenantID, "err", err)
		case !acquired:
			return s.deferForCap(ctx, sc, now)
		default:
			holding = true
		}
	}

	route, err := s.providers.ForAgent(ctx, sc.TenantID, sc.AgentID)
	if err != nil {
		s.releaseSlot(ctx, sc.TenantID, holding)
		return s.failRecord(ctx, sc, fmt.Sprintf("provider resolution failed: %v", err))
	}

	placeReq := dispatch.PlaceRequest{
		ExternalAgentID: route.ExternalAgentID,
		ToNumber:        sc.ToNumber,
		FromNumber:      route.FromNumber,
		Metadata:        mergeMetadata(sc),
	}
	if s.experiments != nil {
		if a := s.experiments.Resolve(ctx, sc.TenantID, sc.AgentID); a != nil {
			placeReq.PromptOverride = a.PromptOverride
			placeReq.Metadata["experiment_id"] = a.ExperimentID
			placeReq.Metadata["variant_id"] = a.VariantID
		}
	}

	res, err := s.dispatcher.Place(ctx, route.Provider, placeReq)
	if err != nil {
		// No call is in flight, so the slot goes back immediately instead of
		// waiting out the TTL.
		s.releaseSlot(ctx, sc.TenantID, holding)
		return s.failRecord(ctx, sc, fmt.Sprintf("dispatch failed: %v", err))
	}

	promoted, err := s.repo.MarkInitiated(ctx, sc.TenantID, sc.ID, res.CallID, now)
	if err != nil {
		return ScheduledCall{}, err
	}
	if !promoted {
		// Lost the race to another writer; the provider call above is the
		// duplicate. Surface it for ops rather than hiding it.
		log.Warn("scheduled call promoted elsewhere, duplicate provider call placed",
			"scheduled_call_id", sc.ID, "external_call_id", res.CallID)
		return s.repo.GetByID(ctx, sc.TenantID, sc.ID)
	}

	if s.audit != nil {
		if aerr := s.audit.LogDispatched(ctx, sc.TenantID, sc.AgentID, sc.ID, res.CallID); aerr != nil {
			log.Warn("audit append failed", "err", aerr)
		}
	}

	sc.Status = StatusInitiated
	sc.ExternalCallID = res.CallID
	sc.UpdatedAt = now
	return sc, nil
}

// deferForCap pushes a cap-rejected record out one re-check interval; the
// scheduler picks it up again instead of the call being dropped.
func (s *Service) deferForCap(ctx context.Context, sc ScheduledCall, now time.Time) (ScheduledCall, error) {
	at := now.Add(capRetryInterval)
	moved, err := s.repo.Reschedule(ctx, sc.TenantID, sc.ID, at, now)
	if err != nil {
		return ScheduledCall{}, err
	}
	if !moved {
		// Promoted or canceled by another writer in the meantime.
		return s.repo.GetByID(ctx, sc.TenantID, sc.ID)
	}
	s.logDelay(ctx, sc, "concurrency_cap", "tenant concurrent-call limit reached")
	sc.Status = StatusScheduled
	sc.ScheduledAt = at
	sc.UpdatedAt = now
	return sc, nil
}

func (s *Service) releaseSlot(ctx context.Context, tenantID string, holding bool) {
	if !holding || s.limiter == nil {
		return
	}
	if err := s.limiter.Release(ctx, tenantID); err != nil {
		logger.From(ctx).Warn("concurrency slot release failed", "tenant_id", tenantID, "err", err)
	}
}

func (s *Service) failRecord(ctx context.Context, sc ScheduledCall, reason string) (ScheduledCall, error) {
	now := s.clock().UTC()
	if _, err := s.repo.MarkFailed(ctx, sc.TenantID, sc.ID, reason, now); err != nil {
		return ScheduledCall{}, err
	}
	if s.audit != nil {
		_ = s.audit.LogDispatchFailed(ctx, sc.TenantID, sc.AgentID, sc.ID, reason)
	}
	sc.Status = StatusFailed
	sc.FailureReason = reason
	sc.UpdatedAt = now
	return sc, fmt.Errorf("schedcalls: %s", reason)
}

// Complete applies a completion webhook, matched by external call id.
// Replayed webhooks are absorbed: completing an already-terminal record is a
// no-op, not an error. The returned bool reports whether this delivery moved
// an initiated record to a terminal state; callers release the tenant's
// concurrency slot only when it did.
func (s *Service) Complete(ctx context.Context, tenantID, externalCallID string, success bool) (bool, error) {
	if tenantID == "" || externalCallID == "" {
		return false, ErrInvalidArgument
	}
	status := StatusCompleted
	if !success {
		status = StatusFailed
	}
	applied, err := s.repo.CompleteByExternalID(ctx, tenantID, externalCallID, status, s.clock().UTC())
	if err != nil {
		return false, err
	}
	if !applied {
		logger.From(ctx).Debug("completion replay absorbed", "external_call_id", externalCallID)
	}
	return applied, nil
}

// Get returns one record scoped to the tenant.
func (s *Service) Get(ctx context.Context, tenantID, id string) (ScheduledCall, error) {
	if tenantID == "" || id == "" {
		return ScheduledCall{}, ErrInvalidArgument
	}
	return s.repo.GetByID(ctx, tenantID, id)
}

// Cancel cancels a not-yet-dispatched record on explicit user action.
func (s *Service) Cancel(ctx context.Context, tenantID, id string) error {
	if tenantID == "" || id == "" {
		return ErrInvalidArgument
	}
	canceled, err := s.repo.Cancel(ctx, tenantID, id, s.clock().UTC())
	if err != nil {
		return err
	}
	if !canceled {
		return ErrNotFound
	}
	return nil
}

func (s *Service) logDelay(ctx context.Context, sc ScheduledCall, reason, message string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogDelay(ctx, sc.TenantID, sc.AgentID, sc.ID, reason, message); err != nil {
		logger.From(ctx).Warn("audit append failed", "err", err)
	}
}

func mergeMetadata(sc ScheduledCall) map[string]string {
	md := map[string]string{
		"scheduled_call_id": sc.ID,
		"tenant_id":         sc.TenantID,
		"agent_id":          sc.AgentID,
	}
	if sc.TriggerSource != "" {
		md["trigger_source"] = sc.TriggerSource
	}
	for k, v := range sc.Metadata {
		md[k] = v
	}
	return md
}
