package audit

import "time"

// Event is an immutable, append-only audit log record for the outbound
// pipeline: why a call was delayed, when it was dispatched, why it failed.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required for tenancy isolation.
// - Callers treat audit logging as best-effort; never block a dispatch on it.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: partition by time for retention.
type Event struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	AgentID         string `json:"agent_id,omitempty" db:"agent_id"`
	ScheduledCallID string `json:"scheduled_call_id,omitempty" db:"scheduled_call_id"`
	ExternalCallID  string `json:"external_call_id,omitempty" db:"external_call_id"`

	// Reason is a short machine-friendly tag ("outside_calling_window",
	// "concurrency_cap", "provider_error").
	Reason string `json:"reason,omitempty" db:"reason"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallDelayed    EventType = "call_delayed"
	EventTypeCallDispatched EventType = "call_dispatched"
	EventTypeDispatchFailed EventType = "call_dispatch_failed"
)
