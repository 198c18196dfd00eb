package schedcalls

import "time"

// ScheduledCall is the lifecycle record for one outbound-call trigger request.
//
// Invariants:
// - TenantID is required on every row.
// - Status initiated/completed implies ExternalCallID is set.
// - TimezoneDelayed=true implies ScheduledAt > OriginalScheduledAt.
// - completed/failed/canceled are terminal; no writes after that.
//
// Lifecycle: created by the trigger handler (pending or scheduled), promoted
// by the dispatch step (-> initiated), finished by the completion webhook
// (-> completed/failed). canceled only via explicit user action.
type ScheduledCall struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	AgentID  string `json:"agent_id" db:"agent_id"`

	ToNumber    string `json:"to_number" db:"to_number"`
	ContactName string `json:"contact_name,omitempty" db:"contact_name"`

	// ScheduledAt is when the call should fire.
	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`

	// OriginalScheduledAt is what the caller asked for, if anything.
	OriginalScheduledAt *time.Time `json:"original_scheduled_at,omitempty" db:"original_scheduled_at"`

	// TimezoneDelayed is true when the system, not the caller, pushed the
	// time out (calling-window policy).
	TimezoneDelayed bool `json:"timezone_delayed" db:"timezone_delayed"`

	// LeadTimezone is the lead's IANA zone, when known.
	LeadTimezone string `json:"lead_timezone,omitempty" db:"lead_timezone"`

	Status Status `json:"status" db:"status"`

	// ExternalCallID is set once the provider accepts the call.
	ExternalCallID string `json:"external_call_id,omitempty" db:"external_call_id"`

	// TriggerSource records provenance: "manual", "automation", "scheduler".
	TriggerSource string `json:"trigger_source,omitempty" db:"trigger_source"`

	// FailureReason is human-readable; set only on failed records.
	FailureReason string `json:"failure_reason,omitempty" db:"failure_reason"`

	// Metadata is merged into the provider call.
	Metadata map[string]string `json:"metadata,omitempty" db:"-"`

	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusInitiated Status = "initiated"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether s accepts no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}
