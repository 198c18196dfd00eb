package calls

import (
	"strconv"
	"time"
)

// Call represents a tenant-scoped voice-agent call.
//
// Multi-tenant invariant: TenantID is required on every row.
//
// NOTE: This is a domain model only. Provider-specific payloads belong in
// ExternalCallID / Metadata, not mixed into provider-agnostic columns.
type Call struct {
	CallID   string `json:"call_id" db:"call_id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	AgentID  string `json:"agent_id" db:"agent_id"`

	// ExternalCallID is the voice provider's id for this call.
	ExternalCallID string `json:"external_call_id,omitempty" db:"external_call_id"`

	From string `json:"from" db:"from"`
	To   string `json:"to" db:"to"`

	Direction Direction  `json:"direction" db:"direction"`
	Status    CallStatus `json:"status" db:"status"`

	ContactName string `json:"contact_name,omitempty" db:"contact_name"`

	// DurationSeconds is the call duration in seconds.
	DurationSeconds int `json:"duration" db:"duration"`

	Transcript   string `json:"transcript,omitempty" db:"transcript"`
	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`

	// EndedReason is the provider's disposition (e.g. "customer-ended-call").
	EndedReason string `json:"ended_reason,omitempty" db:"ended_reason"`

	Metadata map[string]string `json:"metadata,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusCanceled   CallStatus = "canceled"
)

// EventType identifies a call lifecycle event delivered by a provider webhook.
type EventType string

const (
	EventCallStarted        EventType = "call_started"
	EventCallEnded          EventType = "call_ended"
	EventInboundCallStarted EventType = "inbound_call_started"
	EventInboundCallEnded   EventType = "inbound_call_ended"
)

// ValidEventType reports whether t is one of the supported lifecycle events.
func ValidEventType(t EventType) bool {
	switch t {
	case EventCallStarted, EventCallEnded, EventInboundCallStarted, EventInboundCallEnded:
		return true
	}
	return false
}

// Event is one call lifecycle event as seen by the automation pipeline.
type Event struct {
	TenantID   string    `json:"tenant_id"`
	Type       EventType `json:"type"`
	Call       Call      `json:"call"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Attributes flattens the call into the field set workflow conditions match
// against. Keys are stable; renaming one silently breaks stored workflows.
func (c Call) Attributes() map[string]string {
	attrs := map[string]string{
		"call_id":          c.CallID,
		"agent_id":         c.AgentID,
		"external_call_id": c.ExternalCallID,
		"from":             c.From,
		"to":               c.To,
		"direction":        string(c.Direction),
		"status":           string(c.Status),
		"contact_name":     c.ContactName,
		"duration":         strconv.Itoa(c.DurationSeconds),
		"ended_reason":     c.EndedReason,
		"transcript":       c.Transcript,
	}
	for k, v := range c.Metadata {
		attrs["metadata."+k] = v
	}
	return attrs
}
