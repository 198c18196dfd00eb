package workflows

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voiceops-platform/internal/calls"
)

// Workflow is a tenant-owned automation: when a call lifecycle event matching
// the trigger (and all conditions) occurs, its actions run in order.
//
// Invariants:
// - TenantID is required; AgentID empty means "all agents in the tenant".
// - Action types come from the closed allow-list below; anything else is
//   rejected when the workflow is saved, not at execution time.
// - A webhook action's URL must pass the egress guard at save time (and is
//   re-checked before every dispatch).
type Workflow struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	AgentID  string `json:"agent_id,omitempty" db:"agent_id"`

	Name    string          `json:"name" db:"name"`
	Trigger calls.EventType `json:"trigger" db:"trigger"`

	Conditions []Condition `json:"conditions" db:"-"`
	Actions    []Action    `json:"actions" db:"-"`

	IsActive bool `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Condition is one field/operator/value triple over call attributes.
// All conditions in a workflow must hold (logical AND) for it to fire.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value,omitempty"`
}

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
)

func validOperator(op Operator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpGreaterThan, OpLessThan, OpExists, OpNotExists:
		return true
	}
	return false
}

// Action is one step of a workflow: a type tag plus type-specific config.
// The taxonomy is closed and versioned; adding a type means touching the
// allow-list, the config decoder, and the executor switch together.
type Action struct {
	Type   ActionType      `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

type ActionType string

const (
	// CRM operations, per provider.
	ActionHubspotUpsertContact ActionType = "hubspot_upsert_contact"
	ActionHubspotLogCall       ActionType = "hubspot_log_call"
	ActionHubspotAddTag        ActionType = "hubspot_add_tag"
	ActionHubspotMovePipeline  ActionType = "hubspot_move_pipeline"
	ActionHubspotAppointment   ActionType = "hubspot_create_appointment"

	ActionGHLUpsertContact ActionType = "ghl_upsert_contact"
	ActionGHLLogCall       ActionType = "ghl_log_call"
	ActionGHLAddTag        ActionType = "ghl_add_tag"
	ActionGHLMovePipeline  ActionType = "ghl_move_pipeline"
	ActionGHLAppointment   ActionType = "ghl_create_appointment"

	// Calendar operations, per provider.
	ActionCalcomBook         ActionType = "calcom_book"
	ActionCalcomCancel       ActionType = "calcom_cancel"
	ActionCalcomAvailability ActionType = "calcom_check_availability"

	ActionGcalBook         ActionType = "gcal_book"
	ActionGcalCancel       ActionType = "gcal_cancel"
	ActionGcalAvailability ActionType = "gcal_check_availability"

	// Generic actions.
	ActionSendSMS   ActionType = "send_sms"
	ActionSendEmail ActionType = "send_email"
	ActionSendSlack ActionType = "send_slack"
	ActionWebhook   ActionType = "webhook"
)

var allowedActionTypes = map[ActionType]struct{}{
	ActionHubspotUpsertContact: {}, ActionHubspotLogCall: {}, ActionHubspotAddTag: {},
	ActionHubspotMovePipeline: {}, ActionHubspotAppointment: {},
	ActionGHLUpsertContact: {}, ActionGHLLogCall: {}, ActionGHLAddTag: {},
	ActionGHLMovePipeline: {}, ActionGHLAppointment: {},
	ActionCalcomBook: {}, ActionCalcomCancel: {}, ActionCalcomAvailability: {},
	ActionGcalBook: {}, ActionGcalCancel: {}, ActionGcalAvailability: {},
	ActionSendSMS: {}, ActionSendEmail: {}, ActionSendSlack: {}, ActionWebhook: {},
}

// WebhookConfig is the recognized config shape for the webhook action.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

var (
	ErrInvalidArgument  = errors.New("workflows: invalid argument")
	ErrNotFound         = errors.New("workflows: not found")
	ErrUnknownAction    = errors.New("workflows: unknown action type")
	ErrUnknownTrigger   = errors.New("workflows: unknown trigger")
	ErrUnknownOperator  = errors.New("workflows: unknown condition operator")
	ErrWebhookURLDenied = errors.New("workflows: webhook url rejected")
)

// Validate enforces write-time rules so execution never meets a malformed
// workflow.
func (w Workflow) Validate() error {
	if w.TenantID == "" || w.Name == "" {
		return ErrInvalidArgument
	}
	if !calls.ValidEventType(w.Trigger) {
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, w.Trigger)
	}
	for _, c := range w.Conditions {
		if c.Field == "" {
			return fmt.Errorf("%w: condition field is empty", ErrInvalidArgument)
		}
		if !validOperator(c.Operator) {
			return fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
		}
	}
	if len(w.Actions) == 0 {
		return fmt.Errorf("%w: workflow has no actions", ErrInvalidArgument)
	}
	for i, a := range w.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks the action type against the allow-list and, for webhook
// actions, decodes and vets the target URL.
func (a Action) Validate() error {
	if _, ok := allowedActionTypes[a.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
	if a.Type == ActionWebhook {
		cfg, err := a.WebhookConfig()
		if err != nil {
			return err
		}
		if err := ValidateWebhookURL(cfg.URL); err != nil {
			return err
		}
	}
	return nil
}

func (a Action) WebhookConfig() (WebhookConfig, error) {
	var cfg WebhookConfig
	if len(a.Config) == 0 {
		return WebhookConfig{}, fmt.Errorf("%w: webhook config missing", ErrInvalidArgument)
	}
	if err := json.Unmarshal(a.Config, &cfg); err != nil {
		return WebhookConfig{}, fmt.Errorf("%w: webhook config: %v", ErrInvalidArgument, err)
	}
	if cfg.URL == "" {
		return WebhookConfig{}, fmt.Errorf("%w: webhook url missing", ErrInvalidArgument)
	}
	return cfg, nil
}

// ExecutionLog is one record per (workflow, triggering call) execution.
// Append-only; never mutated after creation.
type ExecutionLog struct {
	ID         string `json:"id" db:"id"`
	TenantID   string `json:"tenant_id" db:"tenant_id"`
	WorkflowID string `json:"workflow_id" db:"workflow_id"`
	CallID     string `json:"call_id" db:"call_id"`

	Status ExecutionStatus `json:"status" db:"status"`

	ActionResults []ActionResult `json:"action_results" db:"-"`

	ExecutedAt time.Time `json:"executed_at" db:"executed_at"`
}

type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionPartial   ExecutionStatus = "partial"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ActionResult captures one action's outcome inside an execution.
type ActionResult struct {
	Type    ActionType `json:"type"`
	Success bool       `json:"success"`
	Error   string     `json:"error,omitempty"`
}
