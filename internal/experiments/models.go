package experiments

import "time"

// Experiment is a prompt A/B test owned by exactly one agent in one tenant.
//
// Invariants:
// - Only running experiments are eligible for resolution.
// - An experiment owns at least two variants at creation time, exactly one of
//   which is the control.
// - completed is terminal and records the promoted winner.
type Experiment struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	AgentID  string `json:"agent_id" db:"agent_id"`

	Name   string `json:"name" db:"name"`
	Status Status `json:"status" db:"status"`

	WinnerVariantID string `json:"winner_variant_id,omitempty" db:"winner_variant_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Variant is one arm of an experiment.
//
// TrafficWeight is a non-negative share; weights are not required to sum
// to 100. The control arm uses the agent's existing prompt and carries no
// prompt text of its own.
type Variant struct {
	ID           string `json:"id" db:"id"`
	ExperimentID string `json:"experiment_id" db:"experiment_id"`

	Name          string  `json:"name" db:"name"`
	Prompt        string  `json:"prompt,omitempty" db:"prompt"`
	TrafficWeight float64 `json:"traffic_weight" db:"traffic_weight"`
	IsControl     bool    `json:"is_control" db:"is_control"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Assignment is the transient result of resolving an experiment for one
// dispatch. It is never persisted; the same agent may draw a different
// variant on its next call.
type Assignment struct {
	ExperimentID string `json:"experiment_id"`
	VariantID    string `json:"variant_id"`
	VariantName  string `json:"variant_name"`

	// PromptOverride is empty for the control arm, meaning "use the agent's
	// existing prompt".
	PromptOverride string `json:"prompt_override,omitempty"`
	IsControl      bool   `json:"is_control"`
}
