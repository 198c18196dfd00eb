package agents

import (
	"errors"
	"time"

	"voiceops-platform/internal/callwindow"
)

var (
	ErrNotFound        = errors.New("agents: not found")
	ErrInvalidArgument = errors.New("agents: invalid argument")
)

// Agent is one tenant-scoped voice agent and its outbound-calling policy.
//
// Provider names the upstream voice platform ("vapi" or "retell");
// ExternalAgentID is that platform's id for the assistant.
type Agent struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	Name            string `json:"name" db:"name"`
	Provider        string `json:"provider" db:"provider"`
	ExternalAgentID string `json:"external_agent_id" db:"external_agent_id"`
	FromNumber      string `json:"from_number" db:"from_number"`

	// Window is the agent's calling-window policy. Nil means calls fire
	// whenever triggered.
	Window *callwindow.Window `json:"window,omitempty" db:"-"`

	// DefaultTimezone applies when a lead has no timezone of its own.
	DefaultTimezone string `json:"default_timezone,omitempty" db:"default_timezone"`

	AnalysisEnabled bool `json:"analysis_enabled" db:"analysis_enabled"`

	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (a Agent) validate() error {
	if a.TenantID == "" || a.Name == "" || a.Provider == "" || a.ExternalAgentID == "" {
		return ErrInvalidArgument
	}
	if a.Window != nil {
		if err := a.Window.Validate(); err != nil {
			return err
		}
	}
	return nil
}
