package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedResponse marks a 2xx provider response whose body could not be
// decoded. Never retried: the request made it through, the payload is broken.
var ErrMalformedResponse = errors.New("dispatch: malformed provider response")

// Provider defines the provider-agnostic "place a call" capability.
//
// Rules:
// - No provider SDK calls outside dispatch adapters.
// - Which provider, credentials, and agent mapping to use is resolved by the
//   caller; this package only owns the dispatch envelope.
// - Keep request/response types provider-agnostic; raw provider payloads stay
//   inside the adapter.
type Provider interface {
	Name() string

	Place(ctx context.Context, req PlaceRequest) (PlaceResult, error)

	// ListActiveCalls returns in-flight calls for providers that support the
	// query. Adapters without support return ErrUnsupported.
	ListActiveCalls(ctx context.Context) ([]ActiveCall, error)
}

// PlaceRequest describes one outbound call to place.
type PlaceRequest struct {
	// ExternalAgentID is the provider's id for the voice agent.
	ExternalAgentID string `json:"external_agent_id"`

	// ToNumber is E.164 where possible.
	ToNumber   string `json:"to_number"`
	FromNumber string `json:"from_number,omitempty"`

	// PromptOverride replaces the agent's configured prompt for this call
	// (experiment variants). Empty means "use the live prompt".
	PromptOverride string `json:"prompt_override,omitempty"`

	// Metadata is merged into the provider call and echoed back on webhooks.
	Metadata map[string]string `json:"metadata,omitempty"`
}

type PlaceResult struct {
	// CallID is the provider's id for the placed call.
	CallID string `json:"call_id"`
}

type ActiveCall struct {
	CallID    string    `json:"call_id"`
	ToNumber  string    `json:"to_number"`
	StartedAt time.Time `json:"started_at"`
}

// Credentials carries provider API access. DSN-like; never log it.
type Credentials struct {
	APIKey  string
	BaseURL string
}

// APIError is a non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dispatch: %s returned %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the response indicates a transient condition.
// Everything outside this set (other 4xx, malformed payloads) fails fast.
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
