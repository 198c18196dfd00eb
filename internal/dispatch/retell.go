package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultRetellBaseURL = "https://api.retellai.com"

// RetellProvider places calls through the Retell REST API.
type RetellProvider struct {
	creds  Credentials
	client *http.Client
}

func NewRetellProvider(creds Credentials, client *http.Client) *RetellProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if creds.BaseURL == "" {
		creds.BaseURL = defaultRetellBaseURL
	}
	return &RetellProvider{creds: creds, client: client}
}

func (p *RetellProvider) Name() string { return "retell" }

type retellCallRequest struct {
	AgentID     string            `json:"override_agent_id"`
	FromNumber  string            `json:"from_number,omitempty"`
	ToNumber    string            `json:"to_number"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	DynamicVars map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
}

type retellCallResponse struct {
	CallID string `json:"call_id"`
}

func (p *RetellProvider) Place(ctx context.Context, req PlaceRequest) (PlaceResult, error) {
	body := retellCallRequest{
		AgentID:    req.ExternalAgentID,
		FromNumber: req.FromNumber,
		ToNumber:   req.ToNumber,
		Metadata:   req.Metadata,
	}
	// Retell has no per-call prompt field; experiment overrides ride a dynamic
	// variable the agent prompt template references.
	if req.PromptOverride != "" {
		body.DynamicVars = map[string]string{"prompt_override": req.PromptOverride}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return PlaceResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.creds.BaseURL+"/v2/create-phone-call", bytes.NewReader(payload))
	if err != nil {
		return PlaceResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.creds.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return PlaceResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return PlaceResult{}, &APIError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: string(b)}
	}

	var out retellCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return PlaceResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.CallID == "" {
		return PlaceResult{}, fmt.Errorf("%w: retell call_id missing", ErrMalformedResponse)
	}
	return PlaceResult{CallID: out.CallID}, nil
}

// ListActiveCalls is not exposed by the Retell API surface we integrate with.
func (p *RetellProvider) ListActiveCalls(ctx context.Context) ([]ActiveCall, error) {
	return nil, ErrUnsupported
}
