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

const defaultVapiBaseURL = "https://api.vapi.ai"

// VapiProvider places calls through the Vapi REST API.
type VapiProvider struct {
	creds  Credentials
	client *http.Client
}

func NewVapiProvider(creds Credentials, client *http.Client) *VapiProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if creds.BaseURL == "" {
		creds.BaseURL = defaultVapiBaseURL
	}
	return &VapiProvider{creds: creds, client: client}
}

func (p *VapiProvider) Name() string { return "vapi" }

type vapiCallRequest struct {
	AssistantID string `json:"assistantId"`
	Customer    struct {
		Number string `json:"number"`
		Name   string `json:"name,omitempty"`
	} `json:"customer"`
	PhoneNumber *struct {
		Number string `json:"number"`
	} `json:"phoneNumber,omitempty"`
	AssistantOverrides *struct {
		FirstMessageMode string `json:"firstMessageMode,omitempty"`
		Model            *struct {
			SystemPrompt string `json:"systemPrompt,omitempty"`
		} `json:"model,omitempty"`
	} `json:"assistantOverrides,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type vapiCallResponse struct {
	ID string `json:"id"`
}

func (p *VapiProvider) Place(ctx context.Context, req PlaceRequest) (PlaceResult, error) {
	body := vapiCallRequest{AssistantID: req.ExternalAgentID, Metadata: req.Metadata}
	body.Customer.Number = req.ToNumber
	if req.FromNumber != "" {
		body.PhoneNumber = &struct {
			Number string `json:"number"`
		}{Number: req.FromNumber}
	}
	if req.PromptOverride != "" {
		ov := &struct {
			FirstMessageMode string `json:"firstMessageMode,omitempty"`
			Model            *struct {
				SystemPrompt string `json:"systemPrompt,omitempty"`
			} `json:"model,omitempty"`
		}{}
		ov.Model = &struct {
			SystemPrompt string `json:"systemPrompt,omitempty"`
		}{SystemPrompt: req.PromptOverride}
		body.AssistantOverrides = ov
	}

	var out vapiCallResponse
	if err := p.post(ctx, "/call", body, &out); err != nil {
		return PlaceResult{}, err
	}
	if out.ID == "" {
		return PlaceResult{}, fmt.Errorf("%w: vapi call id missing", ErrMalformedResponse)
	}
	return PlaceResult{CallID: out.ID}, nil
}

func (p *VapiProvider) ListActiveCalls(ctx context.Context) ([]ActiveCall, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.creds.BaseURL+"/call?status=in-progress", nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.creds.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, p.apiError(resp)
	}

	var raw []struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"createdAt"`
		Customer  struct {
			Number string `json:"number"`
		} `json:"customer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	out := make([]ActiveCall, 0, len(raw))
	for _, c := range raw {
		out = append(out, ActiveCall{CallID: c.ID, ToNumber: c.Customer.Number, StartedAt: c.CreatedAt})
	}
	return out, nil
}

func (p *VapiProvider) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.creds.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.creds.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return p.apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func (p *VapiProvider) apiError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return &APIError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: string(b)}
}
