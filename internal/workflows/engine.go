package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"voiceops-platform/internal/calls"
	"voiceops-platform/pkg/logger"
)

// Repository is the persistence contract for workflows and execution logs.
//
// Tenancy invariant: tenant_id is required and enforced in all queries.
// AppendLog MUST be append-only; execution logs are never mutated.
type Repository interface {
	Save(ctx context.Context, w Workflow) error
	GetByID(ctx context.Context, tenantID, id string) (Workflow, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Workflow, error)
	ListByTrigger(ctx context.Context, tenantID string, trigger calls.EventType) ([]Workflow, error)
	AppendLog(ctx context.Context, l ExecutionLog) error
}

const defaultActionTimeout = 15 * time.Second

// Engine matches workflows to call lifecycle events and executes their
// actions.
//
// Isolation rules:
// - actions run strictly in stored order within one workflow
// - one action failing does not stop later actions in the same workflow
// - one workflow failing does not stop other matching workflows
// - every action outcome is appended to the execution log
// - each action runs under its own timeout; a hung external call cannot
//   stall the rest of the workflow past that timeout
type Engine struct {
	repo Repository
	caps Capabilities

	// httpClient serves webhook actions only.
	httpClient    *http.Client
	actionTimeout time.Duration

	// urlCheck vets webhook targets at dispatch time.
	urlCheck func(string) error

	clock func() time.Time
}

func NewEngine(repo Repository, caps Capabilities, httpClient *http.Client) *Engine {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultActionTimeout}
	}
	return &Engine{
		repo:          repo,
		caps:          caps,
		httpClient:    httpClient,
		actionTimeout: defaultActionTimeout,
		urlCheck:      ValidateWebhookURL,
		clock:         time.Now,
	}
}

// Save validates and persists a workflow. Unknown action types and
// SSRF-blocked webhook URLs are rejected here, synchronously.
func (e *Engine) Save(ctx context.Context, w Workflow) (Workflow, error) {
	if err := w.Validate(); err != nil {
		return Workflow{}, err
	}
	now := e.clock().UTC()
	if w.ID == "" {
		w.ID = uuid.NewString()
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	if err := e.repo.Save(ctx, w); err != nil {
		return Workflow{}, err
	}
	return w, nil
}

// List returns all workflows for a tenant, active or not.
func (e *Engine) List(ctx context.Context, tenantID string) ([]Workflow, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	return e.repo.ListByTenant(ctx, tenantID)
}

// Get returns one workflow scoped to the tenant.
func (e *Engine) Get(ctx context.Context, tenantID, id string) (Workflow, error) {
	if tenantID == "" || id == "" {
		return Workflow{}, ErrInvalidArgument
	}
	return e.repo.GetByID(ctx, tenantID, id)
}

// HandleEvent runs every matching active workflow for the event. Matching:
// trigger equals the event type, and the workflow is either tenant-wide
// (empty agent id) or scoped to the call's agent.
func (e *Engine) HandleEvent(ctx context.Context, ev calls.Event) error {
	if ev.TenantID == "" || !calls.ValidEventType(ev.Type) {
		return ErrInvalidArgument
	}
	log := logger.From(ctx)

	matched, err := e.repo.ListByTrigger(ctx, ev.TenantID, ev.Type)
	if err != nil {
		return fmt.Errorf("workflows: list by trigger: %w", err)
	}

	attrs := ev.Call.Attributes()
	for _, w := range matched {
		if !w.IsActive {
			continue
		}
		if w.AgentID != "" && w.AgentID != ev.Call.AgentID {
			continue
		}
		if !EvaluateConditions(w.Conditions, attrs) {
			continue
		}
		// Workflow isolation: a panic or log-append failure in one workflow
		// must not stop the rest.
		e.runWorkflow(ctx, w, ev, log)
	}
	return nil
}

func (e *Engine) runWorkflow(ctx context.Context, w Workflow, ev calls.Event, log *slog.Logger) {
	results := make([]ActionResult, 0, len(w.Actions))
	failures := 0

	for _, a := range w.Actions {
		err := e.executeAction(ctx, w.TenantID, a, ev.Call)
		r := ActionResult{Type: a.Type, Success: err == nil}
		if err != nil {
			r.Error = err.Error()
			failures++
			log.Warn("workflow action failed",
				"workflow_id", w.ID, "action", a.Type, "call_id", ev.Call.CallID, "err", err)
		}
		results = append(results, r)
	}

	status := ExecutionSucceeded
	switch {
	case failures == len(w.Actions) && failures > 0:
		status = ExecutionFailed
	case failures > 0:
		status = ExecutionPartial
	}

	entry := ExecutionLog{
		ID:            uuid.NewString(),
		TenantID:      w.TenantID,
		WorkflowID:    w.ID,
		CallID:        ev.Call.CallID,
		Status:        status,
		ActionResults: results,
		ExecutedAt:    e.clock().UTC(),
	}
	if err := e.repo.AppendLog(ctx, entry); err != nil {
		log.Warn("workflow execution log append failed", "workflow_id", w.ID, "err", err)
	}
}

// executeAction dispatches one action under its own timeout. The switch is
// exhaustive over the allow-list; an unlisted type can only appear if a row
// predates a taxonomy change, and fails cleanly.
func (e *Engine) executeAction(ctx context.Context, tenantID string, a Action, call calls.Call) error {
	actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	switch a.Type {
	case ActionHubspotUpsertContact, ActionHubspotLogCall, ActionHubspotAddTag,
		ActionHubspotMovePipeline, ActionHubspotAppointment:
		return e.executeCRM(actionCtx, tenantID, "hubspot", a, call)

	case ActionGHLUpsertContact, ActionGHLLogCall, ActionGHLAddTag,
		ActionGHLMovePipeline, ActionGHLAppointment:
		return e.executeCRM(actionCtx, tenantID, "ghl", a, call)

	case ActionCalcomBook, ActionCalcomCancel, ActionCalcomAvailability:
		return e.executeCalendar(actionCtx, tenantID, "calcom", a, call)

	case ActionGcalBook, ActionGcalCancel, ActionGcalAvailability:
		return e.executeCalendar(actionCtx, tenantID, "gcal", a, call)

	case ActionSendSMS, ActionSendEmail, ActionSendSlack:
		return e.executeMessaging(actionCtx, tenantID, a, call)

	case ActionWebhook:
		return e.executeWebhook(actionCtx, a, call)
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
}

type crmConfig struct {
	Tag        string `json:"tag,omitempty"`
	PipelineID string `json:"pipeline_id,omitempty"`
	StageID    string `json:"stage_id,omitempty"`
	CalendarID string `json:"calendar_id,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

func (e *Engine) executeCRM(ctx context.Context, tenantID, provider string, a Action, call calls.Call) error {
	client, ok := e.caps.CRM[provider]
	if !ok || client == nil {
		return fmt.Errorf("workflows: crm %q not connected", provider)
	}
	var cfg crmConfig
	if len(a.Config) > 0 {
		if err := json.Unmarshal(a.Config, &cfg); err != nil {
			return fmt.Errorf("%w: crm config: %v", ErrInvalidArgument, err)
		}
	}
	contactPhone := call.To
	if call.Direction == calls.DirectionInbound {
		contactPhone = call.From
	}

	switch a.Type {
	case ActionHubspotUpsertContact, ActionGHLUpsertContact:
		return client.UpsertContact(ctx, tenantID, Contact{Phone: contactPhone, Name: call.ContactName})
	case ActionHubspotLogCall, ActionGHLLogCall:
		summary := cfg.Summary
		if summary == "" {
			summary = "Call handled by agent " + call.AgentID
		}
		return client.LogCall(ctx, tenantID, CallNote{
			ContactPhone:    contactPhone,
			Summary:         summary,
			DurationSeconds: call.DurationSeconds,
			RecordingURL:    call.RecordingURL,
		})
	case ActionHubspotAddTag, ActionGHLAddTag:
		if cfg.Tag == "" {
			return fmt.Errorf("%w: tag missing", ErrInvalidArgument)
		}
		return client.AddTag(ctx, tenantID, contactPhone, cfg.Tag)
	case ActionHubspotMovePipeline, ActionGHLMovePipeline:
		if cfg.PipelineID == "" || cfg.StageID == "" {
			return fmt.Errorf("%w: pipeline/stage missing", ErrInvalidArgument)
		}
		return client.MovePipeline(ctx, tenantID, contactPhone, cfg.PipelineID, cfg.StageID)
	case ActionHubspotAppointment, ActionGHLAppointment:
		return client.CreateAppointment(ctx, tenantID, contactPhone, cfg.CalendarID, e.clock().UTC())
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
}

type calendarConfig struct {
	EventTypeID string `json:"event_type_id,omitempty"`
	BookingID   string `json:"booking_id,omitempty"`
}

func (e *Engine) executeCalendar(ctx context.Context, tenantID, provider string, a Action, call calls.Call) error {
	client, ok := e.caps.Calendar[provider]
	if !ok || client == nil {
		return fmt.Errorf("workflows: calendar %q not connected", provider)
	}
	var cfg calendarConfig
	if len(a.Config) > 0 {
		if err := json.Unmarshal(a.Config, &cfg); err != nil {
			return fmt.Errorf("%w: calendar config: %v", ErrInvalidArgument, err)
		}
	}

	switch a.Type {
	case ActionCalcomBook, ActionGcalBook:
		return client.Book(ctx, tenantID, Booking{
			ContactPhone: call.To,
			ContactName:  call.ContactName,
			EventTypeID:  cfg.EventTypeID,
			At:           e.clock().UTC(),
		})
	case ActionCalcomCancel, ActionGcalCancel:
		if cfg.BookingID == "" {
			return fmt.Errorf("%w: booking_id missing", ErrInvalidArgument)
		}
		return client.Cancel(ctx, tenantID, cfg.BookingID)
	case ActionCalcomAvailability, ActionGcalAvailability:
		_, err := client.CheckAvailability(ctx, tenantID, cfg.EventTypeID, e.clock().UTC())
		return err
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
}

type messagingConfig struct {
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
	Channel string `json:"channel,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *Engine) executeMessaging(ctx context.Context, tenantID string, a Action, call calls.Call) error {
	if e.caps.Messaging == nil {
		return errors.New("workflows: messaging not connected")
	}
	var cfg messagingConfig
	if len(a.Config) > 0 {
		if err := json.Unmarshal(a.Config, &cfg); err != nil {
			return fmt.Errorf("%w: messaging config: %v", ErrInvalidArgument, err)
		}
	}

	switch a.Type {
	case ActionSendSMS:
		to := cfg.To
		if to == "" {
			to = call.To
		}
		return e.caps.Messaging.SendSMS(ctx, tenantID, to, cfg.Body)
	case ActionSendEmail:
		if cfg.To == "" {
			return fmt.Errorf("%w: email recipient missing", ErrInvalidArgument)
		}
		return e.caps.Messaging.SendEmail(ctx, tenantID, cfg.To, cfg.Subject, cfg.Body)
	case ActionSendSlack:
		return e.caps.Messaging.SendSlack(ctx, tenantID, cfg.Channel, cfg.Message)
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
}

// executeWebhook re-vets the URL before every dispatch. The stored workflow
// passed validation at save time, but the taxonomy of blocked targets can
// tighten between then and now.
func (e *Engine) executeWebhook(ctx context.Context, a Action, call calls.Call) error {
	cfg, err := a.WebhookConfig()
	if err != nil {
		return err
	}
	if err := e.urlCheck(cfg.URL); err != nil {
		return err
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if len(cfg.Body) > 0 {
		body = bytes.NewReader(cfg.Body)
	} else {
		payload, merr := json.Marshal(call)
		if merr != nil {
			return merr
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("workflows: webhook returned %d", resp.StatusCode)
	}
	return nil
}
