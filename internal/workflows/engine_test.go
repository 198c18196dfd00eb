package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"voiceops-platform/internal/calls"
)

type stubMessaging struct {
	smsErr error
	sent   []string
}

func (s *stubMessaging) SendSMS(ctx context.Context, tenantID, toNumber, body string) error {
	if s.smsErr != nil {
		return s.smsErr
	}
	s.sent = append(s.sent, "sms:"+toNumber)
	return nil
}

func (s *stubMessaging) SendEmail(ctx context.Context, tenantID, toAddress, subject, body string) error {
	s.sent = append(s.sent, "email:"+toAddress)
	return nil
}

func (s *stubMessaging) SendSlack(ctx context.Context, tenantID, channel, message string) error {
	s.sent = append(s.sent, "slack:"+channel)
	return nil
}

type stubCRM struct {
	calls []string
	err   error
}

func (s *stubCRM) UpsertContact(ctx context.Context, tenantID string, c Contact) error {
	s.calls = append(s.calls, "upsert:"+c.Phone)
	return s.err
}
func (s *stubCRM) LogCall(ctx context.Context, tenantID string, n CallNote) error {
	s.calls = append(s.calls, "log:"+n.ContactPhone)
	return s.err
}
func (s *stubCRM) AddTag(ctx context.Context, tenantID, contactPhone, tag string) error {
	s.calls = append(s.calls, "tag:"+tag)
	return s.err
}
func (s *stubCRM) MovePipeline(ctx context.Context, tenantID, contactPhone, pipelineID, stageID string) error {
	s.calls = append(s.calls, "pipeline:"+pipelineID)
	return s.err
}
func (s *stubCRM) CreateAppointment(ctx context.Context, tenantID, contactPhone, calendarID string, at time.Time) error {
	s.calls = append(s.calls, "appointment:"+calendarID)
	return s.err
}

func endedEvent() calls.Event {
	return calls.Event{
		TenantID: "t1",
		Type:     calls.EventCallEnded,
		Call: calls.Call{
			CallID:          "c1",
			TenantID:        "t1",
			AgentID:         "a1",
			To:              "+15551230000",
			Direction:       calls.DirectionOutbound,
			Status:          calls.CallStatusCompleted,
			DurationSeconds: 120,
		},
		OccurredAt: time.Now().UTC(),
	}
}

func mustSave(t *testing.T, e *Engine, w Workflow) Workflow {
	t.Helper()
	saved, err := e.Save(context.Background(), w)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return saved
}

func TestSave_RejectsUnknownActionType(t *testing.T) {
	e := NewEngine(NewMemoryRepo(), Capabilities{}, nil)
	_, err := e.Save(context.Background(), Workflow{
		TenantID: "t1", Name: "bad", Trigger: calls.EventCallEnded, IsActive: true,
		Actions: []Action{{Type: "rm_rf_slash"}},
	})
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestSave_RejectsMetadataWebhookAcceptsPublic(t *testing.T) {
	e := NewEngine(NewMemoryRepo(), Capabilities{}, nil)

	cfg, _ := json.Marshal(WebhookConfig{URL: "http://169.254.169.254/latest/meta-data/"})
	_, err := e.Save(context.Background(), Workflow{
		TenantID: "t1", Name: "exfil", Trigger: calls.EventCallEnded, IsActive: true,
		Actions: []Action{{Type: ActionWebhook, Config: cfg}},
	})
	if !errors.Is(err, ErrWebhookURLDenied) {
		t.Fatalf("expected ErrWebhookURLDenied, got %v", err)
	}

	ok, _ := json.Marshal(WebhookConfig{URL: "https://hooks.example.com/abc"})
	if _, err := e.Save(context.Background(), Workflow{
		TenantID: "t1", Name: "notify", Trigger: calls.EventCallEnded, IsActive: true,
		Actions: []Action{{Type: ActionWebhook, Config: ok}},
	}); err != nil {
		t.Fatalf("public URL should save: %v", err)
	}
}

func TestHandleEvent_ActionIsolationAndOrder(t *testing.T) {
	repo := NewMemoryRepo()
	msg := &stubMessaging{smsErr: errors.New("sms gateway down")}
	crm := &stubCRM{}
	e := NewEngine(repo, Capabilities{
		CRM:       map[string]CRMClient{"hubspot": crm},
		Messaging: msg,
	}, nil)

	mustSave(t, e, Workflow{
		TenantID: "t1", Name: "post-call", Trigger: calls.EventCallEnded, IsActive: true,
		Actions: []Action{
			{Type: ActionSendSMS},              // fails
			{Type: ActionHubspotUpsertContact}, // must still run
			{Type: ActionHubspotLogCall},       // must still run
		},
	})

	if err := e.HandleEvent(context.Background(), endedEvent()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if len(crm.calls) != 2 || crm.calls[0] != "upsert:+15551230000" || crm.calls[1] != "log:+15551230000" {
		t.Fatalf("later actions must run in order after a failure, got %v", crm.calls)
	}

	logs := repo.Logs()
	if len(logs) != 1 {
		t.Fatalf("expected one execution log, got %d", len(logs))
	}
	l := logs[0]
	if l.Status != ExecutionPartial {
		t.Fatalf("expected partial status, got %q", l.Status)
	}
	if len(l.ActionResults) != 3 {
		t.Fatalf("every action outcome must be logged, got %d", len(l.ActionResults))
	}
	if l.ActionResults[0].Success || l.ActionResults[0].Error == "" {
		t.Fatalf("first action should be a recorded failure: %+v", l.ActionResults[0])
	}
	if !l.ActionResults[1].Success || !l.ActionResults[2].Success {
		t.Fatalf("remaining actions should succeed: %+v", l.ActionResults)
	}
}

func TestHandleEvent_WorkflowIsolation(t *testing.T) {
	repo := NewMemoryRepo()
	msg := &stubMessaging{smsErr: errors.New("down")}
	e := NewEngine(repo, Capabilities{Messaging: msg}, nil)

	mustSave(t, e, Workflow{
		TenantID: "t1", Name: "first", Trigger: calls.EventCallEnded, IsActive: true,
		Actions: []Action{{Type: ActionSendSMS}},
	})
	mustSave(t, e, Workflow{
		TenantID: "t1", Name: "second", Trigger: calls.EventCallEnded, IsActive: true,
		Actions: []Action{{Type: ActionSendSlack, Config: json.RawMessage(`{"channel":"#ops","message":"done"}`)}},
	})

	if err := e.HandleEvent(context.Background(), endedEvent()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(repo.Logs()) != 2 {
		t.Fatalf("both workflows must execute and log, got %d logs", len(repo.Logs()))
	}
	found := false
	for _, s := range msg.sent {
		if s == "slack:#ops" {
			found = true
		}
	}
	if !found {
		t.Fatalf("second workflow must run despite first failing, sent=%v", msg.sent)
	}
}

func TestHandleEvent_MatchingRules(t *testing.T) {
	repo := NewMemoryRepo()
	msg := &stubMessaging{}
	e := NewEngine(repo, Capabilities{Messaging: msg}, nil)

	// Wrong trigger: never fires.
	mustSave(t, e, Workflow{
		TenantID: "t1", Name: "on-start", Trigger: calls.EventCallStarted, IsActive: true,
		Actions: []Action{{Type: ActionSendSlack}},
	})
	// Other agent: never fires.
	mustSave(t, e, Workflow{
		TenantID: "t1", Name: "other-agent", Trigger: calls.EventCallEnded, AgentID: "a2", IsActive: true,
		Actions: []Action{{Type: ActionSendSlack}},
	})
	// Inactive: never fires.
	w := mustSave(t, e, Workflow{
		TenantID: "t1", Name: "disabled", Trigger: calls.EventCallEnded, IsActive: true,
		Actions: []Action{{Type: ActionSendSlack}},
	})
	w.IsActive = false
	mustSave(t, e, w)
	// Condition mismatch: never fires.
	mustSave(t, e, Workflow{
		TenantID: "t1", Name: "short-calls-only", Trigger: calls.EventCallEnded, IsActive: true,
		Conditions: []Condition{{Field: "duration", Operator: OpLessThan, Value: "30"}},
		Actions:    []Action{{Type: ActionSendSlack}},
	})
	// Agent-scoped match: fires.
	mustSave(t, e, Workflow{
		TenantID: "t1", Name: "agent-scoped", Trigger: calls.EventCallEnded, AgentID: "a1", IsActive: true,
		Actions: []Action{{Type: ActionSendSMS}},
	})

	if err := e.HandleEvent(context.Background(), endedEvent()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(msg.sent) != 1 || msg.sent[0] != "sms:+15551230000" {
		t.Fatalf("exactly the agent-scoped workflow should fire, sent=%v", msg.sent)
	}
}

func TestHandleEvent_WebhookDispatchAndTimeout(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hang := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect and
		// cancels r.Context(); otherwise hang.Close() deadlocks in teardown.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer hang.Close()

	repo := NewMemoryRepo()
	e := NewEngine(repo, Capabilities{}, srv.Client())
	e.actionTimeout = 100 * time.Millisecond
	// httptest binds loopback, which the production URL vet correctly blocks.
	e.urlCheck = func(string) error { return nil }

	hangCfg, _ := json.Marshal(WebhookConfig{URL: hang.URL})
	okCfg, _ := json.Marshal(WebhookConfig{URL: srv.URL, Method: http.MethodPost})
	if err := repo.Save(context.Background(), Workflow{
		ID: "wf-hooks", TenantID: "t1", Name: "hooks", Trigger: calls.EventCallEnded, IsActive: true,
		Actions: []Action{
			{Type: ActionWebhook, Config: hangCfg}, // times out
			{Type: ActionWebhook, Config: okCfg},   // must still run
		},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	start := time.Now()
	if err := e.HandleEvent(context.Background(), endedEvent()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("hung action stalled the workflow: %v", elapsed)
	}
	if hits.Load() != 1 {
		t.Fatalf("second webhook should fire after first timed out")
	}

	logs := repo.Logs()
	if len(logs) != 1 || logs[0].Status != ExecutionPartial {
		t.Fatalf("expected partial execution log, got %+v", logs)
	}
}

func TestHandleEvent_TenantScoping(t *testing.T) {
	repo := NewMemoryRepo()
	msg := &stubMessaging{}
	e := NewEngine(repo, Capabilities{Messaging: msg}, nil)

	mustSave(t, e, Workflow{
		TenantID: "other-tenant", Name: "foreign", Trigger: calls.EventCallEnded, IsActive: true,
		Actions: []Action{{Type: ActionSendSlack}},
	})

	if err := e.HandleEvent(context.Background(), endedEvent()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(msg.sent) != 0 || len(repo.Logs()) != 0 {
		t.Fatalf("foreign tenant workflow must not fire")
	}
}
