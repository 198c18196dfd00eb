package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voiceops-platform/internal/agents"
	"voiceops-platform/internal/analysis"
	"voiceops-platform/internal/calls"
	"voiceops-platform/internal/schedcalls"
	"voiceops-platform/internal/workflows"
	"voiceops-platform/pkg/logger"
)

const webhookSecretHeader = "X-Webhook-Secret"
const maxWebhookBody = 1 << 20

// Releaser frees a tenant's concurrency-cap slot when its call ends.
// Satisfied by schedcalls.RedisLimiter.
type Releaser interface {
	Release(ctx context.Context, tenantID string) error
}

// WebhookHandler receives provider call-lifecycle webhooks and drives the
// post-call pipeline.
//
// Order on call_ended, always: state machine completion first, then the
// concurrency slot release, then the background automation/analysis pipeline.
// The HTTP response does not wait for automation.
type WebhookHandler struct {
	// Secrets maps provider name to its shared webhook secret. An empty
	// secret disables verification for that provider (local dev only).
	Secrets map[string]string

	Dedup     Deduper
	Calls     *schedcalls.Service
	CallLog   calls.Repository
	Agents    *agents.Service
	Workflows *workflows.Engine
	Analyzer  *analysis.Analyzer
	Runner    *analysis.Runner
	Limiter   Releaser

	// AnalysisEnabled is the deployment-level switch; the per-agent flag
	// gates on top of it.
	AnalysisEnabled bool

	clock func() time.Time
}

func (h *WebhookHandler) now() time.Time {
	if h.clock != nil {
		return h.clock().UTC()
	}
	return time.Now().UTC()
}

// Handle is the entrypoint for POST /webhooks/:provider.
func (h *WebhookHandler) Handle(c *gin.Context) {
	provider := c.Param("provider")
	if !h.verifySecret(c, provider) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad webhook secret"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ev, err := parseProviderEvent(provider, body, h.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ev == nil {
		// Recognized but uninteresting event type; acknowledge and move on.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	log := logger.From(c.Request.Context())
	if ev.TenantID == "" {
		// No tenant metadata means the call was not placed by this system.
		log.Warn("webhook without tenant metadata dropped",
			"provider", provider, "external_call_id", ev.Call.ExternalCallID)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	eventKey := fmt.Sprintf("%s:%s:%s", provider, ev.Call.ExternalCallID, ev.Type)
	if h.Dedup != nil {
		seen, err := h.Dedup.Seen(c.Request.Context(), eventKey)
		if err != nil {
			// Fail open: a dead Redis must not drop completions; downstream
			// writes are idempotent anyway.
			log.Warn("webhook dedup check failed", "err", err)
		} else if seen {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
	}

	switch ev.Type {
	case calls.EventCallEnded, calls.EventInboundCallEnded:
		if err := h.handleEnded(c.Request.Context(), *ev); err != nil {
			// Non-2xx without a dedup marker: the provider retries and the
			// idempotent completion path repairs the record.
			log.Error("webhook completion not applied", "external_call_id", ev.Call.ExternalCallID, "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "completion not applied"})
			return
		}
	default:
		h.recordCall(c.Request.Context(), ev.Call)
		h.runAutomation(*ev)
	}

	// Mark only after the delivery was processed, so failures stay retryable.
	if h.Dedup != nil {
		if err := h.Dedup.Mark(c.Request.Context(), eventKey); err != nil {
			log.Warn("webhook dedup mark failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (h *WebhookHandler) verifySecret(c *gin.Context, provider string) bool {
	secret, ok := h.Secrets[provider]
	if !ok {
		return false
	}
	if secret == "" {
		return true
	}
	got := c.GetHeader(webhookSecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

// handleEnded applies the completion to the state machine. A failed write is
// returned to the caller so the delivery is not acknowledged; replays and
// inbound calls come back applied=false and release nothing, since only an
// initiated outbound record ever holds a concurrency slot.
func (h *WebhookHandler) handleEnded(ctx context.Context, ev calls.Event) error {
	log := logger.From(ctx)

	success := ev.Call.Status == calls.CallStatusCompleted
	applied, err := h.Calls.Complete(ctx, ev.TenantID, ev.Call.ExternalCallID, success)
	if err != nil {
		return err
	}
	if applied && h.Limiter != nil {
		if rerr := h.Limiter.Release(ctx, ev.TenantID); rerr != nil {
			log.Warn("concurrency slot release failed", "tenant_id", ev.TenantID, "err", rerr)
		}
	}
	h.recordCall(ctx, ev.Call)
	h.runAutomation(ev)
	return nil
}

func (h *WebhookHandler) recordCall(ctx context.Context, c calls.Call) {
	if h.CallLog == nil {
		return
	}
	if c.CallID == "" {
		c.CallID = uuid.NewString()
	}
	if err := h.CallLog.Upsert(ctx, c); err != nil {
		logger.From(ctx).Warn("call record upsert failed",
			"external_call_id", c.ExternalCallID, "err", err)
	}
}

// runAutomation runs analysis (when gated in) and workflow execution off the
// request path. Analysis results land in the call metadata before workflows
// evaluate their conditions, so conditions can match on them.
func (h *WebhookHandler) runAutomation(ev calls.Event) {
	if h.Runner == nil {
		return
	}
	h.Runner.Submit("post_call_pipeline", func(ctx context.Context) {
		log := logger.From(ctx)

		if h.Analyzer != nil && (ev.Type == calls.EventCallEnded || ev.Type == calls.EventInboundCallEnded) {
			if h.shouldAnalyze(ctx, ev) {
				if out := h.Analyzer.Analyze(ctx, ev.Call.Transcript, ev.Call.AgentID); out != nil {
					mergeAnalysis(&ev.Call, out)
					h.recordCall(ctx, ev.Call)
				}
			}
		}

		if h.Workflows != nil {
			if err := h.Workflows.HandleEvent(ctx, ev); err != nil {
				log.Warn("workflow execution failed", "call_id", ev.Call.CallID, "err", err)
			}
		}
	})
}

func (h *WebhookHandler) shouldAnalyze(ctx context.Context, ev calls.Event) bool {
	enabled := h.AnalysisEnabled
	if enabled && h.Agents != nil && ev.Call.AgentID != "" {
		a, err := h.Agents.Get(ctx, ev.TenantID, ev.Call.AgentID)
		if err == nil {
			enabled = a.AnalysisEnabled
		}
	}
	return analysis.ShouldAnalyze(enabled, ev.Call.DurationSeconds, len(ev.Call.Transcript))
}

func mergeAnalysis(c *calls.Call, a *analysis.CallAnalysis) {
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	c.Metadata["analysis.sentiment"] = string(a.Sentiment)
	c.Metadata["analysis.sentiment_score"] = fmt.Sprintf("%d", a.SentimentScore)
	c.Metadata["analysis.lead_score"] = fmt.Sprintf("%d", a.LeadScore)
	c.Metadata["analysis.call_outcome"] = string(a.CallOutcome)
	if a.Summary != "" {
		c.Metadata["analysis.summary"] = a.Summary
	}
	if len(a.Topics) > 0 {
		c.Metadata["analysis.topics"] = strings.Join(a.Topics, ",")
	}
}

// --- Provider payload normalization ---

// parseProviderEvent maps a provider webhook body onto the internal event
// shape. A nil event with nil error means "valid payload, nothing to do".
func parseProviderEvent(provider string, body []byte, now time.Time) (*calls.Event, error) {
	switch provider {
	case "vapi":
		return parseVapiEvent(body, now)
	case "retell":
		return parseRetellEvent(body, now)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

type vapiWebhook struct {
	Message struct {
		Type string `json:"type"`
		Call struct {
			ID       string            `json:"id"`
			Customer struct {
				Number string `json:"number"`
			} `json:"customer"`
			Metadata map[string]string `json:"metadata"`
		} `json:"call"`
		Status          string  `json:"status"`
		EndedReason     string  `json:"endedReason"`
		DurationSeconds float64 `json:"durationSeconds"`
		RecordingURL    string  `json:"recordingUrl"`
		Artifact        struct {
			Transcript string `json:"transcript"`
		} `json:"artifact"`
	} `json:"message"`
}

func parseVapiEvent(body []byte, now time.Time) (*calls.Event, error) {
	var p vapiWebhook
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid vapi payload: %w", err)
	}
	m := p.Message
	if m.Call.ID == "" {
		return nil, fmt.Errorf("vapi payload missing call id")
	}

	call := calls.Call{
		TenantID:        m.Call.Metadata["tenant_id"],
		AgentID:         m.Call.Metadata["agent_id"],
		ExternalCallID:  m.Call.ID,
		To:              m.Call.Customer.Number,
		Direction:       calls.DirectionOutbound,
		DurationSeconds: int(m.DurationSeconds),
		Transcript:      m.Artifact.Transcript,
		RecordingURL:    m.RecordingURL,
		EndedReason:     m.EndedReason,
		Metadata:        m.Call.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var evType calls.EventType
	switch m.Type {
	case "status-update":
		if m.Status != "in-progress" {
			return nil, nil
		}
		call.Status = calls.CallStatusInProgress
		evType = calls.EventCallStarted
	case "end-of-call-report":
		call.Status = endedReasonStatus(m.EndedReason)
		evType = calls.EventCallEnded
	default:
		return nil, nil
	}

	return &calls.Event{
		TenantID:   call.TenantID,
		Type:       evType,
		Call:       call,
		OccurredAt: now,
	}, nil
}

type retellWebhook struct {
	Event string `json:"event"`
	Call  struct {
		CallID              string            `json:"call_id"`
		FromNumber          string            `json:"from_number"`
		ToNumber            string            `json:"to_number"`
		Direction           string            `json:"direction"`
		CallStatus          string            `json:"call_status"`
		StartTimestamp      int64             `json:"start_timestamp"`
		EndTimestamp        int64             `json:"end_timestamp"`
		Transcript          string            `json:"transcript"`
		RecordingURL        string            `json:"recording_url"`
		DisconnectionReason string            `json:"disconnection_reason"`
		Metadata            map[string]string `json:"metadata"`
	} `json:"call"`
}

func parseRetellEvent(body []byte, now time.Time) (*calls.Event, error) {
	var p retellWebhook
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("invalid retell payload: %w", err)
	}
	if p.Call.CallID == "" {
		return nil, fmt.Errorf("retell payload missing call id")
	}

	direction := calls.DirectionOutbound
	if p.Call.Direction == "inbound" {
		direction = calls.DirectionInbound
	}

	call := calls.Call{
		TenantID:       p.Call.Metadata["tenant_id"],
		AgentID:        p.Call.Metadata["agent_id"],
		ExternalCallID: p.Call.CallID,
		From:           p.Call.FromNumber,
		To:             p.Call.ToNumber,
		Direction:      direction,
		Transcript:     p.Call.Transcript,
		RecordingURL:   p.Call.RecordingURL,
		EndedReason:    p.Call.DisconnectionReason,
		Metadata:       p.Call.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.Call.EndTimestamp > p.Call.StartTimestamp && p.Call.StartTimestamp > 0 {
		call.DurationSeconds = int((p.Call.EndTimestamp - p.Call.StartTimestamp) / 1000)
	}

	var evType calls.EventType
	switch p.Event {
	case "call_started":
		call.Status = calls.CallStatusInProgress
		evType = calls.EventCallStarted
		if direction == calls.DirectionInbound {
			evType = calls.EventInboundCallStarted
		}
	case "call_analyzed":
		// Provider-side analysis is not consumed; call_ended already carried
		// the transcript.
		return nil, nil
	case "call_ended":
		call.Status = endedReasonStatus(p.Call.DisconnectionReason)
		evType = calls.EventCallEnded
		if direction == calls.DirectionInbound {
			evType = calls.EventInboundCallEnded
		}
	default:
		return nil, nil
	}

	return &calls.Event{
		TenantID:   call.TenantID,
		Type:       evType,
		Call:       call,
		OccurredAt: now,
	}, nil
}

// endedReasonStatus maps a provider disposition onto the internal status
// taxonomy. Unknown reasons count as completed; only explicit failure
// shapes mark the call failed.
func endedReasonStatus(reason string) calls.CallStatus {
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "no-answer"), strings.Contains(r, "did-not-answer"), strings.Contains(r, "no_answer"):
		return calls.CallStatusNoAnswer
	case strings.Contains(r, "busy"):
		return calls.CallStatusBusy
	case strings.Contains(r, "error"), strings.Contains(r, "failed"):
		return calls.CallStatusFailed
	default:
		return calls.CallStatusCompleted
	}
}
