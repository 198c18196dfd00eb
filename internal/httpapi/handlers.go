package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voiceops-platform/internal/agents"
	"voiceops-platform/internal/auth"
	"voiceops-platform/internal/callwindow"
	"voiceops-platform/internal/calls"
	"voiceops-platform/internal/experiments"
	"voiceops-platform/internal/reporting"
	"voiceops-platform/internal/schedcalls"
	"voiceops-platform/internal/workflows"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth        *auth.Manager
	Agents      *agents.Service
	Calls       *schedcalls.Service
	CallLog     calls.Repository
	Workflows   *workflows.Engine
	Experiments *experiments.Service
	Reports     *reporting.Service
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.TenantID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, tenant_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.TenantID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type triggerCallRequest struct {
	AgentID     string `json:"agent_id"`
	ToNumber    string `json:"to_number"`
	ContactName string `json:"contact_name"`

	// ScheduledAt requests an explicit future fire time (RFC3339).
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	// Timezone is the lead's IANA zone; falls back to the agent default.
	Timezone string `json:"timezone,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// TriggerCall places an outbound call, or schedules it if the agent's
// calling window says "not now". The response carries the lifecycle record
// either way.
func (h Handlers) TriggerCall(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	var req triggerCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AgentID == "" || req.ToNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_id, to_number required"})
		return
	}

	agent, err := h.Agents.Get(c.Request.Context(), tenantID, req.AgentID)
	if err != nil {
		if errors.Is(err, agents.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "agent lookup failed"})
		return
	}

	tz := req.Timezone
	if tz == "" {
		tz = agent.DefaultTimezone
	}
	var window *callwindow.Window
	if agent.Window != nil {
		w := *agent.Window
		window = &w
	}

	sc, err := h.Calls.Trigger(c.Request.Context(), schedcalls.TriggerRequest{
		TenantID:      tenantID,
		AgentID:       req.AgentID,
		ToNumber:      req.ToNumber,
		ContactName:   req.ContactName,
		RequestedAt:   req.ScheduledAt,
		LeadTimezone:  tz,
		Window:        window,
		TriggerSource: "manual",
		Metadata:      req.Metadata,
	})
	if err != nil {
		if errors.Is(err, schedcalls.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// A failed dispatch still produced a lifecycle record; return it so
		// callers can see the failure reason.
		if !sc.Status.Terminal() {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "trigger failed"})
			return
		}
	}
	status := http.StatusCreated
	if sc.Status == schedcalls.StatusFailed {
		status = http.StatusBadGateway
	}
	c.JSON(status, sc)
}

func (h Handlers) GetScheduledCall(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	sc, err := h.Calls.Get(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		if errors.Is(err, schedcalls.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, sc)
}

// CancelScheduledCall cancels a record that has not been dispatched yet.
func (h Handlers) CancelScheduledCall(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	err = h.Calls.Cancel(c.Request.Context(), tenantID, c.Param("id"))
	if errors.Is(err, schedcalls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "not cancelable"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "canceled"})
}

func (h Handlers) ListCalls(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	out, err := h.CallLog.ListByTenant(c.Request.Context(), tenantID, 100)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

// --- Agents ---

func (h Handlers) SaveAgent(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	var a agents.Agent
	if err := c.ShouldBindJSON(&a); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	a.TenantID = tenantID
	saved, err := h.Agents.Save(c.Request.Context(), a)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h Handlers) ListAgents(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	out, err := h.Agents.List(c.Request.Context(), tenantID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": out})
}

// --- Workflows ---

// SaveWorkflow validates and upserts one workflow. Validation is the write-time
// gate: unknown action types and denied webhook URLs never reach storage.
func (h Handlers) SaveWorkflow(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	var w workflows.Workflow
	if err := c.ShouldBindJSON(&w); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	w.TenantID = tenantID
	saved, err := h.Workflows.Save(c.Request.Context(), w)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h Handlers) ListWorkflows(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	out, err := h.Workflows.List(c.Request.Context(), tenantID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": out})
}

// --- Reports ---

// GetCallsReport aggregates call dispositions over ?from/?to (RFC3339),
// optionally scoped by ?agent_id.
func (h Handlers) GetCallsReport(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		TenantID: tenantID,
		AgentID:  c.Query("agent_id"),
		Range:    reporting.DateRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Experiments ---

type createExperimentRequest struct {
	AgentID  string `json:"agent_id"`
	Name     string `json:"name"`
	Variants []struct {
		Name          string  `json:"name"`
		Prompt        string  `json:"prompt"`
		TrafficWeight float64 `json:"traffic_weight"`
		IsControl     bool    `json:"is_control"`
	} `json:"variants"`
}

func (h Handlers) CreateExperiment(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	var req createExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	variants := make([]experiments.Variant, 0, len(req.Variants))
	for _, v := range req.Variants {
		variants = append(variants, experiments.Variant{
			Name:          v.Name,
			Prompt:        v.Prompt,
			TrafficWeight: v.TrafficWeight,
			IsControl:     v.IsControl,
		})
	}
	exp, err := h.Experiments.Create(c.Request.Context(), experiments.Experiment{
		TenantID: tenantID,
		AgentID:  req.AgentID,
		Name:     req.Name,
	}, variants)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, exp)
}

// StartExperiment moves an experiment into resolution. Only running
// experiments are eligible for per-dispatch variant draws.
func (h Handlers) StartExperiment(c *gin.Context) {
	h.setExperimentStatus(c, h.Experiments.Start)
}

// PauseExperiment takes an experiment back out of resolution.
func (h Handlers) PauseExperiment(c *gin.Context) {
	h.setExperimentStatus(c, h.Experiments.Pause)
}

func (h Handlers) setExperimentStatus(c *gin.Context, op func(ctx context.Context, tenantID, id string) error) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	if err := op(c.Request.Context(), tenantID, c.Param("id")); err != nil {
		if errors.Is(err, experiments.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "transition not allowed"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type promoteExperimentRequest struct {
	WinnerVariantID string `json:"winner_variant_id"`
}

// PromoteExperiment completes an experiment and records the winning variant.
func (h Handlers) PromoteExperiment(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	var req promoteExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.WinnerVariantID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "winner_variant_id required"})
		return
	}
	if err := h.Experiments.Promote(c.Request.Context(), tenantID, c.Param("id"), req.WinnerVariantID); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}
