package main

import (
	"github.com/gin-gonic/gin"

	"voiceops-platform/internal/httpapi"
	"voiceops-platform/internal/rbac"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, webhook *httpapi.WebhookHandler, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks. Authenticated by per-provider shared secrets, not
	// JWTs; providers cannot carry a tenant token.
	r.POST("/webhooks/:provider", webhook.Handle)

	// protected API group
	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	v1.POST("/auth/login", h.Login)

	authed := v1.Group("")
	authed.Use(authMW)
	authed.Use(rbac.RequireTenant())
	{
		// CALLS routes
		callsGroup := authed.Group("/calls")
		callsGroup.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleOperator, rbac.RoleSuperAdmin))
		{
			callsGroup.POST("/trigger", h.TriggerCall)
			callsGroup.GET("", h.ListCalls)
			callsGroup.GET("/scheduled/:id", h.GetScheduledCall)
			callsGroup.POST("/scheduled/:id/cancel", h.CancelScheduledCall)
		}

		// AGENTS routes
		agentsGroup := authed.Group("/agents")
		agentsGroup.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleSuperAdmin))
		{
			agentsGroup.PUT("", h.SaveAgent)
			agentsGroup.GET("", h.ListAgents)
		}

		// WORKFLOWS routes
		wfGroup := authed.Group("/workflows")
		wfGroup.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleSuperAdmin))
		{
			wfGroup.PUT("", h.SaveWorkflow)
			wfGroup.GET("", h.ListWorkflows)
		}

		// REPORTS routes
		reportsGroup := authed.Group("/reports")
		reportsGroup.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleAnalyst, rbac.RoleSuperAdmin))
		{
			reportsGroup.GET("/calls", h.GetCallsReport)
		}

		// EXPERIMENTS routes
		expGroup := authed.Group("/experiments")
		expGroup.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleManager, rbac.RoleAnalyst, rbac.RoleSuperAdmin))
		{
			expGroup.POST("", h.CreateExperiment)
			expGroup.POST("/:id/start", h.StartExperiment)
			expGroup.POST("/:id/pause", h.PauseExperiment)
			expGroup.POST("/:id/promote", h.PromoteExperiment)
		}
	}
}
