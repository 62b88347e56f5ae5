package main

import (
	"github.com/gin-gonic/gin"

	"github.com/assetlens/backend/internal/handlers"
	"github.com/assetlens/backend/internal/middleware"
	"github.com/assetlens/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiter for the feedback capture route
	feedbackLimiter := middleware.NewRateLimiter(5, 10)

	r.GET("/health", handlers.Health)

	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/login", svc.authHandler.Login)
			auth.GET("/config", svc.authHandler.AuthInfo)
		}

		// Authenticated routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/auth/me", svc.authHandler.Me)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// Feedback capture: any authenticated user
			protected.POST("/feedback", feedbackLimiter.Middleware(), svc.feedbackHandler.Submit)
			protected.GET("/feedback", svc.feedbackHandler.List)
			protected.GET("/feedback/:public_id", svc.feedbackHandler.Get)

			// Merged policy view is readable by any authenticated caller so
			// the answering service can fetch the prompt block.
			protected.GET("/policies/active", svc.policyHandler.ActiveSet)
			protected.GET("/policies/prompt-block", svc.policyHandler.PromptPreview)

			// Admin surface
			admin := protected.Group("")
			admin.Use(middleware.AdminRequired())
			{
				admin.POST("/feedback/:public_id/retry", svc.feedbackHandler.Retry)

				admin.GET("/policies", svc.policyHandler.ListCustom)
				admin.GET("/policies/:id", svc.policyHandler.GetCustom)
				admin.POST("/policies", svc.policyHandler.CreateCustom)
				admin.PUT("/policies/:id", svc.policyHandler.UpdateCustom)
				admin.PUT("/policies/:id/active", svc.policyHandler.SetActive)
				admin.DELETE("/policies/:id", svc.policyHandler.DeleteCustom)
				admin.POST("/policies/regenerate", svc.policyHandler.RegenerateAll)

				admin.GET("/llm-configs", svc.llmConfigHandler.List)
				admin.GET("/llm-configs/:id", svc.llmConfigHandler.Get)
				admin.POST("/llm-configs", svc.llmConfigHandler.Create)
				admin.PUT("/llm-configs/:id", svc.llmConfigHandler.Update)
				admin.DELETE("/llm-configs/:id", svc.llmConfigHandler.Delete)

				admin.GET("/im-bots", svc.imBotHandler.List)
				admin.GET("/im-bots/:id", svc.imBotHandler.Get)
				admin.POST("/im-bots", svc.imBotHandler.Create)
				admin.PUT("/im-bots/:id", svc.imBotHandler.Update)
				admin.DELETE("/im-bots/:id", svc.imBotHandler.Delete)
				admin.POST("/im-bots/:id/test", svc.imBotHandler.TestSend)

				admin.GET("/system-configs", svc.systemConfigHandler.GetByGroup)
				admin.PUT("/system-configs", svc.systemConfigHandler.Update)
				admin.GET("/system-configs/ldap", svc.systemConfigHandler.GetLDAPConfig)
				admin.PUT("/system-configs/ldap", svc.systemConfigHandler.UpdateLDAPConfig)

				admin.GET("/system-logs", svc.systemLogHandler.List)
				admin.GET("/system-logs/modules", svc.systemLogHandler.GetModules)

				admin.GET("/digests", svc.digestHandler.List)
				admin.GET("/digests/:id", svc.digestHandler.Get)
				admin.POST("/digests/generate", svc.digestHandler.GenerateNow)
				admin.POST("/digests/:id/resend", svc.digestHandler.Resend)

				admin.GET("/users", svc.userHandler.List)
				admin.PUT("/users/:id", svc.userHandler.Update)
				admin.DELETE("/users/:id", svc.userHandler.Delete)
			}
		}
	}
}
