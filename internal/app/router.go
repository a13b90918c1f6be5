package app

import (
	"mindwell_backend/internal/config"
	"mindwell_backend/internal/middleware"
	"mindwell_backend/internal/model"
	"mindwell_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	// 公开接口
	router.GET("/api/health", c.health.HealthCheck)
	router.GET("/metrics", monitoring.PrometheusHandler())
	router.POST("/api/register", c.auth.Register)
	router.POST("/api/login", c.auth.Login)

	// 需要认证的接口
	auth := router.Group("/api")
	auth.Use(middleware.AuthMiddleware(cfg))
	auth.Use(middleware.ActivityMiddleware(repos.user))
	{
		auth.GET("/profile", c.auth.GetProfile)

		chat := auth.Group("/chat")
		{
			chat.GET("/ws", c.chat.HandleWS)

			chat.POST("/conversations/private", c.chat.CreatePrivateConversation)
			chat.GET("/conversations", c.chat.ListConversations)
			chat.GET("/conversations/:id/messages", c.chat.GetMessages)
			chat.POST("/conversations/:id/messages", c.chat.SendMessage)
			chat.POST("/conversations/:id/hide", c.chat.HideConversation)
			chat.POST("/messages/:id/revoke", c.chat.RevokeMessage)

			chat.GET("/invites/:id", c.invite.GetInvite)
			chat.POST("/invites/:id/action", c.invite.DoAction)
		}

		assessments := auth.Group("/assessments")
		{
			assessments.GET("/catalog", c.assessment.GetCatalog)
			assessments.POST("/start", c.assessment.Start)
			assessments.GET("", c.assessment.List)
			assessments.GET("/:id", c.assessment.Get)
			assessments.PUT("/:id/progress", c.assessment.ReportProgress)
			assessments.POST("/:id/submit", c.assessment.Submit)
			assessments.DELETE("/:id", c.assessment.Delete)
		}

		admin := auth.Group("/admin")
		admin.Use(middleware.RoleMiddleware(model.RoleAdmin))
		{
			admin.GET("/users", c.auth.ListUsers)
		}
	}
}
