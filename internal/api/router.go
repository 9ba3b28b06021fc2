package api

import (
	"github.com/gin-gonic/gin"
	"github.com/pccr10001/groupcall/internal/calling"
	"github.com/pccr10001/groupcall/internal/dialog"
	"github.com/pccr10001/groupcall/internal/logic"
	"github.com/pccr10001/groupcall/internal/repository"
	"gorm.io/gorm"
)

type Deps struct {
	DB       *gorm.DB
	Settings *logic.SettingsService
	Dialogs  *dialog.Manager
	Devices  DeviceLister
	CallMgr  *calling.Manager
}

func RegisterRoutes(r *gin.Engine, deps Deps) {
	users := repository.NewUserRepository(deps.DB)

	uh := NewUserHandler(users)
	ch := NewChannelHandler(repository.NewChannelRepository(deps.DB), deps.Settings)
	wh := NewWebhookHandler(repository.NewWebhookRepository(deps.DB))
	dh := NewDialogHandler(deps.Dialogs, deps.Devices, deps.CallMgr)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	apiGroup := r.Group("/api/v1")
	{
		apiGroup.POST("/login", uh.Login)

		// Authenticated Routes
		authGroup := apiGroup.Group("/")
		authGroup.Use(AuthMiddleware(users))
		{
			authGroup.POST("/change_password", uh.ChangePassword)

			authGroup.GET("/channels", ch.ListChannels)
			authGroup.GET("/calls", ch.ListCalls)
			authGroup.POST("/calls/:id/settings", dh.Open)
			authGroup.POST("/calls/:id/end", dh.EndCall)
			authGroup.GET("/devices", dh.ListDevices)

			authGroup.GET("/dialogs/:id", dh.Get)
			authGroup.DELETE("/dialogs/:id", dh.Close)
			authGroup.PUT("/dialogs/:id/join_muted", dh.SetJoinMuted)
			authGroup.PUT("/dialogs/:id/input", dh.SetInput)
			authGroup.PUT("/dialogs/:id/output", dh.SetOutput)
			authGroup.POST("/dialogs/:id/share", dh.Share)
			authGroup.GET("/dialogs/:id/levels", dh.Levels)
			authGroup.GET("/dialogs/:id/signal", dh.Signal)

			// Admin Only
			adminGroup := authGroup.Group("/")
			adminGroup.Use(AdminOnly())
			{
				adminGroup.POST("/channels", ch.CreateChannel)
				adminGroup.POST("/channels/:id/admins", ch.GrantAdmin)
				adminGroup.POST("/channels/:id/calls", ch.StartCall)

				adminGroup.GET("/webhooks", wh.ListWebhooks)
				adminGroup.POST("/webhooks", wh.CreateWebhook)
				adminGroup.DELETE("/webhooks/:id", wh.DeleteWebhook)

				adminGroup.GET("/users", uh.ListUsers)
				adminGroup.POST("/users", uh.CreateUser)
				adminGroup.DELETE("/users/:id", uh.DeleteUser)
			}
		}
	}
}
