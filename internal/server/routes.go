package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/renderiq/render-server/internal/api"
	"github.com/renderiq/render-server/internal/app"
)

func (s *Server) SetupRoutes(app *app.App) {
	// Health check endpoint
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Not an API, just a simple file server endpoint
	s.ginEngine.GET("/file/:filename", handlerWrapper(app, api.GetFile))

	apiV1 := s.ginEngine.Group("/api/v1")

	apiV1.POST("/generate", handlerWrapper(app, api.Generate))
	apiV1.POST("/generate/quick", handlerWrapper(app, api.QuickGenerate))

	apiV1.GET("/renders/:id", handlerWrapper(app, api.GetRender))
	apiV1.GET("/renders/:id/status", handlerWrapper(app, api.GetRenderStatus))

	apiV1.POST("/chains", handlerWrapper(app, api.CreateChain))
	apiV1.GET("/chains/:id", handlerWrapper(app, api.GetChain))
	apiV1.GET("/chains/:id/renders", handlerWrapper(app, api.ListChainRenders))
	apiV1.GET("/chains/:id/memory", handlerWrapper(app, api.GetChainMemory))
	apiV1.DELETE("/chains/:id/memory", handlerWrapper(app, api.ClearChainMemory))
	apiV1.PATCH("/chains/:id", handlerWrapper(app, api.RenameChain))
	apiV1.GET("/projects/:project_id/chains", handlerWrapper(app, api.ListProjectChains))

	apiV1.POST("/webhooks", handlerWrapper(app, api.CreateWebhook))
	apiV1.GET("/webhooks", handlerWrapper(app, api.ListWebhooks))
	apiV1.DELETE("/webhooks/:id", handlerWrapper(app, api.DeleteWebhook))
}

func handlerWrapper(app *app.App, f func(c *gin.Context)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("app", app)
		f(ctx)
	}
}
