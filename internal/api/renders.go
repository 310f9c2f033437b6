package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/renderiq/render-server/internal/app"
)

func GetRender(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	render, err := app.RenderRepository.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"message": "render not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": render})
}

// GetRenderStatus is a lightweight poll target for clients waiting on a
// generation.
func GetRenderStatus(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	render, err := app.RenderRepository.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"message": "render not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	data := gin.H{"id": render.ID, "status": render.Status}
	if render.OutputUrl != "" {
		data["output_url"] = render.OutputUrl
	}
	if render.ThumbnailUrl != "" {
		data["thumbnail_url"] = render.ThumbnailUrl
	}
	if render.ErrorMessage != "" {
		data["error"] = render.ErrorMessage
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": data})
}
