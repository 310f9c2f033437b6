package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/renderiq/render-server/internal/app"
	"github.com/renderiq/render-server/internal/db/models"
	"github.com/renderiq/render-server/internal/services/pipeline"
	"github.com/renderiq/render-server/internal/types"
)

func Generate(c *gin.Context) {
	generate(c, false)
}

// QuickGenerate runs the pipeline in quick mode, which skips prompt
// enhancement, memory extraction, and validation for the standard tier.
func QuickGenerate(c *gin.Context) {
	generate(c, true)
}

// generate blocks until the render reaches a terminal state and returns it.
// With ?async=true the pending render is returned immediately instead and the
// remaining stages finish in the background.
func generate(c *gin.Context, quick bool) {
	var req types.GenerateParamsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to parse request body"})
		return
	}
	if quick {
		req.Mode = types.ModeQuick
	}

	app := c.MustGet("app").(*app.App)

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		render, err := app.Pipeline().Submit(c.Request.Context(), &req)
		if err != nil {
			status, body := generateErrorResponse(err)
			c.JSON(status, body)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "ok", "data": render})
		return
	}

	var (
		render *models.Render
		err    error
	)
	if quick {
		render, err = app.Pipeline().QuickGenerate(c.Request.Context(), &req)
	} else {
		render, err = app.Pipeline().Generate(c.Request.Context(), &req)
	}
	if err != nil {
		status, body := generateErrorResponse(err)
		if render != nil {
			// The render row exists and is terminal; hand it back alongside
			// the failure so clients keep the id and error message.
			body["data"] = render
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": render})
}

func generateErrorResponse(err error) (int, gin.H) {
	var validationErr *pipeline.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, gin.H{
			"message": validationErr.Message,
			"field":   validationErr.Field,
		}
	}

	var contextErr *pipeline.ContextError
	if errors.As(err, &contextErr) {
		return http.StatusUnprocessableEntity, gin.H{"message": contextErr.Message}
	}

	var invocationErr *pipeline.ModelInvocationError
	if errors.As(err, &invocationErr) {
		return http.StatusBadGateway, gin.H{"message": invocationErr.Error()}
	}

	return http.StatusInternalServerError, gin.H{"message": err.Error()}
}
