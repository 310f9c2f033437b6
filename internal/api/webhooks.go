package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/renderiq/render-server/internal/app"
	"github.com/renderiq/render-server/internal/db/models"
	"github.com/renderiq/render-server/internal/utils/randutil"
)

type createWebhookRequest struct {
	Url    string   `json:"url" binding:"required,url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

// CreateWebhook registers an endpoint. A secret is generated when the caller
// does not provide one, and is only returned on creation.
func CreateWebhook(c *gin.Context) {
	var req createWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to parse request body"})
		return
	}

	secret := req.Secret
	if secret == "" {
		generated, err := randutil.RandomString(32)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to generate secret"})
			return
		}
		secret = generated
	}

	app := c.MustGet("app").(*app.App)
	endpoint, err := app.WebhookRepository.Create(c.Request.Context(), &models.WebhookEndpoint{
		Url:    req.Url,
		Secret: secret,
		Events: req.Events,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "ok",
		"data": gin.H{
			"id":     endpoint.ID,
			"url":    endpoint.Url,
			"events": endpoint.Events,
			"secret": secret,
		},
	})
}

func ListWebhooks(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	endpoints, err := app.WebhookRepository.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	data := make([]gin.H, 0, len(endpoints))
	for _, e := range endpoints {
		data = append(data, gin.H{
			"id":            e.ID,
			"url":           e.Url,
			"events":        e.Events,
			"is_active":     e.IsActive,
			"failure_count": e.FailureCount,
			"secret":        randutil.MaskString(e.Secret, 4, 2),
		})
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": data})
}

func DeleteWebhook(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	if _, err := app.WebhookRepository.GetByID(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"message": "webhook not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	if err := app.WebhookRepository.DeleteByID(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
