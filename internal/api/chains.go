package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/renderiq/render-server/internal/app"
	"github.com/renderiq/render-server/internal/db/models"
)

type createChainRequest struct {
	ProjectID   string `json:"project_id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func CreateChain(c *gin.Context) {
	var req createChainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to parse request body"})
		return
	}

	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "project_id must be a valid uuid"})
		return
	}

	app := c.MustGet("app").(*app.App)
	chain, err := app.ChainRepository.Create(c.Request.Context(), &models.Chain{
		ProjectID:   projectID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "ok", "data": chain})
}

func GetChain(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	chain, err := app.ChainRepository.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"message": "chain not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	renders, err := app.RenderRepository.ListByChainID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": gin.H{"chain": chain, "renders": renders}})
}

func ListChainRenders(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	renders, err := app.RenderRepository.ListByChainID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": renders})
}

func ListProjectChains(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	chains, err := app.ChainRepository.ListByProjectID(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": chains})
}

func GetChainMemory(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	memory, err := app.MemoryService.GetContext(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": memory})
}

func ClearChainMemory(c *gin.Context) {
	app := c.MustGet("app").(*app.App)

	if err := app.MemoryService.Clear(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type renameChainRequest struct {
	Name string `json:"name" binding:"required"`
}

func RenameChain(c *gin.Context) {
	var req renameChainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to parse request body"})
		return
	}

	app := c.MustGet("app").(*app.App)
	if err := app.ChainRepository.RenameByID(c.Request.Context(), c.Param("id"), req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
