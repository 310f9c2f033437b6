package api

import (
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/renderiq/render-server/internal/app"
	"github.com/renderiq/render-server/internal/config"
	"github.com/renderiq/render-server/internal/services/filestorage"
)

func GetFile(c *gin.Context) {
	filename := c.Param("filename")
	app := c.MustGet("app").(*app.App)

	storage, err := filestorage.NewFileStorage(app.Config())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	if app.Config().FilesystemType == config.FilesystemLocal {
		file, err := storage.ResolveFile(filename, "", false)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "file not found"})
			return
		}

		c.File(file)
		return
	}

	file, err := storage.GetFile(filename)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "file not found"})
		return
	}

	content := file.Content.([]byte)
	mimeType := mimetype.Detect(content).String()
	c.Data(http.StatusOK, mimeType, content)
}
