package controllers

import (
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/app/models/dto"
	"github.com/yigit/problemportal/internal/pkg/filestorage"
)

// UploadController serves stored attachments to signed-in users
type UploadController struct {
	storage filestorage.FileStorage
	logger  zerolog.Logger
}

// NewUploadController creates a new UploadController
func NewUploadController(storage filestorage.FileStorage, logger zerolog.Logger) *UploadController {
	return &UploadController{storage: storage, logger: logger}
}

// Serve handles GET /uploads/*path
func (c *UploadController) Serve(ctx *gin.Context) {
	physicalPath, err := c.storage.Resolve(ctx.Param("path"))
	if err != nil {
		c.logger.Warn().Err(err).Str("path", ctx.Param("path")).Msg("Rejected upload path")
		fileNotFound(ctx)
		return
	}

	info, err := os.Stat(physicalPath)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Error().Err(err).Str("path", physicalPath).Msg("Failed to stat upload")
		}
		fileNotFound(ctx)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(physicalPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ctx.Header("Content-Type", contentType)
	ctx.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	ctx.Header("Pragma", "no-cache")
	ctx.Header("Expires", "0")
	ctx.File(physicalPath)
}

func fileNotFound(ctx *gin.Context) {
	ctx.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.NewErrorDetail(dto.ErrorCodeResourceNotFound, "File not found")))
}
