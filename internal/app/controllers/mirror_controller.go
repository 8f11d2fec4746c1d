package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yigit/problemportal/internal/app/models/dto"
	"github.com/yigit/problemportal/internal/app/services"
	"github.com/yigit/problemportal/internal/middleware"
)

// MirrorController exports and imports the CSV mirrors
type MirrorController struct {
	mirrorService services.MirrorService
	importService services.ImportService
}

// NewMirrorController creates a new MirrorController
func NewMirrorController(mirrorService services.MirrorService, importService services.ImportService) *MirrorController {
	return &MirrorController{
		mirrorService: mirrorService,
		importService: importService,
	}
}

// ExportProblems handles GET /admin/export/problems.csv
func (c *MirrorController) ExportProblems(ctx *gin.Context) {
	if err := c.mirrorService.RefreshProblems(ctx.Request.Context()); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.Header("Cache-Control", "no-cache")
	ctx.FileAttachment(c.mirrorService.ProblemsPath(), "problems.csv")
}

// ExportStudents handles GET /admin/export/students.csv
func (c *MirrorController) ExportStudents(ctx *gin.Context) {
	if err := c.mirrorService.RefreshStudents(ctx.Request.Context()); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.Header("Cache-Control", "no-cache")
	ctx.FileAttachment(c.mirrorService.StudentsPath(), "students.csv")
}

// Import handles POST /admin/import, loading both mirror files into the
// database without overwriting existing rows.
func (c *MirrorController) Import(ctx *gin.Context) {
	resp, err := c.importService.Import(ctx.Request.Context(), c.mirrorService.StudentsPath(), c.mirrorService.ProblemsPath())
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(resp, "Import finished"))
}
