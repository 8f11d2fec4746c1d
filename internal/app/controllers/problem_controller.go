package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yigit/problemportal/internal/app/models/dto"
	"github.com/yigit/problemportal/internal/app/services"
	"github.com/yigit/problemportal/internal/middleware"
	"github.com/yigit/problemportal/internal/pkg/apperrors"
	"github.com/yigit/problemportal/internal/pkg/filestorage"
	"github.com/yigit/problemportal/internal/pkg/helpers"
)

// ProblemController handles problem submission and review
type ProblemController struct {
	problemService services.ProblemService
	studentService services.StudentService
}

// NewProblemController creates a new ProblemController
func NewProblemController(problemService services.ProblemService, studentService services.StudentService) *ProblemController {
	return &ProblemController{
		problemService: problemService,
		studentService: studentService,
	}
}

// parseProblemID reads the :id path parameter, answering 400 when it is not
// a number.
func parseProblemID(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		errorDetail := dto.NewErrorDetail(dto.ErrorCodeBadRequest, "Invalid problem ID").WithField("id")
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorDetail))
		return 0, false
	}
	return id, true
}

// formUploads collects the files present on a submission form.
func formUploads(form *dto.ProblemForm) services.Uploads {
	uploads := services.Uploads{}
	if form.Synopsis != nil {
		uploads[filestorage.SlotSynopsis] = form.Synopsis
	}
	if form.Certificate != nil {
		uploads[filestorage.SlotCertificate] = form.Certificate
	}
	if form.Report != nil {
		uploads[filestorage.SlotReport] = form.Report
	}
	return uploads
}

// ListApproved handles GET /problems
func (c *ProblemController) ListApproved(ctx *gin.Context) {
	problems, err := c.problemService.ListApproved(ctx.Request.Context())
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(problems, ""))
}

// GetProblem handles GET /problems/:id for any session holder
func (c *ProblemController) GetProblem(ctx *gin.Context) {
	id, ok := parseProblemID(ctx)
	if !ok {
		return
	}
	identity, _ := middleware.GetIdentity(ctx)

	problem, err := c.problemService.GetVisible(ctx.Request.Context(), id, identity)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(problem, ""))
}

// StudentDashboard handles GET /student/problems
func (c *ProblemController) StudentDashboard(ctx *gin.Context) {
	identity, _ := middleware.GetIdentity(ctx)
	reqCtx := ctx.Request.Context()

	mine, err := c.problemService.ListForStudent(reqCtx, identity.Subject)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	others, err := c.problemService.ListOthersApproved(reqCtx, identity.Subject)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.StudentProblemsResponse{
		Mine:   mine,
		Others: others,
	}, ""))
}

// StudentSubmit handles POST /student/problems
func (c *ProblemController) StudentSubmit(ctx *gin.Context) {
	identity, _ := middleware.GetIdentity(ctx)

	var form dto.ProblemForm
	if !middleware.BindForm(ctx, &form) {
		return
	}

	student, err := c.studentService.Get(ctx.Request.Context(), identity.Subject)
	if err != nil {
		if errors.Is(err, apperrors.ErrStudentNotFound) {
			err = apperrors.ErrSessionInvalid
		}
		middleware.HandleAPIError(ctx, err)
		return
	}

	resp, err := c.problemService.Create(ctx.Request.Context(), form.Fields(), student.Author(), formUploads(&form))
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, dto.NewSuccessResponse(resp, "Problem submitted for review"))
}

// StudentEdit handles PUT /student/problems/:id
func (c *ProblemController) StudentEdit(ctx *gin.Context) {
	id, ok := parseProblemID(ctx)
	if !ok {
		return
	}
	identity, _ := middleware.GetIdentity(ctx)

	var form dto.ProblemForm
	if !middleware.BindForm(ctx, &form) {
		return
	}

	resp, err := c.problemService.EditByStudent(ctx.Request.Context(), id, identity.Subject, form.Fields(), formUploads(&form))
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(resp, "Problem updated and sent for review"))
}

// AdminList handles GET /admin/problems. Passing ?page= switches to a
// paginated response.
func (c *ProblemController) AdminList(ctx *gin.Context) {
	problems, err := c.problemService.ListAll(ctx.Request.Context())
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	if page, size, paged := helpers.ParsePaginationParams(ctx); paged {
		items, info := helpers.Paginate(problems, page, size)
		ctx.JSON(http.StatusOK, dto.NewPaginatedResponse(items, info))
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(problems, ""))
}

// AdminSubmit handles POST /admin/problems
func (c *ProblemController) AdminSubmit(ctx *gin.Context) {
	identity, _ := middleware.GetIdentity(ctx)

	var form dto.ProblemForm
	if !middleware.BindForm(ctx, &form) {
		return
	}

	resp, err := c.problemService.CreateByAdmin(ctx.Request.Context(), identity.Subject, form.Author(), form.Fields(), formUploads(&form))
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, dto.NewSuccessResponse(resp, "Problem added"))
}

// Approve handles POST /admin/problems/:id/approve
func (c *ProblemController) Approve(ctx *gin.Context) {
	id, ok := parseProblemID(ctx)
	if !ok {
		return
	}

	if err := c.problemService.Approve(ctx.Request.Context(), id); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Problem approved"))
}

// Reject handles POST /admin/problems/:id/reject
func (c *ProblemController) Reject(ctx *gin.Context) {
	id, ok := parseProblemID(ctx)
	if !ok {
		return
	}

	var req dto.RejectRequest
	if !middleware.BindJSON(ctx, &req) {
		return
	}

	if err := c.problemService.Reject(ctx.Request.Context(), id, req.Reason); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Problem rejected"))
}

// AdminEdit handles PUT /admin/problems/:id
func (c *ProblemController) AdminEdit(ctx *gin.Context) {
	id, ok := parseProblemID(ctx)
	if !ok {
		return
	}

	var req dto.ProblemUpdateRequest
	if !middleware.BindJSON(ctx, &req) {
		return
	}

	problem, err := c.problemService.EditByAdmin(ctx.Request.Context(), id, req.Fields())
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(problem, "Problem updated"))
}

// Delete handles DELETE /admin/problems/:id
func (c *ProblemController) Delete(ctx *gin.Context) {
	id, ok := parseProblemID(ctx)
	if !ok {
		return
	}

	if err := c.problemService.Delete(ctx.Request.Context(), id); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Problem deleted"))
}
