package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yigit/problemportal/internal/app/models/dto"
	"github.com/yigit/problemportal/internal/app/services"
	"github.com/yigit/problemportal/internal/middleware"
)

// StudentController handles admin management of student accounts
type StudentController struct {
	studentService services.StudentService
}

// NewStudentController creates a new StudentController
func NewStudentController(studentService services.StudentService) *StudentController {
	return &StudentController{studentService: studentService}
}

// List handles GET /admin/students
func (c *StudentController) List(ctx *gin.Context) {
	students, err := c.studentService.List(ctx.Request.Context())
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(students, ""))
}

// Create handles POST /admin/students
func (c *StudentController) Create(ctx *gin.Context) {
	var req dto.CreateStudentRequest
	if !middleware.BindJSON(ctx, &req) {
		return
	}

	student, err := c.studentService.Create(ctx.Request.Context(), &req)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, dto.NewSuccessResponse(student, "Student added"))
}

// Update handles PUT /admin/students/:roll
func (c *StudentController) Update(ctx *gin.Context) {
	var req dto.UpdateStudentRequest
	if !middleware.BindJSON(ctx, &req) {
		return
	}

	student, err := c.studentService.Update(ctx.Request.Context(), ctx.Param("roll"), &req)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(student, "Student updated"))
}

// Delete handles DELETE /admin/students/:roll
func (c *StudentController) Delete(ctx *gin.Context) {
	if err := c.studentService.Delete(ctx.Request.Context(), ctx.Param("roll")); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Student deleted"))
}

// SetPassword handles POST /admin/students/:roll/password
func (c *StudentController) SetPassword(ctx *gin.Context) {
	var req dto.SetStudentPasswordRequest
	if !middleware.BindJSON(ctx, &req) {
		return
	}

	if err := c.studentService.SetPassword(ctx.Request.Context(), ctx.Param("roll"), req.NewPassword); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Password updated"))
}
