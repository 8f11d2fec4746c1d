package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/yigit/problemportal/internal/app/controllers"
	"github.com/yigit/problemportal/internal/middleware"
	"github.com/yigit/problemportal/internal/pkg/auth"
)

// Controllers groups the handlers mounted by SetupRouter
type Controllers struct {
	Auth    *controllers.AuthController
	Problem *controllers.ProblemController
	Student *controllers.StudentController
	Upload  *controllers.UploadController
	Mirror  *controllers.MirrorController
}

// SetupRouter configures all application routes
func SetupRouter(router *gin.Engine, c Controllers, authMiddleware *middleware.AuthMiddleware) {
	v1 := router.Group("/api/v1")

	// --- Public routes ---
	v1.GET("/problems", c.Problem.ListApproved)

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/student/login", c.Auth.StudentLogin)
		authGroup.POST("/admin/login", c.Auth.AdminLogin)
		authGroup.POST("/logout", c.Auth.Logout)
		authGroup.POST("/forgot-password", c.Auth.ForgotPassword)
		authGroup.POST("/verify-otp", c.Auth.VerifyOTP)
		authGroup.POST("/reset-password", c.Auth.ResetPassword)
	}

	// --- Any signed-in user ---
	authenticated := v1.Group("")
	authenticated.Use(authMiddleware.SessionAuth())
	{
		authenticated.GET("/auth/me", c.Auth.Me)
		authenticated.GET("/problems/:id", c.Problem.GetProblem)
	}

	// --- Students ---
	student := v1.Group("/student")
	student.Use(authMiddleware.SessionAuth(), authMiddleware.RoleRequired(auth.RoleStudent))
	{
		student.GET("/problems", c.Problem.StudentDashboard)
		student.POST("/problems", c.Problem.StudentSubmit)
		student.PUT("/problems/:id", c.Problem.StudentEdit)
		student.POST("/password", c.Auth.ChangeStudentPassword)
	}

	// --- Admins ---
	admin := v1.Group("/admin")
	admin.Use(authMiddleware.SessionAuth(), authMiddleware.RoleRequired(auth.RoleAdmin))
	{
		admin.POST("/password", c.Auth.ChangeAdminPassword)

		problems := admin.Group("/problems")
		{
			problems.GET("", c.Problem.AdminList)
			problems.POST("", c.Problem.AdminSubmit)
			problems.PUT("/:id", c.Problem.AdminEdit)
			problems.DELETE("/:id", c.Problem.Delete)
			problems.POST("/:id/approve", c.Problem.Approve)
			problems.POST("/:id/reject", c.Problem.Reject)
		}

		students := admin.Group("/students")
		{
			students.GET("", c.Student.List)
			students.POST("", c.Student.Create)
			students.PUT("/:roll", c.Student.Update)
			students.DELETE("/:roll", c.Student.Delete)
			students.POST("/:roll/password", c.Student.SetPassword)
		}

		admin.GET("/export/problems.csv", c.Mirror.ExportProblems)
		admin.GET("/export/students.csv", c.Mirror.ExportStudents)
		admin.POST("/import", c.Mirror.Import)
	}

	// Attachments are only served to signed-in users
	router.GET("/uploads/*path", authMiddleware.SessionAuth(), c.Upload.Serve)
}
