// Package controllers handles HTTP request handling
package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/app/models/dto"
	"github.com/yigit/problemportal/internal/app/services"
	"github.com/yigit/problemportal/internal/middleware"
	"github.com/yigit/problemportal/internal/pkg/auth"
)

// AuthController handles login, logout and password operations
type AuthController struct {
	authService  *services.AuthService
	cookieSecure bool
	logger       zerolog.Logger
}

// NewAuthController creates a new AuthController
func NewAuthController(authService *services.AuthService, cookieSecure bool, logger zerolog.Logger) *AuthController {
	return &AuthController{
		authService:  authService,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

func (c *AuthController) setSessionCookie(ctx *gin.Context, token string, expiresAt *time.Time) {
	maxAge := 0
	if expiresAt != nil {
		maxAge = int(time.Until(*expiresAt).Seconds())
	}
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(auth.SessionCookieName, token, maxAge, "/", "", c.cookieSecure, true)
}

// StudentLogin handles POST /auth/student/login
func (c *AuthController) StudentLogin(ctx *gin.Context) {
	var req dto.StudentLoginRequest
	if !middleware.BindJSON(ctx, &req) {
		return
	}

	result, err := c.authService.LoginStudent(ctx.Request.Context(), &req)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	c.setSessionCookie(ctx, result.Token, result.Session.ExpiresAt)
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(result.Session, "Logged in"))
}

// AdminLogin handles POST /auth/admin/login
func (c *AuthController) AdminLogin(ctx *gin.Context) {
	var req dto.AdminLoginRequest
	if !middleware.BindJSON(ctx, &req) {
		return
	}

	result, err := c.authService.LoginAdmin(ctx.Request.Context(), &req)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	c.setSessionCookie(ctx, result.Token, result.Session.ExpiresAt)
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(result.Session, "Logged in"))
}

// Logout clears the session cookie
func (c *AuthController) Logout(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(auth.SessionCookieName, "", -1, "/", "", c.cookieSecure, true)
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Logged out"))
}

// Me returns the identity behind the current session
func (c *AuthController) Me(ctx *gin.Context) {
	claims, ok := middleware.GetClaims(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, dto.NewErrorResponse(dto.NewErrorDetail(dto.ErrorCodeUnauthorized, "Authentication required")))
		return
	}

	session, err := c.authService.Session(ctx.Request.Context(), claims)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(session, ""))
}

// ChangeStudentPassword handles POST /student/password
func (c *AuthController) ChangeStudentPassword(ctx *gin.Context) {
	id, _ := middleware.GetIdentity(ctx)

	var req dto.ChangePasswordRequest
	if !middleware.BindJSON(ctx, &req) {
		return
	}

	if err := c.authService.ChangeStudentPassword(ctx.Request.Context(), id.Subject, &req); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Password updated"))
}

// ChangeAdminPassword handles POST /admin/password
func (c *AuthController) ChangeAdminPassword(ctx *gin.Context) {
	id, _ := middleware.GetIdentity(ctx)

	var req dto.ChangePasswordRequest
	if !middleware.BindJSON(ctx, &req) {
		return
	}

	if err := c.authService.ChangeAdminPassword(ctx.Request.Context(), id.Subject, &req); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Password updated"))
}

// ForgotPassword mails a one-time code to the student
func (c *AuthController) ForgotPassword(ctx *gin.Context) {
	var req dto.ForgotPasswordRequest
	if !middleware.BindJSON(ctx, &req) {
		return
	}

	resp, err := c.authService.ForgotPassword(ctx.Request.Context(), &req)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(resp, "Verification code sent"))
}

// VerifyOTP checks the mailed code
func (c *AuthController) VerifyOTP(ctx *gin.Context) {
	var req dto.VerifyOTPRequest
	if !middleware.BindJSON(ctx, &req) {
		return
	}

	if err := c.authService.VerifyOTP(ctx.Request.Context(), &req); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Code verified"))
}

// ResetPassword sets a new password after a verified code
func (c *AuthController) ResetPassword(ctx *gin.Context) {
	var req dto.ResetPasswordRequest
	if !middleware.BindJSON(ctx, &req) {
		return
	}

	if err := c.authService.ResetPassword(ctx.Request.Context(), &req); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	c.logger.Info().Str("rollNo", req.RollNo).Msg("Password reset completed")
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Password has been reset"))
}
