package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yigit/problemportal/internal/app/models/dto"
	"github.com/yigit/problemportal/internal/pkg/apperrors"
	"github.com/yigit/problemportal/internal/pkg/logger"
)

// HandleAPIError maps a service error onto a status code and error envelope.
// Missing rows and rows the caller may not touch both answer 404 so that a
// student cannot probe for other students' problems.
func HandleAPIError(c *gin.Context, err error) {
	status, detail := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("Request failed")
	}
	c.JSON(status, dto.NewErrorResponse(detail))
}

func errorResponse(err error) (int, *dto.ErrorDetail) {
	switch {
	case errors.Is(err, apperrors.ErrValidationFailed):
		return http.StatusBadRequest, dto.NewErrorDetail(dto.ErrorCodeValidationFailed, apperrors.Message(err, "Validation failed"))
	case apperrors.Is(err, apperrors.ErrResourceNotFound, apperrors.ErrPermissionDenied):
		return http.StatusNotFound, dto.NewErrorDetail(dto.ErrorCodeResourceNotFound, apperrors.Message(err, "Resource not found"))
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, dto.NewErrorDetail(dto.ErrorCodeInvalidCredentials, apperrors.Message(err, "Invalid credentials"))
	case errors.Is(err, apperrors.ErrSessionInvalid):
		return http.StatusUnauthorized, dto.NewErrorDetail(dto.ErrorCodeInvalidToken, "Session is no longer valid")
	case errors.Is(err, apperrors.ErrOTPExpired):
		return http.StatusUnauthorized, dto.NewErrorDetail(dto.ErrorCodeExpiredOTP, "Verification code expired")
	case errors.Is(err, apperrors.ErrOTPInvalid):
		return http.StatusUnauthorized, dto.NewErrorDetail(dto.ErrorCodeInvalidOTP, "Invalid verification code")
	case errors.Is(err, apperrors.ErrResetNotVerified):
		return http.StatusUnauthorized, dto.NewErrorDetail(dto.ErrorCodeResetNotVerified, "Verify the code before resetting the password")
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, dto.NewErrorDetail(dto.ErrorCodeConflict, apperrors.Message(err, "Resource already exists"))
	case errors.Is(err, apperrors.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, dto.NewErrorDetail(dto.ErrorCodeStorageUnavailable, "Storage unavailable, try again later")
	default:
		return http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrorCodeInternalServer, "Internal server error")
	}
}
