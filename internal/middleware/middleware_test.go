package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/app/models/dto"
	"github.com/yigit/problemportal/internal/pkg/apperrors"
	"github.com/yigit/problemportal/internal/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    dto.ErrorCode
		message string
	}{
		{"validation", apperrors.NewValidationError("Missing required fields: title"), http.StatusBadRequest, dto.ErrorCodeValidationFailed, "Missing required fields: title"},
		{"not found", apperrors.ErrProblemNotFound, http.StatusNotFound, dto.ErrorCodeResourceNotFound, "problem not found"},
		{"forbidden hides as not found", apperrors.NewForbiddenError("problem not found"), http.StatusNotFound, dto.ErrorCodeResourceNotFound, "problem not found"},
		{"conflict", fmt.Errorf("insert: %w", apperrors.ErrEmailExists), http.StatusConflict, dto.ErrorCodeConflict, "Email already exists"},
		{"credentials", apperrors.ErrInvalidCredentials, http.StatusUnauthorized, dto.ErrorCodeInvalidCredentials, "Invalid credentials"},
		{"otp expired", apperrors.ErrOTPExpired, http.StatusUnauthorized, dto.ErrorCodeExpiredOTP, "Verification code expired"},
		{"storage", apperrors.NewStorageUnavailableError(errors.New("dial tcp: refused")), http.StatusServiceUnavailable, dto.ErrorCodeStorageUnavailable, "Storage unavailable, try again later"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, dto.ErrorCodeInternalServer, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, detail := errorResponse(tt.err)
			if status != tt.status || detail.Code != tt.code || detail.Message != tt.message {
				t.Fatalf("errorResponse = %d %s %q; want %d %s %q", status, detail.Code, detail.Message, tt.status, tt.code, tt.message)
			}
		})
	}
}

func sessionRouter(sessions *auth.SessionService) *gin.Engine {
	m := NewAuthMiddleware(sessions)
	r := gin.New()
	r.GET("/admin", m.SessionAuth(), m.RoleRequired(auth.RoleAdmin), func(c *gin.Context) {
		id, _ := GetIdentity(c)
		c.String(http.StatusOK, id.Subject)
	})
	return r
}

func TestSessionAuth(t *testing.T) {
	sessions := auth.NewSessionService(auth.SessionConfig{SecretKey: "k", TTL: time.Hour})
	expired := auth.NewSessionService(auth.SessionConfig{SecretKey: "k", TTL: -time.Minute})
	r := sessionRouter(sessions)

	adminToken, _, _ := sessions.Issue(auth.RoleAdmin, "root")
	studentToken, _, _ := sessions.Issue(auth.RoleStudent, "21CS001")
	expiredToken, _, _ := expired.Issue(auth.RoleAdmin, "root")

	tests := []struct {
		name   string
		token  string
		status int
		code   dto.ErrorCode
	}{
		{"no cookie", "", http.StatusUnauthorized, dto.ErrorCodeUnauthorized},
		{"expired", expiredToken, http.StatusUnauthorized, dto.ErrorCodeExpiredToken},
		{"wrong role", studentToken, http.StatusForbidden, dto.ErrorCodeForbidden},
		{"admin", adminToken, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.token != "" {
				req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: tt.token})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.code == "" {
				if w.Body.String() != "root" {
					t.Fatalf("body = %q", w.Body.String())
				}
				return
			}
			var resp dto.APIResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Fatalf("error = %+v, want code %s", resp.Error, tt.code)
			}
		})
	}
}

func TestBindJSONRejectsInvalidBody(t *testing.T) {
	r := gin.New()
	r.POST("/login", func(c *gin.Context) {
		var req dto.StudentLoginRequest
		if !BindJSON(c, &req) {
			return
		}
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"roll_no":"21CS001"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var resp dto.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != dto.ErrorCodeValidationFailed || resp.Error.Field != "password" {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf)))
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["level"] != "warn" || entry["path"] != "/missing" || entry["status"] != float64(404) {
		t.Fatalf("log entry = %v", entry)
	}
}
