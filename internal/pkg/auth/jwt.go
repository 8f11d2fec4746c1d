package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// SessionCookieName is the cookie carrying the signed session.
const SessionCookieName = "portal_session"

// Role is who a session belongs to.
type Role string

const (
	RoleStudent Role = "user"
	RoleAdmin   Role = "admin"
)

// SessionConfig defines session signing settings
type SessionConfig struct {
	SecretKey string
	TTL       time.Duration
	Issuer    string
}

// SessionService issues and validates session tokens
type SessionService struct {
	config SessionConfig
}

// NewSessionService creates a new session service
func NewSessionService(config SessionConfig) *SessionService {
	if config.Issuer == "" {
		config.Issuer = "problemportal"
	}
	return &SessionService{config: config}
}

// Claims defines session token content. Subject is the roll number for
// students and the admin id for admins.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// TTL returns the session lifetime.
func (s *SessionService) TTL() time.Duration { return s.config.TTL }

// Issue signs a session for subject.
func (s *SessionService) Issue(role Role, subject string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.TTL)

	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
			Subject:   subject,
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates a session token and returns its claims.
func (s *SessionService) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.SecretKey), nil
	}, jwt.WithIssuer(s.config.Issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || (claims.Role != RoleStudent && claims.Role != RoleAdmin) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
