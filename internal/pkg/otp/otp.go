// Package otp issues and checks one-time codes for the forgot-password flow.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/yigit/problemportal/internal/pkg/apperrors"
)

const (
	codeKey     = "code:"
	verifiedKey = "verified:"
)

// Generate returns a random numeric code of the given length.
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("otp: invalid length %d", length)
	}
	const digits = "0123456789"
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", fmt.Errorf("otp: secure random generation failed: %w", err)
		}
		code[i] = digits[n.Int64()]
	}
	return string(code), nil
}

// Manager ties code generation to a Store.
type Manager struct {
	store  Store
	ttl    time.Duration
	length int
}

// NewManager returns a Manager issuing codes of length that live for ttl.
func NewManager(store Store, ttl time.Duration, length int) *Manager {
	return &Manager{store: store, ttl: ttl, length: length}
}

// TTL returns how long an issued code stays valid.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue creates a new code for subject, replacing any earlier one and
// clearing a previous verification.
func (m *Manager) Issue(ctx context.Context, subject string) (string, error) {
	code, err := Generate(m.length)
	if err != nil {
		return "", err
	}
	if err := m.store.Delete(ctx, verifiedKey+subject); err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, codeKey+subject, code, m.ttl); err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks code for subject. On success the code is consumed and the
// subject is marked verified for another TTL. A missing code reports
// ErrOTPExpired; a mismatch reports ErrOTPInvalid and keeps the code.
func (m *Manager) Verify(ctx context.Context, subject, code string) error {
	stored, err := m.store.Get(ctx, codeKey+subject)
	if errors.Is(err, ErrNotFound) {
		return apperrors.ErrOTPExpired
	}
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return apperrors.ErrOTPInvalid
	}

	if err := m.store.Delete(ctx, codeKey+subject); err != nil {
		return err
	}
	return m.store.Set(ctx, verifiedKey+subject, "1", m.ttl)
}

// ConsumeVerified reports ErrResetNotVerified unless subject passed Verify
// within the TTL. The flag is cleared on success.
func (m *Manager) ConsumeVerified(ctx context.Context, subject string) error {
	_, err := m.store.Get(ctx, verifiedKey+subject)
	if errors.Is(err, ErrNotFound) {
		return apperrors.ErrResetNotVerified
	}
	if err != nil {
		return err
	}
	return m.store.Delete(ctx, verifiedKey+subject)
}

// IsVerified reports whether subject has a pending verified reset.
func (m *Manager) IsVerified(ctx context.Context, subject string) (bool, error) {
	_, err := m.store.Get(ctx, verifiedKey+subject)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
