package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the hashing cost for new passwords.
var BcryptCost = 12

// HashPassword hashes a password with bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// IsHashed reports whether stored looks like a bcrypt hash.
func IsHashed(stored string) bool {
	if len(stored) != 60 {
		return false
	}
	return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
}

// CheckPassword verifies password against stored. Rows imported from older
// data may hold plaintext; those match by exact comparison and report
// needsRehash so the caller can store a hash instead.
func CheckPassword(stored, password string) (ok, needsRehash bool) {
	if stored == "" {
		return false, false
	}
	if IsHashed(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil, false
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1 {
		return true, true
	}
	return false, false
}
