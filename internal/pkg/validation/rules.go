package validation

import (
	"regexp"
	"strings"
)

// PasswordMinLength applies to self-service password changes and resets.
const PasswordMinLength = 6

// emailPattern is matched after lower-casing.
var emailPattern = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// StringValidation checks one required value. Surrounding whitespace never
// counts towards the value.
type StringValidation struct {
	Value   string
	MinLen  int
	Pattern *regexp.Regexp
}

func NewStringValidation(value string) *StringValidation {
	return &StringValidation{Value: strings.TrimSpace(value)}
}

// WithMinLength sets minimum length
func (v *StringValidation) WithMinLength(min int) *StringValidation {
	v.MinLen = min
	return v
}

// WithPattern sets regex pattern
func (v *StringValidation) WithPattern(pattern *regexp.Regexp) *StringValidation {
	v.Pattern = pattern
	return v
}

// Validate performs validation
func (v *StringValidation) Validate() bool {
	if v.Value == "" {
		return false
	}
	if v.MinLen > 0 && len(v.Value) < v.MinLen {
		return false
	}
	return v.Pattern == nil || v.Pattern.MatchString(v.Value)
}

// Field pairs a user-facing field name with its submitted value.
type Field struct {
	Name  string
	Value string
}

// MissingFields returns the names of fields that are empty after trimming,
// in the order given.
func MissingFields(fields ...Field) []string {
	var missing []string
	for _, f := range fields {
		if !NewStringValidation(f.Value).Validate() {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// IsEmail reports whether s is a plausible email address.
func IsEmail(s string) bool {
	return NewStringValidation(strings.ToLower(s)).WithPattern(emailPattern).Validate()
}
