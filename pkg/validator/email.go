package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyEmail indicates the email address is empty
	ErrEmptyEmail = errors.New("email address cannot be empty")

	// ErrEmailTooLong indicates the address exceeds the RFC 5321 path limit
	ErrEmailTooLong = errors.New("email address must not exceed 254 characters")

	// ErrLocalPartTooLong indicates the local part exceeds 64 octets
	ErrLocalPartTooLong = errors.New("email local part must not exceed 64 characters")

	// ErrInvalidEmailFormat indicates the address does not look like local@domain
	ErrInvalidEmailFormat = errors.New("email address is not in a valid format")
)

// emailRegex is a deliberately lenient RFC 5321 shape: printable local part,
// dotted domain with a final label of at least two letters. Full RFC 5322
// grammar is out of scope; the mail gateway is the final arbiter.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*\.[a-zA-Z]{2,}$`)

// EmailValidator handles passenger email validation
type EmailValidator struct{}

// NewEmailValidator creates a new email validator instance
func NewEmailValidator() *EmailValidator {
	return &EmailValidator{}
}

// Validate validates an email address against an RFC 5321 subset.
// Returns the sanitized (trimmed, lowercased domain) address and an error if invalid.
func (v *EmailValidator) Validate(email string) (string, error) {
	sanitized := strings.TrimSpace(email)
	if sanitized == "" {
		return "", ErrEmptyEmail
	}
	if len(sanitized) > 254 {
		return "", ErrEmailTooLong
	}

	at := strings.LastIndex(sanitized, "@")
	if at <= 0 || at == len(sanitized)-1 {
		return "", ErrInvalidEmailFormat
	}
	local, domain := sanitized[:at], sanitized[at+1:]
	if len(local) > 64 {
		return "", ErrLocalPartTooLong
	}

	sanitized = local + "@" + strings.ToLower(domain)
	if !emailRegex.MatchString(sanitized) {
		return "", ErrInvalidEmailFormat
	}
	return sanitized, nil
}

// IsValid is a convenience wrapper returning only a boolean.
func (v *EmailValidator) IsValid(email string) bool {
	_, err := v.Validate(email)
	return err == nil
}
