package auth

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const minPasswordLen = 8

// NormalizeEmail canonicalizes an email address for comparison and
// storage: NFKC-normalized, trimmed, lowercased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(email)))
}

// validateCredentials checks login input shape locally so malformed
// requests fail fast without a network call.
func validateCredentials(creds Credentials) error {
	email := NormalizeEmail(creds.Email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: malformed email %q", ErrValidation, email)
	}
	if creds.Password == "" {
		return fmt.Errorf("%w: password is required", ErrValidation)
	}
	return nil
}

// validateRegistration applies the login validation discipline plus the
// registration-only rules.
func validateRegistration(reg Registration) error {
	if err := validateCredentials(Credentials{Email: reg.Email, Password: reg.Password}); err != nil {
		return err
	}
	if len(reg.Password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}
	if strings.TrimSpace(reg.DisplayName) == "" {
		return fmt.Errorf("%w: display name is required", ErrValidation)
	}
	return nil
}
