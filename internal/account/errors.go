package account

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLoginFailed deliberately covers both an unknown email and a wrong
// password so callers cannot enumerate accounts.
var ErrLoginFailed = errors.New("invalid email or password")

// ErrUserNotFound is returned by Store lookups that match no row.
var ErrUserNotFound = errors.New("user not found")

type UserAlreadyExistsError struct {
	Email string
}

func (e UserAlreadyExistsError) Error() string {
	return fmt.Sprintf("user with email %s already exists", e.Email)
}

// RegistrationError aggregates every policy violation found during
// registration rather than reporting them one at a time.
type RegistrationError struct {
	Reasons []string
}

func (e RegistrationError) Error() string {
	return "registration failed: " + strings.Join(e.Reasons, "; ")
}

// Refresh-token failure reasons surfaced by RefreshTokenError.
const (
	RefreshReasonMissing  = "missing"
	RefreshReasonNotFound = "not found"
	RefreshReasonExpired  = "expired"
)

type RefreshTokenError struct {
	Reason string
}

func (e RefreshTokenError) Error() string {
	return "refresh token invalid: " + e.Reason
}

type ExternalProviderError struct {
	Provider string
	Reason   string
}

func (e ExternalProviderError) Error() string {
	return fmt.Sprintf("external provider %s: %s", e.Provider, e.Reason)
}
