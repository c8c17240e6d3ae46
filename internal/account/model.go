package account

import (
	"strings"
	"time"
)

// User is the persisted identity record. RefreshToken and
// RefreshTokenExpiresAt are set and cleared together: a user holds at most
// one valid refresh token at a time, and rotation overwrites it in place.
type User struct {
	ID                    string
	Email                 string
	PasswordHash          string
	FirstName             string
	LastName              string
	EmailConfirmed        bool
	RefreshToken          *string
	RefreshTokenExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ExternalLogin links a local user to a provider-asserted subject. At most
// one user per (provider, key) pair; a user may hold links from several
// providers.
type ExternalLogin struct {
	Provider    string
	ProviderKey string
	UserID      string
	CreatedAt   time.Time
}

// VerifiedIdentity is the claim set an identity-provider collaborator hands
// to the core after it has verified the assertion. The core never talks to
// the provider itself.
type VerifiedIdentity struct {
	Provider   string
	SubjectKey string
	Email      string
	FirstName  string
	LastName   string
}

// TokenPair is the result of a successful login or refresh. Handlers render
// it as the ACCESS_TOKEN and REFRESH_TOKEN cookies; the core only produces
// the values and their expiries.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
