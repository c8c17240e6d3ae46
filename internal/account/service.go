package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const refreshTokenTTL = 7 * 24 * time.Hour

// Store persists user records and their current refresh-token state.
type Store interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByRefreshToken(ctx context.Context, token string) (User, error)
	Create(ctx context.Context, user User) error
	Update(ctx context.Context, user User) error
	UpsertExternalLogin(ctx context.Context, login ExternalLogin) error
}

// Service orchestrates registration, the three login paths and refresh
// rotation. It carries no per-request state and never logs; failures are
// surfaced as error values for the transport boundary to classify.
type Service struct {
	store  Store
	tokens *TokenProcessor
	hasher PasswordHasher
	now    func() time.Time
}

func NewService(store Store, tokens *TokenProcessor, hasher PasswordHasher) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		hasher: hasher,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates a user with a hashed password. No tokens are issued;
// login is a separate step. The email existence check is a fast path only:
// the store's unique index is the authoritative duplicate guard, so a
// concurrent identical registration still yields UserAlreadyExistsError for
// exactly one of the callers.
func (s *Service) Register(ctx context.Context, input RegisterInput) error {
	email := normalizeEmail(input.Email)

	_, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return UserAlreadyExistsError{Email: email}
	case !errors.Is(err, ErrUserNotFound):
		return fmt.Errorf("lookup user by email: %w", err)
	}

	if reasons := passwordPolicyViolations(input.Password); len(reasons) > 0 {
		return RegistrationError{Reasons: reasons}
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user, err := newUser(email, input.FirstName, input.LastName, s.now())
	if err != nil {
		return err
	}
	user.PasswordHash = hash

	if err := s.store.Create(ctx, user); err != nil {
		var exists UserAlreadyExistsError
		if errors.As(err, &exists) {
			return exists
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

// Login verifies the password and issues a fresh token pair. An unknown
// email and a wrong password produce the identical ErrLoginFailed.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	user, err := s.store.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, ErrLoginFailed
		}
		return TokenPair{}, fmt.Errorf("lookup user by email: %w", err)
	}

	// Provider-created users may have no password at all.
	if user.PasswordHash == "" {
		return TokenPair{}, ErrLoginFailed
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return TokenPair{}, ErrLoginFailed
	}

	return s.assignTokens(ctx, user)
}

// Refresh rotates a still-valid refresh token for a new pair. The stored
// value is overwritten, so replay of the consumed token fails the lookup.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, RefreshTokenError{Reason: RefreshReasonMissing}
	}

	user, err := s.store.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, RefreshTokenError{Reason: RefreshReasonNotFound}
		}
		return TokenPair{}, fmt.Errorf("lookup user by refresh token: %w", err)
	}

	if user.RefreshTokenExpiresAt == nil || user.RefreshTokenExpiresAt.Before(s.now()) {
		return TokenPair{}, RefreshTokenError{Reason: RefreshReasonExpired}
	}

	return s.assignTokens(ctx, user)
}

// LoginWithProvider resolves a provider-verified claim set to a local user,
// creating the user on first contact, upserts the (provider, key) link and
// issues a token pair. Calling it twice with the same identity is idempotent
// on both the user row and the link row.
func (s *Service) LoginWithProvider(ctx context.Context, identity VerifiedIdentity) (TokenPair, error) {
	provider := identity.Provider
	if provider == "" {
		provider = "unknown"
	}
	if identity.Email == "" {
		return TokenPair{}, ExternalProviderError{Provider: provider, Reason: "verified identity has no email claim"}
	}

	email := normalizeEmail(identity.Email)
	user, err := s.store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		// The provider already verified the address.
		user, err = newUser(email, identity.FirstName, identity.LastName, s.now())
		if err != nil {
			return TokenPair{}, ExternalProviderError{Provider: provider, Reason: err.Error()}
		}
		user.EmailConfirmed = true
		if err := s.store.Create(ctx, user); err != nil {
			return TokenPair{}, ExternalProviderError{Provider: provider, Reason: "unable to create user: " + err.Error()}
		}
	case err != nil:
		return TokenPair{}, fmt.Errorf("lookup user by email: %w", err)
	}

	key := identity.SubjectKey
	if key == "" {
		key = email
	}
	link := ExternalLogin{
		Provider:    provider,
		ProviderKey: key,
		UserID:      user.ID,
		CreatedAt:   s.now(),
	}
	if err := s.store.UpsertExternalLogin(ctx, link); err != nil {
		return TokenPair{}, ExternalProviderError{Provider: provider, Reason: "unable to link login: " + err.Error()}
	}

	return s.assignTokens(ctx, user)
}

// Logout invalidates the stored refresh pair for the presented token. An
// unknown token is reported so the boundary can still expire the cookies.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return RefreshTokenError{Reason: RefreshReasonMissing}
	}

	user, err := s.store.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return RefreshTokenError{Reason: RefreshReasonNotFound}
		}
		return fmt.Errorf("lookup user by refresh token: %w", err)
	}

	user.RefreshToken = nil
	user.RefreshTokenExpiresAt = nil
	if err := s.store.Update(ctx, user); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}

	return nil
}

// assignTokens is the shared terminal step of every login path: generate the
// pair, rotate the persisted refresh value, hand both back as data.
func (s *Service) assignTokens(ctx context.Context, user User) (TokenPair, error) {
	access, accessExpiresAt, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := s.tokens.GenerateRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}
	refreshExpiresAt := s.now().Add(refreshTokenTTL)

	user.RefreshToken = &refresh
	user.RefreshTokenExpiresAt = &refreshExpiresAt
	if err := s.store.Update(ctx, user); err != nil {
		return TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

func newUser(email, firstName, lastName string, now time.Time) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	return User{
		ID:        id.String(),
		Email:     email,
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func passwordPolicyViolations(password string) []string {
	var reasons []string
	if len(password) < 8 {
		reasons = append(reasons, "password must be at least 8 characters long")
	}

	var hasDigit, hasLower, hasUpper, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		default:
			hasSymbol = true
		}
	}
	if !hasDigit {
		reasons = append(reasons, "password must contain at least one digit")
	}
	if !hasLower {
		reasons = append(reasons, "password must contain at least one lowercase letter")
	}
	if !hasUpper {
		reasons = append(reasons, "password must contain at least one uppercase letter")
	}
	if !hasSymbol {
		reasons = append(reasons, "password must contain at least one non-alphanumeric character")
	}

	return reasons
}
