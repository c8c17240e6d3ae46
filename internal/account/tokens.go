package account

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Cookie names the transport boundary reads tokens from and writes them to.
const (
	AccessTokenCookie  = "ACCESS_TOKEN"
	RefreshTokenCookie = "REFRESH_TOKEN"
)

const refreshTokenBytes = 64

// TokenProcessor generates signed access tokens and opaque refresh tokens.
// It holds no mutable state and is safe for concurrent use.
type TokenProcessor struct {
	secret    []byte
	issuer    string
	audience  string
	accessTTL time.Duration
}

func NewTokenProcessor(secret, issuer, audience string, accessTTL time.Duration) (*TokenProcessor, error) {
	if secret == "" {
		return nil, errors.New("signing secret must not be empty")
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("issuer and audience must not be empty")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}

	return &TokenProcessor{
		secret:    []byte(secret),
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
	}, nil
}

// AccessClaims is the verified claim set carried by an access token.
type AccessClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// GenerateAccessToken signs a short-lived HS256 token for the user and
// returns it with its absolute expiry.
func (p *TokenProcessor) GenerateAccessToken(user User) (string, time.Time, error) {
	jti, err := uuid.NewV7()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate jti: %w", err)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(p.accessTTL)

	claims := AccessClaims{
		Email: user.Email,
		Name:  user.DisplayName(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			Subject:   user.ID,
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return token, expiresAt, nil
}

// ParseAccessToken verifies signature, lifetime, issuer and audience.
func (p *TokenProcessor) ParseAccessToken(token string) (AccessClaims, error) {
	var claims AccessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return AccessClaims{}, err
	}
	if !parsed.Valid {
		return AccessClaims{}, jwt.ErrTokenUnverifiable
	}

	return claims, nil
}

// GenerateRefreshToken returns 64 CSPRNG bytes, base64-encoded. The value is
// opaque; uniqueness is enforced by the store index, collisions are treated
// as negligible.
func (p *TokenProcessor) GenerateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// AuthCookie renders a token as a cookie directive. Appending it to the
// response is the caller's job; the core never touches the HTTP context.
func AuthCookie(name, value string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt.UTC(),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// ExpiredAuthCookie clears a previously issued auth cookie.
func ExpiredAuthCookie(name string) *http.Cookie {
	cookie := AuthCookie(name, "", time.Unix(0, 0).UTC())
	cookie.MaxAge = -1
	return cookie
}

// Cookies renders the pair in access, refresh order.
func (t TokenPair) Cookies() []*http.Cookie {
	return []*http.Cookie{
		AuthCookie(AccessTokenCookie, t.AccessToken, t.AccessExpiresAt),
		AuthCookie(RefreshTokenCookie, t.RefreshToken, t.RefreshExpiresAt),
	}
}
