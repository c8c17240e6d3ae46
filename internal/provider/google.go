// Package provider turns third-party authorization grants into verified
// identity claim sets for the account service. Consent UI and redirects are
// the client's problem; this package only finishes the code exchange.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"account-service/internal/account"
)

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// Google exchanges an authorization code for an access token and reads the
// userinfo endpoint. Only identities Google reports as email-verified are
// handed to the account service.
type Google struct {
	config      *oauth2.Config
	userinfoURL string
}

func NewGoogle(clientID, clientSecret, redirectURL string) *Google {
	return &Google{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userinfoURL: googleUserinfoURL,
	}
}

var _ account.IdentityVerifier = (*Google)(nil)

type googleUserinfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

func (g *Google) Verify(ctx context.Context, code string) (account.VerifiedIdentity, error) {
	if code == "" {
		return account.VerifiedIdentity{}, account.ExternalProviderError{
			Provider: "google",
			Reason:   "authorization code is missing",
		}
	}

	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return account.VerifiedIdentity{}, account.ExternalProviderError{
			Provider: "google",
			Reason:   fmt.Sprintf("code exchange failed: %v", err),
		}
	}

	info, err := g.fetchUserinfo(ctx, token)
	if err != nil {
		return account.VerifiedIdentity{}, account.ExternalProviderError{
			Provider: "google",
			Reason:   err.Error(),
		}
	}

	if !info.EmailVerified {
		return account.VerifiedIdentity{}, account.ExternalProviderError{
			Provider: "google",
			Reason:   "email is not verified by the provider",
		}
	}

	return account.VerifiedIdentity{
		Provider:   "google",
		SubjectKey: info.Sub,
		Email:      info.Email,
		FirstName:  info.GivenName,
		LastName:   info.FamilyName,
	}, nil
}

func (g *Google) fetchUserinfo(ctx context.Context, token *oauth2.Token) (googleUserinfo, error) {
	client := g.config.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userinfoURL, nil)
	if err != nil {
		return googleUserinfo{}, fmt.Errorf("build userinfo request: %w", err)
	}

	res, err := client.Do(req)
	if err != nil {
		return googleUserinfo{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return googleUserinfo{}, fmt.Errorf("userinfo endpoint returned status %d", res.StatusCode)
	}

	var info googleUserinfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return googleUserinfo{}, fmt.Errorf("decode userinfo: %w", err)
	}

	return info, nil
}
