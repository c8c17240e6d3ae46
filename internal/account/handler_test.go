package account_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-service/internal/account"
)

type stubVerifier struct {
	identity account.VerifiedIdentity
	err      error
}

func (s *stubVerifier) Verify(context.Context, string) (account.VerifiedIdentity, error) {
	if s.err != nil {
		return account.VerifiedIdentity{}, s.err
	}
	return s.identity, nil
}

func newTestMux(t *testing.T, verifier account.IdentityVerifier) (*http.ServeMux, *memStore) {
	t.Helper()
	store := newMemStore()
	tokens := newTestProcessor(t)
	service := account.NewService(store, tokens, fakeHasher{})
	handler := account.NewHandler(service, verifier)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/account/register", handler.Register)
	mux.HandleFunc("POST /api/account/login", handler.Login)
	mux.HandleFunc("POST /api/account/refresh", handler.Refresh)
	mux.HandleFunc("POST /api/account/login/google", handler.LoginWithProvider)
	mux.HandleFunc("POST /api/account/logout", handler.Logout)
	mux.Handle("GET /api/account/me", account.Middleware(tokens, http.HandlerFunc(handler.Me)))

	return mux, store
}

func doJSON(mux *http.ServeMux, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	res := httptest.NewRecorder()
	mux.ServeHTTP(res, req)
	return res
}

func cookieByName(t *testing.T, res *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range res.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

const registerBody = `{"email":"a@x.com","password":"P@ssw0rd1","first_name":"A","last_name":"B"}`
const loginBody = `{"email":"a@x.com","password":"P@ssw0rd1"}`

func TestRegisterEndpoint(t *testing.T) {
	mux, _ := newTestMux(t, &stubVerifier{})

	res := doJSON(mux, http.MethodPost, "/api/account/register", registerBody)
	require.Equal(t, http.StatusOK, res.Code)

	// Registration never issues tokens.
	assert.Empty(t, res.Result().Cookies())
}

func TestRegisterEndpointDuplicate(t *testing.T) {
	mux, _ := newTestMux(t, &stubVerifier{})

	require.Equal(t, http.StatusOK, doJSON(mux, http.MethodPost, "/api/account/register", registerBody).Code)
	res := doJSON(mux, http.MethodPost, "/api/account/register", registerBody)
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestRegisterEndpointWeakPassword(t *testing.T) {
	mux, _ := newTestMux(t, &stubVerifier{})

	res := doJSON(mux, http.MethodPost, "/api/account/register",
		`{"email":"a@x.com","password":"short","first_name":"A","last_name":"B"}`)
	require.Equal(t, http.StatusBadRequest, res.Code)

	var body struct {
		Error   string   `json:"error"`
		Reasons []string `json:"reasons"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Reasons)
}

func TestRegisterEndpointRejectsBadBodies(t *testing.T) {
	mux, _ := newTestMux(t, &stubVerifier{})

	assert.Equal(t, http.StatusBadRequest, doJSON(mux, http.MethodPost, "/api/account/register", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(mux, http.MethodPost, "/api/account/register",
		`{"email":"a@x.com","password":"P@ssw0rd1","first_name":"A","last_name":"B","extra":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(mux, http.MethodPost, "/api/account/register",
		`{"email":"not-an-email","password":"P@ssw0rd1","first_name":"A","last_name":"B"}`).Code)
}

func TestLoginEndpointSetsCookies(t *testing.T) {
	mux, _ := newTestMux(t, &stubVerifier{})
	require.Equal(t, http.StatusOK, doJSON(mux, http.MethodPost, "/api/account/register", registerBody).Code)

	res := doJSON(mux, http.MethodPost, "/api/account/login", loginBody)
	require.Equal(t, http.StatusOK, res.Code)

	access := cookieByName(t, res, account.AccessTokenCookie)
	refresh := cookieByName(t, res, account.RefreshTokenCookie)

	for _, cookie := range []*http.Cookie{access, refresh} {
		assert.True(t, cookie.HttpOnly)
		assert.True(t, cookie.Secure)
		assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
		assert.True(t, cookie.Expires.After(time.Now()))
	}
	assert.False(t, access.Expires.After(refresh.Expires))
}

func TestLoginEndpointUniformUnauthorized(t *testing.T) {
	mux, _ := newTestMux(t, &stubVerifier{})
	require.Equal(t, http.StatusOK, doJSON(mux, http.MethodPost, "/api/account/register", registerBody).Code)

	wrongPassword := doJSON(mux, http.MethodPost, "/api/account/login", `{"email":"a@x.com","password":"wrongwrong"}`)
	unknownEmail := doJSON(mux, http.MethodPost, "/api/account/login", `{"email":"b@x.com","password":"P@ssw0rd1"}`)

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestRefreshEndpointRotatesCookies(t *testing.T) {
	mux, _ := newTestMux(t, &stubVerifier{})
	require.Equal(t, http.StatusOK, doJSON(mux, http.MethodPost, "/api/account/register", registerBody).Code)

	login := doJSON(mux, http.MethodPost, "/api/account/login", loginBody)
	refreshCookie := cookieByName(t, login, account.RefreshTokenCookie)

	res := doJSON(mux, http.MethodPost, "/api/account/refresh", "", refreshCookie)
	require.Equal(t, http.StatusOK, res.Code)
	rotated := cookieByName(t, res, account.RefreshTokenCookie)
	assert.NotEqual(t, refreshCookie.Value, rotated.Value)

	// The consumed token no longer validates.
	replay := doJSON(mux, http.MethodPost, "/api/account/refresh", "", refreshCookie)
	assert.Equal(t, http.StatusUnauthorized, replay.Code)

	res = doJSON(mux, http.MethodPost, "/api/account/refresh", "", rotated)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestRefreshEndpointWithoutCookie(t *testing.T) {
	mux, _ := newTestMux(t, &stubVerifier{})

	res := doJSON(mux, http.MethodPost, "/api/account/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestProviderLoginEndpoint(t *testing.T) {
	verifier := &stubVerifier{identity: account.VerifiedIdentity{
		Provider:   "google",
		SubjectKey: "google-sub-1",
		Email:      "prov@x.com",
		FirstName:  "P",
		LastName:   "Q",
	}}
	mux, store := newTestMux(t, verifier)

	res := doJSON(mux, http.MethodPost, "/api/account/login/google", `{"code":"auth-code"}`)
	require.Equal(t, http.StatusOK, res.Code)
	cookieByName(t, res, account.AccessTokenCookie)
	cookieByName(t, res, account.RefreshTokenCookie)
	assert.Len(t, store.users, 1)
	assert.Len(t, store.links, 1)
}

func TestProviderLoginEndpointVerifierFailure(t *testing.T) {
	verifier := &stubVerifier{err: account.ExternalProviderError{Provider: "google", Reason: "code exchange failed"}}
	mux, _ := newTestMux(t, verifier)

	res := doJSON(mux, http.MethodPost, "/api/account/login/google", `{"code":"bad-code"}`)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestProviderLoginEndpointUnclassifiedVerifierError(t *testing.T) {
	verifier := &stubVerifier{err: errors.New("network down")}
	mux, _ := newTestMux(t, verifier)

	res := doJSON(mux, http.MethodPost, "/api/account/login/google", `{"code":"auth-code"}`)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestMeEndpoint(t *testing.T) {
	mux, _ := newTestMux(t, &stubVerifier{})
	require.Equal(t, http.StatusOK, doJSON(mux, http.MethodPost, "/api/account/register", registerBody).Code)

	login := doJSON(mux, http.MethodPost, "/api/account/login", loginBody)
	access := cookieByName(t, login, account.AccessTokenCookie)

	res := doJSON(mux, http.MethodGet, "/api/account/me", "", access)
	require.Equal(t, http.StatusOK, res.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "a@x.com", body["email"])
	assert.NotEmpty(t, body["id"])
}

func TestMeEndpointBearerFallback(t *testing.T) {
	mux, _ := newTestMux(t, &stubVerifier{})
	require.Equal(t, http.StatusOK, doJSON(mux, http.MethodPost, "/api/account/register", registerBody).Code)

	login := doJSON(mux, http.MethodPost, "/api/account/login", loginBody)
	access := cookieByName(t, login, account.AccessTokenCookie)

	req := httptest.NewRequest(http.MethodGet, "/api/account/me", nil)
	req.Header.Set("Authorization", "Bearer "+access.Value)
	res := httptest.NewRecorder()
	mux.ServeHTTP(res, req)

	assert.Equal(t, http.StatusOK, res.Code)
}

func TestMeEndpointRejectsMissingAndBogusTokens(t *testing.T) {
	mux, _ := newTestMux(t, &stubVerifier{})

	res := doJSON(mux, http.MethodGet, "/api/account/me", "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = doJSON(mux, http.MethodGet, "/api/account/me", "",
		&http.Cookie{Name: account.AccessTokenCookie, Value: "bogus"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLogoutEndpointExpiresCookies(t *testing.T) {
	mux, store := newTestMux(t, &stubVerifier{})
	require.Equal(t, http.StatusOK, doJSON(mux, http.MethodPost, "/api/account/register", registerBody).Code)

	login := doJSON(mux, http.MethodPost, "/api/account/login", loginBody)
	refreshCookie := cookieByName(t, login, account.RefreshTokenCookie)

	res := doJSON(mux, http.MethodPost, "/api/account/logout", "", refreshCookie)
	require.Equal(t, http.StatusNoContent, res.Code)

	access := cookieByName(t, res, account.AccessTokenCookie)
	refresh := cookieByName(t, res, account.RefreshTokenCookie)
	assert.True(t, access.Expires.Before(time.Now()))
	assert.True(t, refresh.Expires.Before(time.Now()))

	user := store.userByEmail(t, "a@x.com")
	assert.Nil(t, user.RefreshToken)
}

func TestLogoutEndpointWithoutCookieStillExpires(t *testing.T) {
	mux, _ := newTestMux(t, &stubVerifier{})

	res := doJSON(mux, http.MethodPost, "/api/account/logout", "")
	require.Equal(t, http.StatusNoContent, res.Code)
	cookieByName(t, res, account.AccessTokenCookie)
	cookieByName(t, res, account.RefreshTokenCookie)
}
