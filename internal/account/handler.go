package account

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
)

const maxJSONBodyBytes = 1 << 20

// IdentityVerifier is the collaborator that turns whatever the client sends
// (an authorization code, an ID token) into a provider-verified claim set.
type IdentityVerifier interface {
	Verify(ctx context.Context, code string) (VerifiedIdentity, error)
}

type Handler struct {
	service  *Service
	verifier IdentityVerifier
	validate *validator.Validate
}

func NewHandler(service *Service, verifier IdentityVerifier) *Handler {
	return &Handler{
		service:  service,
		verifier: verifier,
		validate: validator.New(),
	}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type providerLoginRequest struct {
	Code string `json:"code" validate:"required"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !h.decode(w, r, &body) {
		return
	}

	if err := h.service.Register(r.Context(), RegisterInput{
		Email:     body.Email,
		Password:  body.Password,
		FirstName: body.FirstName,
		LastName:  body.LastName,
	}); err != nil {
		var exists UserAlreadyExistsError
		var registration RegistrationError
		switch {
		case errors.As(err, &exists):
			writeError(w, http.StatusConflict, exists.Error())
		case errors.As(err, &registration):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "registration failed",
				"reasons": registration.Reasons,
			})
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to register")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !h.decode(w, r, &body) {
		return
	}

	pair, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrLoginFailed) {
			writeError(w, http.StatusUnauthorized, ErrLoginFailed.Error())
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Refresh reads the refresh token from its cookie; an absent cookie flows
// through the service as a missing token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var refreshToken string
	if cookie, err := r.Cookie(RefreshTokenCookie); err == nil {
		refreshToken = cookie.Value
	}

	pair, err := h.service.Refresh(r.Context(), refreshToken)
	if err != nil {
		var invalid RefreshTokenError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusUnauthorized, invalid.Error())
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) LoginWithProvider(w http.ResponseWriter, r *http.Request) {
	var body providerLoginRequest
	if !h.decode(w, r, &body) {
		return
	}

	identity, err := h.verifier.Verify(r.Context(), body.Code)
	if err != nil {
		var provider ExternalProviderError
		if !errors.As(err, &provider) {
			sentry.CaptureException(err)
		}
		writeError(w, http.StatusUnauthorized, "external login failed")
		return
	}

	pair, err := h.service.LoginWithProvider(r.Context(), identity)
	if err != nil {
		var provider ExternalProviderError
		if errors.As(err, &provider) {
			writeError(w, http.StatusUnauthorized, "external login failed")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Logout clears the stored refresh pair and expires both cookies. The
// cookies are expired even when the token is already unknown.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var refreshToken string
	if cookie, err := r.Cookie(RefreshTokenCookie); err == nil {
		refreshToken = cookie.Value
	}

	if err := h.service.Logout(r.Context(), refreshToken); err != nil {
		var invalid RefreshTokenError
		if !errors.As(err, &invalid) {
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to logout")
			return
		}
	}

	http.SetCookie(w, ExpiredAuthCookie(AccessTokenCookie))
	http.SetCookie(w, ExpiredAuthCookie(RefreshTokenCookie))
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the verified claims of the calling user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authentication")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":    claims.Subject,
		"email": claims.Email,
		"name":  claims.Name,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, body any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	if err := h.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "request validation failed")
		return false
	}

	return true
}

func setTokenCookies(w http.ResponseWriter, pair TokenPair) {
	for _, cookie := range pair.Cookies() {
		http.SetCookie(w, cookie)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
