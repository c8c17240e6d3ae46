// Package maintenance exposes a cron-secret-guarded endpoint that clears
// refresh pairs whose expiry is past the retention window, so stale token
// state does not accumulate on user rows.
package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"account-service/internal/observability"
)

// CredentialJanitor is the slice of the account store this handler needs.
type CredentialJanitor interface {
	ExpireStaleRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

type CleanupHandler struct {
	janitor    CredentialJanitor
	logger     *observability.Logger
	cronSecret string
	retention  time.Duration
}

func NewCleanupHandler(janitor CredentialJanitor, logger *observability.Logger, cronSecret string, retention time.Duration) *CleanupHandler {
	if retention <= 0 {
		retention = 14 * 24 * time.Hour
	}

	return &CleanupHandler{
		janitor:    janitor,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		retention:  retention,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	// Without a configured secret the endpoint does not exist.
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cutoff := time.Now().UTC().Add(-h.retention)
	expired, err := h.janitor.ExpireStaleRefreshTokens(r.Context(), cutoff)
	if err != nil {
		h.logger.Error("credential_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("credential_cleanup_completed", map[string]any{
		"expired_refresh_tokens": expired,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                 "ok",
		"expired_refresh_tokens": expired,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
