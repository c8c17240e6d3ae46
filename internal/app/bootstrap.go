package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"account-service/internal/account"
	"account-service/internal/config"
	"account-service/internal/db"
	"account-service/internal/maintenance"
	"account-service/internal/observability"
	"account-service/internal/provider"
)

type Options struct {
	LoadDotEnv bool
}

type Runtime struct {
	Handler http.Handler
	Addr    string
	Close   func() error
}

// Build wires the whole service. Any error here is a startup-fatal
// configuration problem; requests are never served with a partial wiring.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime())
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime())

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.RunMigrationsOnStartup {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	tokens, err := account.NewTokenProcessor(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTokenTTL())
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("configure token processor: %w", err)
	}

	repo := account.NewRepository(database)
	service := account.NewService(repo, tokens, account.NewBcryptHasher())

	var verifier account.IdentityVerifier = disabledVerifier{}
	if cfg.GoogleClientID != "" {
		verifier = provider.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	}

	accountHandler := account.NewHandler(service, verifier)
	cleanupHandler := maintenance.NewCleanupHandler(repo, logger, cfg.CronSecret, cfg.RefreshRetention())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/account/register", accountHandler.Register)
	mux.HandleFunc("POST /api/account/login", accountHandler.Login)
	mux.HandleFunc("POST /api/account/refresh", accountHandler.Refresh)
	mux.HandleFunc("POST /api/account/login/google", accountHandler.LoginWithProvider)
	mux.HandleFunc("POST /api/account/logout", accountHandler.Logout)
	mux.Handle("GET /api/account/me", account.Middleware(tokens, http.HandlerFunc(accountHandler.Me)))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.Recover(logger, observability.RequestLogging(logger, mux))

	return &Runtime{
		Handler: handler,
		Addr:    ":" + cfg.Port,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

// disabledVerifier stands in when no provider credentials are configured.
type disabledVerifier struct{}

func (disabledVerifier) Verify(context.Context, string) (account.VerifiedIdentity, error) {
	return account.VerifiedIdentity{}, account.ExternalProviderError{
		Provider: "google",
		Reason:   "provider login is not configured",
	}
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
