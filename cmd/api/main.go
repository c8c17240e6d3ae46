package main

import (
	"net/http"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"account-service/internal/app"
	"account-service/internal/observability"
)

func main() {
	logger := observability.NewLogger()

	runtime, err := app.Build(app.Options{LoadDotEnv: true})
	if err != nil {
		logger.Error("bootstrap_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer runtime.Close()

	logger.Info("server_start", map[string]any{"addr": runtime.Addr})
	if err := http.ListenAndServe(runtime.Addr, runtime.Handler); err != nil {
		logger.Error("server_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}
