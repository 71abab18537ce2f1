package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/agentworkforce/homepage/internal/httpapi"
	"github.com/agentworkforce/homepage/internal/logging"
	"github.com/agentworkforce/homepage/internal/shutdown"
	"github.com/agentworkforce/homepage/internal/store"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	logger, err := logging.New(os.Getenv("HOMEPAGE_LOG_LEVEL"), os.Getenv("HOMEPAGE_LOG_FORMAT"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "homepage-store: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), shutdown.Signals()...)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("homepage-store failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	addr := os.Getenv("HOMEPAGE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	backend, err := buildStateBackendFromEnv()
	if err != nil {
		return fmt.Errorf("initialize state backend: %w", err)
	}
	st, err := store.New(store.Options{Backend: backend, Logger: logger})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing store failed", zap.Error(err))
		}
	}()

	server := httpapi.NewServerWithConfig(st, httpapi.ServerConfig{
		RateLimitMax:    intEnv("HOMEPAGE_RATE_LIMIT_MAX", 0),
		RateLimitWindow: durationEnv("HOMEPAGE_RATE_LIMIT_WINDOW", time.Minute),
		MaxBodyBytes:    int64Env("HOMEPAGE_MAX_BODY_BYTES", 0),
		AllowedOrigins:  listEnv("HOMEPAGE_ALLOWED_ORIGINS"),
		Logger:          logger,
	})
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("homepage store listening", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildStateBackendFromEnv() (store.StateBackend, error) {
	profileDSN, err := storageProfileDefaultsFromEnv()
	if err != nil {
		return nil, err
	}
	stateDSN := strings.TrimSpace(os.Getenv("HOMEPAGE_STATE_DSN"))
	stateFile := strings.TrimSpace(os.Getenv("HOMEPAGE_STATE_FILE"))
	switch {
	case stateDSN != "":
		return store.BuildStateBackendFromDSN(stateDSN)
	case stateFile != "":
		return store.BuildStateBackendFromDSN(stateFile)
	case profileDSN != "":
		return store.BuildStateBackendFromDSN(profileDSN)
	default:
		return nil, nil
	}
}

func storageProfileDefaultsFromEnv() (string, error) {
	profile := strings.ToLower(strings.TrimSpace(os.Getenv("HOMEPAGE_BACKEND_PROFILE")))
	dataDir := strings.TrimSpace(os.Getenv("HOMEPAGE_DATA_DIR"))
	if dataDir == "" {
		dataDir = ".homepage"
	}
	switch profile {
	case "", "custom":
		return "", nil
	case "memory", "inmemory":
		return "memory://", nil
	case "production", "prod":
		dsn := strings.TrimSpace(os.Getenv("HOMEPAGE_POSTGRES_DSN"))
		if dsn == "" {
			return "", fmt.Errorf("HOMEPAGE_POSTGRES_DSN is required when HOMEPAGE_BACKEND_PROFILE=%s", profile)
		}
		return dsn, nil
	case "durable-local", "local-durable":
		return "sqlite://" + filepath.Join(dataDir, "homepage.db"), nil
	default:
		return "", fmt.Errorf("unsupported HOMEPAGE_BACKEND_PROFILE: %s", profile)
	}
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		zap.L().Warn("invalid integer env, using fallback", zap.String("name", name), zap.String("value", raw), zap.Int("fallback", fallback))
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		zap.L().Warn("invalid integer env, using fallback", zap.String("name", name), zap.String("value", raw), zap.Int64("fallback", fallback))
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		zap.L().Warn("invalid duration env, using fallback", zap.String("name", name), zap.String("value", raw), zap.Duration("fallback", fallback))
		return fallback
	}
	return value
}

func listEnv(name string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(name), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
