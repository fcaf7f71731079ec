package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"clinic-web/internal/address"
	"clinic-web/internal/clinicapi"
	"clinic-web/internal/config"
	httpapi "clinic-web/internal/http"
	"clinic-web/internal/service"
	"clinic-web/internal/session"
	"clinic-web/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("clinic-web stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.OTelServiceName,
		LogLevel:    cfg.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Error("shutdown telemetry", "error", err)
		}
	}()

	store, closeStore, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	outbound := &http.Client{Timeout: cfg.HTTPClientTimeout}
	resolver := address.NewResolver(
		cfg.PostalLookupURL,
		address.WithHTTPClient(outbound),
		address.WithRateLimit(cfg.PostalLookupRPS, cfg.PostalLookupBurst),
	)
	api := clinicapi.New(cfg.ClinicAPIURL, clinicapi.WithHTTPClient(outbound))

	svc := service.New(api, store, service.WithAddressResolver(resolver), service.WithSessionTTL(cfg.SessionTTL))
	router := httpapi.NewRouter(svc, cfg.OTelServiceName, httpapi.CookieConfig{
		Name:   cfg.SessionCookieName,
		Secure: cfg.SessionCookieSecure,
		MaxAge: cfg.SessionTTL,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("clinic-web listening", "port", cfg.Port, "clinic_api", cfg.ClinicAPIURL, "session_store", cfg.SessionStore)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("run server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openSessionStore(cfg config.Config) (session.Store, func(), error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return session.NewMemoryStore(cfg.SessionTTL), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	closeClient := func() {
		if err := client.Close(); err != nil {
			slog.Error("close redis", "error", err)
		}
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		closeClient()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return session.NewRedisStore(client, cfg.SessionTTL), closeClient, nil
}
