package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/KarmaFounder/friday-jarvis/api"
	"github.com/KarmaFounder/friday-jarvis/config"
	"github.com/KarmaFounder/friday-jarvis/progress"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	auth, err := newAuth(cfg)
	if err != nil {
		return err
	}

	notifier := progress.NewNotifier(0, log.StandardLogger())
	c, err := build(cfg, func(*redis.Client) progress.Publisher { return notifier }, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer c.close()

	deps := api.Deps{
		Executor: c.executor,
		Auth:     auth,
		Recorder: c.runner,
		Progress: notifier,
		Health:   c.health,
		Logger:   c.logger,
	}
	if c.extractor != nil {
		deps.Extractor = c.extractor
	}
	if c.redis != nil {
		deps.Idempotency = api.NewIdempotencyStore(c.redis, cfg.DeduperTTL)
		deps.Sessions = api.NewRedisSessionOwners(c.redis, 0)
		relay := progress.NewRedisRelay(c.redis, cfg.ProgressChannel, c.logger)
		go relay.Forward(ctx, notifier)
	}
	if c.store != nil {
		deps.Runs = c.store
		if c.store.HasQueue() {
			deps.Queue = c.store
		}
	}
	dispatcher := api.NewDispatcher(c.runner, deps.Idempotency, api.PoolConfig{
		Workers:        cfg.AsyncWorkers,
		Buffer:         cfg.AsyncBuffer,
		Timeout:        cfg.AsyncTimeout,
		HandoffTimeout: cfg.HandoffTimeout,
	}, c.logger)
	defer dispatcher.Close()
	deps.Dispatcher = dispatcher

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Decompress())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization,
			"Idempotency-Key", "X-Session-ID",
		},
	}))
	e.Use(echoprometheus.NewMiddleware("jarvis"))
	e.GET("/metrics", echoprometheus.NewHandler())
	api.Register(e, deps)

	errCh := make(chan error, 1)
	go func() {
		c.logger.WithField("port", cfg.Port).Info("api listening")
		errCh <- e.Start(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newAuth(cfg config.Config) (*api.Auth, error) {
	if cfg.LocalAuthMode == "hs256" {
		return api.NewLocalAuth([]byte(cfg.LocalAuthSecret), cfg.Auth0Audience, "")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour, RefreshUnknownKID: true})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/", cfg.JWKSCacheTTL), nil
}
