package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/iliyamo/session-auth/internal/config"
	"github.com/iliyamo/session-auth/internal/handler"
	"github.com/iliyamo/session-auth/internal/middleware"
	"github.com/iliyamo/session-auth/internal/router"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	m, err := a.minter()
	if err != nil {
		return err
	}
	svc, err := a.manager(ctx, m)
	if err != nil {
		return err
	}

	var oauth *handler.OAuthFlow
	if a.cfg.ExternalClientID != "" && a.cfg.OAuthClientSecret != "" && a.cfg.OAuthRedirectURL != "" {
		oauth = &handler.OAuthFlow{
			Config: handler.NewGoogleOAuth(a.cfg.ExternalClientID, a.cfg.OAuthClientSecret, a.cfg.OAuthRedirectURL),
			States: m,
			Secure: a.cfg.Env != "dev",
		}
	}

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		a.log.WithError(err).Warn("rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	router.Register(e, router.Deps{
		Handler:  handler.NewAuthHandler(svc, oauth, a.log),
		Verifier: m,
		Limiter:  middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, a.log),
		DB:       a.db,
	})

	addr := ":" + a.cfg.Port
	a.log.Infof("listening on %s (env=%s)", addr, a.cfg.Env)

	errc := make(chan error, 1)
	go func() { errc <- e.Start(addr) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.log.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}
