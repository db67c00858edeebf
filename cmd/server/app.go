package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/session-auth/internal/config"
	"github.com/iliyamo/session-auth/internal/database"
	"github.com/iliyamo/session-auth/internal/identity"
	"github.com/iliyamo/session-auth/internal/logger"
	"github.com/iliyamo/session-auth/internal/queue"
	"github.com/iliyamo/session-auth/internal/repository"
	"github.com/iliyamo/session-auth/internal/service"
	"github.com/iliyamo/session-auth/internal/token"
)

// app is what every subcommand starts from.
type app struct {
	cfg config.Config
	log *logrus.Logger
	db  *sql.DB
}

func bootstrap() (*app, error) {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) close() { _ = a.db.Close() }

func (a *app) minter() (*token.Minter, error) {
	prev := make([]token.Key, 0, len(a.cfg.PreviousKeys))
	for _, k := range a.cfg.PreviousKeys {
		prev = append(prev, token.Key{ID: k.ID, Secret: k.Secret})
	}
	return token.New(token.Options{
		Current:    token.Key{ID: a.cfg.SigningKey.ID, Secret: a.cfg.SigningKey.Secret},
		Previous:   prev,
		AccessTTL:  a.cfg.AccessTTL(),
		RefreshTTL: a.cfg.RefreshTTL(),
	})
}

// manager assembles the Session Manager over the MySQL stores.
func (a *app) manager(ctx context.Context, m *token.Minter) (*service.Manager, error) {
	hasher, err := identity.NewPasswordHasher(a.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	var external identity.ExternalVerifier = identity.DisabledVerifier{}
	if v, err := identity.NewOIDCVerifier(ctx, a.cfg.ExternalIssuer, a.cfg.ExternalClientID); err != nil {
		a.log.WithError(err).Warn("external login disabled")
	} else {
		external = v
	}
	if a.cfg.ExternalClientID == "" {
		a.log.Warn("EXTERNAL_CLIENT_ID not set; provider token audience is not checked")
	}

	var events service.EventPublisher = service.NopPublisher{}
	if a.cfg.RabbitURL != "" {
		events = queue.NewPublisher(a.cfg.RabbitURL, a.log)
	} else {
		a.log.Info("RABBITMQ_URL not set; auth events are not published")
	}

	return service.NewManager(service.Options{
		Users:                repository.NewUserRepo(a.db),
		Sessions:             repository.NewTokenRepo(a.db),
		Minter:               m,
		Passwords:            hasher,
		External:             external,
		Events:               events,
		Log:                  a.log,
		ResetTTL:             a.cfg.ResetTTL(),
		ResetTokenInResponse: a.cfg.ResetTokenInResponse,
	}), nil
}
