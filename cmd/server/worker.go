package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/session-auth/internal/mail"
	"github.com/iliyamo/session-auth/internal/queue"
	"github.com/iliyamo/session-auth/internal/repository"
)

func newWorkerCmd() *cobra.Command {
	var auditPath string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume auth events and purge expired refresh tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return work(ctx, auditPath)
		},
	}
	cmd.Flags().StringVar(&auditPath, "audit-log", "logs/audit.log", "file the audit trail is appended to")
	return cmd
}

func work(ctx context.Context, auditPath string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	go sweep(ctx, repository.NewTokenRepo(a.db), a.cfg.SweepInterval, a.log)

	if a.cfg.RabbitURL == "" {
		a.log.Warn("RABBITMQ_URL not set; only the token sweeper runs")
		<-ctx.Done()
		return nil
	}

	c := &queue.Consumer{URL: a.cfg.RabbitURL, AuditPath: auditPath, Log: a.log}
	if a.cfg.SMTPHost != "" {
		c.Mailer = mail.NewSMTPSender(a.cfg.SMTPHost, a.cfg.SMTPPort, a.cfg.SMTPUser, a.cfg.SMTPPass, a.cfg.MailFrom, a.cfg.ResetURLBase)
	} else {
		a.log.Warn("SMTP_HOST not set; reset emails are not sent")
	}

	a.log.Info("auth-consumer: started")
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// purger is the slice of *repository.TokenRepo the sweeper needs.
type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// sweep deletes expired refresh rows every interval until ctx is done.
func sweep(ctx context.Context, p purger, interval time.Duration, log logrus.FieldLogger) {
	if interval <= 0 {
		log.WithField("interval", interval).Error("token sweep disabled: interval must be positive")
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				log.WithError(err).Warn("token sweep failed")
				continue
			}
			if n > 0 {
				log.WithField("deleted", n).Info("expired refresh tokens purged")
			}
		}
	}
}
