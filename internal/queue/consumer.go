package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ResetMailer delivers password reset links.  *mail.SMTPSender implements it.
type ResetMailer interface {
	SendPasswordReset(to, token string, expiresAt time.Time) error
}

// ErrDelivery wraps a failure to hand a reset email to the mail server.
// Such messages are requeued once; everything else is rejected.
var ErrDelivery = errors.New("reset email not delivered")

// requeuePause spaces out the single redelivery of a failed email.
const requeuePause = 2 * time.Second

// Consumer drains auth.events: reset requests become emails, and every event
// becomes one line of the audit log.
type Consumer struct {
	URL       string
	Mailer    ResetMailer // nil disables reset emails
	AuditPath string
	Log       logrus.FieldLogger

	mu sync.Mutex
}

// Run connects, consumes and reconnects with backoff until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.WithError(err).Warnf("auth-consumer: dial failed; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.WithError(err).Warn("auth-consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.WithError(err).Warn("auth-consumer: set QoS failed")
	}
	if _, err := declare(ch); err != nil {
		return err
	}
	msgs, err := ch.Consume(AuthQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.Body); err != nil {
				requeue := shouldRequeue(err, d.Redelivered)
				c.Log.WithError(err).WithField("requeue", requeue).Error("auth-consumer: handle message failed")
				if requeue && !sleep(ctx, requeuePause) {
					_ = d.Nack(false, true)
					return ctx.Err()
				}
				_ = d.Nack(false, requeue)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle processes one message body.
func (c *Consumer) Handle(body []byte) error {
	var ev AuthEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Kind == "" {
		return errors.New("event without kind")
	}

	if ev.Kind == KindPasswordResetRequested {
		switch {
		case c.Mailer == nil:
			c.Log.WithField("user_id", ev.UserID).Warn("auth-consumer: no mailer configured, reset email dropped")
		case ev.ResetToken == "" || ev.Email == "":
			return errors.New("reset request without address or token")
		default:
			if err := c.Mailer.SendPasswordReset(ev.Email, ev.ResetToken, ev.ExpiresAt); err != nil {
				return fmt.Errorf("%w: %v", ErrDelivery, err)
			}
		}
	}
	return c.audit(ev)
}

// shouldRequeue reports whether a failed message gets another attempt:
// only mail delivery failures, and only on first delivery.
func shouldRequeue(err error, redelivered bool) bool {
	return errors.Is(err, ErrDelivery) && !redelivered
}

// audit appends one line per event.  The reset token is never written.
func (c *Consumer) audit(ev AuthEvent) error {
	path := c.AuditPath
	if path == "" {
		path = filepath.Join("logs", "audit.log")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s | user_id=%d | email=%q",
		ev.OccurredAt.UTC().Format(time.RFC3339), ev.Kind, ev.UserID, ev.Email)
	if ev.ExternalID != "" {
		line += fmt.Sprintf(" | external_id=%q", ev.ExternalID)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
