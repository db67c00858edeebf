package queue

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/session-auth/internal/logger"
)

type resetCall struct {
	to, token string
	exp       time.Time
}

type fakeMailer struct {
	calls []resetCall
	err   error
}

func (f *fakeMailer) SendPasswordReset(to, token string, exp time.Time) error {
	f.calls = append(f.calls, resetCall{to, token, exp})
	return f.err
}

func newConsumer(t *testing.T, m ResetMailer) (*Consumer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	return &Consumer{Mailer: m, AuditPath: path, Log: logger.Discard()}, path
}

func mustJSON(t *testing.T, ev AuthEvent) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestConsumerHandle(t *testing.T) {
	at := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	exp := at.Add(15 * time.Minute)

	t.Run("reset request sends mail and audits without the token", func(t *testing.T) {
		m := &fakeMailer{}
		c, path := newConsumer(t, m)
		require.NoError(t, c.Handle(mustJSON(t, AuthEvent{
			Kind: KindPasswordResetRequested, UserID: 1, Email: "alice@x.com",
			ResetToken: "secret.reset.token", ExpiresAt: exp, OccurredAt: at,
		})))

		require.Len(t, m.calls, 1)
		assert.Equal(t, resetCall{"alice@x.com", "secret.reset.token", exp}, m.calls[0])

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "[2026-04-02T08:30:00Z] password.reset_requested | user_id=1 | email=\"alice@x.com\"\n", string(b))
		assert.NotContains(t, string(b), "secret.reset.token")
	})

	t.Run("linked account is audited", func(t *testing.T) {
		m := &fakeMailer{}
		c, path := newConsumer(t, m)
		require.NoError(t, c.Handle(mustJSON(t, AuthEvent{Kind: KindAccountLinked, UserID: 2, Email: "b@x.com", ExternalID: "g-1", OccurredAt: at})))
		require.NoError(t, c.Handle(mustJSON(t, AuthEvent{Kind: KindPasswordReset, UserID: 2, Email: "b@x.com", OccurredAt: at})))

		assert.Empty(t, m.calls)
		b, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(b)), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], `external_id="g-1"`)
		assert.Contains(t, lines[1], "password.reset |")
	})

	t.Run("mail failure is requeued once", func(t *testing.T) {
		m := &fakeMailer{err: errors.New("smtp down")}
		c, path := newConsumer(t, m)
		err := c.Handle(mustJSON(t, AuthEvent{Kind: KindPasswordResetRequested, UserID: 1, Email: "a@x.com", ResetToken: "t"}))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDelivery)
		assert.True(t, shouldRequeue(err, false))
		assert.False(t, shouldRequeue(err, true))
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("no mailer still audits", func(t *testing.T) {
		c, path := newConsumer(t, nil)
		require.NoError(t, c.Handle(mustJSON(t, AuthEvent{Kind: KindPasswordResetRequested, UserID: 1, Email: "a@x.com", ResetToken: "t"})))
		_, err := os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		c, _ := newConsumer(t, &fakeMailer{})
		assert.Error(t, c.Handle([]byte("{not json")))
		assert.Error(t, c.Handle([]byte(`{"user_id":1}`)))
		assert.Error(t, c.Handle(mustJSON(t, AuthEvent{Kind: KindPasswordResetRequested, UserID: 1})))

		for _, body := range []string{"{not json", `{"user_id":1}`} {
			err := c.Handle([]byte(body))
			assert.False(t, shouldRequeue(err, false), body)
		}
	})
}

func TestEncode(t *testing.T) {
	at := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	msg, err := encode(AuthEvent{Kind: KindPasswordReset, UserID: 7, Email: "a@x.com", OccurredAt: at})
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, KindPasswordReset, msg.Type)
	assert.Equal(t, at, msg.Timestamp)

	var back AuthEvent
	require.NoError(t, json.Unmarshal(msg.Body, &back))
	assert.Equal(t, uint64(7), back.UserID)

	msg, err = encode(AuthEvent{Kind: KindPasswordReset})
	require.NoError(t, err)
	assert.False(t, msg.Timestamp.IsZero())
}
