package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher sends AuthEvents to the auth.events queue.  A connection is
// dialed per event: auth events are rare and a held connection would need
// its own reconnect logic in the API process.
type Publisher struct {
	url string
	log logrus.FieldLogger
}

func NewPublisher(url string, log logrus.FieldLogger) *Publisher {
	return &Publisher{url: url, log: log}
}

// Publish declares the durable queue and publishes ev as a persistent
// JSON message.
func (p *Publisher) Publish(ctx context.Context, ev AuthEvent) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := declare(ch); err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx,
		"",            // default exchange
		AuthQueueName, // routing key = queue name
		false,         // mandatory
		false,         // immediate
		msg,
	); err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}
	p.log.WithFields(logrus.Fields{"kind": ev.Kind, "user_id": ev.UserID}).Debug("auth event published")
	return nil
}

func encode(ev AuthEvent) (amqp.Publishing, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("rabbitmq: marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         ev.Kind,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	}, nil
}

// declare makes sure the queue exists.  Durable so messages survive broker
// restarts.
func declare(ch *amqp.Channel) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		AuthQueueName, // name
		true,          // durable
		false,         // autoDelete
		false,         // exclusive
		false,         // noWait
		nil,           // args
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("rabbitmq: queue declare: %w", err)
	}
	return q, nil
}
