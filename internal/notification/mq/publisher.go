// Package mq broadcasts routing and presence events to sibling services over
// a RabbitMQ topic exchange.
package mq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"chatdesk_backend/platform/logger"
)

// Meta carries the envelope's delivery metadata.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlationId"`
	OccurredAt    time.Time `json:"occurredAt"`
	Source        string    `json:"source"`
}

// Envelope is the wire format shared with sibling services.
type Envelope struct {
	Meta    Meta        `json:"meta"`
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

// NewEnvelope wraps a payload for publishing.
func NewEnvelope(kind string, payload interface{}) Envelope {
	return Envelope{
		Meta: Meta{
			ID:            uuid.NewString(),
			CorrelationID: uuid.NewString(),
			OccurredAt:    time.Now().UTC(),
			Source:        "chatdesk",
		},
		Kind:    kind,
		Payload: payload,
	}
}

// Publisher sends envelopes to the topic exchange.
type Publisher interface {
	Publish(ctx context.Context, key string, envelope Envelope) error
	Close() error
}

type rmqPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *logger.Logger
}

// New dials RabbitMQ and declares the topic exchange. The exchange is
// durable; sibling consumers bind their own queues to it.
func New(url, exchange string, log *logger.Logger) (Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	return &rmqPublisher{conn: conn, exchange: exchange, log: log}, nil
}

func (p *rmqPublisher) Publish(ctx context.Context, key string, envelope Envelope) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(
		ctx, p.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     envelope.Meta.ID,
			CorrelationId: envelope.Meta.CorrelationID,
			Timestamp:     envelope.Meta.OccurredAt,
			Body:          body,
		},
	)
	if err == nil {
		p.log.Debug("mq envelope published", "key", key, "exchange", p.exchange)
	}
	return err
}

func (p *rmqPublisher) Close() error {
	return p.conn.Close()
}

// Nop is a no-op publisher used when the message queue is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, Envelope) error { return nil }

func (Nop) Close() error { return nil }
