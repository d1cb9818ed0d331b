package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Tempo/internal/queue"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// MessageTypeRunReady — run готов к выполнению.
const MessageTypeRunReady MessageType = "run.ready"

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// Publish публикует сообщение в указанный exchange с routing key.
// expiration > 0 задаёт per-message TTL.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message, expiration time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Body:         body,
	}
	if expiration > 0 {
		publishing.Expiration = strconv.FormatInt(expiration.Milliseconds(), 10)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			publishing,
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
			"expiration", publishing.Expiration,
		)
		return nil
	})
}

// PublishRunReady публикует WorkUnit в runs.pending.
func (p *Publisher) PublishRunReady(ctx context.Context, unit queue.WorkUnit) error {
	return p.Publish(ctx, ExchangeRuns, RoutingKeyPending, newRunMessage(unit), 0)
}

// PublishRunRetry публикует WorkUnit в wait-очередь runs.retry.
// По истечении delay сообщение вернётся в runs.pending.
func (p *Publisher) PublishRunRetry(ctx context.Context, unit queue.WorkUnit, delay time.Duration) error {
	if delay < time.Millisecond {
		return p.PublishRunReady(ctx, unit)
	}
	return p.Publish(ctx, ExchangeRuns, RoutingKeyRetry, newRunMessage(unit), delay)
}

func newRunMessage(unit queue.WorkUnit) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeRunReady,
		Payload:   unit,
		Timestamp: time.Now(),
	}
}
