package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Clipline/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeJobCreated    MessageType = "job.created"
	MessageTypeUnitReady     MessageType = "unit.ready"
	MessageTypeUnitCompleted MessageType = "unit.completed"
	MessageTypeProgress      MessageType = "progress"
)

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

// Message — сообщение для публикации.
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

// JobCreatedPayload — payload для сообщения о новом job.
type JobCreatedPayload struct {
	JobID uuid.UUID `json:"job_id"`
}

// UnitReadyPayload — payload для сообщения о unit, готовом к выполнению.
type UnitReadyPayload struct {
	UnitID uuid.UUID       `json:"unit_id"`
	JobID  uuid.UUID       `json:"job_id"`
	Kind   domain.UnitKind `json:"kind"`
}

// UnitCompletedPayload — payload для сообщения о завершённом unit.
type UnitCompletedPayload struct {
	UnitID  uuid.UUID       `json:"unit_id"`
	JobID   uuid.UUID       `json:"job_id"`
	Kind    domain.UnitKind `json:"kind"`
	Stage   domain.JobState `json:"stage"`
	Pass    int             `json:"pass"`
	Status  string          `json:"status"` // SUCCEEDED или FAILED
	Error   string          `json:"error,omitempty"`
	Attempt int             `json:"attempt"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishJobCreated публикует событие о новом job, ожидающем pipeline.
// Потребитель: Coordinator.
func (p *Publisher) PublishJobCreated(ctx context.Context, jobID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeJobCreated,
		Payload:   JobCreatedPayload{JobID: jobID},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeJobs, RoutingKeyCreated, msg)
}

// PublishUnitReady публикует событие о unit, готовом к выполнению.
// Потребитель: Worker.
func (p *Publisher) PublishUnitReady(ctx context.Context, unit *domain.Unit) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeUnitReady,
		Payload:   UnitReadyPayload{UnitID: unit.ID, JobID: unit.JobID, Kind: unit.Kind},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeUnits, RoutingKeyReady, msg)
}

// PublishUnitCompleted публикует событие о завершённом unit.
// Потребитель: Coordinator.
func (p *Publisher) PublishUnitCompleted(ctx context.Context, payload UnitCompletedPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeUnitCompleted,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeUnits, RoutingKeyCompleted, msg)
}

// PublishProgress публикует progress-событие в fanout-обменник.
//
// Доставка best-effort: источник истины о состоянии job — State Store,
// progress-поток нужен только для живых подписчиков. Вызывающий
// логирует ошибку и продолжает работу, pipeline от неё не падает.
func (p *Publisher) PublishProgress(ctx context.Context, event *domain.ProgressEvent) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeProgress,
		Payload:   event,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeProgress, "", msg)
}
