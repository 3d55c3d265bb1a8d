package hub

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Clipline/internal/domain"
	"github.com/shaiso/Clipline/internal/mq"
)

// Relay подключает источник progress-событий к Hub.
//
// Два режима:
//   - RunMemory — подписка на in-process шину (однопроцессный режим)
//   - RunAMQP   — эксклюзивная очередь на fanout-обменнике progress
//     (каждый процесс с WebSocket клиентами получает полный поток)
type Relay struct {
	hub    *Hub
	logger *slog.Logger
}

// NewRelay создаёт Relay.
func NewRelay(h *Hub, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{hub: h, logger: logger}
}

// RunMemory подписывается на in-process шину и запускает трансляцию
// в отдельной горутине. Подписка выполняется до возврата: событие,
// опубликованное после вызова, гарантированно попадёт подписчикам.
// Возвращённый канал закрывается после остановки трансляции.
func (r *Relay) RunMemory(ctx context.Context, bus *mq.MemoryBus) <-chan struct{} {
	events, unsubscribe := bus.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				r.hub.Broadcast(&event)
			}
		}
	}()
	return done
}

// RunAMQP транслирует события из RabbitMQ до отмены контекста.
//
// Объявляет эксклюзивную очередь на fanout-обменнике progress и
// потребляет с auto-ack: поток best-effort, при разрыве соединения
// очередь объявляется заново (пропущенные события не доигрываются,
// клиент восстановит состояние через initial_state).
func (r *Relay) RunAMQP(ctx context.Context, conn *mq.Connection) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		queue, err := mq.DeclareProgressQueue(ctx, conn)
		if err != nil {
			r.logger.Error("failed to declare progress queue", "error", err)
			if !r.waitReconnect(ctx, conn) {
				return
			}
			continue
		}

		deliveries, err := conn.Channel().Consume(
			queue, // queue
			"",    // consumer tag
			true,  // auto-ack (best-effort поток)
			true,  // exclusive
			false, // no-local
			false, // no-wait
			nil,   // args
		)
		if err != nil {
			r.logger.Error("failed to consume progress queue", "error", err)
			if !r.waitReconnect(ctx, conn) {
				return
			}
			continue
		}

		r.logger.Info("progress relay started", "queue", queue)

		if !r.pump(ctx, deliveries) {
			return
		}

		// Канал закрыт — ждём reconnect и объявляем очередь заново
		if !r.waitReconnect(ctx, conn) {
			return
		}
	}
}

// pump транслирует доставленные сообщения в Hub.
// false — контекст отменён, true — канал закрыт (нужен reconnect).
func (r *Relay) pump(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return false

		case raw, ok := <-deliveries:
			if !ok {
				r.logger.Warn("progress deliveries channel closed")
				return true
			}

			var msg mq.Message
			if err := json.Unmarshal(raw.Body, &msg); err != nil {
				r.logger.Error("failed to unmarshal progress message", "error", err)
				continue
			}

			event, err := mq.ParsePayload[domain.ProgressEvent](&msg)
			if err != nil {
				r.logger.Error("failed to parse progress payload", "error", err)
				continue
			}

			r.hub.Broadcast(&event)
		}
	}
}

// waitReconnect ждёт переподключения. false — контекст отменён.
func (r *Relay) waitReconnect(ctx context.Context, conn *mq.Connection) bool {
	select {
	case <-ctx.Done():
		return false
	case <-conn.ReconnectNotify():
		return true
	}
}
