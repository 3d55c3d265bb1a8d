package hub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Clipline/internal/domain"
	"github.com/shaiso/Clipline/internal/telemetry"
)

// sender — минимальный контракт подключения для Hub.
// Реализуется Conn; в тестах подменяется фейком.
type sender interface {
	// trySend ставит фрейм в очередь отправки.
	// false — буфер переполнен или соединение закрыто.
	trySend(frame Frame) bool

	// shutdown закрывает соединение.
	shutdown()
}

// Hub — реестр WebSocket подключений и broadcaster.
//
// Подключения группируются по job: Broadcast доставляет фрейм всем
// подписчикам конкретного job. Отказ одного подключения (медленный
// клиент, обрыв) приводит только к его отключению: остальные
// подписчики и издатель не затрагиваются.
type Hub struct {
	mu     sync.RWMutex
	byJob  map[uuid.UUID]map[sender]struct{}
	logger *slog.Logger
}

// New создаёт новый Hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		byJob:  make(map[uuid.UUID]map[sender]struct{}),
		logger: logger,
	}
}

// Register добавляет подключение в подписчики job.
func (h *Hub) Register(jobID uuid.UUID, s sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.byJob[jobID]
	if !ok {
		conns = make(map[sender]struct{})
		h.byJob[jobID] = conns
	}
	conns[s] = struct{}{}
	telemetry.WSSubscribers.Inc()

	h.logger.Debug("connection registered",
		"job_id", jobID,
		"subscribers", len(conns),
	)
}

// Unregister удаляет подключение.
// Идемпотентно: повторный вызов для отключённого подключения — no-op.
func (h *Hub) Unregister(jobID uuid.UUID, s sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.byJob[jobID]
	if !ok {
		return
	}
	if _, ok := conns[s]; !ok {
		return
	}

	delete(conns, s)
	telemetry.WSSubscribers.Dec()
	if len(conns) == 0 {
		delete(h.byJob, jobID)
	}

	h.logger.Debug("connection unregistered",
		"job_id", jobID,
		"subscribers", len(conns),
	)
}

// Broadcast доставляет progress-событие всем подписчикам его job.
//
// Подключения, не принявшие фрейм, отключаются и снимаются с учёта.
// Порядок доставки одному подключению совпадает с порядком вызовов
// Broadcast: очередь подключения — FIFO.
func (h *Hub) Broadcast(event *domain.ProgressEvent) {
	frame := ProgressFrame(event)

	h.mu.RLock()
	conns := h.byJob[event.JobID]
	var failed []sender
	for s := range conns {
		if !s.trySend(frame) {
			failed = append(failed, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range failed {
		h.logger.Warn("dropping unresponsive subscriber", "job_id", event.JobID)
		s.shutdown()
		h.Unregister(event.JobID, s)
	}
}

// SubscriberCount возвращает число подписчиков job.
func (h *Hub) SubscriberCount(jobID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byJob[jobID])
}

// CloseAll отключает все подключения (graceful shutdown).
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for jobID, conns := range h.byJob {
		for s := range conns {
			s.shutdown()
			telemetry.WSSubscribers.Dec()
		}
		delete(h.byJob, jobID)
	}
}
