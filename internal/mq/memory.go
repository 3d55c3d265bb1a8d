package mq

import (
	"context"
	"sync"

	"github.com/shaiso/Clipline/internal/domain"
)

// ProgressPublisher — публикация progress-событий.
// Реализации: Publisher (RabbitMQ fanout) и MemoryBus (in-process).
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, event *domain.ProgressEvent) error
}

// defaultSubscriberBuffer — размер буфера канала подписчика.
const defaultSubscriberBuffer = 256

// MemoryBus — in-process шина progress-событий.
//
// Используется в однопроцессном режиме (API и coordinator в одном
// бинаре без RabbitMQ) и в тестах. Гарантии те же, что у fanout:
// каждый подписчик получает события в порядке публикации, медленный
// подписчик теряет события, но не блокирует издателя.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[int]chan domain.ProgressEvent
	nextID int
	closed bool
}

// NewMemoryBus создаёт новую шину.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[int]chan domain.ProgressEvent),
	}
}

// PublishProgress рассылает событие всем подписчикам.
// Не блокируется: события для переполненного подписчика отбрасываются.
func (b *MemoryBus) PublishProgress(ctx context.Context, event *domain.ProgressEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	for _, ch := range b.subs {
		select {
		case ch <- *event:
		default:
			// Подписчик не успевает, его события теряются.
			// Источник истины — State Store, поток восстановим.
		}
	}
	return nil
}

// Subscribe регистрирует подписчика.
// Возвращает канал событий и функцию отписки. После отписки канал
// закрывается.
func (b *MemoryBus) Subscribe() (<-chan domain.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan domain.ProgressEvent, defaultSubscriberBuffer)
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}

	return ch, unsubscribe
}

// Close закрывает шину и все каналы подписчиков.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
