package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Clipline/internal/domain"
	"github.com/shaiso/Clipline/internal/mq"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50
	defaultPrefetch     = 5
	defaultMaxAttempts  = 3
	defaultInitialDelay = time.Second
	defaultMaxDelay     = 30 * time.Second
)

// UnitStore — доступ к units, нужный worker'у.
type UnitStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Unit, error)
	Update(ctx context.Context, unit *domain.Unit) error
	ListQueued(ctx context.Context, limit int) ([]domain.Unit, error)
}

// CompletionPublisher — публикация unit.completed для координатора.
type CompletionPublisher interface {
	PublishUnitCompleted(ctx context.Context, payload mq.UnitCompletedPayload) error
}

// Worker выполняет отдельные units pipeline.
//
// Worker — stateless компонент системы, который:
//   - Получает units из очереди RabbitMQ (event-driven)
//   - Периодически проверяет queued units в БД (polling fallback)
//   - Выполняет unit через executor соответствующего типа
//   - Реализует retry с exponential backoff
//   - Отправляет результат обратно в очередь units.completed
//
// Workers масштабируются горизонтально — несколько экземпляров
// могут потреблять из одной очереди. Job-запись worker не трогает:
// единственный писатель job — координатор.
type Worker struct {
	units     UnitStore
	publisher CompletionPublisher
	registry  *Registry

	// MQ
	conn     *mq.Connection
	consumer *mq.Consumer

	// Configuration
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	Units     UnitStore
	Publisher CompletionPublisher

	// Registry — executors (опционально; если nil — заглушки).
	Registry *Registry

	// Conn — соединение с RabbitMQ. Может быть nil: тогда Worker
	// работает только через polling.
	Conn *mq.Connection

	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество units за один poll (default: 50)

	// Retry configuration
	MaxAttempts  int           // попыток на unit (default: 3)
	InitialDelay time.Duration // начальная задержка backoff (default: 1s)
	MaxDelay     time.Duration // потолок backoff (default: 30s)

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	initialDelay := cfg.InitialDelay
	if initialDelay <= 0 {
		initialDelay = defaultInitialDelay
	}

	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(DefaultProviders())
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		units:        cfg.Units,
		publisher:    cfg.Publisher,
		registry:     registry,
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		logger:       logger,
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer для units.ready
//   - Polling горутину для fallback
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"max_attempts", w.maxAttempts,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.QueueUnitsReady,
			Handler:  w.handleUnitReady,
			Prefetch: defaultPrefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("unit consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем units, созданные
	// пока worker был выключен)
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (w *Worker) poll(ctx context.Context) {
	units, err := w.units.ListQueued(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list queued units", "error", err)
		return
	}

	if len(units) == 0 {
		return
	}

	w.logger.Debug("poll found queued units", "count", len(units))

	for i := range units {
		if err := w.processUnit(ctx, units[i].ID); err != nil {
			w.logger.Error("failed to process unit from poll",
				"unit_id", units[i].ID,
				"error", err,
			)
		}
	}
}
