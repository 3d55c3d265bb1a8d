package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Clipline/internal/domain"
	"github.com/shaiso/Clipline/internal/fsm"
	"github.com/shaiso/Clipline/internal/mq"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 100
	defaultRetention    = 24 * time.Hour
)

// JobStore — доступ к job-записям, нужный координатору.
type JobStore interface {
	GetFresh(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	ListByState(ctx context.Context, state domain.JobState, limit int) ([]domain.Job, error)
}

// UnitStore — доступ к units, нужный координатору.
type UnitStore interface {
	Create(ctx context.Context, unit *domain.Unit) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Unit, error)
	ListByJobPass(ctx context.Context, jobID uuid.UUID, pass int, stage domain.JobState) ([]domain.Unit, error)
}

// UnitPublisher — публикация unit.ready для workers.
type UnitPublisher interface {
	PublishUnitReady(ctx context.Context, unit *domain.Unit) error
}

// Coordinator управляет прохождением jobs через pipeline.
//
// Coordinator — единственный писатель состояния job:
//   - Получает новые jobs из очереди RabbitMQ (event-driven)
//   - Периодически проверяет jobs в состоянии INIT (polling fallback)
//   - Создаёт units для стадий и публикует их для workers
//   - Собирает fan-in барьер стадии ASSET_GENERATION
//   - Принимает решение QA: завершение, retry или FAILED
//   - Публикует progress-события для подписчиков
type Coordinator struct {
	jobs      JobStore
	units     UnitStore
	publisher UnitPublisher
	progress  mq.ProgressPublisher
	machine   *fsm.Machine

	// Сериализация обработки событий одного job внутри процесса
	locks *jobLocks

	// Consumers
	conn         *mq.Connection
	jobConsumer  *mq.Consumer
	unitConsumer *mq.Consumer

	// Configuration
	pollInterval time.Duration
	batchSize    int
	retention    time.Duration
	assetPolicy  AssetPolicy

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Coordinator.
type Config struct {
	Jobs      JobStore
	Units     UnitStore
	Publisher UnitPublisher
	Progress  mq.ProgressPublisher
	Machine   *fsm.Machine

	// Conn — соединение с RabbitMQ. Может быть nil: тогда Coordinator
	// работает только через polling.
	Conn *mq.Connection

	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество jobs за один poll (default: 100)
	Retention    time.Duration // срок хранения завершённых jobs (default: 24h)
	AssetPolicy  AssetPolicy   // политика fan-in барьера (default: fail_fast)

	Logger *slog.Logger
}

// New создаёт новый Coordinator.
func New(cfg Config) *Coordinator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}

	policy := cfg.AssetPolicy
	if !policy.Valid() {
		policy = PolicyFailFast
	}

	machine := cfg.Machine
	if machine == nil {
		machine = fsm.New(fsm.DefaultMaxRetries)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		jobs:         cfg.Jobs,
		units:        cfg.Units,
		publisher:    cfg.Publisher,
		progress:     cfg.Progress,
		machine:      machine,
		locks:        newJobLocks(),
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		retention:    retention,
		assetPolicy:  policy,
		logger:       logger,
	}
}

// Start запускает Coordinator.
//
// Запускает:
//   - Consumer для jobs.created
//   - Consumer для units.completed
//   - Polling горутину для fallback
func (c *Coordinator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	c.logger.Info("starting coordinator",
		"poll_interval", c.pollInterval,
		"batch_size", c.batchSize,
		"asset_policy", c.assetPolicy,
	)

	if c.conn != nil {
		c.jobConsumer = mq.NewConsumer(c.conn, c.logger, mq.ConsumerConfig{
			Queue:    mq.QueueJobsCreated,
			Handler:  c.handleJobCreated,
			Prefetch: 10,
		})

		c.unitConsumer = mq.NewConsumer(c.conn, c.logger, mq.ConsumerConfig{
			Queue:    mq.QueueUnitsCompleted,
			Handler:  c.handleUnitCompleted,
			Prefetch: 10,
		})

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.jobConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error("job consumer error", "error", err)
			}
		}()

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.unitConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error("unit consumer error", "error", err)
			}
		}()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pollLoop(ctx)
	}()

	c.logger.Info("coordinator started")
	return nil
}

// Stop останавливает Coordinator.
func (c *Coordinator) Stop() {
	c.logger.Info("stopping coordinator...")

	if c.cancelFunc != nil {
		c.cancelFunc()
	}

	if c.jobConsumer != nil {
		c.jobConsumer.Stop()
	}
	if c.unitConsumer != nil {
		c.unitConsumer.Stop()
	}

	c.wg.Wait()

	c.logger.Info("coordinator stopped")
}

// pollLoop — цикл polling для fallback.
func (c *Coordinator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем jobs, созданные
	// пока coordinator был выключен)
	c.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling: подхватывает jobs в INIT.
func (c *Coordinator) poll(ctx context.Context) {
	jobs, err := c.jobs.ListByState(ctx, domain.StateInit, c.batchSize)
	if err != nil {
		c.logger.Error("failed to list init jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	c.logger.Debug("poll found new jobs", "count", len(jobs))

	for i := range jobs {
		if err := c.processJobCreated(ctx, jobs[i].ID); err != nil {
			c.logger.Error("failed to process job from poll",
				"job_id", jobs[i].ID,
				"error", err,
			)
		}
	}
}

// --- jobLocks ---

// jobLocks — пер-job мьютексы для сериализации обработки событий
// одного job внутри процесса. Конкурентные unit.completed для разных
// jobs обрабатываются параллельно, для одного job — по очереди.
type jobLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*jobLock
}

type jobLock struct {
	mu   sync.Mutex
	refs int
}

func newJobLocks() *jobLocks {
	return &jobLocks{locks: make(map[uuid.UUID]*jobLock)}
}

// acquire блокирует job и возвращает функцию разблокировки.
func (l *jobLocks) acquire(id uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &jobLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
