package api

import (
	"log/slog"
	"time"

	"github.com/shaiso/Clipline/internal/fsm"
	"github.com/shaiso/Clipline/internal/hub"
	"github.com/shaiso/Clipline/internal/mq"
	"github.com/shaiso/Clipline/internal/store"
)

// defaultRetention — срок хранения завершённых jobs, если не задан в Config.
const defaultRetention = 24 * time.Hour

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	jobs      *store.JobStore
	units     *store.UnitStore
	machine   *fsm.Machine
	publisher *mq.Publisher
	progress  mq.ProgressPublisher
	hub       *hub.Hub
	retention time.Duration
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Jobs      *store.JobStore
	Units     *store.UnitStore
	Machine   *fsm.Machine
	Publisher *mq.Publisher
	Progress  mq.ProgressPublisher
	Hub       *hub.Hub
	Retention time.Duration
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Machine == nil {
		cfg.Machine = fsm.New(fsm.DefaultMaxRetries)
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		jobs:      cfg.Jobs,
		units:     cfg.Units,
		machine:   cfg.Machine,
		publisher: cfg.Publisher,
		progress:  cfg.Progress,
		hub:       cfg.Hub,
		retention: cfg.Retention,
		logger:    cfg.Logger,
	}
}
