package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/Clipline/internal/telemetry"
)

// cronParser — парсер cron-выражений для расписания sweep.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Sweeper — фоновая чистка записей с истёкшим retention-окном.
//
// Terminal jobs получают expires_at при завершении; Sweeper по cron
// расписанию удаляет просроченные jobs и каскадно их units.
// Запускается внутри процесса orchestrator: отдельный бинарь для
// периодической чистки не нужен.
type Sweeper struct {
	jobs     *JobStore
	units    *UnitStore
	schedule cron.Schedule
	logger   *slog.Logger
}

// SweeperConfig — конфигурация Sweeper.
type SweeperConfig struct {
	Jobs     *JobStore
	Units    *UnitStore
	CronExpr string // расписание чистки (default: "*/10 * * * *")
	Logger   *slog.Logger
}

// NewSweeper создаёт новый Sweeper.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	expr := cfg.CronExpr
	if expr == "" {
		expr = "*/10 * * * *"
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep cron expression %q: %w", expr, err)
	}

	return &Sweeper{
		jobs:     cfg.Jobs,
		units:    cfg.Units,
		schedule: schedule,
		logger:   cfg.Logger,
	}, nil
}

// Run выполняет sweep по расписанию до отмены контекста.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		next := s.schedule.Next(time.Now())

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		if err := s.Tick(ctx); err != nil {
			s.logger.Error("sweep tick failed", "error", err)
		}
	}
}

// Tick выполняет один проход чистки.
//
// 1. Удаляет jobs с expires_at < now
// 2. Каскадно удаляет units удалённых jobs
//
// Несколько конкурентных Sweeper'ов безопасны: DELETE идемпотентен,
// каждый удалит свою долю строк.
func (s *Sweeper) Tick(ctx context.Context) error {
	jobIDs, err := s.jobs.DeleteExpired(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("delete expired jobs: %w", err)
	}

	if len(jobIDs) == 0 {
		return nil
	}

	unitsDeleted, err := s.units.DeleteByJobIDs(ctx, jobIDs)
	if err != nil {
		return fmt.Errorf("cascade delete units: %w", err)
	}

	telemetry.SweptJobs.Add(float64(len(jobIDs)))

	s.logger.Info("retention sweep completed",
		"jobs_deleted", len(jobIDs),
		"units_deleted", unitsDeleted,
	)
	return nil
}
