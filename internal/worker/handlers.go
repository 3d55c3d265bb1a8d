package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Clipline/internal/domain"
	"github.com/shaiso/Clipline/internal/mq"
	"github.com/shaiso/Clipline/internal/store"
	"github.com/shaiso/Clipline/internal/telemetry"
)

// handleUnitReady обрабатывает событие о новом unit из очереди units.ready.
func (w *Worker) handleUnitReady(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.UnitReadyPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse unit.ready payload", "error", err)
		return err
	}

	w.logger.Debug("received unit.ready event",
		"unit_id", payload.UnitID,
		"job_id", payload.JobID,
		"kind", payload.Kind,
	)

	if err := w.processUnit(ctx, payload.UnitID); err != nil {
		// Ожидаемые ситуации — не возвращаем ошибку (ack)
		if errors.Is(err, ErrUnitNotFound) || errors.Is(err, ErrUnitNotQueued) {
			w.logger.Debug("unit not processed", "unit_id", payload.UnitID, "reason", err)
			return nil
		}
		w.logger.Error("failed to process unit", "unit_id", payload.UnitID, "error", err)
		return err
	}

	return nil
}

// processUnit загружает unit из БД, выполняет и публикует результат.
func (w *Worker) processUnit(ctx context.Context, unitID uuid.UUID) error {
	unit, err := w.units.GetByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnitNotFound, unitID)
		}
		return fmt.Errorf("get unit: %w", err)
	}

	if unit.Status != domain.UnitStatusQueued {
		return ErrUnitNotQueued
	}

	// Ошибка конфигурации, а не выполнения: unit остаётся в QUEUED
	// и не считается провалом стадии.
	executor, err := w.registry.Get(unit.Kind)
	if err != nil {
		return err
	}

	unit.MarkRunning()
	if err := w.units.Update(ctx, unit); err != nil {
		return fmt.Errorf("update unit to running: %w", err)
	}

	w.logger.Info("unit started",
		"unit_id", unit.ID,
		"job_id", unit.JobID,
		"kind", unit.Kind,
		"pass", unit.Pass,
		"attempt", unit.Attempt,
	)

	result, execErr := w.executeWithRetry(ctx, executor, unit)

	if execErr == nil && (result == nil || result.Error == "") {
		var outputs map[string]any
		if result != nil {
			outputs = result.Outputs
		}
		unit.MarkSucceeded(outputs)
		if err := w.units.Update(ctx, unit); err != nil {
			return fmt.Errorf("update unit to succeeded: %w", err)
		}

		telemetry.UnitsExecuted.WithLabelValues(string(unit.Kind), string(unit.Status)).Inc()
		telemetry.UnitDuration.WithLabelValues(string(unit.Kind)).Observe(unit.Duration().Seconds())

		w.logger.Info("unit succeeded",
			"unit_id", unit.ID,
			"job_id", unit.JobID,
			"kind", unit.Kind,
			"attempt", unit.Attempt,
			"duration", unit.Duration(),
		)

		return w.publishCompletion(ctx, unit, "")
	}

	errMsg := ""
	if execErr != nil {
		errMsg = execErr.Error()
	} else {
		errMsg = result.Error
	}

	unit.MarkFailed(errMsg)
	if err := w.units.Update(ctx, unit); err != nil {
		return fmt.Errorf("update unit to failed: %w", err)
	}

	telemetry.UnitsExecuted.WithLabelValues(string(unit.Kind), string(unit.Status)).Inc()
	telemetry.UnitDuration.WithLabelValues(string(unit.Kind)).Observe(unit.Duration().Seconds())

	w.logger.Warn("unit failed",
		"unit_id", unit.ID,
		"job_id", unit.JobID,
		"kind", unit.Kind,
		"attempt", unit.Attempt,
		"error", errMsg,
	)

	return w.publishCompletion(ctx, unit, errMsg)
}

// publishCompletion публикует событие unit.completed.
func (w *Worker) publishCompletion(ctx context.Context, unit *domain.Unit, errMsg string) error {
	if w.publisher == nil {
		w.logger.Warn("publisher not available, skipping unit.completed publish",
			"unit_id", unit.ID,
		)
		return nil
	}

	payload := mq.UnitCompletedPayload{
		UnitID:  unit.ID,
		JobID:   unit.JobID,
		Kind:    unit.Kind,
		Stage:   unit.Stage,
		Pass:    unit.Pass,
		Status:  string(unit.Status),
		Error:   errMsg,
		Attempt: unit.Attempt,
	}

	if err := w.publisher.PublishUnitCompleted(ctx, payload); err != nil {
		w.logger.Warn("failed to publish unit.completed",
			"unit_id", unit.ID,
			"error", err,
		)
		// Не возвращаем ошибку — unit обновлён в БД
	}

	return nil
}

// executeWithRetry выполняет unit с retry и exponential backoff.
//
// Retry применяется к инфраструктурным ошибкам (error из Execute)
// и логическим ошибкам выполнения (result.Error). Вердикт QA
// passed=false — не ошибка и retry не вызывает.
func (w *Worker) executeWithRetry(ctx context.Context, executor Executor, unit *domain.Unit) (*ExecutionResult, error) {
	var lastResult *ExecutionResult
	var lastErr error

	for {
		lastResult, lastErr = executor.Execute(ctx, unit)

		if lastErr == nil && (lastResult == nil || lastResult.Error == "") {
			return lastResult, nil
		}

		if !unit.CanRetry(w.maxAttempts) {
			break
		}

		delay := w.calculateBackoff(unit.Attempt)

		w.logger.Debug("retrying unit",
			"unit_id", unit.ID,
			"attempt", unit.Attempt,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		unit.ResetForRetry()
		unit.MarkRunning()
		if err := w.units.Update(ctx, unit); err != nil {
			return nil, fmt.Errorf("update unit for retry: %w", err)
		}
	}

	return lastResult, lastErr
}

// calculateBackoff вычисляет задержку перед retry:
// initialDelay * 2^(attempt-1), не выше maxDelay.
func (w *Worker) calculateBackoff(attempt int) time.Duration {
	delay := w.initialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > w.maxDelay {
			return w.maxDelay
		}
	}
	if delay > w.maxDelay {
		return w.maxDelay
	}
	return delay
}
