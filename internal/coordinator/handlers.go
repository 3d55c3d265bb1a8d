package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Clipline/internal/domain"
	"github.com/shaiso/Clipline/internal/fsm"
	"github.com/shaiso/Clipline/internal/mq"
	"github.com/shaiso/Clipline/internal/store"
	"github.com/shaiso/Clipline/internal/telemetry"
)

// mutationAttempts — число попыток CAS-записи job при конфликте версий.
const mutationAttempts = 3

// errSkipMutation — прерывает mutateJob без записи: предусловие не
// выполнено (дубликат события, поздний сигнал, конкурентный переход).
var errSkipMutation = errors.New("mutation skipped")

// handleJobCreated обрабатывает событие о новом job.
func (c *Coordinator) handleJobCreated(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.JobCreatedPayload](&delivery.Message)
	if err != nil {
		c.logger.Error("failed to parse job.created payload", "error", err)
		return err
	}

	c.logger.Debug("received job.created event", "job_id", payload.JobID)

	if err := c.processJobCreated(ctx, payload.JobID); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			c.logger.Debug("job not found, skipping", "job_id", payload.JobID)
			return nil
		}
		c.logger.Error("failed to process job", "job_id", payload.JobID, "error", err)
		return err
	}

	return nil
}

// handleUnitCompleted обрабатывает событие о завершённом unit.
func (c *Coordinator) handleUnitCompleted(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.UnitCompletedPayload](&delivery.Message)
	if err != nil {
		c.logger.Error("failed to parse unit.completed payload", "error", err)
		return err
	}

	c.logger.Debug("received unit.completed event",
		"unit_id", payload.UnitID,
		"job_id", payload.JobID,
		"kind", payload.Kind,
		"status", payload.Status,
	)

	if err := c.processUnitCompleted(ctx, payload.UnitID, payload.JobID); err != nil {
		c.logger.Error("failed to process unit completion",
			"unit_id", payload.UnitID,
			"job_id", payload.JobID,
			"error", err,
		)
		return err
	}

	return nil
}

// processJobCreated запускает pipeline для нового job: INIT → PLAN
// и постановка plan-unit. Дубликат события видит job вне INIT и
// завершается без изменений.
func (c *Coordinator) processJobCreated(ctx context.Context, jobID uuid.UUID) error {
	unlock := c.locks.acquire(jobID)
	defer unlock()

	job, err := c.mutateJob(ctx, jobID, func(j *domain.Job) error {
		if j.State != domain.StateInit {
			return errSkipMutation
		}
		if err := c.machine.Transition(j, domain.StatePlan); err != nil {
			return err
		}
		j.SetProgress(progressPlanStart)
		j.AppendLog("planning started")
		return nil
	})
	if errors.Is(err, errSkipMutation) {
		return nil
	}
	if err != nil {
		return err
	}

	c.publishProgress(ctx, domain.NewProgressEvent(job.ID).
		WithState(job.State).
		WithProgress(job.Progress).
		WithLog("planning started"))

	c.logger.Info("job started", "job_id", job.ID, "state", job.State)

	return c.dispatchUnit(ctx, job, domain.UnitKindPlan, planPayload(job))
}

// processUnitCompleted обрабатывает завершение unit.
//
// Поздние сигналы отбрасываются по двум признакам: терминальный job
// (ничего уже не изменить) и несовпадающий pass (unit предыдущего
// прохода, барьер нового прохода его не считает).
func (c *Coordinator) processUnitCompleted(ctx context.Context, unitID, jobID uuid.UUID) error {
	unlock := c.locks.acquire(jobID)
	defer unlock()

	unit, err := c.units.GetByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnitNotFound, unitID)
		}
		return fmt.Errorf("get unit: %w", err)
	}

	job, err := c.jobs.GetFresh(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return fmt.Errorf("get job: %w", err)
	}

	if job.IsFinished() {
		c.logger.Debug("job finished, ignoring unit completion",
			"job_id", jobID, "unit_id", unitID)
		return nil
	}

	if unit.Pass != job.RetryCount {
		c.logger.Debug("stale pass, ignoring unit completion",
			"job_id", jobID, "unit_id", unitID,
			"unit_pass", unit.Pass, "job_pass", job.RetryCount)
		return nil
	}

	switch unit.Kind {
	case domain.UnitKindPlan:
		return c.onPlanCompleted(ctx, job, unit)
	case domain.UnitKindImage, domain.UnitKindVoice, domain.UnitKindMusic:
		return c.onAssetCompleted(ctx, job, unit)
	case domain.UnitKindRender:
		return c.onRenderCompleted(ctx, job, unit)
	case domain.UnitKindQA:
		return c.onQACompleted(ctx, job, unit)
	default:
		c.logger.Warn("unknown unit kind", "unit_id", unit.ID, "kind", unit.Kind)
		return nil
	}
}

// onPlanCompleted: PLAN → ASSET_GENERATION и fan-out asset-units.
func (c *Coordinator) onPlanCompleted(ctx context.Context, job *domain.Job, unit *domain.Unit) error {
	if unit.Status == domain.UnitStatusFailed {
		return c.failJob(ctx, job.ID, fmt.Sprintf("plan failed: %s", unit.Error))
	}

	artifacts := unit.ArtifactRefs()

	updated, err := c.mutateJob(ctx, job.ID, func(j *domain.Job) error {
		if j.State != domain.StatePlan {
			return errSkipMutation
		}
		if err := c.machine.Transition(j, domain.StateAssets); err != nil {
			return err
		}
		j.MergeArtifacts(artifacts)
		j.SetProgress(progressPlanDone)
		j.AppendLog("plan completed, generating assets")
		return nil
	})
	if errors.Is(err, errSkipMutation) {
		return nil
	}
	if err != nil {
		return err
	}

	c.publishProgress(ctx, domain.NewProgressEvent(updated.ID).
		WithState(updated.State).
		WithProgress(updated.Progress).
		WithArtifacts(artifacts).
		WithLog("plan completed, generating assets"))

	// Fan-out: по одному unit на каждый вид asset
	for _, kind := range domain.AssetKinds {
		if err := c.dispatchUnit(ctx, updated, kind, assetPayload(updated, kind)); err != nil {
			c.logger.Error("failed to dispatch asset unit",
				"job_id", updated.ID, "kind", kind, "error", err)
			// Остальные units продолжаем ставить, упавший подхватит poll
		}
	}

	return nil
}

// onAssetCompleted: учёт завершения asset-unit и fan-in барьер.
//
// Барьер срабатывает, когда все units прохода терминальны. Решение
// о переходе защищено CAS с проверкой состояния: при дубликатах
// событий или конкурентных координаторах переход выполнится ровно
// один раз, остальные увидят job вне ASSET_GENERATION.
func (c *Coordinator) onAssetCompleted(ctx context.Context, job *domain.Job, unit *domain.Unit) error {
	if unit.Status == domain.UnitStatusSucceeded {
		artifacts := unit.ArtifactRefs()

		updated, err := c.mutateJob(ctx, job.ID, func(j *domain.Job) error {
			if j.State != domain.StateAssets {
				return errSkipMutation
			}
			j.MergeArtifacts(artifacts)
			j.SetProgress(min(j.Progress+assetProgressStep, progressAssetsCap))
			j.AppendLog(fmt.Sprintf("%s asset ready", unit.Kind))
			return nil
		})
		if err != nil && !errors.Is(err, errSkipMutation) {
			return err
		}
		if err == nil {
			c.publishProgress(ctx, domain.NewProgressEvent(updated.ID).
				WithProgress(updated.Progress).
				WithArtifacts(artifacts).
				WithLog(fmt.Sprintf("%s asset ready", unit.Kind)))
		}
	} else {
		c.logger.Warn("asset unit failed",
			"job_id", job.ID, "kind", unit.Kind, "error", unit.Error)
		c.publishProgress(ctx, domain.NewProgressEvent(job.ID).
			WithLog(fmt.Sprintf("%s asset failed: %s", unit.Kind, unit.Error)))
	}

	return c.checkAssetBarrier(ctx, job.ID, unit.Pass)
}

// checkAssetBarrier проверяет fan-in барьер и при полном проходе
// принимает решение по политике asset-failures.
func (c *Coordinator) checkAssetBarrier(ctx context.Context, jobID uuid.UUID, pass int) error {
	units, err := c.units.ListByJobPass(ctx, jobID, pass, domain.StateAssets)
	if err != nil {
		return fmt.Errorf("list barrier units: %w", err)
	}

	var terminal, succeeded int
	for i := range units {
		if units[i].IsFinished() {
			terminal++
		}
		if units[i].Status == domain.UnitStatusSucceeded {
			succeeded++
		}
	}

	if terminal < len(domain.AssetKinds) {
		// Барьер ещё не собран
		return nil
	}

	failed := terminal - succeeded

	if succeeded == 0 {
		return c.failJob(ctx, jobID, "all asset units failed")
	}
	if failed > 0 && c.assetPolicy == PolicyFailFast {
		return c.failJob(ctx, jobID, fmt.Sprintf("%d asset unit(s) failed", failed))
	}

	updated, err := c.mutateJob(ctx, jobID, func(j *domain.Job) error {
		if j.State != domain.StateAssets {
			return errSkipMutation
		}
		if err := c.machine.Transition(j, domain.StateRender); err != nil {
			return err
		}
		j.AppendLog("assets complete, rendering")
		return nil
	})
	if errors.Is(err, errSkipMutation) {
		// Барьер уже выпущен другим событием
		return nil
	}
	if err != nil {
		return err
	}

	c.publishProgress(ctx, domain.NewProgressEvent(updated.ID).
		WithState(updated.State).
		WithLog("assets complete, rendering"))

	return c.dispatchUnit(ctx, updated, domain.UnitKindRender, renderPayload(updated))
}

// onRenderCompleted: RENDER → QA и постановка qa-unit.
func (c *Coordinator) onRenderCompleted(ctx context.Context, job *domain.Job, unit *domain.Unit) error {
	if unit.Status == domain.UnitStatusFailed {
		return c.failJob(ctx, job.ID, fmt.Sprintf("render failed: %s", unit.Error))
	}

	artifacts := unit.ArtifactRefs()

	updated, err := c.mutateJob(ctx, job.ID, func(j *domain.Job) error {
		if j.State != domain.StateRender {
			return errSkipMutation
		}
		if err := c.machine.Transition(j, domain.StateQA); err != nil {
			return err
		}
		j.MergeArtifacts(artifacts)
		j.SetProgress(progressRenderDone)
		j.AppendLog("render completed, reviewing")
		return nil
	})
	if errors.Is(err, errSkipMutation) {
		return nil
	}
	if err != nil {
		return err
	}

	c.publishProgress(ctx, domain.NewProgressEvent(updated.ID).
		WithState(updated.State).
		WithProgress(updated.Progress).
		WithArtifacts(artifacts).
		WithLog("render completed, reviewing"))

	return c.dispatchUnit(ctx, updated, domain.UnitKindQA, qaPayload(updated))
}

// onQACompleted: финальное решение — END, retry или FAILED.
func (c *Coordinator) onQACompleted(ctx context.Context, job *domain.Job, unit *domain.Unit) error {
	if unit.Status == domain.UnitStatusFailed {
		return c.failJob(ctx, job.ID, fmt.Sprintf("qa failed: %s", unit.Error))
	}

	passed, _ := unit.Outputs["passed"].(bool)
	reason, _ := unit.Outputs["reason"].(string)

	if passed {
		return c.completeJob(ctx, job.ID)
	}
	return c.retryJob(ctx, job.ID, reason)
}

// completeJob: QA → END, прогресс 1.0, retention-окно.
func (c *Coordinator) completeJob(ctx context.Context, jobID uuid.UUID) error {
	updated, err := c.mutateJob(ctx, jobID, func(j *domain.Job) error {
		if j.State != domain.StateQA {
			return errSkipMutation
		}
		if err := c.machine.Transition(j, domain.StateEnd); err != nil {
			return err
		}
		j.SetProgress(progressComplete)
		j.AppendLog("job completed")
		expires := time.Now().Add(c.retention)
		j.ExpiresAt = &expires
		return nil
	})
	if errors.Is(err, errSkipMutation) {
		return nil
	}
	if err != nil {
		return err
	}

	c.publishProgress(ctx, domain.NewProgressEvent(updated.ID).
		WithState(updated.State).
		WithProgress(updated.Progress).
		WithArtifacts(updated.Artifacts).
		WithLog("job completed"))

	c.logger.Info("job completed",
		"job_id", updated.ID,
		"retries", updated.RetryCount,
	)
	return nil
}

// retryJob: QA отклонил результат — новый проход с PLAN или FAILED
// при исчерпанном бюджете retry. Прогресс нового прохода начинается
// заново с отметки PLAN.
func (c *Coordinator) retryJob(ctx context.Context, jobID uuid.UUID, reason string) error {
	var budgetExceeded bool

	updated, err := c.mutateJob(ctx, jobID, func(j *domain.Job) error {
		budgetExceeded = false
		if j.State != domain.StateQA {
			return errSkipMutation
		}

		err := c.machine.Retry(j)
		if errors.Is(err, fsm.ErrRetryBudgetExceeded) {
			budgetExceeded = true
			c.machine.Fail(j, fmt.Sprintf("retry budget exhausted: %s", reason))
			expires := time.Now().Add(c.retention)
			j.ExpiresAt = &expires
			return nil
		}
		if err != nil {
			return err
		}

		j.ResetProgress(progressPlanStart)
		j.AppendLog(fmt.Sprintf("qa rejected (%s), retrying", reason))
		return nil
	})
	if errors.Is(err, errSkipMutation) {
		return nil
	}
	if err != nil {
		return err
	}

	if budgetExceeded {
		c.publishProgress(ctx, domain.NewProgressEvent(updated.ID).
			WithState(updated.State).
			WithLog(updated.Error))

		c.logger.Warn("job failed: retry budget exhausted",
			"job_id", updated.ID,
			"retries", updated.RetryCount,
			"reason", reason,
		)
		return nil
	}

	c.publishProgress(ctx, domain.NewProgressEvent(updated.ID).
		WithState(updated.State).
		WithProgress(updated.Progress).
		WithLog(fmt.Sprintf("qa rejected (%s), retrying", reason)))

	telemetry.PipelineRetries.Inc()
	c.logger.Info("job retrying",
		"job_id", updated.ID,
		"pass", updated.RetryCount,
		"reason", reason,
	)

	return c.dispatchUnit(ctx, updated, domain.UnitKindPlan, planPayload(updated))
}

// failJob переводит job в FAILED с указанием причины.
func (c *Coordinator) failJob(ctx context.Context, jobID uuid.UUID, reason string) error {
	updated, err := c.mutateJob(ctx, jobID, func(j *domain.Job) error {
		if j.IsFinished() {
			return errSkipMutation
		}
		c.machine.Fail(j, reason)
		expires := time.Now().Add(c.retention)
		j.ExpiresAt = &expires
		return nil
	})
	if errors.Is(err, errSkipMutation) {
		return nil
	}
	if err != nil {
		return err
	}

	c.publishProgress(ctx, domain.NewProgressEvent(updated.ID).
		WithState(updated.State).
		WithLog(reason))

	c.logger.Warn("job failed", "job_id", updated.ID, "reason", reason)
	return nil
}

// dispatchUnit создаёт unit текущего прохода и публикует unit.ready.
func (c *Coordinator) dispatchUnit(ctx context.Context, job *domain.Job, kind domain.UnitKind, payload map[string]any) error {
	unit := domain.NewUnit(job.ID, kind, job.State, job.RetryCount, payload)

	if err := c.units.Create(ctx, unit); err != nil {
		return fmt.Errorf("create unit: %w", err)
	}

	if err := c.publisher.PublishUnitReady(ctx, unit); err != nil {
		c.logger.Warn("failed to publish unit.ready",
			"unit_id", unit.ID,
			"job_id", job.ID,
			"error", err,
		)
		// Unit создан в БД — worker подхватит через polling
	}

	c.logger.Debug("unit dispatched",
		"unit_id", unit.ID,
		"job_id", job.ID,
		"kind", kind,
		"pass", unit.Pass,
	)

	return nil
}

// mutateJob применяет fn к свежей копии job и записывает результат
// с compare-and-swap. При ErrStaleVersion перечитывает и повторяет:
// fn всегда видит актуальное состояние и сам решает, применима ли
// ещё мутация (errSkipMutation, если нет).
func (c *Coordinator) mutateJob(ctx context.Context, jobID uuid.UUID, fn func(*domain.Job) error) (*domain.Job, error) {
	for attempt := 0; attempt < mutationAttempts; attempt++ {
		job, err := c.jobs.GetFresh(ctx, jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
			}
			return nil, fmt.Errorf("get job: %w", err)
		}

		before := job.State

		if err := fn(job); err != nil {
			return nil, err
		}

		err = c.jobs.Update(ctx, job)
		if errors.Is(err, store.ErrStaleVersion) {
			telemetry.StaleWrites.Inc()
			c.logger.Debug("stale job version, retrying mutation",
				"job_id", jobID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update job: %w", err)
		}

		if job.State != before {
			telemetry.StateTransitions.WithLabelValues(string(job.State)).Inc()
			if job.IsFinished() {
				telemetry.JobsFinished.WithLabelValues(string(job.State)).Inc()
			}
		}
		return job, nil
	}

	return nil, fmt.Errorf("%w: job %s", ErrMutationConflict, jobID)
}

// publishProgress публикует progress-событие best-effort.
func (c *Coordinator) publishProgress(ctx context.Context, event *domain.ProgressEvent) {
	if c.progress == nil {
		return
	}
	if err := c.progress.PublishProgress(ctx, event); err != nil {
		c.logger.Warn("failed to publish progress",
			"job_id", event.JobID,
			"error", err,
		)
	}
}
