package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Clipline/internal/domain"
	"github.com/shaiso/Clipline/internal/fsm"
	"github.com/shaiso/Clipline/internal/store"
	"github.com/shaiso/Clipline/internal/telemetry"
)

// mutationAttempts — число попыток CAS-мутации при конфликте версий.
const mutationAttempts = 3

// CreateJob создаёт новый job и запускает pipeline.
// POST /api/v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Prompt == "" {
		BadRequest(w, "prompt is required")
		return
	}
	if req.NumScenes < 0 {
		BadRequest(w, "num_scenes must be non-negative")
		return
	}

	job := domain.NewJob(domain.JobSpec{
		Prompt:     req.Prompt,
		Mode:       req.Mode,
		NumScenes:  req.NumScenes,
		ArtStyle:   req.ArtStyle,
		MusicGenre: req.MusicGenre,
	})

	if err := h.jobs.Create(r.Context(), job); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	telemetry.JobsCreated.Inc()

	// Публикуем событие в очередь; без MQ Coordinator подберёт job
	// в polling-режиме
	if h.publisher != nil {
		if err := h.publisher.PublishJobCreated(r.Context(), job.ID); err != nil {
			h.logger.Warn("failed to publish job.created", "job_id", job.ID, "error", err)
		}
	}

	Created(w, JobFromDomain(*job))
}

// ListJobs возвращает список jobs с фильтрацией.
// GET /api/v1/jobs?state=...&limit=...&offset=...
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := store.JobFilter{Limit: 50}

	if stateStr := r.URL.Query().Get("state"); stateStr != "" {
		state := domain.JobState(stateStr)
		if !state.Valid() {
			BadRequest(w, "unknown state: "+stateStr)
			return
		}
		filter.State = state
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		filter.Limit = int(mustParseInt(limitStr, 50))
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		filter.Offset = int(mustParseInt(offsetStr, 0))
	}

	jobs, err := h.jobs.List(r.Context(), filter)
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	result := make([]JobResponse, len(jobs))
	for i, job := range jobs {
		result[i] = JobFromDomain(job)
	}

	List(w, result, len(result))
}

// GetJob возвращает job по ID с журналом и историей состояний.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, JobDetailFromDomain(*job))
}

// InspectJob возвращает положение job в конечном автомате.
// GET /api/v1/jobs/{id}/inspect
func (h *Handler) InspectJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, InspectFromDomain(*job))
}

// ListJobUnits возвращает units job (все проходы, старые первыми).
// GET /api/v1/jobs/{id}/units
func (h *Handler) ListJobUnits(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	// Проверяем, что job существует
	_, err = h.jobs.GetByID(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "job not found") {
		return
	}

	units, err := h.units.ListByJobID(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	result := make([]UnitResponse, len(units))
	for i, u := range units {
		result[i] = UnitFromDomain(u)
	}

	List(w, result, len(result))
}

// CancelJob отменяет job: перевод в FAILED с причиной "cancelled by user".
// POST /api/v1/jobs/{id}/cancel
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	h.failJob(w, r, "cancelled by user")
}

// FailJob принудительно переводит job в FAILED (административная операция).
// POST /api/v1/jobs/{id}/force-fail
func (h *Handler) FailJob(w http.ResponseWriter, r *http.Request) {
	reason := "failed by operator"
	if r.ContentLength > 0 {
		var req FailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid request body")
			return
		}
		if req.Reason != "" {
			reason = req.Reason
		}
	}

	h.failJob(w, r, reason)
}

// TransitionJob принудительно переводит job в состояние target
// (административная операция). Переход обязан существовать в графе FSM.
// POST /api/v1/jobs/{id}/force-transition
func (h *Handler) TransitionJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	target := domain.JobState(req.Target)
	if !target.Valid() {
		BadRequest(w, "unknown state: "+req.Target)
		return
	}

	job, done := h.mutateJob(w, r, id, func(job *domain.Job) error {
		if err := h.machine.Transition(job, target); err != nil {
			return err
		}
		if job.IsFinished() && job.ExpiresAt == nil {
			expires := time.Now().Add(h.retention)
			job.ExpiresAt = &expires
		}
		job.AppendLog("state forced to " + string(target) + " by operator")
		return nil
	})
	if done {
		return
	}

	h.publishStateChange(r, job)
	Success(w, JobDetailFromDomain(*job))
}

// DeleteJob удаляет завершённый job вместе с его units.
// DELETE /api/v1/jobs/{id}
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, err := h.jobs.GetFresh(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "job not found") {
		return
	}

	if !job.IsFinished() {
		InvalidState(w, "job is still running, cancel it first")
		return
	}

	if _, err := h.units.DeleteByJobIDs(r.Context(), []uuid.UUID{id}); err != nil {
		InternalError(w, h.logger, err)
		return
	}
	if err := h.jobs.Delete(r.Context(), id); err != nil {
		if HandleStoreError(w, h.logger, err, "job not found") {
			return
		}
	}

	NoContent(w)
}

// failJob — общая реализация cancel/fail: CAS-мутация в FAILED.
func (h *Handler) failJob(w http.ResponseWriter, r *http.Request, reason string) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, done := h.mutateJob(w, r, id, func(job *domain.Job) error {
		if err := h.machine.Fail(job, reason); err != nil {
			return err
		}
		expires := time.Now().Add(h.retention)
		job.ExpiresAt = &expires
		return nil
	})
	if done {
		return
	}

	h.publishStateChange(r, job)
	Success(w, JobDetailFromDomain(*job))
}

// mutateJob выполняет мутацию job с retry при конфликте версий.
//
// fn применяется к свежепрочитанной записи; ErrIllegalTransition из fn
// транслируется в 422 (job уже в несовместимом состоянии). Возвращает
// (job, false) при успехе и (nil, true), если ответ уже отправлен.
func (h *Handler) mutateJob(w http.ResponseWriter, r *http.Request, id uuid.UUID, fn func(*domain.Job) error) (*domain.Job, bool) {
	for attempt := 1; attempt <= mutationAttempts; attempt++ {
		job, err := h.jobs.GetFresh(r.Context(), id)
		if HandleStoreError(w, h.logger, err, "job not found") {
			return nil, true
		}

		if err := fn(job); err != nil {
			if errors.Is(err, fsm.ErrIllegalTransition) || errors.Is(err, fsm.ErrRetryBudgetExceeded) {
				InvalidState(w, err.Error())
				return nil, true
			}
			InternalError(w, h.logger, err)
			return nil, true
		}

		err = h.jobs.Update(r.Context(), job)
		if err == nil {
			return job, false
		}
		if errors.Is(err, store.ErrStaleVersion) {
			continue
		}
		if HandleStoreError(w, h.logger, err, "job not found") {
			return nil, true
		}
	}

	Conflict(w, "concurrent modification, retry the request")
	return nil, true
}

// publishStateChange отправляет progress-событие об изменении состояния.
// Best-effort: подписчики в любом случае восстановят состояние
// через initial_state.
func (h *Handler) publishStateChange(r *http.Request, job *domain.Job) {
	if h.progress == nil || job == nil {
		return
	}

	event := domain.NewProgressEvent(job.ID).
		WithState(job.State).
		WithProgress(job.Progress)
	if job.Error != "" {
		event = event.WithLog(job.Error)
	}

	if err := h.progress.PublishProgress(r.Context(), event); err != nil {
		h.logger.Warn("failed to publish progress event", "job_id", job.ID, "error", err)
	}
}

// mustParseInt парсит строку в int с дефолтным значением.
func mustParseInt(s string, defaultVal int64) int64 {
	if n, err := json.Number(s).Int64(); err == nil {
		return n
	}
	return defaultVal
}
