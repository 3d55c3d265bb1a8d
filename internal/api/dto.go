package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Clipline/internal/domain"
)

// Job DTOs

// CreateJobRequest — запрос на создание job.
type CreateJobRequest struct {
	Prompt     string `json:"prompt"`
	Mode       string `json:"mode,omitempty"`
	NumScenes  int    `json:"num_scenes,omitempty"`
	ArtStyle   string `json:"art_style,omitempty"`
	MusicGenre string `json:"music_genre,omitempty"`
}

// JobResponse — ответ с job.
type JobResponse struct {
	ID         uuid.UUID         `json:"id"`
	Spec       domain.JobSpec    `json:"spec"`
	State      string            `json:"state"`
	Progress   float64           `json:"progress"`
	RetryCount int               `json:"retry_count"`
	Artifacts  map[string]string `json:"artifacts,omitempty"`
	Error      string            `json:"error,omitempty"`
	Version    int64             `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
}

// JobFromDomain конвертирует domain.Job в JobResponse.
func JobFromDomain(j domain.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Spec:       j.Spec,
		State:      string(j.State),
		Progress:   j.Progress,
		RetryCount: j.RetryCount,
		Artifacts:  j.Artifacts,
		Error:      j.Error,
		Version:    j.Version,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
		ExpiresAt:  j.ExpiresAt,
	}
}

// JobDetailResponse — ответ с job, журналом и историей состояний.
type JobDetailResponse struct {
	JobResponse
	Logs    []string          `json:"logs"`
	History []domain.JobState `json:"history"`
}

// JobDetailFromDomain конвертирует domain.Job в JobDetailResponse.
func JobDetailFromDomain(j domain.Job) JobDetailResponse {
	return JobDetailResponse{
		JobResponse: JobFromDomain(j),
		Logs:        j.Logs,
		History:     j.History,
	}
}

// Unit DTOs

// UnitResponse — ответ с unit.
type UnitResponse struct {
	ID         uuid.UUID      `json:"id"`
	JobID      uuid.UUID      `json:"job_id"`
	Kind       string         `json:"kind"`
	Stage      string         `json:"stage"`
	Pass       int            `json:"pass"`
	Attempt    int            `json:"attempt"`
	Status     string         `json:"status"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// UnitFromDomain конвертирует domain.Unit в UnitResponse.
func UnitFromDomain(u domain.Unit) UnitResponse {
	return UnitResponse{
		ID:         u.ID,
		JobID:      u.JobID,
		Kind:       string(u.Kind),
		Stage:      string(u.Stage),
		Pass:       u.Pass,
		Attempt:    u.Attempt,
		Status:     string(u.Status),
		Outputs:    u.Outputs,
		StartedAt:  u.StartedAt,
		FinishedAt: u.FinishedAt,
		Error:      u.Error,
		CreatedAt:  u.CreatedAt,
	}
}

// InspectResponse — компактный ответ о положении job в FSM.
type InspectResponse struct {
	ID         uuid.UUID         `json:"id"`
	State      string            `json:"state"`
	History    []domain.JobState `json:"history"`
	IsTerminal bool              `json:"is_terminal"`
	RetryCount int               `json:"retry_count"`
}

// InspectFromDomain конвертирует domain.Job в InspectResponse.
func InspectFromDomain(j domain.Job) InspectResponse {
	return InspectResponse{
		ID:         j.ID,
		State:      string(j.State),
		History:    j.History,
		IsTerminal: j.IsFinished(),
		RetryCount: j.RetryCount,
	}
}

// Admin DTOs

// TransitionRequest — запрос на принудительный переход состояния.
type TransitionRequest struct {
	Target string `json:"target"`
}

// FailRequest — запрос на принудительный перевод в FAILED.
type FailRequest struct {
	Reason string `json:"reason,omitempty"`
}
