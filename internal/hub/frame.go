package hub

import (
	"time"

	"github.com/shaiso/Clipline/internal/domain"
)

// Типы фреймов, отправляемых клиентам.
const (
	FrameInitialState = "initial_state"
	FrameProgress     = "progress"
	FramePong         = "pong"
)

// Frame — сообщение для WebSocket клиента.
//
// Поля progress-фрейма опциональны: отправляется только то, что
// изменилось. Клиент накладывает частичные обновления на снапшот,
// полученный в initial_state.
type Frame struct {
	Type      string            `json:"type"`
	JobID     string            `json:"job_id,omitempty"`
	State     *domain.JobState  `json:"state,omitempty"`
	Progress  *float64          `json:"progress,omitempty"`
	Log       string            `json:"log,omitempty"`
	Artifacts map[string]string `json:"artifacts,omitempty"`
	Job       *Snapshot         `json:"job,omitempty"`
}

// Snapshot — полное представление job для initial_state.
type Snapshot struct {
	ID         string            `json:"id"`
	State      domain.JobState   `json:"state"`
	Progress   float64           `json:"progress"`
	RetryCount int               `json:"retry_count"`
	Error      string            `json:"error,omitempty"`
	Logs       []string          `json:"logs"`
	Artifacts  map[string]string `json:"artifacts"`
	History    []domain.JobState `json:"history"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewSnapshot строит Snapshot из job.
func NewSnapshot(job *domain.Job) *Snapshot {
	return &Snapshot{
		ID:         job.ID.String(),
		State:      job.State,
		Progress:   job.Progress,
		RetryCount: job.RetryCount,
		Error:      job.Error,
		Logs:       job.Logs,
		Artifacts:  job.Artifacts,
		History:    job.History,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
}

// InitialStateFrame строит фрейм снапшота для нового подписчика.
func InitialStateFrame(job *domain.Job) Frame {
	return Frame{
		Type:  FrameInitialState,
		JobID: job.ID.String(),
		Job:   NewSnapshot(job),
	}
}

// ProgressFrame строит фрейм частичного обновления из progress-события.
func ProgressFrame(event *domain.ProgressEvent) Frame {
	return Frame{
		Type:      FrameProgress,
		JobID:     event.JobID.String(),
		State:     event.State,
		Progress:  event.Progress,
		Log:       event.Log,
		Artifacts: event.Artifacts,
	}
}

// PongFrame — ответ на клиентский ping.
func PongFrame() Frame {
	return Frame{Type: FramePong}
}
