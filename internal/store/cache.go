package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Clipline/internal/domain"
)

// jobCache — короткоживущий in-process кэш job-записей.
//
// Даёт быстрые чтения процессу, который недавно писал или читал job,
// при ограниченном сверху окне staleness (ttl). Хранит копии:
// ни одна горутина не получает указатель на общий экземпляр.
type jobCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	job      domain.Job
	storedAt time.Time
}

func newJobCache(ttl time.Duration) *jobCache {
	return &jobCache{
		entries: make(map[uuid.UUID]cacheEntry),
		ttl:     ttl,
	}
}

// get возвращает копию job, если запись ещё свежая.
func (c *jobCache) get(id uuid.UUID) (*domain.Job, bool) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()

	if !ok || time.Since(entry.storedAt) > c.ttl {
		return nil, false
	}

	job := cloneJob(&entry.job)
	return job, true
}

// put сохраняет копию job.
func (c *jobCache) put(job *domain.Job) {
	clone := cloneJob(job)

	c.mu.Lock()
	c.entries[job.ID] = cacheEntry{job: *clone, storedAt: time.Now()}
	c.mu.Unlock()
}

// invalidate выбрасывает запись из кэша.
func (c *jobCache) invalidate(id uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// cloneJob делает глубокую копию job (слайсы и map изолированы).
func cloneJob(job *domain.Job) *domain.Job {
	clone := *job

	if job.Logs != nil {
		clone.Logs = make([]string, len(job.Logs))
		copy(clone.Logs, job.Logs)
	}
	if job.History != nil {
		clone.History = make([]domain.JobState, len(job.History))
		copy(clone.History, job.History)
	}
	if job.Artifacts != nil {
		clone.Artifacts = make(map[string]string, len(job.Artifacts))
		for k, v := range job.Artifacts {
			clone.Artifacts[k] = v
		}
	}
	if job.ExpiresAt != nil {
		t := *job.ExpiresAt
		clone.ExpiresAt = &t
	}
	return &clone
}
