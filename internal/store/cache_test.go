package store

import (
	"testing"
	"time"

	"github.com/shaiso/Clipline/internal/domain"
)

func TestJobCache_PutGet(t *testing.T) {
	cache := newJobCache(time.Minute)
	job := domain.NewJob(domain.JobSpec{Prompt: "test"})

	cache.put(job)

	got, ok := cache.get(job.ID)
	if !ok {
		t.Fatal("get returned miss after put")
	}
	if got.ID != job.ID {
		t.Errorf("got job %s, want %s", got.ID, job.ID)
	}
}

func TestJobCache_Expiry(t *testing.T) {
	cache := newJobCache(10 * time.Millisecond)
	job := domain.NewJob(domain.JobSpec{Prompt: "test"})

	cache.put(job)
	time.Sleep(20 * time.Millisecond)

	if _, ok := cache.get(job.ID); ok {
		t.Error("get returned stale entry past TTL")
	}
}

func TestJobCache_Invalidate(t *testing.T) {
	cache := newJobCache(time.Minute)
	job := domain.NewJob(domain.JobSpec{Prompt: "test"})

	cache.put(job)
	cache.invalidate(job.ID)

	if _, ok := cache.get(job.ID); ok {
		t.Error("get returned entry after invalidate")
	}
}

func TestJobCache_ReturnsIsolatedCopy(t *testing.T) {
	// Mutating a cached result must not leak into the cache.
	cache := newJobCache(time.Minute)
	job := domain.NewJob(domain.JobSpec{Prompt: "test"})
	job.AppendLog("first")
	cache.put(job)

	got, ok := cache.get(job.ID)
	if !ok {
		t.Fatal("unexpected miss")
	}
	got.AppendLog("mutated")
	got.Artifacts["leak"] = "value"

	fresh, ok := cache.get(job.ID)
	if !ok {
		t.Fatal("unexpected miss")
	}
	if len(fresh.Logs) != 1 {
		t.Errorf("cached Logs = %v, mutation leaked", fresh.Logs)
	}
	if _, exists := fresh.Artifacts["leak"]; exists {
		t.Error("cached Artifacts mutated through returned copy")
	}
}

func TestJobCache_PutStoresCopy(t *testing.T) {
	cache := newJobCache(time.Minute)
	job := domain.NewJob(domain.JobSpec{Prompt: "test"})
	cache.put(job)

	// Mutations to the original after put must not affect the cache.
	job.AppendLog("after put")

	got, _ := cache.get(job.ID)
	if len(got.Logs) != 0 {
		t.Errorf("cached Logs = %v, want empty", got.Logs)
	}
}
