package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Clipline/internal/domain"
	"github.com/shaiso/Clipline/internal/mq"
	"github.com/shaiso/Clipline/internal/store"
)

// --- Fakes ---

type fakeUnitStore struct {
	mu    sync.Mutex
	units map[uuid.UUID]*domain.Unit
}

func newFakeUnitStore() *fakeUnitStore {
	return &fakeUnitStore{units: make(map[uuid.UUID]*domain.Unit)}
}

func (s *fakeUnitStore) add(unit *domain.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[unit.ID] = unit
}

func (s *fakeUnitStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unit, ok := s.units[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return unit, nil
}

func (s *fakeUnitStore) Update(_ context.Context, unit *domain.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[unit.ID]; !ok {
		return store.ErrNotFound
	}
	s.units[unit.ID] = unit
	return nil
}

func (s *fakeUnitStore) ListQueued(_ context.Context, limit int) ([]domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Unit
	for _, u := range s.units {
		if u.Status == domain.UnitStatusQueued && len(out) < limit {
			out = append(out, *u)
		}
	}
	return out, nil
}

type fakeCompletionPublisher struct {
	mu       sync.Mutex
	payloads []mq.UnitCompletedPayload
}

func (p *fakeCompletionPublisher) PublishUnitCompleted(_ context.Context, payload mq.UnitCompletedPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *fakeCompletionPublisher) last(t *testing.T) mq.UnitCompletedPayload {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.payloads) == 0 {
		t.Fatal("no completion published")
	}
	return p.payloads[len(p.payloads)-1]
}

// failingExecutor fails a fixed number of times before succeeding.
type failingExecutor struct {
	failures int
	calls    int
}

func (e *failingExecutor) Execute(_ context.Context, _ *domain.Unit) (*ExecutionResult, error) {
	e.calls++
	if e.calls <= e.failures {
		return nil, errors.New("transient failure")
	}
	return &ExecutionResult{Outputs: map[string]any{"ok": true}}, nil
}

func newTestWorker(units UnitStore, pub CompletionPublisher, registry *Registry, maxAttempts int) *Worker {
	return New(Config{
		Units:        units,
		Publisher:    pub,
		Registry:     registry,
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	})
}

// --- Tests ---

func TestWorker_ProcessPlanUnit(t *testing.T) {
	units := newFakeUnitStore()
	pub := &fakeCompletionPublisher{}
	w := newTestWorker(units, pub, nil, 3)

	unit := domain.NewUnit(uuid.New(), domain.UnitKindPlan, domain.StatePlan, 0, map[string]any{
		"prompt":     "a cat in space",
		"num_scenes": 3,
	})
	units.add(unit)

	if err := w.processUnit(context.Background(), unit.ID); err != nil {
		t.Fatalf("processUnit: %v", err)
	}

	if unit.Status != domain.UnitStatusSucceeded {
		t.Fatalf("Status = %s, want SUCCEEDED", unit.Status)
	}
	if unit.ArtifactRefs()["scenario"] == "" {
		t.Errorf("plan outputs missing scenario artifact: %v", unit.Outputs)
	}

	payload := pub.last(t)
	if payload.UnitID != unit.ID || payload.JobID != unit.JobID {
		t.Error("completion payload identifies wrong unit")
	}
	if payload.Status != string(domain.UnitStatusSucceeded) {
		t.Errorf("payload.Status = %s, want SUCCEEDED", payload.Status)
	}
	if payload.Stage != domain.StatePlan || payload.Pass != 0 {
		t.Errorf("payload stage/pass = %s/%d, want PLAN/0", payload.Stage, payload.Pass)
	}
}

func TestWorker_ProcessUnit_NotQueued(t *testing.T) {
	units := newFakeUnitStore()
	w := newTestWorker(units, &fakeCompletionPublisher{}, nil, 3)

	unit := domain.NewUnit(uuid.New(), domain.UnitKindPlan, domain.StatePlan, 0, nil)
	unit.MarkRunning()
	units.add(unit)

	err := w.processUnit(context.Background(), unit.ID)
	if !errors.Is(err, ErrUnitNotQueued) {
		t.Errorf("err = %v, want ErrUnitNotQueued", err)
	}
}

func TestWorker_ProcessUnit_NotFound(t *testing.T) {
	w := newTestWorker(newFakeUnitStore(), &fakeCompletionPublisher{}, nil, 3)

	err := w.processUnit(context.Background(), uuid.New())
	if !errors.Is(err, ErrUnitNotFound) {
		t.Errorf("err = %v, want ErrUnitNotFound", err)
	}
}

func TestWorker_RetrySucceedsOnSecondAttempt(t *testing.T) {
	units := newFakeUnitStore()
	pub := &fakeCompletionPublisher{}

	registry := NewRegistry(DefaultProviders())
	exec := &failingExecutor{failures: 1}
	registry.Register(domain.UnitKindRender, exec)

	w := newTestWorker(units, pub, registry, 3)

	unit := domain.NewUnit(uuid.New(), domain.UnitKindRender, domain.StateRender, 0, nil)
	units.add(unit)

	if err := w.processUnit(context.Background(), unit.ID); err != nil {
		t.Fatalf("processUnit: %v", err)
	}

	if unit.Status != domain.UnitStatusSucceeded {
		t.Fatalf("Status = %s, want SUCCEEDED", unit.Status)
	}
	if unit.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", unit.Attempt)
	}
	if exec.calls != 2 {
		t.Errorf("executor calls = %d, want 2", exec.calls)
	}
}

func TestWorker_FailsAfterMaxAttempts(t *testing.T) {
	units := newFakeUnitStore()
	pub := &fakeCompletionPublisher{}

	registry := NewRegistry(DefaultProviders())
	registry.Register(domain.UnitKindRender, &failingExecutor{failures: 100})

	w := newTestWorker(units, pub, registry, 2)

	unit := domain.NewUnit(uuid.New(), domain.UnitKindRender, domain.StateRender, 1, nil)
	units.add(unit)

	if err := w.processUnit(context.Background(), unit.ID); err != nil {
		t.Fatalf("processUnit: %v", err)
	}

	if unit.Status != domain.UnitStatusFailed {
		t.Fatalf("Status = %s, want FAILED", unit.Status)
	}
	if unit.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", unit.Attempt)
	}

	payload := pub.last(t)
	if payload.Status != string(domain.UnitStatusFailed) {
		t.Errorf("payload.Status = %s, want FAILED", payload.Status)
	}
	if payload.Error == "" {
		t.Error("payload.Error empty for failed unit")
	}
	if payload.Pass != 1 {
		t.Errorf("payload.Pass = %d, want 1", payload.Pass)
	}
}

func TestWorker_QARejectionIsNotRetried(t *testing.T) {
	units := newFakeUnitStore()
	pub := &fakeCompletionPublisher{}
	w := newTestWorker(units, pub, nil, 3)

	// No video artifact: the stub reviewer rejects, which is a verdict,
	// not an execution error.
	unit := domain.NewUnit(uuid.New(), domain.UnitKindQA, domain.StateQA, 0, map[string]any{
		"prompt":    "a cat in space",
		"artifacts": map[string]any{},
	})
	units.add(unit)

	if err := w.processUnit(context.Background(), unit.ID); err != nil {
		t.Fatalf("processUnit: %v", err)
	}

	if unit.Status != domain.UnitStatusSucceeded {
		t.Fatalf("Status = %s, want SUCCEEDED (verdict, not error)", unit.Status)
	}
	if unit.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1 (no retry on rejection)", unit.Attempt)
	}
	if passed, _ := unit.Outputs["passed"].(bool); passed {
		t.Error("verdict passed = true, want rejection")
	}
	if reason, _ := unit.Outputs["reason"].(string); reason == "" {
		t.Error("rejection must carry a reason")
	}
}

func TestWorker_UnknownKindFails(t *testing.T) {
	units := newFakeUnitStore()
	pub := &fakeCompletionPublisher{}
	w := newTestWorker(units, pub, nil, 3)

	unit := domain.NewUnit(uuid.New(), domain.UnitKind("teleport"), domain.StateRender, 0, nil)
	units.add(unit)

	err := w.processUnit(context.Background(), unit.ID)
	if !errors.Is(err, ErrUnknownUnitKind) {
		t.Errorf("err = %v, want ErrUnknownUnitKind", err)
	}

	// A configuration error, not a stage failure: the unit is untouched.
	if unit.Status != domain.UnitStatusQueued {
		t.Errorf("Status = %s, want QUEUED", unit.Status)
	}
	if len(pub.payloads) != 0 {
		t.Errorf("completions published = %d, want 0", len(pub.payloads))
	}
}

func TestCalculateBackoff(t *testing.T) {
	w := New(Config{
		Units:        newFakeUnitStore(),
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{10, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := w.calculateBackoff(tt.attempt); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestAssetExecutors_UseScenarioArtifact(t *testing.T) {
	units := newFakeUnitStore()
	pub := &fakeCompletionPublisher{}
	w := newTestWorker(units, pub, nil, 1)

	payload := map[string]any{
		"num_scenes": float64(2), // JSON round-trip turns ints into float64
		"artifacts":  map[string]any{"scenario": "local://plans/abc.json"},
	}

	for _, kind := range domain.AssetKinds {
		unit := domain.NewUnit(uuid.New(), kind, domain.StateAssets, 0, payload)
		units.add(unit)

		if err := w.processUnit(context.Background(), unit.ID); err != nil {
			t.Fatalf("processUnit(%s): %v", kind, err)
		}
		if unit.Status != domain.UnitStatusSucceeded {
			t.Errorf("%s: Status = %s, want SUCCEEDED", kind, unit.Status)
		}
		if len(unit.ArtifactRefs()) == 0 {
			t.Errorf("%s: no artifacts produced", kind)
		}
	}

	// Image executor honors num_scenes from the payload.
	imageUnit := domain.NewUnit(uuid.New(), domain.UnitKindImage, domain.StateAssets, 0, payload)
	units.add(imageUnit)
	if err := w.processUnit(context.Background(), imageUnit.ID); err != nil {
		t.Fatal(err)
	}
	if got := len(imageUnit.ArtifactRefs()); got != 2 {
		t.Errorf("image artifacts = %d, want %d scenes", got, 2)
	}
}
