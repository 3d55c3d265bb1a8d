package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Clipline/internal/domain"
	"github.com/shaiso/Clipline/internal/fsm"
	"github.com/shaiso/Clipline/internal/store"
)

// --- Fakes ---

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*domain.Job)}
}

func (s *fakeJobStore) seed(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Version = 1
	s.jobs[job.ID] = cloneTestJob(job)
}

func (s *fakeJobStore) GetFresh(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTestJob(job), nil
}

func (s *fakeJobStore) Update(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[job.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != job.Version {
		return store.ErrStaleVersion
	}

	job.Version++
	s.jobs[job.ID] = cloneTestJob(job)
	return nil
}

func (s *fakeJobStore) ListByState(_ context.Context, state domain.JobState, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Job
	for _, job := range s.jobs {
		if job.State == state && len(out) < limit {
			out = append(out, *cloneTestJob(job))
		}
	}
	return out, nil
}

func cloneTestJob(job *domain.Job) *domain.Job {
	clone := *job
	clone.Logs = append([]string(nil), job.Logs...)
	clone.History = append([]domain.JobState(nil), job.History...)
	clone.Artifacts = make(map[string]string, len(job.Artifacts))
	for k, v := range job.Artifacts {
		clone.Artifacts[k] = v
	}
	return &clone
}

type fakeUnitStore struct {
	mu    sync.Mutex
	units map[uuid.UUID]*domain.Unit
	order []uuid.UUID
}

func newFakeUnitStore() *fakeUnitStore {
	return &fakeUnitStore{units: make(map[uuid.UUID]*domain.Unit)}
}

func (s *fakeUnitStore) Create(_ context.Context, unit *domain.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[unit.ID] = unit
	s.order = append(s.order, unit.ID)
	return nil
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

func (s *fakeUnitStore) ListByJobPass(_ context.Context, jobID uuid.UUID, pass int, stage domain.JobState) ([]domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Unit
	for _, id := range s.order {
		u := s.units[id]
		if u.JobID == jobID && u.Pass == pass && u.Stage == stage {
			out = append(out, *u)
		}
	}
	return out, nil
}

// pending returns the newest unit of the given kind that has not finished yet.
func (s *fakeUnitStore) pending(kind domain.UnitKind) *domain.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.order) - 1; i >= 0; i-- {
		u := s.units[s.order[i]]
		if u.Kind == kind && !u.IsFinished() {
			return u
		}
	}
	return nil
}

func (s *fakeUnitStore) countByKind(kind domain.UnitKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, u := range s.units {
		if u.Kind == kind {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	mu        sync.Mutex
	published []uuid.UUID
}

func (p *fakePublisher) PublishUnitReady(_ context.Context, unit *domain.Unit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, unit.ID)
	return nil
}

type progressRecorder struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (r *progressRecorder) PublishProgress(_ context.Context, event *domain.ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

// --- Test env ---

type testEnv struct {
	c        *Coordinator
	jobs     *fakeJobStore
	units    *fakeUnitStore
	pub      *fakePublisher
	progress *progressRecorder
}

func newTestEnv(t *testing.T, policy AssetPolicy, maxRetries int) *testEnv {
	t.Helper()

	env := &testEnv{
		jobs:     newFakeJobStore(),
		units:    newFakeUnitStore(),
		pub:      &fakePublisher{},
		progress: &progressRecorder{},
	}

	env.c = New(Config{
		Jobs:        env.jobs,
		Units:       env.units,
		Publisher:   env.pub,
		Progress:    env.progress,
		Machine:     fsm.New(maxRetries),
		AssetPolicy: policy,
	})

	return env
}

func (e *testEnv) startJob(t *testing.T) *domain.Job {
	t.Helper()

	job := domain.NewJob(domain.JobSpec{Prompt: "a cat in space", NumScenes: 3})
	e.jobs.seed(job)

	if err := e.c.processJobCreated(context.Background(), job.ID); err != nil {
		t.Fatalf("processJobCreated: %v", err)
	}
	return job
}

// completeUnit finishes the newest pending unit of the given kind and
// delivers the completion event to the coordinator.
func (e *testEnv) completeUnit(t *testing.T, kind domain.UnitKind, succeed bool, outputs map[string]any) *domain.Unit {
	t.Helper()

	unit := e.units.pending(kind)
	if unit == nil {
		t.Fatalf("no pending %s unit", kind)
	}

	unit.MarkRunning()
	if succeed {
		unit.MarkSucceeded(outputs)
	} else {
		unit.MarkFailed("boom")
	}

	if err := e.c.processUnitCompleted(context.Background(), unit.ID, unit.JobID); err != nil {
		t.Fatalf("processUnitCompleted(%s): %v", kind, err)
	}
	return unit
}

func (e *testEnv) job(t *testing.T, id uuid.UUID) *domain.Job {
	t.Helper()
	job, err := e.jobs.GetFresh(context.Background(), id)
	if err != nil {
		t.Fatalf("GetFresh: %v", err)
	}
	return job
}

func (e *testEnv) runToQA(t *testing.T, jobID uuid.UUID) {
	t.Helper()
	e.completeUnit(t, domain.UnitKindPlan, true, map[string]any{
		"artifacts": map[string]any{"scenario": "s3://scenario.json"},
	})
	for _, kind := range domain.AssetKinds {
		e.completeUnit(t, kind, true, nil)
	}
	e.completeUnit(t, domain.UnitKindRender, true, map[string]any{
		"artifacts": map[string]any{"video": "s3://video.mp4"},
	})
}

// --- Tests ---

func TestCoordinator_HappyPath(t *testing.T) {
	env := newTestEnv(t, PolicyFailFast, 3)
	created := env.startJob(t)

	job := env.job(t, created.ID)
	if job.State != domain.StatePlan {
		t.Fatalf("State = %s, want PLAN", job.State)
	}
	if job.Progress != progressPlanStart {
		t.Errorf("Progress = %v, want %v", job.Progress, progressPlanStart)
	}

	env.completeUnit(t, domain.UnitKindPlan, true, map[string]any{
		"artifacts": map[string]any{"scenario": "s3://scenario.json"},
	})

	job = env.job(t, created.ID)
	if job.State != domain.StateAssets {
		t.Fatalf("State = %s, want ASSET_GENERATION", job.State)
	}
	if job.Artifacts["scenario"] != "s3://scenario.json" {
		t.Errorf("plan artifacts not merged: %v", job.Artifacts)
	}
	if got := env.units.countByKind(domain.UnitKindImage); got != 1 {
		t.Errorf("image units = %d, want 1", got)
	}

	for _, kind := range domain.AssetKinds {
		env.completeUnit(t, kind, true, nil)
	}

	job = env.job(t, created.ID)
	if job.State != domain.StateRender {
		t.Fatalf("State = %s, want RENDER", job.State)
	}

	env.completeUnit(t, domain.UnitKindRender, true, map[string]any{
		"artifacts": map[string]any{"video": "s3://video.mp4"},
	})

	job = env.job(t, created.ID)
	if job.State != domain.StateQA {
		t.Fatalf("State = %s, want QA", job.State)
	}
	if job.Progress != progressRenderDone {
		t.Errorf("Progress = %v, want %v", job.Progress, progressRenderDone)
	}

	env.completeUnit(t, domain.UnitKindQA, true, map[string]any{"passed": true})

	job = env.job(t, created.ID)
	if job.State != domain.StateEnd {
		t.Fatalf("State = %s, want END", job.State)
	}
	if job.Progress != progressComplete {
		t.Errorf("Progress = %v, want 1.0", job.Progress)
	}
	if job.ExpiresAt == nil {
		t.Error("ExpiresAt not set on terminal job")
	}

	wantHistory := []domain.JobState{
		domain.StateInit, domain.StatePlan, domain.StateAssets,
		domain.StateRender, domain.StateQA, domain.StateEnd,
	}
	if len(job.History) != len(wantHistory) {
		t.Fatalf("History = %v, want %v", job.History, wantHistory)
	}
	for i, s := range wantHistory {
		if job.History[i] != s {
			t.Errorf("History[%d] = %s, want %s", i, job.History[i], s)
		}
	}
}

func TestCoordinator_BarrierAllCompletionOrders(t *testing.T) {
	orders := [][]domain.UnitKind{
		{domain.UnitKindImage, domain.UnitKindVoice, domain.UnitKindMusic},
		{domain.UnitKindImage, domain.UnitKindMusic, domain.UnitKindVoice},
		{domain.UnitKindVoice, domain.UnitKindImage, domain.UnitKindMusic},
		{domain.UnitKindVoice, domain.UnitKindMusic, domain.UnitKindImage},
		{domain.UnitKindMusic, domain.UnitKindImage, domain.UnitKindVoice},
		{domain.UnitKindMusic, domain.UnitKindVoice, domain.UnitKindImage},
	}

	for _, order := range orders {
		env := newTestEnv(t, PolicyFailFast, 3)
		created := env.startJob(t)
		env.completeUnit(t, domain.UnitKindPlan, true, nil)

		// Barrier must not release before the last asset.
		for i, kind := range order {
			env.completeUnit(t, kind, true, nil)

			job := env.job(t, created.ID)
			if i < len(order)-1 && job.State != domain.StateAssets {
				t.Fatalf("order %v: released after %d assets, state %s", order, i+1, job.State)
			}
		}

		job := env.job(t, created.ID)
		if job.State != domain.StateRender {
			t.Errorf("order %v: State = %s, want RENDER", order, job.State)
		}
		if got := env.units.countByKind(domain.UnitKindRender); got != 1 {
			t.Errorf("order %v: render units = %d, want 1", order, got)
		}
	}
}

func TestCoordinator_DuplicateCompletionIsNoOp(t *testing.T) {
	env := newTestEnv(t, PolicyFailFast, 3)
	created := env.startJob(t)
	env.completeUnit(t, domain.UnitKindPlan, true, nil)

	for _, kind := range domain.AssetKinds {
		env.completeUnit(t, kind, true, nil)
	}

	job := env.job(t, created.ID)
	if job.State != domain.StateRender {
		t.Fatalf("State = %s, want RENDER", job.State)
	}

	// Redeliver the last asset completion: barrier already released,
	// no second render unit must appear.
	last := env.units.pending(domain.UnitKindRender)
	for _, id := range env.units.order {
		u := env.units.units[id]
		if u.Kind == domain.UnitKindMusic {
			if err := env.c.processUnitCompleted(context.Background(), u.ID, u.JobID); err != nil {
				t.Fatalf("duplicate delivery: %v", err)
			}
		}
	}

	if got := env.units.countByKind(domain.UnitKindRender); got != 1 {
		t.Errorf("render units = %d after duplicate, want 1", got)
	}
	if again := env.units.pending(domain.UnitKindRender); again == nil || again.ID != last.ID {
		t.Error("render unit changed after duplicate delivery")
	}
}

func TestCoordinator_LateSignalAfterTerminal(t *testing.T) {
	env := newTestEnv(t, PolicyFailFast, 3)
	created := env.startJob(t)
	env.runToQA(t, created.ID)
	qaUnit := env.completeUnit(t, domain.UnitKindQA, true, map[string]any{"passed": true})

	job := env.job(t, created.ID)
	if job.State != domain.StateEnd {
		t.Fatalf("State = %s, want END", job.State)
	}
	version := job.Version

	// A replayed completion against a terminal job changes nothing.
	if err := env.c.processUnitCompleted(context.Background(), qaUnit.ID, created.ID); err != nil {
		t.Fatalf("late signal: %v", err)
	}

	job = env.job(t, created.ID)
	if job.Version != version {
		t.Errorf("Version = %d after late signal, want %d", job.Version, version)
	}
}

func TestCoordinator_StalePassIgnored(t *testing.T) {
	env := newTestEnv(t, PolicyFailFast, 3)
	created := env.startJob(t)
	env.runToQA(t, created.ID)

	// Keep a handle on the pass-0 render unit before QA rejects.
	staleUnit := env.units.pending(domain.UnitKindQA)

	env.completeUnit(t, domain.UnitKindQA, true, map[string]any{"passed": false, "reason": "blurry"})

	job := env.job(t, created.ID)
	if job.State != domain.StatePlan || job.RetryCount != 1 {
		t.Fatalf("State = %s RetryCount = %d, want PLAN/1", job.State, job.RetryCount)
	}
	version := job.Version

	// Delivering the old pass-0 unit again must not move the job.
	if err := env.c.processUnitCompleted(context.Background(), staleUnit.ID, created.ID); err != nil {
		t.Fatalf("stale pass delivery: %v", err)
	}

	job = env.job(t, created.ID)
	if job.Version != version {
		t.Errorf("Version = %d after stale pass signal, want %d", job.Version, version)
	}
}

func TestCoordinator_QARetryThenSuccess(t *testing.T) {
	env := newTestEnv(t, PolicyFailFast, 3)
	created := env.startJob(t)

	// Two rejected passes, third passes.
	for i := 0; i < 2; i++ {
		env.runToQA(t, created.ID)
		env.completeUnit(t, domain.UnitKindQA, true, map[string]any{"passed": false, "reason": "off-brief"})

		job := env.job(t, created.ID)
		if job.State != domain.StatePlan {
			t.Fatalf("pass %d: State = %s, want PLAN", i, job.State)
		}
		if job.Progress != progressPlanStart {
			t.Errorf("pass %d: Progress = %v, want reset to %v", i, job.Progress, progressPlanStart)
		}
	}

	env.runToQA(t, created.ID)
	env.completeUnit(t, domain.UnitKindQA, true, map[string]any{"passed": true})

	job := env.job(t, created.ID)
	if job.State != domain.StateEnd {
		t.Fatalf("State = %s, want END", job.State)
	}
	if job.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", job.RetryCount)
	}

	// History records every PLAN entry: initial pass plus two retries.
	var planEntries int
	for _, s := range job.History {
		if s == domain.StatePlan {
			planEntries++
		}
	}
	if planEntries != 3 {
		t.Errorf("PLAN entries in history = %d, want 3", planEntries)
	}
}

func TestCoordinator_RetryBudgetExhausted(t *testing.T) {
	env := newTestEnv(t, PolicyFailFast, 2)
	created := env.startJob(t)

	for i := 0; i < 3; i++ {
		env.runToQA(t, created.ID)
		env.completeUnit(t, domain.UnitKindQA, true, map[string]any{"passed": false, "reason": "bad"})

		job := env.job(t, created.ID)
		if i < 2 {
			if job.State != domain.StatePlan {
				t.Fatalf("rejection %d: State = %s, want PLAN", i+1, job.State)
			}
			continue
		}

		// Third rejection exceeds the budget of 2.
		if job.State != domain.StateFailed {
			t.Fatalf("State = %s, want FAILED", job.State)
		}
		if job.RetryCount != 2 {
			t.Errorf("RetryCount = %d, want 2", job.RetryCount)
		}
		if job.Error == "" {
			t.Error("Error not recorded on budget exhaustion")
		}
		if job.ExpiresAt == nil {
			t.Error("ExpiresAt not set on FAILED job")
		}
	}

	// No plan unit for a fourth pass.
	if got := env.units.countByKind(domain.UnitKindPlan); got != 3 {
		t.Errorf("plan units = %d, want 3", got)
	}
}

func TestCoordinator_FailFastOnAssetFailure(t *testing.T) {
	env := newTestEnv(t, PolicyFailFast, 3)
	created := env.startJob(t)
	env.completeUnit(t, domain.UnitKindPlan, true, nil)

	env.completeUnit(t, domain.UnitKindImage, true, nil)
	env.completeUnit(t, domain.UnitKindVoice, false, nil)
	env.completeUnit(t, domain.UnitKindMusic, true, nil)

	job := env.job(t, created.ID)
	if job.State != domain.StateFailed {
		t.Fatalf("State = %s, want FAILED", job.State)
	}
	if got := env.units.countByKind(domain.UnitKindRender); got != 0 {
		t.Errorf("render units = %d, want 0", got)
	}
}

func TestCoordinator_PartialPolicyProceedsWithOneFailure(t *testing.T) {
	env := newTestEnv(t, PolicyPartial, 3)
	created := env.startJob(t)
	env.completeUnit(t, domain.UnitKindPlan, true, nil)

	env.completeUnit(t, domain.UnitKindImage, true, nil)
	env.completeUnit(t, domain.UnitKindVoice, false, nil)
	env.completeUnit(t, domain.UnitKindMusic, true, nil)

	job := env.job(t, created.ID)
	if job.State != domain.StateRender {
		t.Fatalf("State = %s, want RENDER under partial policy", job.State)
	}
}

func TestCoordinator_PartialPolicyFailsWhenAllAssetsFail(t *testing.T) {
	env := newTestEnv(t, PolicyPartial, 3)
	created := env.startJob(t)
	env.completeUnit(t, domain.UnitKindPlan, true, nil)

	for _, kind := range domain.AssetKinds {
		env.completeUnit(t, kind, false, nil)
	}

	job := env.job(t, created.ID)
	if job.State != domain.StateFailed {
		t.Fatalf("State = %s, want FAILED when no asset succeeded", job.State)
	}
}

func TestCoordinator_PlanFailureFailsJob(t *testing.T) {
	env := newTestEnv(t, PolicyFailFast, 3)
	created := env.startJob(t)

	env.completeUnit(t, domain.UnitKindPlan, false, nil)

	job := env.job(t, created.ID)
	if job.State != domain.StateFailed {
		t.Fatalf("State = %s, want FAILED", job.State)
	}
	if job.Error == "" {
		t.Error("Error not recorded")
	}
}

func TestCoordinator_ProgressMonotoneWithinPass(t *testing.T) {
	env := newTestEnv(t, PolicyFailFast, 3)
	created := env.startJob(t)
	env.runToQA(t, created.ID)
	env.completeUnit(t, domain.UnitKindQA, true, map[string]any{"passed": true})

	var last float64
	for _, event := range env.progress.events {
		if event.JobID != created.ID || event.Progress == nil {
			continue
		}
		if *event.Progress < last {
			t.Errorf("progress went backwards: %v after %v", *event.Progress, last)
		}
		last = *event.Progress
	}
	if last != progressComplete {
		t.Errorf("final progress = %v, want 1.0", last)
	}
}

func TestCoordinator_ProgressEventsCarryStateChanges(t *testing.T) {
	env := newTestEnv(t, PolicyFailFast, 3)
	created := env.startJob(t)
	env.runToQA(t, created.ID)
	env.completeUnit(t, domain.UnitKindQA, true, map[string]any{"passed": true})

	var states []domain.JobState
	for _, event := range env.progress.events {
		if event.State != nil {
			states = append(states, *event.State)
		}
	}

	want := []domain.JobState{
		domain.StatePlan, domain.StateAssets, domain.StateRender,
		domain.StateQA, domain.StateEnd,
	}
	if len(states) != len(want) {
		t.Fatalf("state events = %v, want %v", states, want)
	}
	for i, s := range want {
		if states[i] != s {
			t.Errorf("state event %d = %s, want %s", i, states[i], s)
		}
	}
}

func TestCoordinator_DuplicateJobCreatedIsNoOp(t *testing.T) {
	env := newTestEnv(t, PolicyFailFast, 3)
	created := env.startJob(t)

	// Second delivery of job.created finds the job past INIT.
	if err := env.c.processJobCreated(context.Background(), created.ID); err != nil {
		t.Fatalf("duplicate processJobCreated: %v", err)
	}

	if got := env.units.countByKind(domain.UnitKindPlan); got != 1 {
		t.Errorf("plan units = %d, want 1", got)
	}
}
