package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sadopc/teamworkflow/internal/store"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	store    *store.Store
	tracker  *Tracker
	clock    *fakeClock
	task     *store.Task
	operator *store.Operator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	p := &store.Project{Name: "Pump"}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatal(err)
	}
	task := &store.Task{ProjectID: p.ID, Name: "Mill housing", EstimatedHours: 10}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	op := &store.Operator{FullName: "Ana", Email: "ana@shop.test", Active: true, CapacityHours: 40}
	if err := s.CreateOperator(ctx, op); err != nil {
		t.Fatal(err)
	}

	clock := &fakeClock{t: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)}
	return &fixture{
		store:    s,
		tracker:  New(s, WithClock(clock.now)),
		clock:    clock,
		task:     task,
		operator: op,
	}
}

// ============================================================
// State machine
// ============================================================

func TestStartMovesTaskInProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ws, err := f.tracker.Start(ctx, f.task.ID, f.operator.ID, "first op")
	if err != nil {
		t.Fatal(err)
	}
	if ws.State != store.SessionActive || ws.ID == "" {
		t.Fatalf("unexpected session: %+v", ws)
	}
	task, _ := f.store.GetTask(ctx, f.task.ID)
	if task.Status != store.TaskInProgress {
		t.Fatalf("expected in_progress, got %s", task.Status)
	}

	cur, _ := f.tracker.Current(ctx, f.task.ID, f.operator.ID)
	if cur == nil || cur.ID != ws.ID {
		t.Fatalf("Current did not return the session: %+v", cur)
	}
}

func TestStartTwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.tracker.Start(ctx, f.task.ID, f.operator.ID, ""); err != nil {
		t.Fatal(err)
	}
	_, err := f.tracker.Start(ctx, f.task.ID, f.operator.ID, "")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	// A paused session still blocks a new start.
	f.tracker.Pause(ctx, f.task.ID, f.operator.ID)
	_, err = f.tracker.Start(ctx, f.task.ID, f.operator.ID, "")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState while paused, got %v", err)
	}
}

func TestStartUnknownTaskOrOperator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.tracker.Start(ctx, 999, f.operator.ID, ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for task, got %v", err)
	}
	if _, err := f.tracker.Start(ctx, f.task.ID, 999, ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for operator, got %v", err)
	}
}

func TestStartCanceledTaskFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.UpdateTaskStatus(ctx, f.task.ID, store.TaskCanceled); err != nil {
		t.Fatal(err)
	}
	_, err := f.tracker.Start(ctx, f.task.ID, f.operator.ID, "")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestPauseResumeRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.tracker.Pause(ctx, f.task.ID, f.operator.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("pause when idle: expected ErrInvalidState, got %v", err)
	}
	if _, err := f.tracker.Resume(ctx, f.task.ID, f.operator.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("resume when idle: expected ErrInvalidState, got %v", err)
	}

	f.tracker.Start(ctx, f.task.ID, f.operator.ID, "")
	if _, err := f.tracker.Resume(ctx, f.task.ID, f.operator.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("resume when active: expected ErrInvalidState, got %v", err)
	}

	f.clock.advance(10 * time.Minute)
	ws, err := f.tracker.Pause(ctx, f.task.ID, f.operator.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ws.AccumulatedSecs != 600 || ws.PausedAt == nil {
		t.Fatalf("unexpected paused session: %+v", ws)
	}
	if _, err := f.tracker.Pause(ctx, f.task.ID, f.operator.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("pause when paused: expected ErrInvalidState, got %v", err)
	}

	f.clock.advance(time.Hour)
	ws, err = f.tracker.Resume(ctx, f.task.ID, f.operator.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ws.State != store.SessionActive || ws.PausedAt != nil {
		t.Fatalf("unexpected resumed session: %+v", ws)
	}
}

func TestConcurrentPauseCountsIntervalOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.tracker.Start(ctx, f.task.ID, f.operator.ID, ""); err != nil {
		t.Fatal(err)
	}
	f.clock.advance(10 * time.Minute)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.tracker.Pause(ctx, f.task.ID, f.operator.ID)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrInvalidState):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d pauses succeeded, want exactly 1", ok)
	}
	ws, err := f.store.GetSession(ctx, f.task.ID, f.operator.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ws.State != store.SessionPaused || ws.AccumulatedSecs != 600 {
		t.Fatalf("stored session = %s with %ds, want paused with 600s", ws.State, ws.AccumulatedSecs)
	}
}

func TestFinishExcludesPausedTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tracker.Start(ctx, f.task.ID, f.operator.ID, "roughing")
	f.clock.advance(30 * time.Minute)
	f.tracker.Pause(ctx, f.task.ID, f.operator.ID)
	f.clock.advance(2 * time.Hour) // lunch
	f.tracker.Resume(ctx, f.task.ID, f.operator.ID)
	f.clock.advance(15 * time.Minute)

	entry, err := f.tracker.Finish(ctx, f.task.ID, f.operator.ID, "done")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Duration != 45*60 {
		t.Fatalf("expected 2700s, got %d", entry.Duration)
	}
	if entry.Notes != "roughing\ndone" {
		t.Fatalf("unexpected notes: %q", entry.Notes)
	}

	cur, _ := f.tracker.Current(ctx, f.task.ID, f.operator.ID)
	if cur != nil {
		t.Fatalf("session should be cleared after finish: %+v", cur)
	}
	task, _ := f.store.GetTask(ctx, f.task.ID)
	if task.ActualHours != 0.75 {
		t.Fatalf("expected 0.75 actual hours, got %v", task.ActualHours)
	}

	// The pair can start again after finishing.
	if _, err := f.tracker.Start(ctx, f.task.ID, f.operator.ID, ""); err != nil {
		t.Fatalf("restart after finish: %v", err)
	}
}

func TestFinishFromPaused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tracker.Start(ctx, f.task.ID, f.operator.ID, "")
	f.clock.advance(20 * time.Minute)
	f.tracker.Pause(ctx, f.task.ID, f.operator.ID)
	f.clock.advance(5 * time.Hour)

	entry, err := f.tracker.Finish(ctx, f.task.ID, f.operator.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Duration != 20*60 {
		t.Fatalf("expected 1200s, got %d", entry.Duration)
	}
}

func TestFinishIdleFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.tracker.Finish(context.Background(), f.task.ID, f.operator.ID, "")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestActiveSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bo := &store.Operator{FullName: "Bo", Email: "bo@shop.test", Active: true}
	f.store.CreateOperator(ctx, bo)

	f.tracker.Start(ctx, f.task.ID, f.operator.ID, "")
	f.clock.advance(time.Second)
	f.tracker.Start(ctx, f.task.ID, bo.ID, "")

	sessions, err := f.tracker.ActiveSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || sessions[0].OperatorID != f.operator.ID {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestElapsed(t *testing.T) {
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	ws := &store.WorkSession{State: store.SessionActive, LastResumedAt: start, AccumulatedSecs: 60}
	if got := Elapsed(ws, start.Add(2*time.Minute)); got != 3*time.Minute {
		t.Fatalf("active: expected 3m, got %v", got)
	}
	ws.State = store.SessionPaused
	if got := Elapsed(ws, start.Add(time.Hour)); got != time.Minute {
		t.Fatalf("paused: expected 1m, got %v", got)
	}
	ws.State = store.SessionActive
	if got := Elapsed(ws, start.Add(-time.Minute)); got != time.Minute {
		t.Fatalf("clock skew: expected 1m, got %v", got)
	}
}

// ============================================================
// Variance
// ============================================================

func TestVarianceOverEstimate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tracker.Start(ctx, f.task.ID, f.operator.ID, "")
	f.clock.advance(12 * time.Hour)
	if _, err := f.tracker.Finish(ctx, f.task.ID, f.operator.ID, ""); err != nil {
		t.Fatal(err)
	}

	v, err := f.tracker.Variance(ctx, f.task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if v.EstimatedMinutes != 600 || v.ActualMinutes != 720 {
		t.Fatalf("unexpected minutes: %+v", v)
	}
	if v.VarianceMinutes != -120 || v.Status != OverEstimate {
		t.Fatalf("expected -120 Over Estimate, got %+v", v)
	}
	if v.VariancePercent != -20 {
		t.Fatalf("expected -20%%, got %v", v.VariancePercent)
	}
}

func TestComputeVariance(t *testing.T) {
	tests := []struct {
		name      string
		estimated float64
		actual    int64
		minutes   int64
		status    VarianceStatus
	}{
		{"under", 2, 90 * 60, 30, UnderEstimate},
		{"on target", 1.5, 90 * 60, 0, OnTarget},
		{"over", 1, 61 * 60, -1, OverEstimate},
		{"no estimate, no work", 0, 0, 0, OnTarget},
		{"partial minute dropped", 1, 60*60 + 59, 0, OnTarget},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := computeVariance(1, tc.estimated, tc.actual)
			if v.VarianceMinutes != tc.minutes || v.Status != tc.status {
				t.Fatalf("got %d %s, want %d %s", v.VarianceMinutes, v.Status, tc.minutes, tc.status)
			}
		})
	}
}

func TestVarianceUnknownTask(t *testing.T) {
	f := newFixture(t)
	if _, err := f.tracker.Variance(context.Background(), 999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
