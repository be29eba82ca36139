package sprint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sadopc/teamworkflow/internal/store"
)

type fixture struct {
	store   *store.Store
	planner *Planner
	project *store.Project
}

// testNow is a Wednesday; the default sprint starts on Monday the 5th.
var testNow = time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	p := &store.Project{Name: "Gearbox"}
	if err := s.CreateProject(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		store:   s,
		planner: New(s, WithClock(func() time.Time { return testNow })),
		project: p,
	}
}

func (f *fixture) operator(t *testing.T, name string, hours float64) *store.Operator {
	t.Helper()
	o := &store.Operator{FullName: name, Email: name + "@shop.test", Active: true, CapacityHours: hours}
	if err := f.store.CreateOperator(context.Background(), o); err != nil {
		t.Fatal(err)
	}
	return o
}

func (f *fixture) machine(t *testing.T, name string, hours float64) *store.Machine {
	t.Helper()
	m := &store.Machine{Name: name, Active: true, CapacityHours: hours}
	if err := f.store.CreateMachine(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	return m
}

type taskOpt func(*store.Task)

func withPriority(p store.Priority) taskOpt { return func(t *store.Task) { t.Priority = p } }

func withMachine(id int64) taskOpt { return func(t *store.Task) { t.MachineID = &id } }

func withDeadline(d time.Time) taskOpt { return func(t *store.Task) { t.Deadline = &d } }

func (f *fixture) task(t *testing.T, name string, hours float64, opts ...taskOpt) *store.Task {
	t.Helper()
	task := &store.Task{ProjectID: f.project.ID, Name: name, EstimatedHours: hours}
	for _, opt := range opts {
		opt(task)
	}
	if err := f.store.CreateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	return task
}

func (f *fixture) add(t *testing.T, id int64) {
	t.Helper()
	ok, reason, err := f.planner.AddTaskToSprint(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("add task %d: %s", id, reason)
	}
}

func sprintIDs(t *testing.T, f *fixture) []int64 {
	t.Helper()
	tasks, err := f.planner.SprintTasks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]int64, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	return ids
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ============================================================
// Classification
// ============================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		required, total float64
		want            Status
	}{
		{0, 0, Available},
		{1, 0, OverCapacity},
		{0, 40, Available},
		{27.9, 40, Available},
		{28, 40, HighUtilization},
		{35.9, 40, HighUtilization},
		{36, 40, AtCapacity},
		{8, 8, AtCapacity},
		{40.5, 40, OverCapacity},
		{0.1 + 0.2, 0.3, AtCapacity},
	}
	for _, tc := range tests {
		if got := classify(tc.required, tc.total, DefaultThresholds); got != tc.want {
			t.Errorf("classify(%v, %v) = %s, want %s", tc.required, tc.total, got, tc.want)
		}
	}
}

func TestUtilization(t *testing.T) {
	if got := utilization(8, 8); got != 100 {
		t.Fatalf("expected 100, got %v", got)
	}
	if got := utilization(1, 3); got != 33.33 {
		t.Fatalf("expected 33.33, got %v", got)
	}
	if got := utilization(5, 0); got != 0 {
		t.Fatalf("expected 0 for zero capacity, got %v", got)
	}
}

// ============================================================
// Capacity
// ============================================================

func TestGetSprintCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.operator(t, "ana", 40)
	f.operator(t, "bo", 40)
	away := f.operator(t, "cy", 40)
	f.store.SetOperatorAvailability(ctx, away.ID, store.OnVacation)
	m := f.machine(t, "CNC", 20)
	idle := f.machine(t, "Lathe", 30)
	idle.Active = false
	f.store.UpdateMachine(ctx, idle)

	a := f.task(t, "A", 30, withMachine(m.ID))
	b := f.task(t, "B", 20)
	f.task(t, "backlog", 100)
	f.add(t, b.ID)
	// Push A in directly: machine capacity would refuse 30h on a 20h machine.
	f.store.InTx(ctx, func(tx *store.Tx) error {
		return tx.AddToSprint(ctx, a.ID, 9, testNow, testNow)
	})

	c, err := f.planner.GetSprintCapacity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.TotalOperatorHours != 80 || c.TotalMachineHours != 20 {
		t.Fatalf("unexpected totals: %+v", c)
	}
	if c.RequiredOperatorHours != 50 || c.RequiredMachineHours != 30 {
		t.Fatalf("unexpected required hours: %+v", c)
	}
	if c.RemainingOperatorHours != 30 || c.MachineDeficit != 10 || c.OperatorDeficit != 0 {
		t.Fatalf("unexpected remaining/deficit: %+v", c)
	}
	if c.OperatorUtilization != 62.5 || c.MachineUtilization != 150 || c.Utilization != 150 {
		t.Fatalf("unexpected utilization: %+v", c)
	}
	if c.OperatorStatus != Available || c.MachineStatus != OverCapacity || c.Status != OverCapacity {
		t.Fatalf("unexpected statuses: %+v", c)
	}
}

func TestCapacityIgnoresFinishedWork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.operator(t, "ana", 8)
	a := f.task(t, "A", 8)
	f.add(t, a.ID)

	c, _ := f.planner.GetSprintCapacity(ctx)
	if c.Status != AtCapacity {
		t.Fatalf("8 of 8 hours should be At Capacity, got %s", c.Status)
	}

	f.store.UpdateTaskStatus(ctx, a.ID, store.TaskInProgress)
	f.store.UpdateTaskStatus(ctx, a.ID, store.TaskFinished)
	c, _ = f.planner.GetSprintCapacity(ctx)
	if c.RequiredOperatorHours != 0 || c.Status != Available {
		t.Fatalf("finished task should free capacity: %+v", c)
	}
}

func TestCapacityEmptyShop(t *testing.T) {
	f := newFixture(t)
	c, err := f.planner.GetSprintCapacity(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != Available || c.Utilization != 0 {
		t.Fatalf("empty shop should be Available: %+v", c)
	}
}

func TestThresholdsFromSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SetSetting(ctx, store.SettingHighUtilizationPct, "40")
	f.operator(t, "ana", 10)
	a := f.task(t, "A", 5)
	f.add(t, a.ID)

	c, _ := f.planner.GetSprintCapacity(ctx)
	if c.Status != HighUtilization {
		t.Fatalf("expected High Utilization with 40%% threshold, got %s", c.Status)
	}
}

func TestInvalidStoredThresholdsFallBackToDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SetSetting(ctx, store.SettingAtCapacityPct, "150")
	f.operator(t, "ana", 8)
	a := f.task(t, "A", 8)
	f.add(t, a.ID)

	c, err := f.planner.GetSprintCapacity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != AtCapacity {
		t.Fatalf("8 of 8 hours should be At Capacity, got %s", c.Status)
	}

	f.store.SetSetting(ctx, store.SettingAtCapacityPct, "90")
	f.store.SetSetting(ctx, store.SettingHighUtilizationPct, "95")
	c, _ = f.planner.GetSprintCapacity(ctx)
	if c.Status != AtCapacity {
		t.Fatalf("high above at should fall back to defaults, got %s", c.Status)
	}
}

func TestOperatorAndMachineCapacities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.operator(t, "ana", 10)
	bo := f.operator(t, "bo", 10)
	f.store.SetOperatorAvailability(ctx, bo.ID, store.SickLeave)
	m := f.machine(t, "CNC", 10)

	a := f.task(t, "A", 9, withMachine(m.ID))
	f.store.AssignOperator(ctx, a.ID, ana.ID)
	f.store.AssignOperator(ctx, a.ID, bo.ID)
	f.add(t, a.ID)

	ops, err := f.planner.OperatorCapacities(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 operators, got %d", len(ops))
	}
	byID := map[int64]ResourceCapacity{}
	for _, rc := range ops {
		byID[rc.ID] = rc
	}
	if got := byID[ana.ID]; got.AssignedHours != 9 || got.Utilization != 90 || got.Status != AtCapacity {
		t.Fatalf("unexpected ana capacity: %+v", got)
	}
	if got := byID[bo.ID]; got.AvailableHours != 0 || got.Status != OverCapacity {
		t.Fatalf("operator on sick leave with work should be over capacity: %+v", got)
	}

	machines, _ := f.planner.MachineCapacities(ctx)
	if len(machines) != 1 || machines[0].AssignedHours != 9 || machines[0].Name != "CNC" {
		t.Fatalf("unexpected machine capacities: %+v", machines)
	}
}

// ============================================================
// Auto-assignment
// ============================================================

func TestBacklogOrdering(t *testing.T) {
	f := newFixture(t)
	early := testNow.AddDate(0, 0, 3)
	late := testNow.AddDate(0, 0, 10)

	low := f.task(t, "low", 1, withPriority(store.PriorityLow))
	medNoDeadline := f.task(t, "medium-undated", 1)
	medLate := f.task(t, "medium-late", 1, withDeadline(late))
	medEarly := f.task(t, "medium-early", 1, withDeadline(early))
	crit := f.task(t, "critical", 1, withPriority(store.PriorityCritical))
	medNoDeadline2 := f.task(t, "medium-undated-2", 1)

	tasks, err := f.planner.Backlog(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := make([]int64, len(tasks))
	for i, task := range tasks {
		got[i] = task.ID
	}
	want := []int64{crit.ID, medEarly.ID, medLate.ID, medNoDeadline.ID, medNoDeadline2.ID, low.ID}
	if !equalIDs(got, want) {
		t.Fatalf("backlog order = %v, want %v", got, want)
	}
}

func TestAutoAssignRespectsCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.operator(t, "ana", 10)
	m := f.machine(t, "CNC", 4)

	big := f.task(t, "big", 8, withPriority(store.PriorityCritical))
	machineHeavy := f.task(t, "machine-heavy", 2, withPriority(store.PriorityHigh), withMachine(m.ID))
	f.task(t, "too-big", 5, withPriority(store.PriorityHigh))
	f.task(t, "small", 1)
	f.task(t, "also-small", 1)

	n, err := f.planner.AutoAssignTasksToSprint(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	// 8 + 2 = 10 fills the operators; too-big is skipped and the loop stops.
	if n != 2 {
		t.Fatalf("expected 2 tasks assigned, got %d", n)
	}
	if ids := sprintIDs(t, f); !equalIDs(ids, []int64{big.ID, machineHeavy.ID}) {
		t.Fatalf("unexpected sprint: %v", ids)
	}

	task, _ := f.store.GetTask(ctx, big.ID)
	if task.PlannedStart == nil || !task.PlannedStart.Equal(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("planned start should be the sprint Monday: %v", task.PlannedStart)
	}
	if task.PlannedEnd == nil || !task.PlannedEnd.Equal(time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("planned end should be two weeks later: %v", task.PlannedEnd)
	}
}

func TestAutoAssignSkipsMachineOverflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.operator(t, "ana", 40)
	m := f.machine(t, "CNC", 3)

	f.task(t, "needs-machine", 5, withPriority(store.PriorityCritical), withMachine(m.ID))
	fits := f.task(t, "fits", 5)

	n, err := f.planner.AutoAssignTasksToSprint(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 task assigned, got %d", n)
	}
	if ids := sprintIDs(t, f); !equalIDs(ids, []int64{fits.ID}) {
		t.Fatalf("unexpected sprint: %v", ids)
	}
}

func TestAutoAssignLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.operator(t, "ana", 100)
	for i := 0; i < 5; i++ {
		f.task(t, "t"+string(rune('a'+i)), 1)
	}

	n, _ := f.planner.AutoAssignTasksToSprint(ctx, 2)
	if n != 2 {
		t.Fatalf("expected 2 with explicit limit, got %d", n)
	}

	f.store.SetSetting(ctx, store.SettingAutoAssignLimit, "1")
	n, _ = f.planner.AutoAssignTasksToSprint(ctx, 0)
	if n != 1 {
		t.Fatalf("expected setting limit of 1, got %d", n)
	}

	ids := sprintIDs(t, f)
	if len(ids) != 3 {
		t.Fatalf("expected 3 sprint tasks, got %v", ids)
	}
	sprint, _ := f.planner.SprintTasks(ctx)
	for i, task := range sprint {
		if task.SprintOrder != i+1 {
			t.Fatalf("expected consecutive sprint orders, got %+v", sprint)
		}
	}
}

func TestAutoAssignNoCapacity(t *testing.T) {
	f := newFixture(t)
	f.task(t, "A", 1)
	n, err := f.planner.AutoAssignTasksToSprint(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected nothing assigned without operators, got %d", n)
	}
}

// ============================================================
// Validation, add, remove, reorder
// ============================================================

func TestValidateTaskForSprint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.operator(t, "ana", 10)
	m := f.machine(t, "CNC", 2)

	inSprint := f.task(t, "in", 4)
	f.add(t, inSprint.ID)
	canceled := f.task(t, "canceled", 1)
	f.store.UpdateTaskStatus(ctx, canceled.ID, store.TaskCanceled)
	tooLong := f.task(t, "too-long", 7)
	machineLong := f.task(t, "machine-long", 3, withMachine(m.ID))
	ok := f.task(t, "ok", 6)

	tests := []struct {
		name   string
		id     int64
		ok     bool
		reason string
	}{
		{"missing", 999, false, "Task not found."},
		{"already in sprint", inSprint.ID, false, "Task is already in the sprint."},
		{"canceled", canceled.ID, false, "Task is canceled and cannot be added to the sprint."},
		{"operator overflow", tooLong.ID, false, "Adding this task would exceed operator capacity by 1.0 hours."},
		{"machine overflow", machineLong.ID, false, "Adding this task would exceed machine capacity by 1.0 hours."},
		{"fits", ok.ID, true, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, reason, err := f.planner.ValidateTaskForSprint(ctx, tc.id)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.ok || reason != tc.reason {
				t.Fatalf("got (%v, %q), want (%v, %q)", got, reason, tc.ok, tc.reason)
			}
		})
	}
}

func TestAddAndRemoveTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.operator(t, "ana", 40)
	a := f.task(t, "A", 1)
	b := f.task(t, "B", 1)
	c := f.task(t, "C", 1)
	f.add(t, a.ID)
	f.add(t, b.ID)
	f.add(t, c.ID)

	ok, reason, err := f.planner.AddTaskToSprint(ctx, a.ID)
	if err != nil || ok || reason == "" {
		t.Fatalf("adding twice should be refused: ok=%v reason=%q err=%v", ok, reason, err)
	}

	ok, _, err = f.planner.RemoveTaskFromSprint(ctx, b.ID)
	if err != nil || !ok {
		t.Fatalf("remove: ok=%v err=%v", ok, err)
	}
	sprint, _ := f.planner.SprintTasks(ctx)
	if len(sprint) != 2 || sprint[0].ID != a.ID || sprint[1].ID != c.ID || sprint[1].SprintOrder != 2 {
		t.Fatalf("order gap should close after removal: %+v", sprint)
	}

	ok, reason, _ = f.planner.RemoveTaskFromSprint(ctx, b.ID)
	if ok || reason != "Task is not in the sprint." {
		t.Fatalf("unexpected result removing twice: %v %q", ok, reason)
	}
	ok, reason, _ = f.planner.RemoveTaskFromSprint(ctx, 999)
	if ok || reason != "Task not found." {
		t.Fatalf("unexpected result removing missing task: %v %q", ok, reason)
	}

	backlog, _ := f.planner.Backlog(ctx)
	if len(backlog) != 1 || backlog[0].ID != b.ID {
		t.Fatalf("removed task should be back in the backlog: %+v", backlog)
	}
}

func TestReorderSprint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.operator(t, "ana", 40)
	a := f.task(t, "A", 1)
	b := f.task(t, "B", 1)
	c := f.task(t, "C", 1)
	for _, id := range []int64{a.ID, b.ID, c.ID} {
		f.add(t, id)
	}

	if err := f.planner.ReorderSprint(ctx, []int64{c.ID, a.ID, b.ID}); err != nil {
		t.Fatal(err)
	}
	if ids := sprintIDs(t, f); !equalIDs(ids, []int64{c.ID, a.ID, b.ID}) {
		t.Fatalf("unexpected order: %v", ids)
	}

	bad := [][]int64{
		{a.ID, b.ID},
		{a.ID, a.ID, b.ID},
		{a.ID, b.ID, 999},
	}
	for _, ids := range bad {
		if err := f.planner.ReorderSprint(ctx, ids); !errors.Is(err, ErrInvalidOrder) {
			t.Fatalf("reorder %v: expected ErrInvalidOrder, got %v", ids, err)
		}
	}
	if ids := sprintIDs(t, f); !equalIDs(ids, []int64{c.ID, a.ID, b.ID}) {
		t.Fatalf("failed reorder must not change the sprint: %v", ids)
	}
}

// ============================================================
// Window and summary
// ============================================================

func TestWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, end, err := f.planner.Window(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !start.Equal(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)) || !end.Equal(start.AddDate(0, 0, 14)) {
		t.Fatalf("unexpected default window: %v - %v", start, end)
	}

	f.store.SetSetting(ctx, store.SettingSprintStart, "2026-02-02")
	f.store.SetSetting(ctx, store.SettingSprintLengthDays, "7")
	start, end, _ = f.planner.Window(ctx)
	if !start.Equal(time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected configured window: %v - %v", start, end)
	}

	f.store.SetSetting(ctx, store.SettingSprintStart, "next week")
	if _, _, err := f.planner.Window(ctx); err == nil {
		t.Fatal("expected parse error for bad sprint_start")
	}
}

func TestMondayOf(t *testing.T) {
	sunday := time.Date(2026, 1, 11, 23, 0, 0, 0, time.UTC)
	if got := mondayOf(sunday); !got.Equal(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("mondayOf(sunday) = %v", got)
	}
	monday := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC)
	if got := mondayOf(monday); !got.Equal(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("mondayOf(monday) = %v", got)
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.operator(t, "ana", 40)
	a := f.task(t, "A", 4)
	b := f.task(t, "B", 6)
	f.add(t, a.ID)
	f.add(t, b.ID)
	f.store.UpdateTaskStatus(ctx, b.ID, store.TaskInProgress)
	f.store.InTx(ctx, func(tx *store.Tx) error { return tx.AddActualHours(ctx, b.ID, 2) })

	s, err := f.planner.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.TaskCount != 2 || s.Open != 1 || s.InProgress != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.EstimatedHours != 10 || s.ActualHours != 2 || s.RemainingHours != 8 {
		t.Fatalf("unexpected hours: %+v", s)
	}
}
