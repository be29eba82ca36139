package sprint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sadopc/teamworkflow/internal/store"
)

// ErrInvalidOrder is returned when a reorder does not list exactly the sprint's tasks.
var ErrInvalidOrder = errors.New("order must list every sprint task exactly once")

type Planner struct {
	store *store.Store
	log   *log.Logger
	now   func() time.Time
}

type Option func(*Planner)

func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(p *Planner) { p.log = l }
}

func New(s *store.Store, opts ...Option) *Planner {
	p := &Planner{
		store: s,
		log:   log.New(io.Discard),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Window returns the sprint's first day and the day after its last. An empty
// sprint_start setting means the Monday of the current week.
func (p *Planner) Window(ctx context.Context) (time.Time, time.Time, error) {
	raw, err := p.store.GetSetting(ctx, store.SettingSprintStart)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return time.Time{}, time.Time{}, err
	}
	days, err := p.store.GetIntSetting(ctx, store.SettingSprintLengthDays, 14)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if days <= 0 {
		days = 14
	}

	var start time.Time
	if raw == "" {
		start = mondayOf(p.now())
	} else {
		start, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("setting %q: %w", store.SettingSprintStart, err)
		}
	}
	return start, start.AddDate(0, 0, days), nil
}

func mondayOf(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	d := t.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func (p *Planner) thresholds(ctx context.Context) (Thresholds, error) {
	high, err := p.store.GetFloatSetting(ctx, store.SettingHighUtilizationPct, DefaultThresholds.High)
	if err != nil {
		return Thresholds{}, err
	}
	at, err := p.store.GetFloatSetting(ctx, store.SettingAtCapacityPct, DefaultThresholds.At)
	if err != nil {
		return Thresholds{}, err
	}
	if err := store.ValidateThresholds(high, at); err != nil {
		p.log.Warn("ignoring stored utilization thresholds", "high", high, "at", at, "err", err)
		return DefaultThresholds, nil
	}
	return Thresholds{High: high, At: at}, nil
}

// GetSprintCapacity reports operator and machine hours against what the
// open and in-progress sprint tasks require.
func (p *Planner) GetSprintCapacity(ctx context.Context) (*Capacity, error) {
	th, err := p.thresholds(ctx)
	if err != nil {
		return nil, err
	}
	return computeCapacity(ctx, p.store, th)
}

// OperatorCapacities lists every active operator with the sprint hours of the
// tasks they are assigned to. Operators away from work have no available hours.
func (p *Planner) OperatorCapacities(ctx context.Context) ([]ResourceCapacity, error) {
	th, err := p.thresholds(ctx)
	if err != nil {
		return nil, err
	}
	operators, err := p.store.ListOperators(ctx, true)
	if err != nil {
		return nil, err
	}
	assigned, err := p.store.SprintHoursByOperator(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ResourceCapacity, 0, len(operators))
	for _, o := range operators {
		var available float64
		if o.Available() {
			available = o.CapacityHours
		}
		out = append(out, newResourceCapacity(o.ID, o.FullName, available, assigned[o.ID], th))
	}
	return out, nil
}

func (p *Planner) MachineCapacities(ctx context.Context) ([]ResourceCapacity, error) {
	th, err := p.thresholds(ctx)
	if err != nil {
		return nil, err
	}
	machines, err := p.store.ListMachines(ctx, true)
	if err != nil {
		return nil, err
	}
	assigned, err := p.store.SprintHoursByMachine(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ResourceCapacity, 0, len(machines))
	for _, m := range machines {
		out = append(out, newResourceCapacity(m.ID, m.Name, m.CapacityHours, assigned[m.ID], th))
	}
	return out, nil
}

func (p *Planner) SprintTasks(ctx context.Context) ([]store.Task, error) {
	return p.store.SprintTasks(ctx)
}

// Backlog returns the workable tasks outside the sprint in assignment order.
func (p *Planner) Backlog(ctx context.Context) ([]store.Task, error) {
	return backlog(ctx, p.store)
}

func backlog(ctx context.Context, r reader) ([]store.Task, error) {
	inSprint := false
	tasks, err := r.ListTasks(ctx, store.TaskFilter{InSprint: &inSprint, Workable: true})
	if err != nil {
		return nil, err
	}
	sortForAssignment(tasks)
	return tasks, nil
}

// sortForAssignment orders by priority (critical first), then earliest
// deadline with undated tasks last. Ties keep their fetch order.
func sortForAssignment(tasks []store.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		switch {
		case a.Deadline == nil:
			return false
		case b.Deadline == nil:
			return true
		}
		return a.Deadline.Before(*b.Deadline)
	})
}

// AutoAssignTasksToSprint greedily moves backlog tasks into the sprint while
// they fit the remaining operator and machine hours. It stops after maxTasks
// assignments or once operator capacity is used up. maxTasks <= 0 uses the
// auto_assign_limit setting.
func (p *Planner) AutoAssignTasksToSprint(ctx context.Context, maxTasks int) (int, error) {
	if maxTasks <= 0 {
		limit, err := p.store.GetIntSetting(ctx, store.SettingAutoAssignLimit, 10)
		if err != nil {
			return 0, err
		}
		maxTasks = limit
	}
	th, err := p.thresholds(ctx)
	if err != nil {
		return 0, err
	}
	start, end, err := p.Window(ctx)
	if err != nil {
		return 0, err
	}

	assigned := 0
	err = p.store.InTx(ctx, func(tx *store.Tx) error {
		capacity, err := computeCapacity(ctx, tx, th)
		if err != nil {
			return err
		}
		candidates, err := backlog(ctx, tx)
		if err != nil {
			return err
		}
		order, err := tx.NextSprintOrder(ctx)
		if err != nil {
			return err
		}

		operatorLeft := capacity.RemainingOperatorHours
		machineLeft := capacity.RemainingMachineHours
		for _, t := range candidates {
			if assigned >= maxTasks || operatorLeft <= epsilon {
				break
			}
			if t.EstimatedHours-operatorLeft > epsilon {
				continue
			}
			if t.MachineID != nil && t.EstimatedHours-machineLeft > epsilon {
				continue
			}
			if err := tx.AddToSprint(ctx, t.ID, order, start, end); err != nil {
				return err
			}
			order++
			assigned++
			operatorLeft -= t.EstimatedHours
			if t.MachineID != nil {
				machineLeft -= t.EstimatedHours
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	p.log.Info("auto-assigned tasks", "count", assigned, "limit", maxTasks)
	return assigned, nil
}

// ValidateTaskForSprint reports whether a task can join the sprint and, if
// not, a reason fit for the user.
func (p *Planner) ValidateTaskForSprint(ctx context.Context, taskID int64) (bool, string, error) {
	th, err := p.thresholds(ctx)
	if err != nil {
		return false, "", err
	}
	var ok bool
	var reason string
	err = p.store.InTx(ctx, func(tx *store.Tx) error {
		ok, reason, err = validate(ctx, tx, taskID, th)
		return err
	})
	return ok, reason, err
}

func validate(ctx context.Context, tx *store.Tx, taskID int64, th Thresholds) (bool, string, error) {
	task, err := tx.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return false, "Task not found.", nil
	}
	if err != nil {
		return false, "", err
	}
	if task.InSprint {
		return false, "Task is already in the sprint.", nil
	}
	if !task.Status.Workable() {
		return false, fmt.Sprintf("Task is %s and cannot be added to the sprint.", task.Status), nil
	}

	c, err := computeCapacity(ctx, tx, th)
	if err != nil {
		return false, "", err
	}
	if over := c.RequiredOperatorHours + task.EstimatedHours - c.TotalOperatorHours; over > epsilon {
		return false, fmt.Sprintf("Adding this task would exceed operator capacity by %.1f hours.", over), nil
	}
	if task.MachineID != nil {
		if over := c.RequiredMachineHours + task.EstimatedHours - c.TotalMachineHours; over > epsilon {
			return false, fmt.Sprintf("Adding this task would exceed machine capacity by %.1f hours.", over), nil
		}
	}
	return true, "", nil
}

// AddTaskToSprint appends a task to the sprint when it passes validation.
func (p *Planner) AddTaskToSprint(ctx context.Context, taskID int64) (bool, string, error) {
	th, err := p.thresholds(ctx)
	if err != nil {
		return false, "", err
	}
	start, end, err := p.Window(ctx)
	if err != nil {
		return false, "", err
	}

	var ok bool
	var reason string
	err = p.store.InTx(ctx, func(tx *store.Tx) error {
		ok, reason, err = validate(ctx, tx, taskID, th)
		if err != nil || !ok {
			return err
		}
		order, err := tx.NextSprintOrder(ctx)
		if err != nil {
			return err
		}
		return tx.AddToSprint(ctx, taskID, order, start, end)
	})
	if err != nil {
		return false, "", err
	}
	if ok {
		p.log.Info("task added to sprint", "task", taskID)
	}
	return ok, reason, nil
}

// RemoveTaskFromSprint returns a task to the backlog and closes the gap in the order.
func (p *Planner) RemoveTaskFromSprint(ctx context.Context, taskID int64) (bool, string, error) {
	var ok bool
	var reason string
	err := p.store.InTx(ctx, func(tx *store.Tx) error {
		task, err := tx.GetTask(ctx, taskID)
		if errors.Is(err, store.ErrNotFound) {
			reason = "Task not found."
			return nil
		}
		if err != nil {
			return err
		}
		if !task.InSprint {
			reason = "Task is not in the sprint."
			return nil
		}
		if err := tx.RemoveFromSprint(ctx, taskID); err != nil {
			return err
		}
		rest, err := tx.SprintTasks(ctx)
		if err != nil {
			return err
		}
		for i, t := range rest {
			if err := tx.SetSprintOrder(ctx, t.ID, i+1); err != nil {
				return err
			}
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, "", err
	}
	if ok {
		p.log.Info("task removed from sprint", "task", taskID)
	}
	return ok, reason, nil
}

// ReorderSprint sets the sprint order to the given task ids.
func (p *Planner) ReorderSprint(ctx context.Context, ids []int64) error {
	return p.store.InTx(ctx, func(tx *store.Tx) error {
		current, err := tx.SprintTasks(ctx)
		if err != nil {
			return err
		}
		if len(current) != len(ids) {
			return ErrInvalidOrder
		}
		members := make(map[int64]bool, len(current))
		for _, t := range current {
			members[t.ID] = true
		}
		for i, id := range ids {
			if !members[id] {
				return fmt.Errorf("task %d: %w", id, ErrInvalidOrder)
			}
			delete(members, id)
			if err := tx.SetSprintOrder(ctx, id, i+1); err != nil {
				return err
			}
		}
		return nil
	})
}

// Summary describes progress of the current sprint window.
type Summary struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	TaskCount        int       `json:"task_count"`
	Open             int       `json:"open"`
	InProgress       int       `json:"in_progress"`
	FinishedInWindow int       `json:"finished_in_window"`
	EstimatedHours   float64   `json:"estimated_hours"`
	ActualHours      float64   `json:"actual_hours"`
	RemainingHours   float64   `json:"remaining_hours"`
}

func (p *Planner) Summary(ctx context.Context) (*Summary, error) {
	start, end, err := p.Window(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := p.store.SprintTasks(ctx)
	if err != nil {
		return nil, err
	}

	s := &Summary{Start: start, End: end, TaskCount: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case store.TaskOpen:
			s.Open++
		case store.TaskInProgress:
			s.InProgress++
		}
		s.EstimatedHours += t.EstimatedHours
		s.ActualHours += t.ActualHours
		if left := t.EstimatedHours - t.ActualHours; left > 0 {
			s.RemainingHours += left
		}
	}

	finished := store.TaskFinished
	done, err := p.store.ListTasks(ctx, store.TaskFilter{Status: &finished})
	if err != nil {
		return nil, err
	}
	for _, t := range done {
		if t.FinishedAt != nil && !t.FinishedAt.Before(start) && t.FinishedAt.Before(end) {
			s.FinishedInWindow++
		}
	}
	return s, nil
}
