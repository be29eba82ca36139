package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const taskColumns = `id, project_id, part_id, machine_id, name, description, status, priority,
	estimated_hours, actual_hours, deadline, in_sprint, sprint_order, planned_start, planned_end,
	finished_at, created_at, updated_at`

func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	if t.Status == "" {
		t.Status = TaskOpen
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if err := validateTask(t); err != nil {
		return err
	}
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (project_id, part_id, machine_id, name, description, status, priority,
		                    estimated_hours, deadline, planned_start, planned_end, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ProjectID, t.PartID, t.MachineID, t.Name, t.Description, t.Status, t.Priority,
		t.EstimatedHours, nullTime(t.Deadline), nullTime(t.PlannedStart), nullTime(t.PlannedEnd), now, now,
	)
	if err != nil {
		return wrapWriteErr("insert task", err)
	}
	t.ID, _ = res.LastInsertId()
	t.CreatedAt = parseTime(now)
	t.UpdatedAt = t.CreatedAt
	return nil
}

func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, exec executor, id int64) (*Task, error) {
	row := exec.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, notFound("task", id, err)
	}
	return t, nil
}

// ListTasks returns tasks in insertion (id) order.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	return listTasks(ctx, s.db, f)
}

func (tx *Tx) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	return listTasks(ctx, tx.tx, f)
}

func listTasks(ctx context.Context, exec executor, f TaskFilter) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any

	if f.ProjectID != nil {
		query += ` AND project_id = ?`
		args = append(args, *f.ProjectID)
	}
	if f.Status != nil {
		query += ` AND status = ?`
		args = append(args, *f.Status)
	}
	if f.InSprint != nil {
		query += ` AND in_sprint = ?`
		args = append(args, boolInt(*f.InSprint))
	}
	if f.Workable {
		query += ` AND status IN ('open', 'in_progress')`
	}
	query += ` ORDER BY id`

	return queryTasks(ctx, exec, query, args...)
}

// SprintTasks returns the tasks currently in the sprint in sprint order.
func (s *Store) SprintTasks(ctx context.Context) ([]Task, error) {
	return queryTasks(ctx, s.db,
		`SELECT `+taskColumns+` FROM tasks WHERE in_sprint = 1 ORDER BY sprint_order, id`)
}

func queryTasks(ctx context.Context, exec executor, query string, args ...any) ([]Task, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// UpdateTask saves the editable fields of a task. Status, sprint membership
// and actual hours have dedicated operations and are left untouched.
func (s *Store) UpdateTask(ctx context.Context, t *Task) error {
	if err := validateTask(t); err != nil {
		return err
	}
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks
		 SET project_id = ?, part_id = ?, machine_id = ?, name = ?, description = ?, priority = ?,
		     estimated_hours = ?, deadline = ?, planned_start = ?, planned_end = ?, updated_at = ?
		 WHERE id = ?`,
		t.ProjectID, t.PartID, t.MachineID, t.Name, t.Description, t.Priority,
		t.EstimatedHours, nullTime(t.Deadline), nullTime(t.PlannedStart), nullTime(t.PlannedEnd), now, t.ID,
	)
	if err != nil {
		return wrapWriteErr("update task", err)
	}
	t.UpdatedAt = parseTime(now)
	return checkAffected(res, "task", t.ID)
}

// UpdateTaskStatus moves a task to a new status after validating the transition.
// Finishing a task stamps finished_at and takes it out of the sprint.
func (s *Store) UpdateTaskStatus(ctx context.Context, id int64, status TaskStatus) error {
	return setTaskStatus(ctx, s.db, id, status, time.Now())
}

func setTaskStatus(ctx context.Context, exec executor, id int64, status TaskStatus, now time.Time) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s: %w", status, ErrInvalid)
	}
	current, err := getTask(ctx, exec, id)
	if err != nil {
		return err
	}
	if err := ValidateStatusTransition(current.Status, status); err != nil {
		return err
	}

	query := `UPDATE tasks SET status = ?, updated_at = ?`
	args := []any{status, formatTime(now)}
	switch status {
	case TaskFinished:
		query += `, finished_at = ?, in_sprint = 0, sprint_order = 0`
		args = append(args, formatTime(now))
	case TaskCanceled:
		query += `, in_sprint = 0, sprint_order = 0`
	default:
		query += `, finished_at = NULL`
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

// ValidateStatusTransition reports whether a task may move from one status to another.
func ValidateStatusTransition(from, to TaskStatus) error {
	if from == to {
		return nil
	}
	allowed := false
	switch from {
	case TaskOpen:
		allowed = to == TaskInProgress || to == TaskCanceled
	case TaskInProgress:
		allowed = to == TaskOpen || to == TaskFinished || to == TaskCanceled
	case TaskFinished:
		allowed = to == TaskInProgress
	case TaskCanceled:
		allowed = to == TaskOpen
	}
	if !allowed {
		return fmt.Errorf("invalid transition from %s to %s: %w", from, to, ErrInvalid)
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return checkAffected(res, "task", id)
}

// AssignOperator links an operator to a task. Assigning twice is a no-op.
func (s *Store) AssignOperator(ctx context.Context, taskID, operatorID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO task_operators (task_id, operator_id) VALUES (?, ?)`, taskID, operatorID,
	)
	if err != nil {
		return fmt.Errorf("assign operator: %w", err)
	}
	return nil
}

func (s *Store) UnassignOperator(ctx context.Context, taskID, operatorID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_operators WHERE task_id = ? AND operator_id = ?`, taskID, operatorID,
	)
	if err != nil {
		return fmt.Errorf("unassign operator: %w", err)
	}
	return checkAffected(res, "task operator", fmt.Sprintf("%d/%d", taskID, operatorID))
}

// TaskOperators lists the operators assigned to a task.
func (s *Store) TaskOperators(ctx context.Context, taskID int64) ([]Operator, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT o.id, o.full_name, o.email, o.availability, o.active, o.capacity_hours, o.created_at, o.updated_at
		 FROM operators o
		 JOIN task_operators tao ON tao.operator_id = o.id
		 WHERE tao.task_id = ?
		 ORDER BY o.full_name`, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list task operators: %w", err)
	}
	defer rows.Close()

	var operators []Operator
	for rows.Next() {
		o, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		operators = append(operators, *o)
	}
	return operators, rows.Err()
}

// SprintHoursByOperator sums the estimated hours of workable sprint tasks per assigned operator.
func (s *Store) SprintHoursByOperator(ctx context.Context) (map[int64]float64, error) {
	return sumHours(ctx, s.db, `
		SELECT tao.operator_id, COALESCE(SUM(t.estimated_hours), 0)
		FROM tasks t
		JOIN task_operators tao ON tao.task_id = t.id
		WHERE t.in_sprint = 1 AND t.status IN ('open', 'in_progress')
		GROUP BY tao.operator_id`)
}

// SprintHoursByMachine sums the estimated hours of workable sprint tasks per machine.
func (s *Store) SprintHoursByMachine(ctx context.Context) (map[int64]float64, error) {
	return sumHours(ctx, s.db, `
		SELECT machine_id, COALESCE(SUM(estimated_hours), 0)
		FROM tasks
		WHERE in_sprint = 1 AND status IN ('open', 'in_progress') AND machine_id IS NOT NULL
		GROUP BY machine_id`)
}

func sumHours(ctx context.Context, exec executor, query string) (map[int64]float64, error) {
	rows, err := exec.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sum hours: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var hours float64
		if err := rows.Scan(&id, &hours); err != nil {
			return nil, err
		}
		out[id] = hours
	}
	return out, rows.Err()
}

// GetTask reads a task inside the transaction.
func (tx *Tx) GetTask(ctx context.Context, id int64) (*Task, error) {
	return getTask(ctx, tx.tx, id)
}

// SprintTasks reads the sprint inside the transaction.
func (tx *Tx) SprintTasks(ctx context.Context) ([]Task, error) {
	return queryTasks(ctx, tx.tx,
		`SELECT `+taskColumns+` FROM tasks WHERE in_sprint = 1 ORDER BY sprint_order, id`)
}

// NextSprintOrder returns the order value that appends a task to the end of the sprint.
func (tx *Tx) NextSprintOrder(ctx context.Context) (int, error) {
	var last int
	err := tx.tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sprint_order), 0) FROM tasks WHERE in_sprint = 1`,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("next sprint order: %w", err)
	}
	return last + 1, nil
}

// AddToSprint flags a task as in the sprint at the given order. Planned dates
// are only filled in when the task has none.
func (tx *Tx) AddToSprint(ctx context.Context, taskID int64, order int, start, end time.Time) error {
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE tasks
		 SET in_sprint = 1, sprint_order = ?,
		     planned_start = COALESCE(planned_start, ?),
		     planned_end = COALESCE(planned_end, ?),
		     updated_at = ?
		 WHERE id = ?`,
		order, formatTime(start), formatTime(end), formatTime(time.Now()), taskID,
	)
	if err != nil {
		return fmt.Errorf("add to sprint: %w", err)
	}
	return checkAffected(res, "task", taskID)
}

func (tx *Tx) RemoveFromSprint(ctx context.Context, taskID int64) error {
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE tasks SET in_sprint = 0, sprint_order = 0, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), taskID,
	)
	if err != nil {
		return fmt.Errorf("remove from sprint: %w", err)
	}
	return checkAffected(res, "task", taskID)
}

func (tx *Tx) SetSprintOrder(ctx context.Context, taskID int64, order int) error {
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE tasks SET sprint_order = ? WHERE id = ? AND in_sprint = 1`, order, taskID,
	)
	if err != nil {
		return fmt.Errorf("set sprint order: %w", err)
	}
	return checkAffected(res, "sprint task", taskID)
}

// SetTaskStatus is UpdateTaskStatus inside the transaction.
func (tx *Tx) SetTaskStatus(ctx context.Context, id int64, status TaskStatus, now time.Time) error {
	return setTaskStatus(ctx, tx.tx, id, status, now)
}

// AddActualHours rolls finished work time into the task.
func (tx *Tx) AddActualHours(ctx context.Context, taskID int64, hours float64) error {
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE tasks SET actual_hours = actual_hours + ?, updated_at = ? WHERE id = ?`,
		hours, formatTime(time.Now()), taskID,
	)
	if err != nil {
		return fmt.Errorf("add actual hours: %w", err)
	}
	return checkAffected(res, "task", taskID)
}

func validateTask(t *Task) error {
	if t.Name == "" {
		return fmt.Errorf("task name is required: %w", ErrInvalid)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status: %s: %w", t.Status, ErrInvalid)
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s: %w", t.Priority, ErrInvalid)
	}
	if t.EstimatedHours < 0 {
		return fmt.Errorf("estimated hours must not be negative: %v: %w", t.EstimatedHours, ErrInvalid)
	}
	return nil
}

func scanTask(r rowScanner) (*Task, error) {
	t := &Task{}
	var partID, machineID sql.NullInt64
	var deadline, plannedStart, plannedEnd, finishedAt sql.NullString
	var inSprint int
	var createdAt, updatedAt string
	err := r.Scan(
		&t.ID, &t.ProjectID, &partID, &machineID, &t.Name, &t.Description, &t.Status, &t.Priority,
		&t.EstimatedHours, &t.ActualHours, &deadline, &inSprint, &t.SprintOrder, &plannedStart, &plannedEnd,
		&finishedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.PartID = nullInt(partID)
	t.MachineID = nullInt(machineID)
	t.Deadline = parseNullTime(deadline)
	t.InSprint = inSprint == 1
	t.PlannedStart = parseNullTime(plannedStart)
	t.PlannedEnd = parseNullTime(plannedEnd)
	t.FinishedAt = parseNullTime(finishedAt)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}
