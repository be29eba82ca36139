package store

import "time"

type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskFinished   TaskStatus = "finished"
	TaskCanceled   TaskStatus = "canceled"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskOpen, TaskInProgress, TaskFinished, TaskCanceled:
		return true
	}
	return false
}

// Workable reports whether a task in this status still needs shop-floor time.
func (s TaskStatus) Workable() bool {
	return s == TaskOpen || s == TaskInProgress
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) IsValid() bool {
	return p.Rank() > 0
}

// Rank orders priorities: critical > high > medium > low. Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ProjectStatus tracks a whole order through the shop, independent of its tasks.
type ProjectStatus string

const (
	ProjectOpen      ProjectStatus = "open"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
)

func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectOpen, ProjectActive, ProjectOnHold, ProjectCompleted:
		return true
	}
	return false
}

type Availability string

const (
	AtWork     Availability = "at_work"
	OnVacation Availability = "on_vacation"
	SickLeave  Availability = "sick_leave"
)

func (a Availability) IsValid() bool {
	switch a {
	case AtWork, OnVacation, SickLeave:
		return true
	}
	return false
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleGuest    Role = "guest"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleOperator, RoleGuest:
		return true
	}
	return false
}

type SessionState string

const (
	SessionActive SessionState = "active"
	SessionPaused SessionState = "paused"
)

type DemotionStatus string

const (
	DemotionPending  DemotionStatus = "pending"
	DemotionApproved DemotionStatus = "approved"
	DemotionRejected DemotionStatus = "rejected"
)

type Project struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Client      string        `json:"client"`
	Description string        `json:"description"`
	Status      ProjectStatus `json:"status"`
	Deadline    *time.Time    `json:"deadline,omitempty"`
	Archived    bool          `json:"archived"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type Part struct {
	ID         int64     `json:"id"`
	ProjectID  *int64    `json:"project_id,omitempty"`
	Name       string    `json:"name"`
	PartNumber string    `json:"part_number"`
	Material   string    `json:"material"`
	Quantity   int       `json:"quantity"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Machine struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Model         string    `json:"model"`
	Active        bool      `json:"active"`
	CapacityHours float64   `json:"capacity_hours"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Operator struct {
	ID            int64        `json:"id"`
	FullName      string       `json:"full_name"`
	Email         string       `json:"email"`
	Availability  Availability `json:"availability"`
	Active        bool         `json:"active"`
	CapacityHours float64      `json:"capacity_hours"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Available reports whether the operator counts toward sprint capacity.
func (o Operator) Available() bool {
	return o.Active && o.Availability == AtWork
}

type Task struct {
	ID             int64      `json:"id"`
	ProjectID      int64      `json:"project_id"`
	PartID         *int64     `json:"part_id,omitempty"`
	MachineID      *int64     `json:"machine_id,omitempty"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Status         TaskStatus `json:"status"`
	Priority       Priority   `json:"priority"`
	EstimatedHours float64    `json:"estimated_hours"`
	ActualHours    float64    `json:"actual_hours"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	InSprint       bool       `json:"in_sprint"`
	SprintOrder    int        `json:"sprint_order"`
	PlannedStart   *time.Time `json:"planned_start,omitempty"`
	PlannedEnd     *time.Time `json:"planned_end,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// WorkSession is the single open (not yet finished) session of an operator on a task.
type WorkSession struct {
	ID              string       `json:"id"`
	TaskID          int64        `json:"task_id"`
	OperatorID      int64        `json:"operator_id"`
	State           SessionState `json:"state"`
	StartedAt       time.Time    `json:"started_at"`
	LastResumedAt   time.Time    `json:"last_resumed_at"`
	PausedAt        *time.Time   `json:"paused_at,omitempty"`
	AccumulatedSecs int64        `json:"accumulated_secs"`
	Notes           string       `json:"notes"`
}

type TimeEntry struct {
	ID         int64     `json:"id"`
	TaskID     int64     `json:"task_id"`
	OperatorID int64     `json:"operator_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Duration   int64     `json:"duration"` // seconds
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
}

type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	OperatorID  *int64    `json:"operator_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type DemotionRequest struct {
	ID           string         `json:"id"`
	TargetUserID int64          `json:"target_user_id"`
	RequestedBy  int64          `json:"requested_by"`
	Reason       string         `json:"reason"`
	Status       DemotionStatus `json:"status"`
	DecidedBy    *int64         `json:"decided_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	DecidedAt    *time.Time     `json:"decided_at,omitempty"`
}

type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// TaskFilter is used to filter tasks in queries.
type TaskFilter struct {
	ProjectID *int64
	Status    *TaskStatus
	InSprint  *bool
	// Workable restricts results to open and in-progress tasks.
	Workable bool
}

// EntryFilter is used to filter time entries in queries.
type EntryFilter struct {
	TaskID     *int64
	OperatorID *int64
	From       *time.Time
	To         *time.Time
	Limit      int
}

// DailySummary represents aggregated time per operator per day.
type DailySummary struct {
	Date         string `json:"date"`
	OperatorID   int64  `json:"operator_id"`
	OperatorName string `json:"operator_name"`
	TotalSeconds int64  `json:"total_seconds"`
	EntryCount   int    `json:"entry_count"`
}
