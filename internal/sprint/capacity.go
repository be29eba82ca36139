package sprint

import (
	"context"
	"math"

	"github.com/sadopc/teamworkflow/internal/store"
)

type Status string

const (
	Available       Status = "Available"
	HighUtilization Status = "High Utilization"
	AtCapacity      Status = "At Capacity"
	OverCapacity    Status = "Over Capacity"
)

// severity orders statuses from least to most loaded.
func (s Status) severity() int {
	switch s {
	case HighUtilization:
		return 1
	case AtCapacity:
		return 2
	case OverCapacity:
		return 3
	}
	return 0
}

// Thresholds are the utilization percentages at which a resource becomes
// highly utilized and at capacity.
type Thresholds struct {
	High float64
	At   float64
}

var DefaultThresholds = Thresholds{High: 70, At: 90}

// Capacity compares the hours the sprint needs with the hours the shop has.
type Capacity struct {
	TotalOperatorHours     float64 `json:"total_operator_hours"`
	TotalMachineHours      float64 `json:"total_machine_hours"`
	RequiredOperatorHours  float64 `json:"required_operator_hours"`
	RequiredMachineHours   float64 `json:"required_machine_hours"`
	RemainingOperatorHours float64 `json:"remaining_operator_hours"`
	RemainingMachineHours  float64 `json:"remaining_machine_hours"`
	OperatorDeficit        float64 `json:"operator_deficit"`
	MachineDeficit         float64 `json:"machine_deficit"`
	OperatorUtilization    float64 `json:"operator_utilization"`
	MachineUtilization     float64 `json:"machine_utilization"`
	Utilization            float64 `json:"utilization"`
	OperatorStatus         Status  `json:"operator_status"`
	MachineStatus          Status  `json:"machine_status"`
	Status                 Status  `json:"status"`
}

// ResourceCapacity is the load of a single operator or machine.
type ResourceCapacity struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	AvailableHours float64 `json:"available_hours"`
	AssignedHours  float64 `json:"assigned_hours"`
	Utilization    float64 `json:"utilization"`
	Status         Status  `json:"status"`
}

// reader is satisfied by both *store.Store and *store.Tx.
type reader interface {
	ListTasks(ctx context.Context, f store.TaskFilter) ([]store.Task, error)
	ListOperators(ctx context.Context, activeOnly bool) ([]store.Operator, error)
	ListMachines(ctx context.Context, activeOnly bool) ([]store.Machine, error)
}

func computeCapacity(ctx context.Context, r reader, th Thresholds) (*Capacity, error) {
	operators, err := r.ListOperators(ctx, true)
	if err != nil {
		return nil, err
	}
	machines, err := r.ListMachines(ctx, true)
	if err != nil {
		return nil, err
	}
	inSprint := true
	tasks, err := r.ListTasks(ctx, store.TaskFilter{InSprint: &inSprint, Workable: true})
	if err != nil {
		return nil, err
	}

	c := &Capacity{}
	for _, o := range operators {
		if o.Available() {
			c.TotalOperatorHours += o.CapacityHours
		}
	}
	for _, m := range machines {
		c.TotalMachineHours += m.CapacityHours
	}
	for _, t := range tasks {
		c.RequiredOperatorHours += t.EstimatedHours
		if t.MachineID != nil {
			c.RequiredMachineHours += t.EstimatedHours
		}
	}

	c.RemainingOperatorHours = c.TotalOperatorHours - c.RequiredOperatorHours
	c.RemainingMachineHours = c.TotalMachineHours - c.RequiredMachineHours
	c.OperatorDeficit = math.Max(-c.RemainingOperatorHours, 0)
	c.MachineDeficit = math.Max(-c.RemainingMachineHours, 0)
	c.OperatorUtilization = utilization(c.RequiredOperatorHours, c.TotalOperatorHours)
	c.MachineUtilization = utilization(c.RequiredMachineHours, c.TotalMachineHours)
	c.Utilization = math.Max(c.OperatorUtilization, c.MachineUtilization)
	c.OperatorStatus = classify(c.RequiredOperatorHours, c.TotalOperatorHours, th)
	c.MachineStatus = classify(c.RequiredMachineHours, c.TotalMachineHours, th)
	c.Status = c.OperatorStatus
	if c.MachineStatus.severity() > c.Status.severity() {
		c.Status = c.MachineStatus
	}
	return c, nil
}

func newResourceCapacity(id int64, name string, available, assigned float64, th Thresholds) ResourceCapacity {
	return ResourceCapacity{
		ID:             id,
		Name:           name,
		AvailableHours: available,
		AssignedHours:  assigned,
		Utilization:    utilization(assigned, available),
		Status:         classify(assigned, available, th),
	}
}

// utilization is required/total as a percentage rounded to two decimals.
// It is 0 when there is no capacity; classify still reports the overload.
func utilization(required, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(required/total*10000) / 100
}

// epsilon absorbs float drift from summing fractional hours.
const epsilon = 1e-9

func classify(required, total float64, th Thresholds) Status {
	if required-total > epsilon {
		return OverCapacity
	}
	if total <= 0 {
		return Available
	}
	pct := required / total * 100
	switch {
	case pct+epsilon >= th.At:
		return AtCapacity
	case pct+epsilon >= th.High:
		return HighUtilization
	}
	return Available
}
