package tracker

import (
	"context"
	"math"
)

type VarianceStatus string

const (
	UnderEstimate VarianceStatus = "Under Estimate"
	OverEstimate  VarianceStatus = "Over Estimate"
	OnTarget      VarianceStatus = "On Target"
)

// Variance compares a task's estimate with the time recorded against it.
// VarianceMinutes is estimated minus actual, so overruns are negative.
type Variance struct {
	TaskID           int64          `json:"task_id"`
	EstimatedMinutes int64          `json:"estimated_minutes"`
	ActualMinutes    int64          `json:"actual_minutes"`
	VarianceMinutes  int64          `json:"variance_minutes"`
	VariancePercent  float64        `json:"variance_percent"`
	Status           VarianceStatus `json:"status"`
}

func (t *Tracker) Variance(ctx context.Context, taskID int64) (*Variance, error) {
	task, err := t.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	secs, err := t.store.TaskTrackedSeconds(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return computeVariance(taskID, task.EstimatedHours, secs), nil
}

func computeVariance(taskID int64, estimatedHours float64, actualSecs int64) *Variance {
	v := &Variance{
		TaskID:           taskID,
		EstimatedMinutes: int64(math.Round(estimatedHours * 60)),
		ActualMinutes:    actualSecs / 60,
	}
	v.VarianceMinutes = v.EstimatedMinutes - v.ActualMinutes
	if v.EstimatedMinutes > 0 {
		v.VariancePercent = math.Round(float64(v.VarianceMinutes)/float64(v.EstimatedMinutes)*10000) / 100
	}
	switch {
	case v.VarianceMinutes > 0:
		v.Status = UnderEstimate
	case v.VarianceMinutes < 0:
		v.Status = OverEstimate
	default:
		v.Status = OnTarget
	}
	return v
}
