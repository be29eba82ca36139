package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sadopc/teamworkflow/internal/sprint"
	"github.com/sadopc/teamworkflow/internal/store"
)

var sprintHeader = []string{"Order", "ID", "Task", "Project", "Machine", "Priority", "Status", "Estimated (h)", "Actual (h)", "Deadline"}

// SprintReport is the data behind the sprint report CSV.
type SprintReport struct {
	Start    time.Time
	End      time.Time
	Capacity *sprint.Capacity
	Tasks    []store.Task
}

// SprintReportCSV writes a capacity block followed by one row per sprint task.
// The two blocks are separated by an empty line.
func SprintReportCSV(r SprintReport, names *Names, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	c := r.Capacity
	summary := [][]string{
		{"Sprint", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly)},
		{"Status", string(c.Status)},
		{"Operator hours", hours(c.RequiredOperatorHours), hours(c.TotalOperatorHours), percent(c.OperatorUtilization), string(c.OperatorStatus)},
		{"Machine hours", hours(c.RequiredMachineHours), hours(c.TotalMachineHours), percent(c.MachineUtilization), string(c.MachineStatus)},
	}
	if err := w.WriteAll(summary); err != nil {
		return err
	}
	if _, err := f.WriteString("\n"); err != nil {
		return err
	}

	if err := w.Write(sprintHeader); err != nil {
		return err
	}
	for _, t := range r.Tasks {
		deadline := ""
		if t.Deadline != nil {
			deadline = t.Deadline.Format(time.DateOnly)
		}
		row := []string{
			strconv.Itoa(t.SprintOrder),
			strconv.FormatInt(t.ID, 10),
			t.Name,
			names.project(t.ProjectID),
			names.machine(t.MachineID),
			string(t.Priority),
			string(t.Status),
			hours(t.EstimatedHours),
			hours(t.ActualHours),
			deadline,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func hours(h float64) string {
	return strconv.FormatFloat(h, 'f', 1, 64)
}

func percent(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}
