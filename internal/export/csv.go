package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/teamworkflow/internal/store"
)

var entryHeader = []string{"ID", "Task", "Project", "Operator", "Start", "End", "Duration (s)", "Duration", "Notes"}

func ToCSV(entries []store.TimeEntry, names *Names, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(entryHeader); err != nil {
		return err
	}

	for _, e := range entries {
		row := []string{
			fmt.Sprintf("%d", e.ID),
			names.task(e.TaskID),
			names.projectOfTask(e.TaskID),
			names.operator(e.OperatorID),
			e.StartTime.Local().Format(time.RFC3339),
			e.EndTime.Local().Format(time.RFC3339),
			fmt.Sprintf("%d", e.Duration),
			formatDuration(e.Duration),
			e.Notes,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func formatDuration(secs int64) string {
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
