package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/teamworkflow/internal/store"
)

type jsonExport struct {
	ExportedAt string      `json:"exported_at"`
	Count      int         `json:"count"`
	TotalSec   int64       `json:"total_seconds"`
	Entries    []jsonEntry `json:"entries"`
}

type jsonEntry struct {
	ID          int64  `json:"id"`
	TaskID      int64  `json:"task_id"`
	Task        string `json:"task"`
	Project     string `json:"project"`
	OperatorID  int64  `json:"operator_id"`
	Operator    string `json:"operator"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	DurationSec int64  `json:"duration_seconds"`
	Duration    string `json:"duration"`
	Notes       string `json:"notes,omitempty"`
}

func ToJSON(entries []store.TimeEntry, names *Names, path string) error {
	export := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(entries),
	}

	for _, e := range entries {
		export.TotalSec += e.Duration
		export.Entries = append(export.Entries, jsonEntry{
			ID:          e.ID,
			TaskID:      e.TaskID,
			Task:        names.task(e.TaskID),
			Project:     names.projectOfTask(e.TaskID),
			OperatorID:  e.OperatorID,
			Operator:    names.operator(e.OperatorID),
			StartTime:   e.StartTime.Local().Format(time.RFC3339),
			EndTime:     e.EndTime.Local().Format(time.RFC3339),
			DurationSec: e.Duration,
			Duration:    formatDuration(e.Duration),
			Notes:       e.Notes,
		})
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}
