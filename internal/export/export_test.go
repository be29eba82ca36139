package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sadopc/teamworkflow/internal/sprint"
	"github.com/sadopc/teamworkflow/internal/store"
)

func sampleData() ([]store.TimeEntry, *Names) {
	now := time.Now().UTC()

	entries := []store.TimeEntry{
		{
			ID:         1,
			TaskID:     10,
			OperatorID: 100,
			StartTime:  now.Add(-1 * time.Hour),
			EndTime:    now,
			Duration:   3600,
			Notes:      "roughing pass",
			CreatedAt:  now,
		},
		{
			ID:         2,
			TaskID:     11,
			OperatorID: 101,
			StartTime:  now.Add(-30 * time.Minute),
			EndTime:    now,
			Duration:   1500,
			CreatedAt:  now,
		},
	}

	machine := int64(7)
	names := &Names{
		Tasks: map[int64]*store.Task{
			10: {ID: 10, ProjectID: 1, Name: "Mill housing", MachineID: &machine},
			11: {ID: 11, ProjectID: 2, Name: "Weld frame"},
		},
		Operators: map[int64]*store.Operator{
			100: {ID: 100, FullName: "Ana Kovac"},
			101: {ID: 101, FullName: "Ivo Maric"},
		},
		Projects: map[int64]*store.Project{
			1: {ID: 1, Name: "Gearbox"},
			2: {ID: 2, Name: "Trailer"},
		},
		Machines: map[int64]*store.Machine{
			7: {ID: 7, Name: "CNC-1"},
		},
	}
	return entries, names
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

// ============================================================
// CSV
// ============================================================

func TestToCSV(t *testing.T) {
	entries, names := sampleData()
	path := filepath.Join(t.TempDir(), "test.csv")

	if err := ToCSV(entries, names, path); err != nil {
		t.Fatalf("ToCSV: %v", err)
	}

	records := readCSV(t, path)
	if len(records) != 3 {
		t.Fatalf("expected 3 rows (1 header + 2 data), got %d", len(records))
	}

	for i, h := range entryHeader {
		if records[0][i] != h {
			t.Fatalf("header[%d] = %q, want %q", i, records[0][i], h)
		}
	}

	row := records[1]
	want := map[int]string{0: "1", 1: "Mill housing", 2: "Gearbox", 3: "Ana Kovac", 6: "3600", 7: "01:00:00", 8: "roughing pass"}
	for i, v := range want {
		if row[i] != v {
			t.Fatalf("%s = %q, want %q", entryHeader[i], row[i], v)
		}
	}
	if records[2][7] != "00:25:00" {
		t.Fatalf("Duration = %q, want 00:25:00", records[2][7])
	}
}

func TestToCSVEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")

	if err := ToCSV(nil, nil, path); err != nil {
		t.Fatal(err)
	}
	if records := readCSV(t, path); len(records) != 1 {
		t.Fatalf("expected 1 row (header only), got %d", len(records))
	}
}

func TestToCSVUnknownNames(t *testing.T) {
	entries := []store.TimeEntry{
		{ID: 1, TaskID: 999, OperatorID: 999, StartTime: time.Now(), EndTime: time.Now(), Duration: 60},
	}
	path := filepath.Join(t.TempDir(), "unknown.csv")

	if err := ToCSV(entries, &Names{}, path); err != nil {
		t.Fatal(err)
	}
	records := readCSV(t, path)
	if records[1][1] != "Unknown" || records[1][2] != "Unknown" || records[1][3] != "Unknown" {
		t.Fatalf("expected Unknown names, got %q", records[1][1:4])
	}
}

func TestToCSVBadPath(t *testing.T) {
	if err := ToCSV(nil, nil, "/nonexistent/dir/file.csv"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

func TestToCSVSpecialCharacters(t *testing.T) {
	entries, names := sampleData()
	entries[0].Notes = `notes with "quotes" and, commas`
	names.Tasks[10].Name = `Housing "A"`
	path := filepath.Join(t.TempDir(), "special.csv")

	if err := ToCSV(entries[:1], names, path); err != nil {
		t.Fatal(err)
	}
	records := readCSV(t, path)
	if records[1][1] != `Housing "A"` {
		t.Fatalf("task name mangled: %q", records[1][1])
	}
	if records[1][8] != `notes with "quotes" and, commas` {
		t.Fatalf("notes mangled: %q", records[1][8])
	}
}

// ============================================================
// JSON
// ============================================================

func TestToJSON(t *testing.T) {
	entries, names := sampleData()
	path := filepath.Join(t.TempDir(), "test.json")

	if err := ToJSON(entries, names, path); err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var result jsonExport
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if result.Count != 2 || len(result.Entries) != 2 {
		t.Fatalf("count = %d, entries = %d, want 2", result.Count, len(result.Entries))
	}
	if result.TotalSec != 5100 {
		t.Fatalf("total_seconds = %d, want 5100", result.TotalSec)
	}
	if _, err := time.Parse(time.RFC3339, result.ExportedAt); err != nil {
		t.Fatalf("exported_at is not valid RFC3339: %q", result.ExportedAt)
	}

	e := result.Entries[1]
	if e.Task != "Weld frame" || e.Project != "Trailer" || e.Operator != "Ivo Maric" {
		t.Fatalf("unexpected names: %+v", e)
	}
	if e.DurationSec != 1500 || e.Duration != "00:25:00" {
		t.Fatalf("unexpected duration: %+v", e)
	}
	for _, e := range result.Entries {
		if _, err := time.Parse(time.RFC3339, e.StartTime); err != nil {
			t.Fatalf("start_time is not valid RFC3339: %q", e.StartTime)
		}
	}
}

func TestToJSONEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")

	if err := ToJSON(nil, nil, path); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	var result jsonExport
	json.Unmarshal(data, &result)

	if result.Count != 0 {
		t.Fatalf("count = %d, want 0", result.Count)
	}
	if result.Entries != nil {
		t.Fatal("entries should be nil/null for empty export")
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Fatal("JSON should be pretty-printed")
	}
}

func TestToJSONBadPath(t *testing.T) {
	if err := ToJSON(nil, nil, "/nonexistent/dir/file.json"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

// ============================================================
// Sprint report
// ============================================================

func TestSprintReportCSV(t *testing.T) {
	_, names := sampleData()
	machine := int64(7)
	deadline := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	report := SprintReport{
		Start: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC),
		Capacity: &sprint.Capacity{
			TotalOperatorHours:    40,
			RequiredOperatorHours: 30,
			OperatorUtilization:   75,
			OperatorStatus:        sprint.HighUtilization,
			MachineStatus:         sprint.Available,
			Status:                sprint.HighUtilization,
		},
		Tasks: []store.Task{
			{ID: 10, ProjectID: 1, MachineID: &machine, Name: "Mill housing", Priority: store.PriorityHigh,
				Status: store.TaskOpen, EstimatedHours: 12, SprintOrder: 1, Deadline: &deadline},
			{ID: 11, ProjectID: 2, Name: "Weld frame", Priority: store.PriorityLow,
				Status: store.TaskInProgress, EstimatedHours: 18, ActualHours: 2.5, SprintOrder: 2},
		},
	}
	path := filepath.Join(t.TempDir(), "sprint.csv")

	if err := SprintReportCSV(report, names, path); err != nil {
		t.Fatalf("SprintReportCSV: %v", err)
	}

	records := readCSV(t, path)
	// 4 summary rows + header + 2 tasks; the blank separator line is skipped by the reader.
	if len(records) != 7 {
		t.Fatalf("expected 7 records, got %d: %v", len(records), records)
	}
	if got := strings.Join(records[0], ","); got != "Sprint,2026-01-05,2026-01-19" {
		t.Fatalf("sprint row = %q", got)
	}
	if got := strings.Join(records[2], ","); got != "Operator hours,30.0,40.0,75.0%,High Utilization" {
		t.Fatalf("operator row = %q", got)
	}
	if records[4][0] != "Order" {
		t.Fatalf("expected task header, got %v", records[4])
	}
	first := records[5]
	if first[2] != "Mill housing" || first[3] != "Gearbox" || first[4] != "CNC-1" || first[9] != "2026-01-20" {
		t.Fatalf("unexpected task row: %v", first)
	}
	second := records[6]
	if second[4] != "" || second[8] != "2.5" {
		t.Fatalf("unexpected task row: %v", second)
	}

	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "\n\nOrder,") {
		t.Fatal("expected a blank line before the task table")
	}
}

func TestLoadNames(t *testing.T) {
	s, err := store.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	p := &store.Project{Name: "Gearbox"}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatal(err)
	}
	task := &store.Task{ProjectID: p.ID, Name: "Mill housing", EstimatedHours: 2}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	op := &store.Operator{FullName: "Ana Kovac", Email: "ana@shop.test", CapacityHours: 40}
	if err := s.CreateOperator(ctx, op); err != nil {
		t.Fatal(err)
	}
	if err := s.ArchiveProject(ctx, p.ID); err != nil {
		t.Fatal(err)
	}

	names, err := LoadNames(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if names.task(task.ID) != "Mill housing" || names.projectOfTask(task.ID) != "Gearbox" {
		t.Fatalf("archived project should still resolve: %q", names.projectOfTask(task.ID))
	}
	if names.operator(op.ID) != "Ana Kovac" {
		t.Fatalf("inactive operator should resolve, got %q", names.operator(op.ID))
	}
}

// ============================================================
// formatDuration (internal helper)
// ============================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		secs int64
		want string
	}{
		{0, "00:00:00"},
		{1, "00:00:01"},
		{60, "00:01:00"},
		{3600, "01:00:00"},
		{3661, "01:01:01"},
		{86400, "24:00:00"},
		{90061, "25:01:01"},
	}

	for _, tt := range tests {
		got := formatDuration(tt.secs)
		if got != tt.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}

// ============================================================
// Entries / Sprint runners
// ============================================================

func TestEntriesAndSprintRunners(t *testing.T) {
	s, err := store.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	p := &store.Project{Name: "Gearbox"}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatal(err)
	}
	task := &store.Task{ProjectID: p.ID, Name: "Mill housing", EstimatedHours: 4}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	op := &store.Operator{FullName: "Ana Kovac", Email: "ana@shop.test", Active: true, CapacityHours: 40}
	if err := s.CreateOperator(ctx, op); err != nil {
		t.Fatal(err)
	}
	start := time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC)
	err = s.InTx(ctx, func(tx *store.Tx) error {
		return tx.InsertEntry(ctx, &store.TimeEntry{
			TaskID: task.ID, OperatorID: op.ID, StartTime: start, EndTime: start.Add(time.Hour), Duration: 3600,
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	day := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)

	csvPath := DefaultPath(dir, FormatCSV, day)
	if filepath.Base(csvPath) != "teamworkflow-entries-2026-01-07.csv" {
		t.Fatalf("unexpected csv name %q", csvPath)
	}
	if err := Entries(ctx, s, FormatCSV, store.EntryFilter{}, csvPath); err != nil {
		t.Fatalf("Entries csv: %v", err)
	}
	if records := readCSV(t, csvPath); len(records) != 2 || records[1][3] != "Ana Kovac" {
		t.Fatalf("unexpected csv: %v", records)
	}

	if err := Entries(ctx, s, FormatJSON, store.EntryFilter{}, DefaultPath(dir, FormatJSON, day)); err != nil {
		t.Fatalf("Entries json: %v", err)
	}
	if err := Entries(ctx, s, FormatSprint, store.EntryFilter{}, filepath.Join(dir, "x")); err == nil {
		t.Fatal("expected error for sprint format on entries")
	}

	planner := sprint.New(s, sprint.WithClock(func() time.Time { return day }))
	if _, _, err := planner.AddTaskToSprint(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	sprintPath := DefaultPath(dir, FormatSprint, day)
	if err := Sprint(ctx, s, planner, sprintPath); err != nil {
		t.Fatalf("Sprint: %v", err)
	}
	records := readCSV(t, sprintPath)
	if got := strings.Join(records[0], ","); got != "Sprint,2026-01-05,2026-01-19" {
		t.Fatalf("sprint row = %q", got)
	}
	if records[len(records)-1][2] != "Mill housing" {
		t.Fatalf("expected sprint task row, got %v", records[len(records)-1])
	}
}
