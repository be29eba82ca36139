package export

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sadopc/teamworkflow/internal/sprint"
	"github.com/sadopc/teamworkflow/internal/store"
)

type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatSprint Format = "sprint"
)

var Formats = []Format{FormatCSV, FormatJSON, FormatSprint}

// DefaultPath names an export file in dir, stamped with the given day.
func DefaultPath(dir string, f Format, day time.Time) string {
	date := day.Format(time.DateOnly)
	switch f {
	case FormatJSON:
		return filepath.Join(dir, fmt.Sprintf("teamworkflow-entries-%s.json", date))
	case FormatSprint:
		return filepath.Join(dir, fmt.Sprintf("teamworkflow-sprint-%s.csv", date))
	}
	return filepath.Join(dir, fmt.Sprintf("teamworkflow-entries-%s.csv", date))
}

// Entries writes the time entries matching filter to path in the given format.
func Entries(ctx context.Context, s *store.Store, f Format, filter store.EntryFilter, path string) error {
	entries, err := s.ListEntries(ctx, filter)
	if err != nil {
		return err
	}
	names, err := LoadNames(ctx, s)
	if err != nil {
		return err
	}
	switch f {
	case FormatCSV:
		return ToCSV(entries, names, path)
	case FormatJSON:
		return ToJSON(entries, names, path)
	}
	return fmt.Errorf("unknown entry format %q", f)
}

// BuildSprintReport gathers the current sprint window, capacity and tasks.
func BuildSprintReport(ctx context.Context, p *sprint.Planner) (SprintReport, error) {
	start, end, err := p.Window(ctx)
	if err != nil {
		return SprintReport{}, err
	}
	c, err := p.GetSprintCapacity(ctx)
	if err != nil {
		return SprintReport{}, err
	}
	tasks, err := p.SprintTasks(ctx)
	if err != nil {
		return SprintReport{}, err
	}
	return SprintReport{Start: start, End: end, Capacity: c, Tasks: tasks}, nil
}

// Sprint writes the sprint report CSV for the planner's current sprint.
func Sprint(ctx context.Context, s *store.Store, p *sprint.Planner, path string) error {
	r, err := BuildSprintReport(ctx, p)
	if err != nil {
		return err
	}
	names, err := LoadNames(ctx, s)
	if err != nil {
		return err
	}
	return SprintReportCSV(r, names, path)
}
