package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sadopc/teamworkflow/internal/sprint"
	"github.com/sadopc/teamworkflow/internal/store"
	"github.com/sadopc/teamworkflow/internal/tracker"
)

type fixture struct {
	store    *store.Store
	server   *server.MCPServer
	now      time.Time
	task     *store.Task
	operator *store.Operator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewMemory()
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	f := &fixture{store: st, now: time.Date(2026, 1, 7, 8, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.server = NewServer(sprint.New(st, sprint.WithClock(clock)), tracker.New(st, tracker.WithClock(clock)))

	ctx := context.Background()
	p := &store.Project{Name: "Pump housings"}
	if err := st.CreateProject(ctx, p); err != nil {
		t.Fatal(err)
	}
	f.operator = &store.Operator{FullName: "Ivo Maric", Email: "ivo@shop.test", Active: true, CapacityHours: 40}
	if err := st.CreateOperator(ctx, f.operator); err != nil {
		t.Fatal(err)
	}
	f.task = &store.Task{ProjectID: p.ID, Name: "Bore flange", EstimatedHours: 2, Priority: store.PriorityHigh}
	if err := st.CreateTask(ctx, f.task); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) call(t *testing.T, name string, args map[string]any) (string, bool) {
	t.Helper()
	tool := f.server.GetTool(name)
	if tool == nil {
		t.Fatalf("Tool %s not found", name)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := tool.Handler(context.Background(), req)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	return result.Content[0].(mcp.TextContent).Text, result.IsError
}

func TestToolsRegistered(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{
		"sprint_capacity", "auto_assign_sprint", "validate_task_for_sprint",
		"add_task_to_sprint", "remove_task_from_sprint", "list_sprint_tasks",
		"start_work", "pause_work", "resume_work", "finish_work",
		"list_active_sessions", "task_variance",
	} {
		if f.server.GetTool(name) == nil {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestSprintTools(t *testing.T) {
	f := newFixture(t)
	taskArgs := map[string]any{"task_id": float64(f.task.ID)}

	t.Run("validate_task_for_sprint", func(t *testing.T) {
		text, isErr := f.call(t, "validate_task_for_sprint", taskArgs)
		if isErr {
			t.Fatalf("Tool returned error: %s", text)
		}
		var resp struct {
			CanAdd bool   `json:"can_add"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal([]byte(text), &resp); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if !resp.CanAdd {
			t.Errorf("expected task to fit, got reason %q", resp.Reason)
		}
	})

	t.Run("auto_assign_sprint", func(t *testing.T) {
		text, isErr := f.call(t, "auto_assign_sprint", map[string]any{"max_tasks": 3.0})
		if isErr || text != "Assigned 1 task(s) to the sprint." {
			t.Fatalf("unexpected result: %s", text)
		}
	})

	t.Run("add_task_to_sprint refuses duplicates", func(t *testing.T) {
		text, isErr := f.call(t, "add_task_to_sprint", taskArgs)
		if !isErr || text != "Task is already in the sprint." {
			t.Fatalf("expected refusal, got %q (error=%v)", text, isErr)
		}
	})

	t.Run("list_sprint_tasks", func(t *testing.T) {
		text, _ := f.call(t, "list_sprint_tasks", map[string]any{})
		var resp struct {
			Tasks []store.Task `json:"tasks"`
		}
		if err := json.Unmarshal([]byte(text), &resp); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if len(resp.Tasks) != 1 || resp.Tasks[0].SprintOrder != 1 {
			t.Errorf("unexpected sprint: %+v", resp.Tasks)
		}
	})

	t.Run("sprint_capacity", func(t *testing.T) {
		text, isErr := f.call(t, "sprint_capacity", map[string]any{})
		if isErr {
			t.Fatalf("Tool returned error: %s", text)
		}
		var resp struct {
			Capacity  sprint.Capacity           `json:"capacity"`
			Operators []sprint.ResourceCapacity `json:"operators"`
		}
		if err := json.Unmarshal([]byte(text), &resp); err != nil {
			t.Fatalf("Failed to unmarshal response: %v", err)
		}
		if resp.Capacity.RequiredOperatorHours != 2 || resp.Capacity.TotalOperatorHours != 40 {
			t.Errorf("unexpected capacity: %+v", resp.Capacity)
		}
		if len(resp.Operators) != 1 {
			t.Errorf("expected 1 operator record, got %d", len(resp.Operators))
		}
	})

	t.Run("remove_task_from_sprint", func(t *testing.T) {
		if text, isErr := f.call(t, "remove_task_from_sprint", taskArgs); isErr {
			t.Fatalf("Tool returned error: %s", text)
		}
		if _, isErr := f.call(t, "remove_task_from_sprint", taskArgs); !isErr {
			t.Fatal("expected second removal to fail")
		}
	})

	t.Run("missing task id", func(t *testing.T) {
		text, isErr := f.call(t, "validate_task_for_sprint", map[string]any{})
		if !isErr || !strings.Contains(text, "task_id") {
			t.Fatalf("expected task_id error, got %q", text)
		}
	})
}

func TestWorkSessionTools(t *testing.T) {
	f := newFixture(t)
	args := map[string]any{"task_id": float64(f.task.ID), "operator_id": float64(f.operator.ID)}

	if text, isErr := f.call(t, "start_work", args); isErr {
		t.Fatalf("start_work failed: %s", text)
	}
	if _, isErr := f.call(t, "start_work", args); !isErr {
		t.Fatal("expected second start to fail")
	}

	f.now = f.now.Add(90 * time.Minute)
	if text, isErr := f.call(t, "pause_work", args); isErr {
		t.Fatalf("pause_work failed: %s", text)
	}

	text, _ := f.call(t, "list_active_sessions", map[string]any{})
	var resp struct {
		Sessions []struct {
			State       string `json:"state"`
			ElapsedSecs int64  `json:"elapsed_secs"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(resp.Sessions) != 1 || resp.Sessions[0].State != "paused" || resp.Sessions[0].ElapsedSecs != 5400 {
		t.Fatalf("unexpected sessions: %+v", resp.Sessions)
	}

	f.now = f.now.Add(time.Hour)
	if text, isErr := f.call(t, "resume_work", args); isErr {
		t.Fatalf("resume_work failed: %s", text)
	}
	f.now = f.now.Add(60 * time.Minute)
	text, isErr := f.call(t, "finish_work", args)
	if isErr {
		t.Fatalf("finish_work failed: %s", text)
	}
	var entry store.TimeEntry
	if err := json.Unmarshal([]byte(text), &entry); err != nil {
		t.Fatalf("Failed to unmarshal entry: %v", err)
	}
	if entry.Duration != 9000 {
		t.Errorf("expected 9000s, got %d", entry.Duration)
	}

	text, _ = f.call(t, "task_variance", map[string]any{"task_id": float64(f.task.ID)})
	var v tracker.Variance
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		t.Fatalf("Failed to unmarshal variance: %v", err)
	}
	if v.EstimatedMinutes != 120 || v.ActualMinutes != 150 || v.Status != tracker.OverEstimate {
		t.Errorf("unexpected variance: %+v", v)
	}
}
