package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sadopc/teamworkflow/internal/sprint"
	"github.com/sadopc/teamworkflow/internal/tracker"
)

const (
	serverName    = "TeamWorkFlow"
	serverVersion = "0.1.0"
)

// NewServer creates a new MCP server exposing sprint planning and time tracking.
func NewServer(planner *sprint.Planner, tr *tracker.Tracker) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion)

	// Sprint planning
	s.AddTool(mcp.NewTool("sprint_capacity",
		mcp.WithDescription("Show operator and machine capacity for the current sprint, with per-resource load."),
	), sprintCapacityHandler(planner))

	s.AddTool(mcp.NewTool("auto_assign_sprint",
		mcp.WithDescription("Fill the sprint from the backlog by priority and deadline while capacity allows."),
		mcp.WithNumber("max_tasks", mcp.Description("Maximum tasks to add (defaults to the auto_assign_limit setting)")),
	), autoAssignHandler(planner))

	s.AddTool(mcp.NewTool("validate_task_for_sprint",
		mcp.WithDescription("Check whether a task can be added to the sprint and explain why not."),
		mcp.WithNumber("task_id", mcp.Description("Task ID"), mcp.Required()),
	), validateTaskHandler(planner))

	s.AddTool(mcp.NewTool("add_task_to_sprint",
		mcp.WithDescription("Add a task to the end of the sprint if it passes validation."),
		mcp.WithNumber("task_id", mcp.Description("Task ID"), mcp.Required()),
	), addTaskHandler(planner))

	s.AddTool(mcp.NewTool("remove_task_from_sprint",
		mcp.WithDescription("Return a sprint task to the backlog."),
		mcp.WithNumber("task_id", mcp.Description("Task ID"), mcp.Required()),
	), removeTaskHandler(planner))

	s.AddTool(mcp.NewTool("list_sprint_tasks",
		mcp.WithDescription("List sprint tasks in sprint order."),
	), listSprintTasksHandler(planner))

	// Time tracking
	s.AddTool(mcp.NewTool("start_work",
		mcp.WithDescription("Start a work session for an operator on a task."),
		mcp.WithNumber("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithNumber("operator_id", mcp.Description("Operator ID"), mcp.Required()),
		mcp.WithString("notes", mcp.Description("Optional notes")),
	), startWorkHandler(tr))

	s.AddTool(mcp.NewTool("pause_work",
		mcp.WithDescription("Pause an active work session."),
		mcp.WithNumber("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithNumber("operator_id", mcp.Description("Operator ID"), mcp.Required()),
	), pauseWorkHandler(tr))

	s.AddTool(mcp.NewTool("resume_work",
		mcp.WithDescription("Resume a paused work session."),
		mcp.WithNumber("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithNumber("operator_id", mcp.Description("Operator ID"), mcp.Required()),
	), resumeWorkHandler(tr))

	s.AddTool(mcp.NewTool("finish_work",
		mcp.WithDescription("Finish a work session and record a time entry."),
		mcp.WithNumber("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithNumber("operator_id", mcp.Description("Operator ID"), mcp.Required()),
		mcp.WithString("notes", mcp.Description("Notes appended to the session notes")),
	), finishWorkHandler(tr))

	s.AddTool(mcp.NewTool("list_active_sessions",
		mcp.WithDescription("List open work sessions with their active time."),
	), listSessionsHandler(tr))

	s.AddTool(mcp.NewTool("task_variance",
		mcp.WithDescription("Compare a task's estimate with the time recorded against it."),
		mcp.WithNumber("task_id", mcp.Description("Task ID"), mcp.Required()),
	), varianceHandler(tr))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func idArg(request mcp.CallToolRequest, key string) (int64, error) {
	id := int64(mcp.ParseInt(request, key, 0))
	if id <= 0 {
		return 0, fmt.Errorf("%s is required", key)
	}
	return id, nil
}

// ==================== Sprint ====================

func sprintCapacityHandler(planner *sprint.Planner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		c, err := planner.GetSprintCapacity(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		operators, err := planner.OperatorCapacities(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		machines, err := planner.MachineCapacities(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{
			"capacity":  c,
			"operators": operators,
			"machines":  machines,
		})
	}
}

func autoAssignHandler(planner *sprint.Planner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, err := planner.AutoAssignTasksToSprint(ctx, mcp.ParseInt(request, "max_tasks", 0))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Assigned %d task(s) to the sprint.", n)), nil
	}
}

func validateTaskHandler(planner *sprint.Planner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := idArg(request, "task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ok, reason, err := planner.ValidateTaskForSprint(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"can_add": ok, "reason": reason})
	}
}

func addTaskHandler(planner *sprint.Planner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := idArg(request, "task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ok, reason, err := planner.AddTaskToSprint(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !ok {
			return mcp.NewToolResultError(reason), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task %d added to the sprint.", id)), nil
	}
}

func removeTaskHandler(planner *sprint.Planner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := idArg(request, "task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ok, reason, err := planner.RemoveTaskFromSprint(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !ok {
			return mcp.NewToolResultError(reason), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Task %d returned to the backlog.", id)), nil
	}
}

func listSprintTasksHandler(planner *sprint.Planner) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tasks, err := planner.SprintTasks(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"tasks": tasks})
	}
}

// ==================== Time tracking ====================

func sessionArgs(request mcp.CallToolRequest) (int64, int64, error) {
	taskID, err := idArg(request, "task_id")
	if err != nil {
		return 0, 0, err
	}
	operatorID, err := idArg(request, "operator_id")
	if err != nil {
		return 0, 0, err
	}
	return taskID, operatorID, nil
}

func startWorkHandler(tr *tracker.Tracker) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, operatorID, err := sessionArgs(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ws, err := tr.Start(ctx, taskID, operatorID, mcp.ParseString(request, "notes", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(ws)
	}
}

func pauseWorkHandler(tr *tracker.Tracker) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, operatorID, err := sessionArgs(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ws, err := tr.Pause(ctx, taskID, operatorID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(ws)
	}
}

func resumeWorkHandler(tr *tracker.Tracker) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, operatorID, err := sessionArgs(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ws, err := tr.Resume(ctx, taskID, operatorID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(ws)
	}
}

func finishWorkHandler(tr *tracker.Tracker) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, operatorID, err := sessionArgs(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		entry, err := tr.Finish(ctx, taskID, operatorID, mcp.ParseString(request, "notes", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(entry)
	}
}

func listSessionsHandler(tr *tracker.Tracker) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessions, err := tr.ActiveSessions(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		now := tr.Now()
		out := make([]map[string]any, 0, len(sessions))
		for i := range sessions {
			ws := &sessions[i]
			out = append(out, map[string]any{
				"task_id":      ws.TaskID,
				"operator_id":  ws.OperatorID,
				"state":        ws.State,
				"started_at":   ws.StartedAt,
				"elapsed_secs": int64(tracker.Elapsed(ws, now) / time.Second),
				"notes":        ws.Notes,
			})
		}
		return jsonResult(map[string]any{"sessions": out})
	}
}

func varianceHandler(tr *tracker.Tracker) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := idArg(request, "task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		v, err := tr.Variance(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}
