package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/teamworkflow/internal/store"
	"github.com/sadopc/teamworkflow/internal/tracker"
)

func newWorkCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Track operator time on tasks",
	}

	var notes string
	pair := func(args []string) (int64, int64, error) {
		taskID, err := parseID("TASK_ID", args[0])
		if err != nil {
			return 0, 0, err
		}
		opID, err := parseID("OPERATOR_ID", args[1])
		if err != nil {
			return 0, 0, err
		}
		return taskID, opID, nil
	}
	sessionCmd := func(use, short, verb string, fn func(context.Context, int64, int64) (*store.WorkSession, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " TASK_ID OPERATOR_ID",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				taskID, opID, err := pair(args)
				if err != nil {
					return err
				}
				ws, err := fn(cmd.Context(), taskID, opID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s session %s (task %d, operator %d)\n", verb, ws.ID, ws.TaskID, ws.OperatorID)
				return nil
			},
		}
	}

	start := sessionCmd("start", "Start a work session", "Started", func(ctx context.Context, t, o int64) (*store.WorkSession, error) {
		return e.tracker.Start(ctx, t, o, notes)
	})
	start.Flags().StringVar(&notes, "notes", "", "session notes")

	pause := sessionCmd("pause", "Pause a running session", "Paused", func(ctx context.Context, t, o int64) (*store.WorkSession, error) {
		return e.tracker.Pause(ctx, t, o)
	})
	resume := sessionCmd("resume", "Resume a paused session", "Resumed", func(ctx context.Context, t, o int64) (*store.WorkSession, error) {
		return e.tracker.Resume(ctx, t, o)
	})

	finish := &cobra.Command{
		Use:   "finish TASK_ID OPERATOR_ID",
		Short: "Finish a session and record a time entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, opID, err := pair(args)
			if err != nil {
				return err
			}
			entry, err := e.tracker.Finish(cmd.Context(), taskID, opID, notes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s on task %d\n", dur(entry.Duration), entry.TaskID)
			return nil
		},
	}
	finish.Flags().StringVar(&notes, "notes", "", "notes appended to the session's")

	list := &cobra.Command{
		Use:   "list",
		Short: "List open sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := e.tracker.ActiveSessions(cmd.Context())
			if err != nil {
				return err
			}
			now := e.tracker.Now()
			tw := newTable(cmd.OutOrStdout(), "TASK", "OPERATOR", "STATE", "ELAPSED", "STARTED")
			for i := range sessions {
				ws := &sessions[i]
				row(tw, ws.TaskID, ws.OperatorID, ws.State, tracker.Elapsed(ws, now).Truncate(time.Second), ws.StartedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}

	variance := &cobra.Command{
		Use:   "variance TASK_ID",
		Short: "Compare a task's estimate with recorded time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("TASK_ID", args[0])
			if err != nil {
				return err
			}
			v, err := e.tracker.Variance(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d: estimated %dm, actual %dm, variance %+dm (%.2f%%) %s\n",
				v.TaskID, v.EstimatedMinutes, v.ActualMinutes, v.VarianceMinutes, v.VariancePercent, v.Status)
			return nil
		},
	}

	cmd.AddCommand(start, pause, resume, finish, list, variance)
	return cmd
}
