package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSprintCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sprint",
		Short: "Plan the current sprint",
	}

	capacity := &cobra.Command{
		Use:   "capacity",
		Short: "Show sprint capacity per operator and machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			start, end, err := e.planner.Window(ctx)
			if err != nil {
				return err
			}
			c, err := e.planner.GetSprintCapacity(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sprint %s to %s: %s, %.1f%% utilized\n", day(start), day(end), c.Status, c.Utilization)
			fmt.Fprintf(out, "Operators %s / %s (%s)\n", hours(c.RequiredOperatorHours), hours(c.TotalOperatorHours), c.OperatorStatus)
			fmt.Fprintf(out, "Machines  %s / %s (%s)\n\n", hours(c.RequiredMachineHours), hours(c.TotalMachineHours), c.MachineStatus)

			ops, err := e.planner.OperatorCapacities(ctx)
			if err != nil {
				return err
			}
			machines, err := e.planner.MachineCapacities(ctx)
			if err != nil {
				return err
			}
			tw := newTable(out, "KIND", "ID", "NAME", "ASSIGNED", "AVAILABLE", "UTIL", "STATUS")
			for _, r := range ops {
				row(tw, "operator", r.ID, r.Name, hours(r.AssignedHours), hours(r.AvailableHours), fmt.Sprintf("%.0f%%", r.Utilization), r.Status)
			}
			for _, r := range machines {
				row(tw, "machine", r.ID, r.Name, hours(r.AssignedHours), hours(r.AvailableHours), fmt.Sprintf("%.0f%%", r.Utilization), r.Status)
			}
			return tw.Flush()
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List sprint tasks in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := e.planner.SprintTasks(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "#", "ID", "TASK", "PRIORITY", "STATUS", "EST", "ACTUAL")
			for _, t := range tasks {
				row(tw, t.SprintOrder, t.ID, t.Name, t.Priority, t.Status, hours(t.EstimatedHours), hours(t.ActualHours))
			}
			return tw.Flush()
		},
	}

	var maxTasks int
	autoAssign := &cobra.Command{
		Use:   "auto-assign",
		Short: "Fill the sprint from the backlog by priority and deadline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := e.planner.AutoAssignTasksToSprint(cmd.Context(), maxTasks)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Assigned %d task(s)\n", n)
			return nil
		},
	}
	autoAssign.Flags().IntVar(&maxTasks, "max", 0, "maximum tasks to add (0 uses the auto_assign_limit setting)")

	validate := &cobra.Command{
		Use:   "validate TASK_ID",
		Short: "Check whether a task fits in the sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("TASK_ID", args[0])
			if err != nil {
				return err
			}
			ok, reason, err := e.planner.ValidateTaskForSprint(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d does not fit: %s\n", id, reason)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d fits\n", id)
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add TASK_ID",
		Short: "Add a task to the sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("TASK_ID", args[0])
			if err != nil {
				return err
			}
			ok, reason, err := e.planner.AddTaskToSprint(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("task %d not added: %s", id, reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added task %d\n", id)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove TASK_ID",
		Short: "Take a task out of the sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("TASK_ID", args[0])
			if err != nil {
				return err
			}
			ok, reason, err := e.planner.RemoveTaskFromSprint(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("task %d not removed: %s", id, reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed task %d\n", id)
			return nil
		},
	}

	order := &cobra.Command{
		Use:   "order TASK_ID...",
		Short: "Set the sprint order; every sprint task must be listed once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, len(args))
			for i, a := range args {
				id, err := parseID("TASK_ID", a)
				if err != nil {
					return err
				}
				ids[i] = id
			}
			if err := e.planner.ReorderSprint(cmd.Context(), ids); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sprint reordered")
			return nil
		},
	}

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Show sprint progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.planner.Summary(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sprint %s to %s\n", day(s.Start), day(s.End))
			fmt.Fprintf(out, "Tasks: %d (open %d, in progress %d), finished in window: %d\n",
				s.TaskCount, s.Open, s.InProgress, s.FinishedInWindow)
			fmt.Fprintf(out, "Estimated %s, actual %s, remaining %s\n",
				hours(s.EstimatedHours), hours(s.ActualHours), hours(s.RemainingHours))
			return nil
		},
	}

	cmd.AddCommand(capacity, list, autoAssign, validate, add, remove, order, summary)
	return cmd
}
