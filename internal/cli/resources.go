package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/teamworkflow/internal/store"
)

// capacityFor returns the --capacity flag when given, else the default_capacity_hours setting.
func (e *env) capacityFor(ctx context.Context, cmd *cobra.Command, flag float64) (float64, error) {
	if cmd.Flags().Changed("capacity") {
		return flag, nil
	}
	return e.store.GetFloatSetting(ctx, store.SettingDefaultCapacityHours, 40)
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return nil, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return &t, nil
}

func newProjectCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage projects"}

	var client, deadline string
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDay(deadline)
			if err != nil {
				return err
			}
			p := store.Project{Name: args[0], Client: client, Deadline: d}
			if err := e.store.CreateProject(cmd.Context(), &p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %d\n", p.ID)
			return nil
		},
	}
	add.Flags().StringVar(&client, "client", "", "client name")
	add.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")

	var archived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := e.store.ListProjects(cmd.Context(), archived)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "NAME", "CLIENT", "STATUS", "DEADLINE")
			for _, p := range projects {
				dl := "-"
				if p.Deadline != nil {
					dl = day(*p.Deadline)
				}
				row(tw, p.ID, p.Name, p.Client, p.Status, dl)
			}
			return tw.Flush()
		},
	}
	list.Flags().BoolVar(&archived, "archived", false, "include archived projects")

	cmd.AddCommand(add, list)
	return cmd
}

func newTaskCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage tasks"}

	var (
		projectID int64
		machineID int64
		operators []int64
		estimate  float64
		priority  string
		deadline  string
	)
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := parseDay(deadline)
			if err != nil {
				return err
			}
			t := store.Task{
				ProjectID:      projectID,
				Name:           args[0],
				Priority:       store.Priority(priority),
				EstimatedHours: estimate,
				Deadline:       d,
			}
			if machineID > 0 {
				t.MachineID = &machineID
			}
			if err := e.store.CreateTask(ctx, &t); err != nil {
				return err
			}
			for _, op := range operators {
				if err := e.store.AssignOperator(ctx, t.ID, op); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %d\n", t.ID)
			return nil
		},
	}
	add.Flags().Int64Var(&projectID, "project", 0, "project ID")
	add.Flags().Int64Var(&machineID, "machine", 0, "machine ID")
	add.Flags().Int64SliceVar(&operators, "operator", nil, "assigned operator ID (repeatable)")
	add.Flags().Float64Var(&estimate, "hours", 0, "estimated hours")
	add.Flags().StringVar(&priority, "priority", string(store.PriorityMedium), "low, medium, high or critical")
	add.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	add.MarkFlagRequired("project")

	var backlog bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var tasks []store.Task
			var err error
			if backlog {
				tasks, err = e.planner.Backlog(ctx)
			} else {
				var f store.TaskFilter
				if cmd.Flags().Changed("project") {
					f.ProjectID = &projectID
				}
				tasks, err = e.store.ListTasks(ctx, f)
			}
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "PROJECT", "TASK", "PRIORITY", "STATUS", "EST", "SPRINT")
			for _, t := range tasks {
				sprint := ""
				if t.InSprint {
					sprint = fmt.Sprintf("#%d", t.SprintOrder)
				}
				row(tw, t.ID, t.ProjectID, t.Name, t.Priority, t.Status, hours(t.EstimatedHours), sprint)
			}
			return tw.Flush()
		},
	}
	list.Flags().Int64Var(&projectID, "project", 0, "only tasks of this project")
	list.Flags().BoolVar(&backlog, "backlog", false, "show the sprint backlog in assignment order")

	status := &cobra.Command{
		Use:   "status TASK_ID STATUS",
		Short: "Move a task to open, in_progress, finished or canceled",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("TASK_ID", args[0])
			if err != nil {
				return err
			}
			if err := e.store.UpdateTaskStatus(cmd.Context(), id, store.TaskStatus(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d is %s\n", id, args[1])
			return nil
		},
	}

	cmd.AddCommand(add, list, status)
	return cmd
}

func newOperatorCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "operator", Short: "Manage operators"}

	var email string
	var capacity float64
	add := &cobra.Command{
		Use:   "add FULL_NAME",
		Short: "Add an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := e.capacityFor(ctx, cmd, capacity)
			if err != nil {
				return err
			}
			o := store.Operator{FullName: args[0], Email: email, Active: true, CapacityHours: h}
			if err := e.store.CreateOperator(ctx, &o); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created operator %d\n", o.ID)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "email address")
	add.Flags().Float64Var(&capacity, "capacity", 0, "sprint capacity in hours (default from settings)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List operators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := e.store.ListOperators(cmd.Context(), false)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "NAME", "AVAILABILITY", "ACTIVE", "CAPACITY")
			for _, o := range ops {
				row(tw, o.ID, o.FullName, o.Availability, o.Active, hours(o.CapacityHours))
			}
			return tw.Flush()
		},
	}

	availability := &cobra.Command{
		Use:   "availability OPERATOR_ID at_work|on_vacation|sick_leave",
		Short: "Set whether an operator counts toward capacity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("OPERATOR_ID", args[0])
			if err != nil {
				return err
			}
			if err := e.store.SetOperatorAvailability(cmd.Context(), id, store.Availability(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Operator %d is %s\n", id, args[1])
			return nil
		},
	}

	cmd.AddCommand(add, list, availability)
	return cmd
}

func newMachineCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "machine", Short: "Manage machines"}

	var model string
	var capacity float64
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := e.capacityFor(ctx, cmd, capacity)
			if err != nil {
				return err
			}
			m := store.Machine{Name: args[0], Model: model, Active: true, CapacityHours: h}
			if err := e.store.CreateMachine(ctx, &m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created machine %d\n", m.ID)
			return nil
		},
	}
	add.Flags().StringVar(&model, "model", "", "machine model")
	add.Flags().Float64Var(&capacity, "capacity", 0, "sprint capacity in hours (default from settings)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List machines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			machines, err := e.store.ListMachines(cmd.Context(), false)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "NAME", "MODEL", "ACTIVE", "CAPACITY")
			for _, m := range machines {
				row(tw, m.ID, m.Name, m.Model, m.Active, hours(m.CapacityHours))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}
