package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sadopc/teamworkflow/internal/store"
)

func newUserCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users and roles"}

	var (
		name       string
		role       string
		operatorID int64
	)
	// Local shell access is trusted, so any role may be created here,
	// including the first admin.
	add := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := store.User{Username: args[0], DisplayName: name, Role: store.Role(role)}
			if operatorID > 0 {
				u.OperatorID = &operatorID
			}
			if err := e.store.CreateUser(cmd.Context(), &u); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %d (%s)\n", u.ID, u.Role)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&role, "role", string(store.RoleGuest), "admin, operator or guest")
	add.Flags().Int64Var(&operatorID, "operator", 0, "linked operator ID")

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := e.store.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "USERNAME", "NAME", "ROLE")
			for _, u := range users {
				row(tw, u.ID, u.Username, u.DisplayName, u.Role)
			}
			return tw.Flush()
		},
	}

	var actor int64
	setRole := &cobra.Command{
		Use:   "role USER_ID ROLE",
		Short: "Change a user's role; demoting an admin needs a second admin's approval",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("USER_ID", args[0])
			if err != nil {
				return err
			}
			if err := e.roles.ChangeRole(cmd.Context(), actor, id, store.Role(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %d is now %s\n", id, args[1])
			return nil
		},
	}
	setRole.Flags().Int64Var(&actor, "actor", 0, "acting admin user ID")
	setRole.MarkFlagRequired("actor")

	cmd.AddCommand(add, list, setRole)
	return cmd
}

func newDemotionCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "demotion", Short: "Request and decide admin demotions"}

	var actor int64
	var reason string

	request := &cobra.Command{
		Use:   "request USER_ID",
		Short: "Ask for an admin to be demoted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("USER_ID", args[0])
			if err != nil {
				return err
			}
			d, err := e.roles.RequestDemotion(cmd.Context(), actor, id, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Demotion request %s pending\n", d.ID)
			return nil
		},
	}
	request.Flags().StringVar(&reason, "reason", "", "why the admin should step down")

	approve := &cobra.Command{
		Use:   "approve REQUEST_ID",
		Short: "Approve a pending demotion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := e.roles.ApproveDemotion(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Demotion %s approved, user %d demoted\n", d.ID, d.TargetUserID)
			return nil
		},
	}

	reject := &cobra.Command{
		Use:   "reject REQUEST_ID",
		Short: "Reject a pending demotion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := e.roles.RejectDemotion(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Demotion %s rejected\n", d.ID)
			return nil
		},
	}

	for _, c := range []*cobra.Command{request, approve, reject} {
		c.Flags().Int64Var(&actor, "actor", 0, "acting admin user ID")
		c.MarkFlagRequired("actor")
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List pending demotions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pending, err := e.roles.PendingDemotions(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "TARGET", "REQUESTED BY", "REASON", "CREATED")
			for _, d := range pending {
				row(tw, d.ID, d.TargetUserID, d.RequestedBy, d.Reason, d.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(request, approve, reject, list)
	return cmd
}
