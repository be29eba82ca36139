// Package cli wires the teamworkflow command tree.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/sadopc/teamworkflow/internal/config"
	"github.com/sadopc/teamworkflow/internal/roles"
	"github.com/sadopc/teamworkflow/internal/sprint"
	"github.com/sadopc/teamworkflow/internal/store"
	"github.com/sadopc/teamworkflow/internal/tracker"
)

// env holds what a command needs once the database is open.
type env struct {
	cfg *config.Config

	log     *log.Logger
	store   *store.Store
	planner *sprint.Planner
	tracker *tracker.Tracker
	roles   *roles.Manager
}

// open connects to the database and builds the services. Commands that own
// the terminal pass quiet so nothing is logged over the screen.
func (e *env) open(stderr io.Writer, quiet bool) error {
	level, err := log.ParseLevel(e.cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	e.log = log.NewWithOptions(stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          config.AppName,
		Level:           level,
	})
	if quiet {
		e.log = log.New(io.Discard)
	}

	if e.cfg.DBPath != ":memory:" {
		if err := e.cfg.EnsureDir(); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	s, err := store.New(e.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	e.log.Debug("database open", "path", e.cfg.DBPath)

	e.store = s
	e.planner = sprint.New(s, sprint.WithLogger(e.log))
	e.tracker = tracker.New(s, tracker.WithLogger(e.log))
	e.roles = roles.New(s, roles.WithLogger(e.log))
	return nil
}

func (e *env) close() {
	if e.store != nil {
		e.store.Close()
		e.store = nil
	}
}

// NewRootCmd builds the command tree. Without a subcommand it starts the TUI.
func NewRootCmd() *cobra.Command {
	e := &env{cfg: config.Load()}

	root := &cobra.Command{
		Use:           config.AppName,
		Short:         "Shop-floor task, sprint and time tracking",
		Long:          `teamworkflow plans production sprints against operator and machine capacity and tracks the time operators spend on tasks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.open(cmd.ErrOrStderr(), cmd.Annotations["quiet"] == "true")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(e)
		},
		Annotations: map[string]string{"quiet": "true"},
	}

	root.PersistentFlags().StringVar(&e.cfg.DBPath, "db", e.cfg.DBPath, "SQLite database file (env "+config.EnvDB+")")
	root.PersistentFlags().StringVar(&e.cfg.LogLevel, "log-level", e.cfg.LogLevel, "debug, info, warn or error (env "+config.EnvLogLevel+")")

	root.AddCommand(
		newServeCmd(e),
		newMCPCmd(e),
		newExportCmd(e),
		newSprintCmd(e),
		newWorkCmd(e),
		newProjectCmd(e),
		newTaskCmd(e),
		newOperatorCmd(e),
		newMachineCmd(e),
		newUserCmd(e),
		newDemotionCmd(e),
	)
	return root
}

// Execute runs the command tree and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
