package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sadopc/teamworkflow/internal/mcp"
	"github.com/sadopc/teamworkflow/internal/server"
	"github.com/sadopc/teamworkflow/internal/tui"
)

func runTUI(e *env) error {
	app := tui.NewApp(e.store, e.planner, e.tracker)
	_, err := tea.NewProgram(app, tea.WithAltScreen()).Run()
	return err
}

func newServeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.NewServer(e.store, e.planner, e.tracker, e.roles, e.log)
			errc := make(chan error, 1)
			go func() { errc <- srv.Start(e.cfg.Addr) }()

			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			e.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&e.cfg.Addr, "addr", e.cfg.Addr, "listen address")
	return cmd
}

func newMCPCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve sprint and time-tracking tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e.log.Info("mcp server starting on stdio")
			return mcp.Serve(mcp.NewServer(e.planner, e.tracker))
		},
	}
}
