package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/teamworkflow/internal/export"
	"github.com/sadopc/teamworkflow/internal/store"
)

func newExportCmd(e *env) *cobra.Command {
	var (
		format     string
		out        string
		from, to   string
		operatorID int64
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write time entries (csv, json) or the sprint report (sprint) to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := export.Format(format)
			path := out
			if path == "" {
				dir, err := os.Getwd()
				if err != nil {
					return err
				}
				path = export.DefaultPath(dir, f, e.tracker.Now())
			}

			var err error
			if f == export.FormatSprint {
				err = export.Sprint(ctx, e.store, e.planner, path)
			} else {
				var filter store.EntryFilter
				if filter.From, err = parseDay(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				if filter.To, err = parseDay(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
				if filter.To != nil {
					end := filter.To.Add(24 * time.Hour)
					filter.To = &end
				}
				if operatorID > 0 {
					filter.OperatorID = &operatorID
				}
				err = export.Entries(ctx, e.store, f, filter, path)
			}
			if err != nil {
				return err
			}
			e.log.Info("export written", "format", f, "path", path)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(export.FormatCSV), "csv, json or sprint")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default in the current directory)")
	cmd.Flags().StringVar(&from, "from", "", "first day of entries (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day of entries (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&operatorID, "operator", 0, "only entries of this operator")
	return cmd
}
