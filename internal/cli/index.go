package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ippclub/crates-mcp/internal/service"
	"github.com/spf13/cobra"
)

func (a *app) newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the local crates.io git index",
	}
	cmd.AddCommand(a.newIndexUpdateCmd())
	cmd.AddCommand(a.newIndexStatusCmd())
	return cmd
}

func (a *app) newIndexUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Clone or fetch the crates.io git index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			if path, _ := cmd.Flags().GetString("path"); path != "" {
				cfg.Index.Path = path
			}

			st := openJournal(cfg, log)
			if st != nil {
				defer st.Close()
			}

			svc := service.NewIndexService(cfg, log, st)
			hash, err := svc.Update(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return exitError(ExitFailure, "%v", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "index at %s updated to %s\n", svc.Path(), hash)
			return nil
		},
	}
	cmd.Flags().String("path", "", "Index location (default: index.path or cargo's clone)")
	return cmd
}

func (a *app) newIndexStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Open the index the way serve does and report the outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			st := openJournal(cfg, log)
			if st != nil {
				defer st.Close()
			}

			report, err := service.NewIndexService(cfg, log, st).Status(cmd.Context(), uuid.NewString())
			if err != nil {
				return exitError(ExitFailure, "%v", err)
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			fmt.Fprintf(out, "state: %s\n", report.State)
			fmt.Fprintf(out, "path:  %s\n", report.Path)
			fmt.Fprintf(out, "trace: %s\n", strings.Join(report.Trace, " -> "))
			if report.Error != "" {
				fmt.Fprintf(out, "error: %s\n", report.Error)
			}
			if report.LastEvent != nil {
				fmt.Fprintf(out, "last:  %s at %s\n", report.LastEvent.State, report.LastEvent.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	return cmd
}
