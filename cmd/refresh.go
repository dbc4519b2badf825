package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/scholarship-finder/internal/coordinator"
	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

// newRefreshCmd creates the 'refresh' subcommand and its run inspection children.
func newRefreshCmd() *cobra.Command {
	var goal, country, user string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh pass in the foreground",
		Long: `Fetches every catalog site for the scope, plus the user's source hints,
skipping sources that are not yet due. The finished run is printed as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			g, err := opportunity.ParseGoal(goal)
			if err != nil {
				return err
			}
			run, err := appInstance.GetRefresher().Refresh(cmd.Context(), coordinator.Scope{
				Goal:    g,
				Country: country,
				UserID:  user,
			})
			if err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			if err := writeJSON(cmd.OutOrStdout(), run); err != nil {
				return err
			}
			if run.Status == opportunity.RunFailed {
				return fmt.Errorf("refresh %s failed: %s", run.ID, run.Error)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&goal, "goal", "", "goal type to refresh")
	f.StringVar(&country, "country", "", "country to refresh")
	f.StringVar(&user, "user", "", "user whose private source hints are included")

	cmd.AddCommand(newRefreshRunsCmd(), newRefreshShowCmd())
	return cmd
}

func newRefreshRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent refresh runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := appInstance.GetRefresher().Runs(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func newRefreshShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one refresh run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			run, err := appInstance.GetRefresher().Run(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get run %s: %w", args[0], err)
			}
			return writeJSON(cmd.OutOrStdout(), run)
		},
	}
}
