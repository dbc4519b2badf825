package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newPruneCmd creates the 'prune' subcommand.
func newPruneCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Deactivate records that have not been verified recently",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cutoff := time.Now().UTC().Add(-olderThan)
			n, err := appInstance.GetStore().Prune(cmd.Context(), cutoff)
			if err != nil {
				return fmt.Errorf("prune: %w", err)
			}
			appInstance.GetLogger().Info("pruned stale records", zap.Int("records", n), zap.Time("cutoff", cutoff))
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %d records\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "deactivate records last verified before now minus this age")
	return cmd
}
