package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/scholarship-finder/internal/catalog"
)

// newSeedCmd creates the 'seed' subcommand.
func newSeedCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the built-in starter records",
		Long:  `Writes the curated starter records when the cache is empty, or always with --force.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := catalog.Populate(cmd.Context(), appInstance.GetStore(), force)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "cache already populated; nothing written")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d records\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rewrite the starter records even when the cache has data")
	return cmd
}
