package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// newSourcesCmd groups the source hint commands.
func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage user supplied source hints",
	}
	cmd.AddCommand(newSourcesAddCmd(), newSourcesListCmd())
	return cmd
}

func newSourcesAddCmd() *cobra.Command {
	var user string
	var private bool
	cmd := &cobra.Command{
		Use:   "add URL",
		Short: "Suggest a page for future refresh passes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			added, err := appInstance.GetSearcher().AddSourceHint(cmd.Context(), args[0], user, !private)
			if err != nil {
				return fmt.Errorf("add source: %w", err)
			}
			if added {
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already known; popularity bumped\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "cli", "user id recorded as the submitter")
	cmd.Flags().BoolVar(&private, "private", false, "only use the hint for this user's refreshes")
	return cmd
}

func newSourcesListCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the public hints and the user's private ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			hints, err := appInstance.GetSearcher().SourceHints(cmd.Context(), user)
			if err != nil {
				return fmt.Errorf("list sources: %w", err)
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Popularity", "Public", "Added by", "URL"})
			for _, h := range hints {
				t.AppendRow(table.Row{h.Popularity, h.IsPublic, h.AddedBy, h.URL})
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "cli", "user id whose private hints are included")
	return cmd
}
