package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/scholarship-finder/internal/coordinator"
	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

type searchOptions struct {
	goal     string
	country  string
	keywords string
	user     string
	limit    int
	asJSON   bool
	wait     bool
}

// newSearchCmd creates the 'search' subcommand.
func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search cached and live opportunities",
		Long: `Answers a search from the cache. When the cache is sparse a few reliable
sites are fetched on the spot and a background refresh is started for the scope.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.goal, "goal", "", "goal type: student, entrepreneur, researcher, artist or nonprofit")
	f.StringVar(&opts.country, "country", "", "country to search for")
	f.StringVar(&opts.keywords, "keywords", "", "comma separated keywords that must all match")
	f.StringVar(&opts.user, "user", "", "user id whose private source hints apply")
	f.IntVar(&opts.limit, "limit", opportunity.DefaultLimit, "maximum results")
	f.BoolVar(&opts.asJSON, "json", false, "print the full response as JSON")
	f.BoolVar(&opts.wait, "wait", false, "wait for a background refresh to finish before exiting")
	return cmd
}

func runSearch(cmd *cobra.Command, opts *searchOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	goal, err := opportunity.ParseGoal(opts.goal)
	if err != nil {
		return err
	}
	resp, err := appInstance.GetSearcher().Search(cmd.Context(), coordinator.Request{
		Goal:     goal,
		Keywords: opportunity.SplitKeywords(opts.keywords),
		Country:  opts.country,
		UserID:   opts.user,
		Limit:    opts.limit,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		err = writeJSON(out, resp)
	} else {
		err = writeRecords(out, resp)
	}
	if err != nil {
		return err
	}
	if resp.BackgroundStarted && opts.wait {
		appInstance.GetRefresher().Wait()
	}
	return nil
}

func writeRecords(w io.Writer, resp coordinator.Response) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Priority", "Title", "Country", "Deadline", "Source"})
	for _, r := range resp.Records {
		country := r.CountryName()
		if country == "" {
			country = "-"
		}
		t.AppendRow(table.Row{r.Priority, r.Title, country, r.Deadline, r.Source})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
	_, err := fmt.Fprintf(w, "%d results (%d cached, %d fresh, background refresh: %t)\n",
		len(resp.Records), resp.Cached, resp.Fresh, resp.BackgroundStarted)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
