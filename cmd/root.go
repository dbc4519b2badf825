// Package cmd defines and implements the CLI commands for the scholarship-finder executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholarship-finder/internal/app"
	"github.com/JakeFAU/scholarship-finder/internal/config"
	"github.com/JakeFAU/scholarship-finder/internal/coordinator"
	"github.com/JakeFAU/scholarship-finder/internal/logging"
	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Refresher runs background passes and reports on them.
type Refresher interface {
	Trigger(scope coordinator.Scope) bool
	Refresh(ctx context.Context, scope coordinator.Scope) (opportunity.Run, error)
	Run(ctx context.Context, id string) (opportunity.Run, error)
	Runs(ctx context.Context, limit int) ([]opportunity.Run, error)
	Wait()
}

// Searcher answers searches and manages source hints.
type Searcher interface {
	Search(ctx context.Context, req coordinator.Request) (coordinator.Response, error)
	AddSourceHint(ctx context.Context, rawURL, addedBy string, isPublic bool) (bool, error)
	SourceHints(ctx context.Context, userID string) ([]opportunity.SourceHint, error)
}

// App defines the services commands use. Tests swap in a fake through newApp.
type App interface {
	Close()
	GetConfig() config.Config
	GetLogger() *zap.Logger
	GetStore() opportunity.Store
	GetSearcher() Searcher
	GetRefresher() Refresher
	Ready(ctx context.Context) error
}

type appAdapter struct {
	*app.App
}

func (a appAdapter) GetSearcher() Searcher   { return a.GetCoordinator() }
func (a appAdapter) GetRefresher() Refresher { return a.App.GetRefresher() }

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return appAdapter{a}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "scholarship-finder",
		Short: "Finds scholarships, grants and programs from a local cache and live sources.",
		Long: `scholarship-finder answers opportunity searches from its cache and tops up
sparse results with polite live fetches. Background refreshes keep the cache
warm for the scopes people search.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Build the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(
		newSearchCmd(),
		newServeCmd(),
		newRefreshCmd(),
		newSourcesCmd(),
		newSeedCmd(),
		newPruneCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		os.Exit(1)
	}
}
