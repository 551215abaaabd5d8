// Package cmd defines the CLI commands for the cratesync executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crateloft/cratesync/internal/app"
	"github.com/crateloft/cratesync/internal/config"
)

var cfgFile string

// appKey stores the App container in the command context.
type appKey struct{}

// newApp is the container factory, swappable in tests.
var newApp = app.New

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cratesync",
		Short: "Mirror a Discogs record collection into a local audio archive.",
		Long: `cratesync keeps a local archive in step with a Discogs collection:
release metadata, cover art, matched YouTube audio, per-track analysis
images and a printable crate label, one directory per release. Runs are
resumable; whatever a previous run completed is never redone.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Name() == workerCommandName {
				// Worker children report through stdout lines only; the
				// parent owns history, mirroring and event fanout.
				cfg.History.Provider = "none"
				cfg.Mirror.Provider = "none"
				cfg.Events.Provider = "none"
				cfg.Dashboard.Enabled = false
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey{}).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./cratesync.yaml)")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newSyncWorkerCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey{}).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cratesync: %v\n", err)
		return 1
	}
	return 0
}
