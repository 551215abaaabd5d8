package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/crateloft/cratesync/internal/checker"
	"github.com/crateloft/cratesync/internal/executor"
	"github.com/crateloft/cratesync/internal/library"
	"github.com/crateloft/cratesync/internal/progress"
)

// workerCommandName is the hidden subcommand the process substrate spawns.
const workerCommandName = "sync-worker"

type workerFlags struct {
	release      int64
	title        string
	dir          string
	slot         int
	metadataOnly bool
}

// newSyncWorkerCmd is the child side of the process substrate: it runs the
// pipeline for exactly one release and reports progress as JSON lines on
// stdout. A pipeline failure is emitted as an item-error line and surfaces
// as a nonzero exit, which the parent folds back into the run.
func newSyncWorkerCmd() *cobra.Command {
	var flags workerFlags
	cmd := &cobra.Command{
		Use:    workerCommandName,
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if flags.release == 0 || flags.dir == "" {
				return errors.New("sync-worker requires --release and --dir")
			}

			chk := checker.New(a.Logger)
			runner, err := buildRunner(a, chk, flags.metadataOnly)
			if err != nil {
				return err
			}

			applier := executor.NewLineApplier(os.Stdout)
			tr := progress.NewTracker(flags.slot, applier, nil, a.Clock)
			tr.SetItem(flags.release, flags.title)

			item := library.Item{ID: flags.release, Title: flags.title, Dir: flags.dir}
			if err := runner.Run(cmd.Context(), item, tr); err != nil {
				tr.Fail(err.Error())
				return err
			}
			tr.Complete()
			return nil
		},
	}
	cmd.Flags().Int64Var(&flags.release, "release", 0, "release id")
	cmd.Flags().StringVar(&flags.title, "title", "", "release title")
	cmd.Flags().StringVar(&flags.dir, "dir", "", "release work directory")
	cmd.Flags().IntVar(&flags.slot, "slot", 0, "parent slot index")
	cmd.Flags().BoolVar(&flags.metadataOnly, "metadata-only", false, "stop after metadata and cover art")
	return cmd
}
