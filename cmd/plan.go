package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/crateloft/cratesync/internal/checker"
	"github.com/crateloft/cratesync/internal/library"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a sync would do without doing it",
		Long: `Lists the collection and assesses every release directory, printing
which pipeline steps each release still needs. No network fetches beyond
the collection listing, no writes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			layout := library.Layout{Root: a.Config.Library.Root}
			lister, err := buildLister(a, layout)
			if err != nil {
				return err
			}
			items, err := lister.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list collection: %w", err)
			}

			chk := checker.New(a.Logger)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RELEASE\tTITLE\tSTATE")

			pending := 0
			for _, item := range items {
				as := chk.Assess(item.Dir)
				state := "complete"
				if !as.Complete() {
					pending++
					state = describeNeeds(as)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", item.ID, item.Title, state)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d releases need work\n", pending, len(items))
			return nil
		},
	}
	return cmd
}

// describeNeeds flattens an assessment into "needs metadata, cover" or
// "needs audio (A1, B2)" style text.
func describeNeeds(as checker.Assessment) string {
	parts := make([]string, 0, len(as.ReleaseSteps)+1)
	parts = append(parts, as.ReleaseSteps...)
	if len(as.Tracks) > 0 {
		positions := make([]string, 0, len(as.Tracks))
		for _, tn := range as.Tracks {
			positions = append(positions, tn.Position)
		}
		parts = append(parts, fmt.Sprintf("tracks (%s)", strings.Join(positions, ", ")))
	}
	return "needs " + strings.Join(parts, ", ")
}
