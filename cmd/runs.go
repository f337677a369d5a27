package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/job-harvester/internal/crawler"
	"github.com/JakeFAU/job-harvester/internal/store"
)

func newRunsCmd() *cobra.Command {
	var (
		platform string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent harvest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			filter := store.RunFilter{Limit: limit}
			if platform != "" {
				p, err := crawler.ParsePlatform(platform)
				if err != nil {
					return err
				}
				filter.Platform = string(p)
			}
			runs, err := instance.Runs().ListRuns(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tPLATFORM\tSTATUS\tSTOP\tSTARTED\tPAGES\tSAVED\tRAW")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					r.ID, r.Platform, r.Status, r.StopReason,
					r.StartedAt.Format(time.RFC3339), r.Pages, r.Saved, r.RawSaved)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "only show runs of this platform")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")
	return cmd
}
