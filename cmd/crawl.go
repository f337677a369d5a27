package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

// newCrawlCmd runs one harvest pass over the enabled sources and prints the
// session reports as JSON.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one harvest pass and exit",
		Long: `Runs one session per enabled source concurrently. Each session walks
its listing until it catches up with stored data, exhausts the listing or
hits a limit. Exits non-zero when any session failed.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	instance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := instance.Logger()

	reports, err := instance.Dispatcher().RunOnce(cmd.Context())
	if err != nil {
		return fmt.Errorf("run harvest pass: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return fmt.Errorf("write reports: %w", err)
	}

	failed := 0
	for _, r := range reports {
		if r.Status == crawler.SessionFailed {
			failed++
		}
	}
	logger.Info("crawl command finished", zap.Int("sessions", len(reports)), zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d sessions failed", failed, len(reports))
	}
	return nil
}
