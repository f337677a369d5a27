// Package cmd defines the CLI commands of the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-harvester/internal/app"
	"github.com/JakeFAU/job-harvester/internal/config"
	"github.com/JakeFAU/job-harvester/internal/dispatcher"
	"github.com/JakeFAU/job-harvester/internal/logging"
	"github.com/JakeFAU/job-harvester/internal/store"
)

const closeTimeout = 30 * time.Second

// App is the service container the commands use.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Dispatcher() *dispatcher.Dispatcher
	Runs() store.RunRepository
	Ready(ctx context.Context) error
	Close(ctx context.Context) error
}

// AppFactory builds the App once configuration and logging are ready.
type AppFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error)

func defaultAppFactory(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

type appKeyType struct{}

var appKey appKeyType

type rootOptions struct {
	cfgFile string
	sources []string
	app     App
}

// newRootCmd creates the root command. Services are built once in
// PersistentPreRunE; execute closes them after the subcommand returns,
// whether it failed or not.
func newRootCmd(factory AppFactory) (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Incremental job-posting harvester for Korean job boards.",
		Long: `harvester walks the listings of WANTED, SARAMIN and JOBKOREA, fetches
only postings that are new or stale, and stores them in a relational store
and a raw archive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return err
			}
			if len(opts.sources) > 0 {
				cfg.Sources.Enabled = opts.sources
				if _, err := cfg.Platforms(); err != nil {
					return err
				}
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			instance, err := factory(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			opts.app = instance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, instance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.PersistentFlags().StringSliceVar(&opts.sources, "sources", nil,
		"platforms to crawl, overriding sources.enabled (e.g. wanted,saramin)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunsCmd())
	return cmd, opts
}

func resolveApp(ctx context.Context) (App, error) {
	instance, ok := ctx.Value(appKey).(App)
	if !ok || instance == nil {
		return nil, errors.New("application services not initialized")
	}
	return instance, nil
}

func execute(ctx context.Context, factory AppFactory, args []string, out io.Writer) error {
	root, opts := newRootCmd(factory)
	root.SetArgs(args)
	root.SetOut(out)
	runErr := root.ExecuteContext(ctx)
	if opts.app == nil {
		return runErr
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	closeErr := opts.app.Close(closeCtx)
	_ = opts.app.Logger().Sync()
	return errors.Join(runErr, closeErr)
}

// Execute runs the CLI until it finishes or the process is signaled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, defaultAppFactory, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "harvester:", err)
		os.Exit(1)
	}
}
