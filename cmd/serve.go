package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-harvester/internal/api"
)

func newServeCmd() *cobra.Command {
	var noSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API and harvest on a schedule",
		Long: `Starts the HTTP API and, unless schedule.interval is zero or
--no-schedule is set, repeats a harvest pass every interval. The listen port
comes from server.port; a PORT environment variable takes precedence.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), noSchedule)
		},
	}
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "serve the API without scheduled passes")
	return cmd
}

func runServe(ctx context.Context, noSchedule bool) error {
	instance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := instance.Config()
	logger := instance.Logger()

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	apiServer := api.NewServer(instance.Dispatcher(), instance.Runs(), cfg, logger,
		api.WithReadiness(instance.Ready),
		api.WithBaseContext(ctx),
	)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", listenPort(cfg.Server.Port)),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	if !noSchedule && cfg.Schedule.Interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("scheduler started", zap.Duration("interval", cfg.Schedule.Interval))
			if err := instance.Dispatcher().Run(ctx, cfg.Schedule.Interval); err != nil {
				logger.Error("scheduler stopped", zap.Error(err))
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutdown initiated")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()
	apiServer.Wait()
	logger.Info("shutdown complete")
	return runErr
}

func listenPort(configured int) int {
	if p, err := strconv.Atoi(os.Getenv("PORT")); err == nil && p > 0 {
		return p
	}
	return configured
}
