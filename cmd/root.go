// Package cmd defines and implements the CLI commands for the spider executable.
//
// spider crawl fetches the URLs given on the command line through the worker
// pool and exits once every task has reported. spider serve runs the HTTP API
// together with the periodic sweep until SIGINT or SIGTERM.
//
// Configuration comes from an optional file (--config) overlaid by SPIDER_*
// environment variables; see internal/config for the keys.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/spider/internal/app"
	"github.com/JakeFAU/spider/internal/config"
	"github.com/JakeFAU/spider/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// closeGrace is added to the pool shutdown timeout when closing the App.
const closeGrace = 5 * time.Second

// newApp is the application factory. It's a variable so tests can inject
// fakes.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "spider",
		Short: "A concurrent crawl-task dispatcher.",
		Long: `spider extracts link and page metadata from web pages using a pool of
workers, persists the results, and can periodically re-crawl a fixed set of
URLs.`,
		SilenceUsage: true,

		// Builds and injects the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		// Shuts services down gracefully.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			appInstance, ok := cmd.Context().Value(appKey).(*app.App)
			if !ok || appInstance == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(),
				appInstance.Config.Pool.ShutdownTimeout+closeGrace)
			defer cancel()
			if err := appInstance.Close(ctx); err != nil {
				appInstance.Logger.Warn("shutdown finished with errors", zap.Error(err))
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newCrawlCmd(), newServeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "spider: %v\n", err)
		stop()
		os.Exit(1)
	}
}
