package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCrawlCmd creates the 'crawl' subcommand, which submits each URL argument
// to the worker pool and waits for every task to report.
func newCrawlCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "crawl URL [URL...]",
		Short: "Crawls the given URLs once",
		Long: `Submits one crawl task per URL to the configured worker pool. Each task
extracts link metadata (domain, TLS) and page metadata (content type, size,
status), and persists the result. Failed URLs are logged and counted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args, timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up waiting for results after this long (0 waits forever)")
	return cmd
}

func runCrawl(cmd *cobra.Command, urls []string, timeout time.Duration) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for _, u := range urls {
		id, err := appInstance.Pipeline.Enqueue(ctx, u)
		if err != nil {
			return fmt.Errorf("enqueue: %w", err)
		}
		appInstance.Logger.Debug("crawl task submitted", zap.String("task_id", id), zap.String("url", u))
	}
	if err := appInstance.Pipeline.Wait(ctx); err != nil {
		return err
	}

	stats := appInstance.Pipeline.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "submitted=%d succeeded=%d failed=%d\n",
		stats.Submitted, stats.Succeeded, stats.Failed)
	appInstance.Logger.Info("crawl command finished",
		zap.Int64("succeeded", stats.Succeeded),
		zap.Int64("failed", stats.Failed))
	return nil
}
