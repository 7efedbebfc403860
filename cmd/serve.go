package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/spider/internal/api"
	"github.com/JakeFAU/spider/internal/app"
)

// newServeCmd creates the 'serve' subcommand, which runs the HTTP API and the
// periodic sweep until the process is signalled.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and periodic sweep",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := appInstance.Logger

	srv := newHTTPServer(appInstance)
	if err := appInstance.StartSweep(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", appInstance.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	return nil
}

func newHTTPServer(a *app.App) *http.Server {
	deps := api.Deps{
		Crawler:       a.Pipeline,
		Pool:          a.Pool,
		Ready:         a.Ready,
		Notifications: a.Notifications,
	}
	if a.Sweep != nil {
		deps.Sweep = a.Sweep
	}
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           api.NewServer(deps, a.Config, a.Logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
