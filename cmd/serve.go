package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/browserd/internal/browser"
	"github.com/xkilldash9x/browserd/internal/observability"
	"github.com/xkilldash9x/browserd/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the browser session service.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe wires the service together and runs it until a signal arrives:
// launcher into session service, service into the HTTP/WebSocket server, plus
// the idle-sweep ticker. Shutdown drains the listener first, then closes every
// remaining session.
func runServe(ctx context.Context) error {
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	launcher := browser.NewChromeLauncher(cfg.Browser, logger)
	svc := browser.NewService(cfg, launcher, logger)
	srv := server.New(cfg, svc, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Session.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if reaped := svc.CleanupInactive(); len(reaped) > 0 {
					logger.Info("Idle sweep completed.", zap.Strings("session_ids", reaped))
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down.")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown error.", zap.Error(err))
		}
		svc.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete.")
	return nil
}
