package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task-queue-api/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	var addr, events, token, logLevel string

	rootCmd := &cobra.Command{
		Use:   "collector",
		Short: "Receive completed tasks and optionally watch the server's event feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := config.NewLogger(config.LogConfig{Level: logLevel, Format: "text"}, os.Stderr)
			gin.SetMode(gin.ReleaseMode)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{Addr: addr, Handler: newRouter(logger), ReadHeaderTimeout: 10 * time.Second}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("collector listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if events != "" {
				g.Go(func() error {
					watch(gctx, events, token, logger)
					return nil
				})
			}
			return g.Wait()
		},
	}
	rootCmd.Flags().StringVar(&addr, "addr", ":3002", "listen address")
	rootCmd.Flags().StringVar(&events, "events", "", "websocket URL of the server event feed, e.g. ws://localhost:3000/queue/events")
	rootCmd.Flags().StringVar(&token, "token", os.Getenv("WORKER_TOKEN"), "bearer token for the event feed")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("collector failed", "err", err)
		os.Exit(1)
	}
}
