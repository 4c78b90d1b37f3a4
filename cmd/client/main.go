package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task-queue-api/internal/apiclient"
	"task-queue-api/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func main() {
	var (
		server   string
		interval time.Duration
		maxID    uint32
		count    int
		worker   string
		apiKey   string
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:   "client",
		Short: "Submit random tasks to the queue server at a fixed pace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxID == 0 {
				return errors.New("--max-id must be positive")
			}
			logger := config.NewLogger(config.LogConfig{Level: logLevel, Format: "text"}, os.Stderr)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := apiclient.New(server, &http.Client{Timeout: 10 * time.Second})
			if apiKey != "" {
				if err := c.Login(ctx, worker, apiKey); err != nil {
					return err
				}
			}

			limiter := rate.NewLimiter(rate.Every(interval), 1)
			for sent := 0; count <= 0 || sent < count; sent++ {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				id := fmt.Sprintf("task%x", rand.Uint32N(maxID))
				switch err := c.AddTask(ctx, id); {
				case errors.Is(err, apiclient.ErrRateLimited):
					logger.Warn("server rate limited submission", "submission_id", id)
				case err != nil:
					logger.Error("submit failed", "submission_id", id, "err", err)
				default:
					logger.Info("submitted", "submission_id", id)
				}
			}
			return nil
		},
	}
	rootCmd.Flags().StringVar(&server, "server", "http://localhost:3000", "queue server base URL")
	rootCmd.Flags().DurationVar(&interval, "interval", 10*time.Millisecond, "delay between submissions")
	rootCmd.Flags().Uint32Var(&maxID, "max-id", 100, "submission ids are drawn from [0, max-id)")
	rootCmd.Flags().IntVar(&count, "count", 0, "stop after this many submissions (0 = forever)")
	rootCmd.Flags().StringVar(&worker, "name", "client", "name presented when logging in")
	rootCmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("WORKER_API_KEY"), "API key, when the server requires auth")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("client failed", "err", err)
		os.Exit(1)
	}
}
