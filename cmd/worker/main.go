package main

import (
	"context"
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
	"golang.org/x/sync/errgroup"
)

type options struct {
	server   string
	workers  int
	maxWork  time.Duration
	dropRate float64
	name     string
	apiKey   string
}

func main() {
	var (
		opts     options
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:   "worker",
		Short: "Claim tasks, simulate work and acknowledge them",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := config.NewLogger(config.LogConfig{Level: logLevel, Format: "text"}, os.Stderr)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// must outlast the server's claim wait
			c := apiclient.New(opts.server, &http.Client{Timeout: time.Minute})
			if opts.apiKey != "" {
				if err := c.Login(ctx, opts.name, opts.apiKey); err != nil {
					return err
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			for i := range opts.workers {
				l := logger.With("worker", i)
				g.Go(func() error {
					loop(gctx, c, opts, l)
					return nil
				})
			}
			return g.Wait()
		},
	}
	rootCmd.Flags().StringVar(&opts.server, "server", "http://localhost:3000", "queue server base URL")
	rootCmd.Flags().IntVar(&opts.workers, "workers", 10, "concurrent claim loops")
	rootCmd.Flags().DurationVar(&opts.maxWork, "max-work", 10*time.Second, "upper bound of simulated work per task")
	rootCmd.Flags().Float64Var(&opts.dropRate, "drop-rate", 0, "fraction of tasks abandoned without completing, to exercise timeouts")
	rootCmd.Flags().StringVar(&opts.name, "name", "worker", "name presented when logging in")
	rootCmd.Flags().StringVar(&opts.apiKey, "api-key", os.Getenv("WORKER_API_KEY"), "API key, when the server requires auth")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("worker failed", "err", err)
		os.Exit(1)
	}
}

func loop(ctx context.Context, c *apiclient.Client, opts options, logger *slog.Logger) {
	for ctx.Err() == nil {
		task, err := c.GetTask(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("get task failed", "err", err)
			sleep(ctx, time.Second)
			continue
		}
		if task == nil {
			logger.Debug("no task available")
			continue
		}
		logger.Info("claimed", "task_id", task.ID.String(), "submission_id", task.SubmissionID)

		if opts.maxWork > 0 {
			sleep(ctx, rand.N(opts.maxWork))
		}
		if rand.Float64() < opts.dropRate {
			logger.Warn("dropping task", "task_id", task.ID.String())
			continue
		}

		found, err := c.SubmitCompleted(ctx, task.ID, "solved "+task.SubmissionID)
		switch {
		case err != nil:
			logger.Error("submit completed failed", "task_id", task.ID.String(), "err", err)
		case !found:
			logger.Warn("task expired before completion", "task_id", task.ID.String())
		default:
			logger.Info("completed", "task_id", task.ID.String())
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
