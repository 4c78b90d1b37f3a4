package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"task-queue-api/internal/app"
	"task-queue-api/internal/auth"
	"task-queue-api/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func main() {
	var addr, driver string

	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Task queue server",
		Long:  "Serves the visibility-timeout task queue over HTTP, backed by a durable mirror and a payload cache.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := config.FromEnv(&cfg); err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.HTTPAddr = addr
			}
			if cmd.Flags().Changed("store") {
				cfg.Store.Driver = driver
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := config.NewLogger(cfg.Log, os.Stderr)
			gin.SetMode(gin.ReleaseMode)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Error("close store", "err", err)
				}
			}()

			logger.Info("API endpoints",
				"routes", []string{
					"POST /queue/add_task", "GET /queue/get_task", "POST /queue/submit_completed",
					"GET /queue/stats", "GET /queue/events", "GET /health", "GET /metrics",
				})
			return a.ListenAndRun(ctx)
		},
	}
	rootCmd.Flags().StringVar(&addr, "addr", ":3000", "HTTP listen address (overrides HTTP_ADDR)")
	rootCmd.Flags().StringVar(&driver, "store", config.DriverSQLite, "durable store: sqlite, pebble or memory (overrides STORE_DRIVER)")

	hashCmd := &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Print the bcrypt hash of a worker API key for WORKER_API_KEY_HASH",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read key: %w", err)
				}
				key = strings.TrimSpace(line)
			}
			if key == "" {
				return fmt.Errorf("empty key")
			}
			hash, err := auth.HashAPIKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	rootCmd.AddCommand(hashCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
