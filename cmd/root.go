package main

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"image-platform/internal/models"
	"image-platform/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "image-platform",
	Short:         "Image upload, gallery and processing service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "config.yaml", "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd)
}

// setup loads config, builds the logger and starts Sentry when configured.
// The returned cleanup flushes both.
func setup(cmd *cobra.Command) (*models.Config, *zap.Logger, func(), error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := models.LoadConfig(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Debug)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			log.Warn("sentry disabled", zap.Error(err))
		}
	}

	cleanup := func() {
		sentry.Flush(2 * time.Second)
		_ = log.Sync()
	}
	return cfg, log, cleanup, nil
}
