package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"image-platform/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Applies database migrations to the postgres metadata store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if cfg.Metadata.Backend != "postgres" {
			return errors.New("migrate requires metadata.backend postgres")
		}
		if err := storage.Migrate(cfg.Metadata.DatabaseURL); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
		log.Info("migrations applied")
		return nil
	},
}
