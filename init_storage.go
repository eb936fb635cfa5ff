package main

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/KarmaFounder/friday-jarvis/config"
	"github.com/KarmaFounder/friday-jarvis/storage"
)

func newInitStorageCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "init-storage",
		Short: "Create the run table and job queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.StorageConnectionString == "" {
				return errors.New("missing STORAGE_CONNECTION_STRING")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			if err := storage.Init(ctx, cfg.StorageConnectionString, []string{cfg.RunsTable}, []string{cfg.JobsQueue}); err != nil {
				log.WithError(err).Error("storage init failed")
				return err
			}
			log.Info("storage initialized")
			return nil
		},
	}
}
