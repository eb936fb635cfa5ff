package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/KarmaFounder/friday-jarvis/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config.Config
	root := &cobra.Command{
		Use:           "jarvis",
		Short:         "Workflow automation for monday.com boards",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.FromEnv()
			if err != nil {
				log.WithError(err).Error("invalid configuration")
				return err
			}
			if c.Debug {
				log.SetLevel(log.DebugLevel)
			}
			cfg = c
			return nil
		},
	}
	root.AddCommand(
		newServeCmd(&cfg),
		newWorkerCmd(&cfg),
		newInitStorageCmd(&cfg),
	)
	return root
}
