package main

import (
	"os"

	"github.com/spf13/cobra"

	"go-card-matcher/internal/logger"
)

func main() {
	root := &cobra.Command{
		Use:           "cardmatcher",
		Short:         "Local-first card identification from scans and photos",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMatchCommand(), newIndexCommand(), newTemplateCommand())

	if err := root.Execute(); err != nil {
		logger.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}
