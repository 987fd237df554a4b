// Package cmd is the command-line entry point.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"property-scraper/config"
	"property-scraper/utils"
)

var (
	cfg    *config.Config
	logger *utils.Logger
)

var rootCmd = &cobra.Command{
	Use:          "property-scraper",
	Short:        "Extract structured property listings from marketplace sites",
	Long:         "Pages through property marketplaces with a headless browser, extracts each listing into a normalized record, geocodes it and writes it to the configured storage.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		// Records may go to stdout, so logs go to stderr.
		logger = utils.NewLoggerWithOptions(utils.LoggerOptions{
			Writer: os.Stderr,
			Level:  cfg.LogLevel,
			JSON:   cfg.LogJSON,
		})
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
