// Package cli provides the Cobra-based command-line interface for
// infrawallet.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "infrawallet",
	Short: "Multi-backend cloud cost aggregation service",
	Long: `infrawallet aggregates spend data from cloud and SaaS billing
backends (AWS, Azure, GCP, Datadog, MongoDB Atlas, Confluent, GitHub,
Elastic Cloud, manual entries) into one normalized cost report model.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default ./config.yaml)")
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
