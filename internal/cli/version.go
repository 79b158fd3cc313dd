package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/electrolux-oss/infrawallet-sub000/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("infrawallet %s\n", buildinfo.Version)
		fmt.Printf("Commit: %s\n", buildinfo.Commit)
		fmt.Printf("Built: %s\n", buildinfo.BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
