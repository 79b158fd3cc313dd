package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/electrolux-oss/infrawallet-sub000/internal/embedded"
	log "github.com/electrolux-oss/infrawallet-sub000/internal/logging"
	"github.com/electrolux-oss/infrawallet-sub000/internal/util"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter config file",
	Long: `Write a starter config.yaml with a mock provider enabled.

The file is created in the current directory unless --config points
elsewhere. Existing files are preserved unless --force is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		path := cfgFile
		if path == "" {
			wd, err := os.Getwd()
			if err != nil {
				log.Fatalf("Init failed: %v", err)
			}
			path = filepath.Join(wd, "config.yaml")
		}
		path, err := util.ExpandPath(path)
		if err != nil {
			log.Fatalf("Init failed: %v", err)
		}

		if _, err := os.Stat(path); err == nil && !forceInit {
			fmt.Printf("Config already exists at %s (use --force to overwrite)\n", path)
			return
		}
		if err := os.WriteFile(path, embedded.StarterConfig(), 0o600); err != nil {
			log.Fatalf("Init failed: %v", err)
		}
		fmt.Printf("Created config at %s\n", path)
	},
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
