package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	log "github.com/electrolux-oss/infrawallet-sub000/internal/logging"
	"github.com/electrolux-oss/infrawallet-sub000/internal/snapshot"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the cost snapshot once and exit",
	Long: `Run one snapshot refresh cycle: fetch costs from every enabled
backend for the configured lookback windows and replace the stored
snapshot rows. Requires a configured database DSN.`,
	Run: func(c *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := Bootstrap(ctx, cfgFile)
		if err != nil {
			log.Fatalf("Failed to bootstrap: %v", err)
		}
		defer result.Close()

		if result.Snapshot == nil {
			log.Fatalf("refresh requires a database DSN in the config")
		}

		cfg := result.Config
		job := snapshot.NewRefreshJob(result.Snapshot, result.Orchestrator, cfg.Autoload, cfg.Wallet, result.Registry.Types())
		job.RunOnce(ctx)
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
