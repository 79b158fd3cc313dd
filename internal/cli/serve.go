package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/electrolux-oss/infrawallet-sub000/internal/api/handlers/costs"
	"github.com/electrolux-oss/infrawallet-sub000/internal/api/middleware"
	"github.com/electrolux-oss/infrawallet-sub000/internal/buildinfo"
	log "github.com/electrolux-oss/infrawallet-sub000/internal/logging"
	"github.com/electrolux-oss/infrawallet-sub000/internal/snapshot"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cost aggregation server",
	Long: `Start the infrawallet HTTP server.

Loads the configuration, wires the provider adapters, and serves the
v1 cost reporting API. When a database DSN is configured, the snapshot
refresh job runs in the background on its configured interval.`,
	Run: func(c *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := Bootstrap(ctx, cfgFile)
		if err != nil {
			log.Fatalf("Failed to bootstrap: %v", err)
		}
		defer result.Close()

		cfg := result.Config
		if servePort != 0 && servePort != 8318 {
			cfg.Port = servePort
		}
		if err := log.ConfigureLogOutput(cfg.LogFile); err != nil {
			log.Fatalf("Failed to configure log output: %v", err)
		}

		var job *snapshot.RefreshJob
		if result.Snapshot != nil && cfg.Autoload.Enabled {
			job = snapshot.NewRefreshJob(result.Snapshot, result.Orchestrator, cfg.Autoload, cfg.Wallet, result.Registry.Types())
			job.Start(ctx)
			defer job.Stop()
		}

		router := buildRouter(result, job)
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Infof("infrawallet %s listening on %s", buildinfo.Version, server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("Server failed: %v", err)
			}
		}()

		<-ctx.Done()
		log.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("server shutdown was not clean")
		}
	},
}

func buildRouter(result *BootstrapResult, job *snapshot.RefreshJob) *gin.Engine {
	if !result.Config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestSizeLimit(0))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": buildinfo.Version,
		})
	})

	var refresher costs.Refresher
	if job != nil {
		refresher = job
	}
	costs.NewHandler(result.Orchestrator, refresher).RegisterRoutes(router)
	return router
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8318, "server port")
	rootCmd.AddCommand(serveCmd)
}
