package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/electrolux-oss/infrawallet-sub000/internal/cache"
	"github.com/electrolux-oss/infrawallet-sub000/internal/classifier"
	"github.com/electrolux-oss/infrawallet-sub000/internal/cli/env"
	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	log "github.com/electrolux-oss/infrawallet-sub000/internal/logging"
	"github.com/electrolux-oss/infrawallet-sub000/internal/orchestrator"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider/atlasprovider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider/awsprovider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider/azureprovider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider/confluentprovider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider/customprovider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider/datadogprovider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider/elasticprovider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider/gcpprovider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider/githubprovider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider/mockprovider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/snapshot"
	"github.com/electrolux-oss/infrawallet-sub000/internal/util"
)

// BootstrapResult holds everything a command needs after startup.
type BootstrapResult struct {
	Config       *config.Config
	Classifier   *classifier.Classifier
	Registry     *provider.Registry
	Cache        *cache.Memory
	Snapshot     *snapshot.Store
	Orchestrator *orchestrator.Service
}

// Close releases the bootstrap's long-lived resources.
func (r *BootstrapResult) Close() {
	if r.Cache != nil {
		r.Cache.Stop()
	}
	if r.Snapshot != nil {
		r.Snapshot.Close()
	}
}

// Bootstrap loads configuration and wires the service graph. It is called
// by every command that touches providers or the database.
func Bootstrap(ctx context.Context, configPath string) (*BootstrapResult, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	if configPath == "" {
		configPath = filepath.Join(wd, "config.yaml")
	}
	configPath, err = util.ExpandPath(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyEnvOverrides(cfg)
	log.SetDebug(cfg.Debug)

	cls := classifier.New(cfg.Categories)
	if err := cls.Refresh(ctx); err != nil {
		log.WithError(err).Warn("category dataset refresh failed, continuing with local mappings")
	}

	dsn, err := config.ParseDSN(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}

	var pool *pgxpool.Pool
	var snapshotStore *snapshot.Store
	if dsn.IsConfigured() {
		snapshotStore, err = snapshot.New(ctx, dsn.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize snapshot store: %w", err)
		}
		pool = snapshotStore.Pool()
		log.Infof("postgres snapshot store enabled: %s", dsn.Database)
	} else {
		log.Infof("no database configured, snapshot store and custom costs disabled")
	}

	registry := provider.NewRegistry(provider.NewDeps(cls, pool))
	registerAdapters(registry)

	reportCache := cache.NewMemory()

	var snapshotReader orchestrator.SnapshotReader
	if snapshotStore != nil {
		snapshotReader = snapshotStore
	}
	svc := orchestrator.New(cfg, registry, reportCache, snapshotReader)

	return &BootstrapResult{
		Config:       cfg,
		Classifier:   cls,
		Registry:     registry,
		Cache:        reportCache,
		Snapshot:     snapshotStore,
		Orchestrator: svc,
	}, nil
}

// applyEnvOverrides lets deployments tune a few settings without
// editing the config file.
func applyEnvOverrides(cfg *config.Config) {
	if port, ok := env.LookupInt("INFRAWALLET_PORT"); ok {
		cfg.Port = port
	}
	if debug, ok := env.LookupBool("INFRAWALLET_DEBUG"); ok {
		cfg.Debug = debug
	}
	if dsn, ok := env.Lookup("INFRAWALLET_DATABASE_DSN", "DATABASE_URL"); ok {
		cfg.DatabaseDSN = dsn
	}
}

func registerAdapters(registry *provider.Registry) {
	registry.Register(config.ProviderAWS, awsprovider.New)
	registry.Register(config.ProviderAzure, azureprovider.New)
	registry.Register(config.ProviderGCP, gcpprovider.New)
	registry.Register(config.ProviderDatadog, datadogprovider.New)
	registry.Register(config.ProviderMongoAtlas, atlasprovider.New)
	registry.Register(config.ProviderConfluent, confluentprovider.New)
	registry.Register(config.ProviderGitHub, githubprovider.New)
	registry.Register(config.ProviderElasticCloud, elasticprovider.New)
	registry.Register(config.ProviderCustom, customprovider.New)
	registry.Register(config.ProviderMock, mockprovider.New)
}
