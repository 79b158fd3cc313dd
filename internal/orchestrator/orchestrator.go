// Package orchestrator fans a cost query out across every enabled
// provider integration, merging all reports and isolating each
// integration's failure into a CloudProviderError.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/electrolux-oss/infrawallet-sub000/internal/cache"
	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	log "github.com/electrolux-oss/infrawallet-sub000/internal/logging"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider"
)

// SnapshotReader is the slice of the snapshot store the orchestrator
// needs for the default-query fast path.
type SnapshotReader interface {
	Query(ctx context.Context, wallet string, provider string, granularity model.Granularity, start, end time.Time) ([]model.Report, error)
}

// Service coordinates adapters, cache, and the snapshot fast path.
type Service struct {
	cfg      *config.Config
	registry *provider.Registry
	cache    cache.Cache
	snapshot SnapshotReader
	tracer   trace.Tracer
	flight   singleflight.Group
}

// New builds the orchestrator. snapshot may be nil when no database is
// configured; the fast path is then skipped.
func New(cfg *config.Config, registry *provider.Registry, reportCache cache.Cache, snap SnapshotReader) *Service {
	return &Service{
		cfg:      cfg,
		registry: registry,
		cache:    reportCache,
		snapshot: snap,
		tracer:   otel.Tracer("orchestrator"),
	}
}

// GetCostReports answers a cost query across all enabled integrations.
// The response is partial on integration failure, never an error return,
// except for an invalid query.
func (s *Service) GetCostReports(ctx context.Context, query model.CostQuery) (model.CostReportsResponse, error) {
	if err := model.ValidateQuery(query); err != nil {
		return model.CostReportsResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "GetCostReports", trace.WithAttributes(
		attribute.String("granularity", string(query.Granularity)),
	))
	defer span.End()

	if s.useSnapshot(query) {
		reports, err := s.snapshot.Query(ctx, s.cfg.Wallet, "", query.Granularity, query.StartTime, query.EndTime)
		if err == nil {
			span.SetAttributes(attribute.Bool("snapshot", true), attribute.Int("reports", len(reports)))
			return model.CostReportsResponse{Reports: reports, Errors: []model.CloudProviderError{}}, nil
		}
		log.WithError(err).Warn("snapshot read failed, falling back to live fetch")
	}

	response := s.fanOut(ctx, s.cfg.EnabledProviders(), query, true)
	span.SetAttributes(
		attribute.Int("reports", len(response.Reports)),
		attribute.Int("errors", len(response.Errors)),
	)
	return response, nil
}

// FetchProvider runs the live fetch path for one provider, bypassing the
// cache. The snapshot refresh job uses this.
func (s *Service) FetchProvider(ctx context.Context, providerType config.ProviderType, query model.CostQuery) ([]model.Report, []model.CloudProviderError) {
	pc := s.cfg.ProviderByType(providerType)
	if pc == nil {
		return nil, nil
	}
	response := s.fanOut(ctx, []config.ProviderConfig{*pc}, query, false)
	return response.Reports, response.Errors
}

func (s *Service) useSnapshot(query model.CostQuery) bool {
	return s.snapshot != nil && s.cfg.Autoload.Enabled && query.IsDefault()
}

// fanOut runs one task per (provider, integration) concurrently. Each
// task is bounded by the configured request timeout and its failure is
// converted to a CloudProviderError at the integration boundary.
func (s *Service) fanOut(ctx context.Context, providers []config.ProviderConfig, query model.CostQuery, useCache bool) model.CostReportsResponse {
	var mu sync.Mutex
	response := model.CostReportsResponse{
		Reports: []model.Report{},
		Errors:  []model.CloudProviderError{},
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, pc := range providers {
		for _, integration := range pc.EnabledIntegrations() {
			group.Go(func() error {
				reports, err := s.fetchIntegration(groupCtx, pc.Type, integration, query, useCache)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					log.WithError(err).WithFields(map[string]any{
						"provider":    pc.Type,
						"integration": integration.Name,
					}).Error("integration fetch failed")
					response.Errors = append(response.Errors, model.NewCloudProviderError(string(pc.Type), integration.Name, err))
					return nil
				}
				response.Reports = append(response.Reports, reports...)
				return nil
			})
		}
	}
	// Tasks never return errors; failures land in response.Errors.
	_ = group.Wait()
	return response
}

func (s *Service) fetchIntegration(ctx context.Context, providerType config.ProviderType, integration config.Integration, query model.CostQuery, useCache bool) ([]model.Report, error) {
	key := cache.ReportKey(providerType, integration.Name, query)
	if useCache {
		if reports, ok := s.cache.Get(key); ok {
			return reports, nil
		}
	}

	// Concurrent identical misses share one live fetch.
	result, err, _ := s.flight.Do(key.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()

		reports, err := s.fetchLive(fetchCtx, providerType, integration, query)
		if err != nil {
			return nil, err
		}
		if useCache {
			s.cache.Set(key, reports, cache.TTLFor(providerType))
		}
		return reports, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]model.Report), nil
}

func (s *Service) fetchLive(ctx context.Context, providerType config.ProviderType, integration config.Integration, query model.CostQuery) ([]model.Report, error) {
	adapter, err := s.registry.Adapter(providerType)
	if err != nil {
		return nil, err
	}

	client, err := adapter.InitClient(ctx, integration)
	if err != nil {
		return nil, fmt.Errorf("init client: %w", err)
	}
	raw, err := adapter.FetchRawCosts(ctx, client, integration, query)
	if err != nil {
		return nil, fmt.Errorf("fetch costs: %w", err)
	}
	reports, err := adapter.Transform(ctx, integration, query, raw)
	if err != nil {
		return nil, fmt.Errorf("transform costs: %w", err)
	}
	return reports, nil
}

// GetTagKeys lists cost-allocation tag keys for one provider across its
// integrations. Providers without tag support contribute nothing.
func (s *Service) GetTagKeys(ctx context.Context, providerType config.ProviderType, query model.CostQuery) model.TagsResponse {
	return s.collectTags(ctx, providerType, func(tagCtx context.Context, adapter provider.Adapter, client provider.Client, integration config.Integration) ([]string, error) {
		return provider.FetchTagKeys(tagCtx, adapter, client, integration, query)
	})
}

// GetTagValues lists the values of one tag key for one provider.
func (s *Service) GetTagValues(ctx context.Context, providerType config.ProviderType, query model.CostQuery, tagKey string) model.TagsResponse {
	return s.collectTags(ctx, providerType, func(tagCtx context.Context, adapter provider.Adapter, client provider.Client, integration config.Integration) ([]string, error) {
		return provider.FetchTagValues(tagCtx, adapter, client, integration, query, tagKey)
	})
}

func (s *Service) collectTags(ctx context.Context, providerType config.ProviderType, fetch func(context.Context, provider.Adapter, provider.Client, config.Integration) ([]string, error)) model.TagsResponse {
	response := model.TagsResponse{Tags: []string{}, Errors: []model.CloudProviderError{}}
	pc := s.cfg.ProviderByType(providerType)
	if pc == nil {
		return response
	}
	adapter, err := s.registry.Adapter(providerType)
	if err != nil {
		response.Errors = append(response.Errors, model.NewCloudProviderError(string(providerType), "", err))
		return response
	}

	seen := make(map[string]bool)
	for _, integration := range pc.EnabledIntegrations() {
		tagCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		client, err := adapter.InitClient(tagCtx, integration)
		if err == nil {
			var tags []string
			tags, err = fetch(tagCtx, adapter, client, integration)
			for _, tag := range tags {
				if !seen[tag] {
					seen[tag] = true
					response.Tags = append(response.Tags, tag)
				}
			}
		}
		cancel()
		if err != nil {
			response.Errors = append(response.Errors, model.NewCloudProviderError(string(providerType), integration.Name, err))
		}
	}
	return response
}
