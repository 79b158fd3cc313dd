// Package provider defines the capability contract every billing backend
// adapter implements, plus the registry that dispatches on provider type.
package provider

import (
	"context"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
)

// Client is a backend-specific session handle produced by InitClient.
// Adapters own the concrete type; the orchestrator only threads it through.
type Client any

// Adapter is the capability set each billing backend implements. One
// adapter instance serves all integrations of its backend; per-integration
// state lives in the Client handle.
type Adapter interface {
	// Type returns the backend this adapter serves.
	Type() config.ProviderType

	// InitClient establishes backend-specific auth for one integration.
	// A failure here is that integration's error only.
	InitClient(ctx context.Context, integration config.Integration) (Client, error)

	// FetchRawCosts performs the billing query, handling pagination,
	// window chunking, and retries internally. The payload stays
	// backend-native until Transform.
	FetchRawCosts(ctx context.Context, client Client, integration config.Integration, query model.CostQuery) (any, error)

	// Transform parses the raw payload into normalized reports: rows
	// grouped by composite id, services classified, amounts bucketed
	// into period keys per the query granularity, integration tags
	// applied as extra dimensions. Invalid rows are dropped and counted,
	// never fatal.
	Transform(ctx context.Context, integration config.Integration, query model.CostQuery, raw any) ([]model.Report, error)
}

// TagLister is implemented by backends that expose cost-allocation tags.
type TagLister interface {
	FetchTagKeys(ctx context.Context, client Client, integration config.Integration, query model.CostQuery) ([]string, error)
	FetchTagValues(ctx context.Context, client Client, integration config.Integration, query model.CostQuery, tagKey string) ([]string, error)
}

// FetchTagKeys calls the adapter's tag-key listing when supported,
// returning empty otherwise.
func FetchTagKeys(ctx context.Context, a Adapter, client Client, integration config.Integration, query model.CostQuery) ([]string, error) {
	if lister, ok := a.(TagLister); ok {
		return lister.FetchTagKeys(ctx, client, integration, query)
	}
	return nil, nil
}

// FetchTagValues calls the adapter's tag-value listing when supported,
// returning empty otherwise.
func FetchTagValues(ctx context.Context, a Adapter, client Client, integration config.Integration, query model.CostQuery, tagKey string) ([]string, error) {
	if lister, ok := a.(TagLister); ok {
		return lister.FetchTagValues(ctx, client, integration, query, tagKey)
	}
	return nil, nil
}
