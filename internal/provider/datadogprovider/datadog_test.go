package datadogprovider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electrolux-oss/infrawallet-sub000/internal/classifier"
	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/resilience"
)

const historicalCostBody = `{"data":[
	{"attributes":{"org_name":"main-org","date":"2024-01-01T00:00:00Z","charges":[
		{"product_name":"infra_host","charge_type":"usage","cost":310},
		{"product_name":"logs_indexed","charge_type":"usage","cost":45.5},
		{"product_name":"synthetics","charge_type":"usage","cost":0}
	]}},
	{"attributes":{"org_name":"sandbox-org","date":"2024-01-01T00:00:00Z","charges":[
		{"product_name":"infra_host","charge_type":"usage","cost":12}
	]}}
]}`

func newTestAdapter(client *http.Client) *Adapter {
	return &Adapter{
		deps: provider.Deps{
			Classifier: classifier.New(config.CategoryConfig{
				Local: map[string]map[string][]string{
					"Observability": {"datadog": {"infra_host", "logs"}},
				},
			}),
			HTTPClient: client,
		},
		retryCfg: resilience.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
}

func janQuery(granularity model.Granularity) model.CostQuery {
	return model.CostQuery{
		Granularity: granularity,
		StartTime:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestTransformGroupsByOrgAndProduct(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/cost_by_org/historical_cost", r.URL.Path)
		require.Equal(t, "k", r.Header.Get("DD-API-KEY"))
		require.Equal(t, "app", r.Header.Get("DD-APPLICATION-KEY"))
		require.Equal(t, "2024-01", r.URL.Query().Get("start_month"))
		fmt.Fprint(w, historicalCostBody)
	}))
	defer server.Close()

	adapter := newTestAdapter(server.Client())
	integration := config.Integration{Name: "main", APIKey: "k", APISecret: "app", BaseURL: server.URL}
	query := janQuery(model.GranularityMonthly)

	client, err := adapter.InitClient(context.Background(), integration)
	require.NoError(t, err)
	raw, err := adapter.FetchRawCosts(context.Background(), client, integration, query)
	require.NoError(t, err)
	reports, err := adapter.Transform(context.Background(), integration, query, raw)
	require.NoError(t, err)

	// Zero-cost synthetics charge is dropped; 3 org/product groups remain.
	require.Len(t, reports, 3)
	byID := make(map[string]model.Report, len(reports))
	for _, r := range reports {
		byID[r.ID] = r
	}
	host := byID[model.CompositeID("datadog", "main", "main-org", "infra_host")]
	assert.Equal(t, "Observability", host.Category)
	assert.InDelta(t, 310.0, host.Reports["2024-01"], 1e-9)
	logs := byID[model.CompositeID("datadog", "main", "main-org", "logs_indexed")]
	assert.Equal(t, "Observability", logs.Category)
	sandbox := byID[model.CompositeID("datadog", "main", "sandbox-org", "infra_host")]
	assert.InDelta(t, 12.0, sandbox.Reports["2024-01"], 1e-9)
}

func TestDailyQuerySpreadsMonthEvenly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, historicalCostBody)
	}))
	defer server.Close()

	adapter := newTestAdapter(server.Client())
	integration := config.Integration{Name: "main", APIKey: "k", APISecret: "app", BaseURL: server.URL}
	query := janQuery(model.GranularityDaily)

	client, err := adapter.InitClient(context.Background(), integration)
	require.NoError(t, err)
	raw, err := adapter.FetchRawCosts(context.Background(), client, integration, query)
	require.NoError(t, err)
	reports, err := adapter.Transform(context.Background(), integration, query, raw)
	require.NoError(t, err)

	var host model.Report
	for _, r := range reports {
		if r.Account == "main-org" && r.Service == "infra_host" {
			host = r
		}
	}
	require.Len(t, host.Reports, 31)
	assert.InDelta(t, 310.0/31.0, host.Reports["2024-01-15"], 1e-9)
	assert.InDelta(t, 310.0, host.Total(), 1e-6)
}

func TestExcludeFilterDropsOrg(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, historicalCostBody)
	}))
	defer server.Close()

	adapter := newTestAdapter(server.Client())
	integration := config.Integration{
		Name: "main", APIKey: "k", APISecret: "app", BaseURL: server.URL,
		ExcludeFilters: []string{"^sandbox-"},
	}
	query := janQuery(model.GranularityMonthly)

	client, err := adapter.InitClient(context.Background(), integration)
	require.NoError(t, err)
	raw, err := adapter.FetchRawCosts(context.Background(), client, integration, query)
	require.NoError(t, err)
	reports, err := adapter.Transform(context.Background(), integration, query, raw)
	require.NoError(t, err)

	for _, r := range reports {
		assert.NotEqual(t, "sandbox-org", r.Account)
	}
	assert.Len(t, reports, 2)
}

func TestInitClientRequiresKeyPair(t *testing.T) {
	adapter := newTestAdapter(http.DefaultClient)
	_, err := adapter.InitClient(context.Background(), config.Integration{Name: "main", APIKey: "k"})
	var authErr *resilience.AuthError
	assert.ErrorAs(t, err, &authErr)
}
