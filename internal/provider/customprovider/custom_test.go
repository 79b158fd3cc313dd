package customprovider

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electrolux-oss/infrawallet-sub000/internal/classifier"
	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider"
)

type staticSource struct {
	rows []CostRow
}

func (s *staticSource) CustomCosts(_ context.Context, _ string, _, _ int) ([]CostRow, error) {
	return s.rows, nil
}

func testDeps(t *testing.T) provider.Deps {
	t.Helper()
	return provider.Deps{Classifier: classifier.New(config.CategoryConfig{})}
}

func marchQuery(granularity model.Granularity) model.CostQuery {
	return model.CostQuery{
		Granularity: granularity,
		StartTime:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func fetchAndTransform(t *testing.T, adapter *Adapter, integration config.Integration, query model.CostQuery) []model.Report {
	t.Helper()
	ctx := context.Background()
	client, err := adapter.InitClient(ctx, integration)
	require.NoError(t, err)
	raw, err := adapter.FetchRawCosts(ctx, client, integration, query)
	require.NoError(t, err)
	reports, err := adapter.Transform(ctx, integration, query, raw)
	require.NoError(t, err)
	return reports
}

func TestAverageAmortizationSpreadsEvenly(t *testing.T) {
	adapter := NewWithSource(testDeps(t), "default", &staticSource{rows: []CostRow{
		{Account: "team-a", Service: "SaaS License", UsageMonth: 202403, Cost: decimal.NewFromInt(310)},
	}})
	integration := config.Integration{Name: "manual", AmortizationMode: "average"}

	reports := fetchAndTransform(t, adapter, integration, marchQuery(model.GranularityDaily))
	require.Len(t, reports, 1)
	require.Len(t, reports[0].Reports, 31)

	perDay := 310.0 / 31.0
	for period, amount := range reports[0].Reports {
		assert.InDelta(t, perDay, amount, 1e-6, "period %s", period)
	}
	assert.InDelta(t, 310.0, reports[0].Total(), 1e-6)
}

func TestStartDayAmortization(t *testing.T) {
	adapter := NewWithSource(testDeps(t), "default", &staticSource{rows: []CostRow{
		{Account: "team-a", Service: "Support Plan", UsageMonth: 202403, Cost: decimal.NewFromInt(90)},
	}})
	integration := config.Integration{Name: "manual", AmortizationMode: "start_day"}

	reports := fetchAndTransform(t, adapter, integration, marchQuery(model.GranularityDaily))
	require.Len(t, reports, 1)
	require.Len(t, reports[0].Reports, 1)
	assert.InDelta(t, 90.0, reports[0].Reports["2024-03-01"], 1e-9)
}

func TestEndDayIsTheDefaultMode(t *testing.T) {
	adapter := NewWithSource(testDeps(t), "default", &staticSource{rows: []CostRow{
		{Account: "team-a", Service: "Support Plan", UsageMonth: 202403, Cost: decimal.NewFromInt(90)},
	}})
	integration := config.Integration{Name: "manual"}

	reports := fetchAndTransform(t, adapter, integration, marchQuery(model.GranularityDaily))
	require.Len(t, reports, 1)
	require.Len(t, reports[0].Reports, 1)
	assert.InDelta(t, 90.0, reports[0].Reports["2024-03-31"], 1e-9)
}

func TestMonthlyGranularitySkipsAmortization(t *testing.T) {
	adapter := NewWithSource(testDeps(t), "default", &staticSource{rows: []CostRow{
		{Account: "team-a", Service: "SaaS License", UsageMonth: 202403, Cost: decimal.NewFromInt(310)},
	}})
	integration := config.Integration{Name: "manual", AmortizationMode: "average"}

	reports := fetchAndTransform(t, adapter, integration, marchQuery(model.GranularityMonthly))
	require.Len(t, reports, 1)
	assert.InDelta(t, 310.0, reports[0].Reports["2024-03"], 1e-9)
}

func TestExplicitCategoryWinsOverClassifier(t *testing.T) {
	adapter := NewWithSource(testDeps(t), "default", &staticSource{rows: []CostRow{
		{Account: "team-a", Service: "Audit", Category: "Compliance", UsageMonth: 202403, Cost: decimal.NewFromInt(10)},
	}})
	reports := fetchAndTransform(t, adapter, config.Integration{Name: "manual"}, marchQuery(model.GranularityMonthly))
	require.Len(t, reports, 1)
	assert.Equal(t, "Compliance", reports[0].Category)
}

func TestZeroCostRowsAreDropped(t *testing.T) {
	adapter := NewWithSource(testDeps(t), "default", &staticSource{rows: []CostRow{
		{Account: "team-a", Service: "Freebie", UsageMonth: 202403, Cost: decimal.Zero},
	}})
	reports := fetchAndTransform(t, adapter, config.Integration{Name: "manual"}, marchQuery(model.GranularityMonthly))
	assert.Empty(t, reports)
}

func TestInitClientFailsWithoutDatabase(t *testing.T) {
	adapter, err := New(testDeps(t))
	require.NoError(t, err)
	_, err = adapter.InitClient(context.Background(), config.Integration{Name: "manual"})
	assert.Error(t, err)
}
