package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
)

type replaceCall struct {
	Provider string
	Window   Window
	Items    []CostItem
}

type fakeStore struct {
	mu      sync.Mutex
	calls   []replaceCall
	failFor map[string]bool
}

func (f *fakeStore) ReplaceWindow(_ context.Context, _ string, provider string, window Window, items []CostItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[provider] {
		return errors.New("database unavailable")
	}
	f.calls = append(f.calls, replaceCall{Provider: provider, Window: window, Items: items})
	return nil
}

type fakeFetcher struct {
	failFor map[config.ProviderType]bool
}

func (f *fakeFetcher) FetchProvider(_ context.Context, providerType config.ProviderType, query model.CostQuery) ([]model.Report, []model.CloudProviderError) {
	if f.failFor[providerType] {
		return nil, []model.CloudProviderError{
			{Provider: string(providerType), Name: "main", Error: "backend down"},
		}
	}
	period := query.Granularity.FormatPeriod(query.StartTime.AddDate(0, 0, 1))
	return []model.Report{{
		ID:       model.CompositeID(string(providerType), "main", "acct", "svc"),
		Account:  "acct",
		Service:  "svc",
		Provider: string(providerType),
		Source:   model.SourceIntegration,
		Reports:  map[string]float64{period: 42},
	}}, nil
}

func autoloadCfg() config.AutoloadConfig {
	return config.AutoloadConfig{
		Enabled:               true,
		Interval:              time.Hour,
		DailyLookbackDays:     7,
		MonthlyLookbackMonths: 2,
	}
}

func TestRunOnceWritesBothGranularitiesPerProvider(t *testing.T) {
	store := &fakeStore{}
	job := NewRefreshJob(store, &fakeFetcher{}, autoloadCfg(), "default",
		[]config.ProviderType{config.ProviderAWS, config.ProviderAzure})

	job.RunOnce(context.Background())

	require.Len(t, store.calls, 4)
	counts := map[string]int{}
	for _, call := range store.calls {
		counts[call.Provider]++
		require.Len(t, call.Items, 1)
		assert.Equal(t, "default", call.Items[0].WalletID)
	}
	assert.Equal(t, 2, counts["aws"])
	assert.Equal(t, 2, counts["azure"])
}

func TestMockProviderIsExcluded(t *testing.T) {
	store := &fakeStore{}
	job := NewRefreshJob(store, &fakeFetcher{}, autoloadCfg(), "default",
		[]config.ProviderType{config.ProviderMock, config.ProviderAWS})

	job.RunOnce(context.Background())

	for _, call := range store.calls {
		assert.NotEqual(t, string(config.ProviderMock), call.Provider)
	}
	assert.Len(t, store.calls, 2)
}

func TestOneProviderFailureDoesNotAbortOthers(t *testing.T) {
	store := &fakeStore{failFor: map[string]bool{"aws": true}}
	job := NewRefreshJob(store, &fakeFetcher{}, autoloadCfg(), "default",
		[]config.ProviderType{config.ProviderAWS, config.ProviderAzure})

	job.RunOnce(context.Background())

	require.Len(t, store.calls, 2)
	for _, call := range store.calls {
		assert.Equal(t, "azure", call.Provider)
	}
}

func TestTotalFetchFailureKeepsPreviousWindow(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{failFor: map[config.ProviderType]bool{config.ProviderAWS: true}}
	job := NewRefreshJob(store, fetcher, autoloadCfg(), "default",
		[]config.ProviderType{config.ProviderAWS})

	job.RunOnce(context.Background())

	// No reports came back at all, so the stale window must survive.
	assert.Empty(t, store.calls)
}

func TestTriggerCoalescesAndStopIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	cfg := autoloadCfg()
	cfg.Interval = time.Minute
	job := NewRefreshJob(store, &fakeFetcher{}, cfg, "default",
		[]config.ProviderType{config.ProviderAWS})

	job.Start(context.Background())
	job.TriggerRefresh()
	job.TriggerRefresh()
	job.Stop()
	job.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.NotEmpty(t, store.calls)
}

func TestItemsFromReportsRoundTripsPeriods(t *testing.T) {
	reports := []model.Report{{
		ID:       "aws->main->acct->svc",
		Account:  "acct",
		Service:  "svc",
		Category: "Compute",
		Provider: "aws",
		Reports:  map[string]float64{"2024-01": 100, "2024-02": 50},
	}}

	items := ItemsFromReports("default", model.GranularityMonthly, reports)
	require.Len(t, items, 2)
	assert.Equal(t, 202401, items[0].UsageDate)
	assert.Equal(t, 202402, items[1].UsageDate)
	assert.Equal(t, "100", items[0].Cost.String())
}

func TestWindowForEncodesPerGranularity(t *testing.T) {
	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	daily := WindowFor(model.GranularityDaily, start, end)
	assert.Equal(t, 20240105, daily.From)
	assert.Equal(t, 20240309, daily.To)

	monthly := WindowFor(model.GranularityMonthly, start, end)
	assert.Equal(t, 202401, monthly.From)
	assert.Equal(t, 202403, monthly.To)
}
