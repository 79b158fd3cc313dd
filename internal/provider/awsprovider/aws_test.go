package awsprovider

import (
	"context"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electrolux-oss/infrawallet-sub000/internal/classifier"
	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider"
)

type fakeCostExplorer struct {
	pages     []*costexplorer.GetCostAndUsageOutput
	tagsPages []*costexplorer.GetTagsOutput
	calls     int
}

func (f *fakeCostExplorer) GetCostAndUsage(_ context.Context, _ *costexplorer.GetCostAndUsageInput, _ ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
	out := f.pages[f.calls]
	f.calls++
	return out, nil
}

func (f *fakeCostExplorer) GetTags(_ context.Context, _ *costexplorer.GetTagsInput, _ ...func(*costexplorer.Options)) (*costexplorer.GetTagsOutput, error) {
	out := f.tagsPages[0]
	return out, nil
}

func resultFor(month string, account, service, amount string) types.ResultByTime {
	return types.ResultByTime{
		TimePeriod: &types.DateInterval{
			Start: awssdk.String(month),
			End:   awssdk.String(month),
		},
		Groups: []types.Group{
			{
				Keys: []string{account, service},
				Metrics: map[string]types.MetricValue{
					"UnblendedCost": {Amount: awssdk.String(amount)},
				},
			},
		},
	}
}

func newTestAdapter(t *testing.T, fake *fakeCostExplorer) *Adapter {
	t.Helper()
	cls := classifier.New(config.CategoryConfig{
		Local: map[string]map[string][]string{
			"Compute": {"aws": {"Elastic Compute Cloud"}},
		},
	})
	built, err := New(provider.NewDeps(cls, nil))
	require.NoError(t, err)
	adapter := built.(*Adapter)
	adapter.newClient = func(context.Context, config.Integration) (CostExplorerAPI, error) {
		return fake, nil
	}
	return adapter
}

func monthlyQuery() model.CostQuery {
	return model.CostQuery{
		Granularity: model.GranularityMonthly,
		StartTime:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetchAndTransformMonthly(t *testing.T) {
	fake := &fakeCostExplorer{
		pages: []*costexplorer.GetCostAndUsageOutput{
			{
				ResultsByTime: []types.ResultByTime{
					resultFor("2024-01-01", "111122223333", "Elastic Compute Cloud - Compute", "120.5"),
					resultFor("2024-02-01", "111122223333", "Elastic Compute Cloud - Compute", "130.25"),
				},
				NextPageToken: awssdk.String("page-2"),
			},
			{
				ResultsByTime: []types.ResultByTime{
					resultFor("2024-03-01", "111122223333", "Elastic Compute Cloud - Compute", "140"),
				},
			},
		},
	}
	adapter := newTestAdapter(t, fake)
	integ := config.Integration{Name: "acct-1", AccountID: "111122223333"}
	query := monthlyQuery()

	client, err := adapter.InitClient(context.Background(), integ)
	require.NoError(t, err)

	raw, err := adapter.FetchRawCosts(context.Background(), client, integ, query)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls, "pagination should follow NextPageToken")

	reports, err := adapter.Transform(context.Background(), integ, query, raw)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	report := reports[0]
	assert.Equal(t, "EC2", report.Service, "service should map to the friendly alias")
	assert.Equal(t, "Compute", report.Category)
	assert.Equal(t, "acct-1 (111122223333)", report.Account)
	assert.Equal(t, map[string]float64{
		"2024-01": 120.5,
		"2024-02": 130.25,
		"2024-03": 140,
	}, report.Reports)
}

func TestTransformDropsZeroAndEarlyPeriods(t *testing.T) {
	fake := &fakeCostExplorer{
		pages: []*costexplorer.GetCostAndUsageOutput{
			{
				ResultsByTime: []types.ResultByTime{
					// Predates the window: discarded even though returned.
					resultFor("2023-12-01", "111122223333", "Amazon Simple Storage Service", "10"),
					resultFor("2024-01-01", "111122223333", "Amazon Simple Storage Service", "0"),
					resultFor("2024-02-01", "111122223333", "Amazon Simple Storage Service", "42"),
				},
			},
		},
	}
	adapter := newTestAdapter(t, fake)
	integ := config.Integration{Name: "acct-1"}
	query := monthlyQuery()

	client, err := adapter.InitClient(context.Background(), integ)
	require.NoError(t, err)
	raw, err := adapter.FetchRawCosts(context.Background(), client, integ, query)
	require.NoError(t, err)
	reports, err := adapter.Transform(context.Background(), integ, query, raw)
	require.NoError(t, err)

	require.Len(t, reports, 1)
	assert.Equal(t, map[string]float64{"2024-02": 42}, reports[0].Reports)
	assert.Equal(t, "S3", reports[0].Service)
}

func TestPeriodKeysMatchGranularity(t *testing.T) {
	fake := &fakeCostExplorer{
		pages: []*costexplorer.GetCostAndUsageOutput{
			{
				ResultsByTime: []types.ResultByTime{
					resultFor("2024-01-15", "111122223333", "AWS Lambda", "1.5"),
					resultFor("2024-01-16", "111122223333", "AWS Lambda", "2.5"),
				},
			},
		},
	}
	adapter := newTestAdapter(t, fake)
	integ := config.Integration{Name: "acct-1"}
	query := model.CostQuery{
		Granularity: model.GranularityDaily,
		StartTime:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}

	client, _ := adapter.InitClient(context.Background(), integ)
	raw, err := adapter.FetchRawCosts(context.Background(), client, integ, query)
	require.NoError(t, err)
	reports, err := adapter.Transform(context.Background(), integ, query, raw)
	require.NoError(t, err)

	require.Len(t, reports, 1)
	for period := range reports[0].Reports {
		_, err := query.Granularity.ParsePeriod(period)
		assert.NoError(t, err, "period key %q must match daily format", period)
	}
}

func TestFetchTagKeys(t *testing.T) {
	fake := &fakeCostExplorer{
		tagsPages: []*costexplorer.GetTagsOutput{
			{Tags: []string{"team", "env", ""}},
		},
	}
	adapter := newTestAdapter(t, fake)

	client, _ := adapter.InitClient(context.Background(), config.Integration{Name: "acct-1"})
	tags, err := adapter.FetchTagKeys(context.Background(), client, config.Integration{}, monthlyQuery())
	require.NoError(t, err)
	assert.Equal(t, []string{"team", "env"}, tags, "empty tags are dropped")
}

func TestFriendlyServiceNameFallback(t *testing.T) {
	assert.Equal(t, "EC2", FriendlyServiceName("Elastic Compute Cloud - Compute"))
	assert.Equal(t, "SageMaker", FriendlyServiceName("Amazon SageMaker"))
	assert.Equal(t, "Backup", FriendlyServiceName("AWS Backup"))
}
