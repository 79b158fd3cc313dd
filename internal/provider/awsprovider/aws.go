// Package awsprovider implements the AWS billing adapter on top of the
// Cost Explorer API, with assumed-role credentials per integration.
package awsprovider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/resilience"
)

const defaultRegion = "us-east-1"

// CostExplorerAPI is the subset of the Cost Explorer client the adapter
// uses; tests substitute a fake.
type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
	GetTags(ctx context.Context, params *costexplorer.GetTagsInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetTagsOutput, error)
}

// Adapter fetches and normalizes AWS cost and usage data.
type Adapter struct {
	deps     provider.Deps
	retryCfg resilience.RetryConfig
	breaker  *resilience.CircuitBreaker

	// newClient is swapped in tests to avoid real credential chains.
	newClient func(ctx context.Context, integration config.Integration) (CostExplorerAPI, error)
}

// New builds the AWS adapter.
func New(deps provider.Deps) (provider.Adapter, error) {
	a := &Adapter{
		deps:     deps,
		retryCfg: resilience.DefaultRetryConfig,
		breaker:  resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig("aws-costexplorer")),
	}
	a.newClient = a.buildClient
	return a, nil
}

func (a *Adapter) Type() config.ProviderType { return config.ProviderAWS }

// InitClient assumes the integration's role via STS and returns a Cost
// Explorer client bound to those credentials.
func (a *Adapter) InitClient(ctx context.Context, integration config.Integration) (provider.Client, error) {
	client, err := a.newClient(ctx, integration)
	if err != nil {
		return nil, &resilience.AuthError{Cause: err}
	}
	return client, nil
}

func (a *Adapter) buildClient(ctx context.Context, integration config.Integration) (CostExplorerAPI, error) {
	region := integration.Region
	if region == "" {
		region = defaultRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	base, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	cfg := base
	if integration.RoleARN != "" {
		stsClient := sts.NewFromConfig(base)
		cfg.Credentials = awssdk.NewCredentialsCache(
			stscreds.NewAssumeRoleProvider(stsClient, integration.RoleARN),
		)
	}

	return costexplorer.NewFromConfig(cfg), nil
}

// rawCosts is the backend-native payload handed to Transform.
type rawCosts struct {
	results []types.ResultByTime
}

// FetchRawCosts pulls cost and usage rows grouped by linked account and
// service, following NextPageToken until exhausted. Each page request is
// retried and guarded by the adapter's circuit breaker.
func (a *Adapter) FetchRawCosts(ctx context.Context, client provider.Client, integration config.Integration, query model.CostQuery) (any, error) {
	ce, ok := client.(CostExplorerAPI)
	if !ok {
		return nil, fmt.Errorf("aws: unexpected client type %T", client)
	}

	granularity := types.GranularityMonthly
	if query.Granularity == model.GranularityDaily {
		granularity = types.GranularityDaily
	}

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &types.DateInterval{
			Start: awssdk.String(query.StartTime.UTC().Format("2006-01-02")),
			End:   awssdk.String(query.EndTime.UTC().Format("2006-01-02")),
		},
		Granularity: granularity,
		Metrics:     []string{"UnblendedCost"},
		GroupBy: []types.GroupDefinition{
			{Type: types.GroupDefinitionTypeDimension, Key: awssdk.String("LINKED_ACCOUNT")},
			{Type: types.GroupDefinitionTypeDimension, Key: awssdk.String("SERVICE")},
		},
	}
	if filter := tagFilter(query); filter != nil {
		input.Filter = filter
	}

	var results []types.ResultByTime
	for {
		out, err := resilience.Do(ctx, a.retryCfg, func() (*costexplorer.GetCostAndUsageOutput, error) {
			res, execErr := a.breaker.Execute(func() (any, error) {
				return ce.GetCostAndUsage(ctx, input)
			})
			if execErr != nil {
				return nil, execErr
			}
			return res.(*costexplorer.GetCostAndUsageOutput), nil
		})
		if err != nil {
			return nil, fmt.Errorf("aws: get cost and usage: %w", err)
		}
		results = append(results, out.ResultsByTime...)
		if out.NextPageToken == nil || *out.NextPageToken == "" {
			break
		}
		input.NextPageToken = out.NextPageToken
	}

	return &rawCosts{results: results}, nil
}

// tagFilter converts the query tag expression into a Cost Explorer
// expression. Multiple pairs combine with And.
func tagFilter(query model.CostQuery) *types.Expression {
	pairs := provider.ParseTagExpression(query.Tags)
	if len(pairs) == 0 {
		return nil
	}
	exprs := make([]types.Expression, 0, len(pairs))
	for key, value := range pairs {
		exprs = append(exprs, types.Expression{
			Tags: &types.TagValues{
				Key:    awssdk.String(key),
				Values: []string{value},
			},
		})
	}
	if len(exprs) == 1 {
		return &exprs[0]
	}
	return &types.Expression{And: exprs}
}

// Transform groups the Cost Explorer result rows into normalized reports
// keyed by account and service. Amounts for periods before the requested
// start are discarded even when the API over-returns at month boundaries.
func (a *Adapter) Transform(_ context.Context, integration config.Integration, query model.CostQuery, raw any) ([]model.Report, error) {
	payload, ok := raw.(*rawCosts)
	if !ok {
		return nil, fmt.Errorf("aws: unexpected payload type %T", raw)
	}

	var counters provider.SkipCounters
	grouped := make(map[string]*model.Report)
	var order []string

	for _, result := range payload.results {
		if result.TimePeriod == nil || result.TimePeriod.Start == nil {
			counters.MissingFields++
			continue
		}
		periodStart, err := time.Parse("2006-01-02", *result.TimePeriod.Start)
		if err != nil {
			counters.InvalidDate++
			continue
		}
		if !provider.InQueryRange(periodStart, query) {
			counters.OutOfRange++
			continue
		}
		period := query.Granularity.FormatPeriod(periodStart)

		for _, group := range result.Groups {
			if len(group.Keys) < 2 {
				counters.MissingFields++
				continue
			}
			account := group.Keys[0]
			service := group.Keys[1]

			metric, ok := group.Metrics["UnblendedCost"]
			if !ok || metric.Amount == nil {
				counters.MissingFields++
				continue
			}
			amount, err := strconv.ParseFloat(*metric.Amount, 64)
			if err != nil {
				counters.MissingFields++
				continue
			}
			if amount == 0 {
				counters.ZeroAmount++
				continue
			}
			if !provider.EvaluateIntegrationFilters(account, integration) {
				continue
			}

			friendly := FriendlyServiceName(service)
			id := model.CompositeID(string(a.Type()), integration.Name, account, friendly)
			report, exists := grouped[id]
			if !exists {
				report = &model.Report{
					ID:       id,
					Account:  accountLabel(account, integration),
					Service:  friendly,
					Category: a.deps.Classifier.Classify(config.ProviderAWS, service),
					Provider: string(config.ProviderAWS),
					Source:   model.SourceIntegration,
				}
				provider.ApplyIntegrationTags(report, integration)
				grouped[id] = report
				order = append(order, id)
			}
			report.AddAmount(period, amount)
			counters.Processed++
		}
	}

	counters.LogSummary(config.ProviderAWS, integration.Name)

	reports := make([]model.Report, 0, len(order))
	for _, id := range order {
		reports = append(reports, *grouped[id])
	}
	return reports, nil
}

// accountLabel prefers the configured integration name when it owns the
// account id, keeping multi-account setups readable.
func accountLabel(account string, integration config.Integration) string {
	if integration.AccountID == account && integration.Name != "" {
		return integration.Name + " (" + account + ")"
	}
	return account
}

// FetchTagKeys lists cost-allocation tag keys in the query window.
func (a *Adapter) FetchTagKeys(ctx context.Context, client provider.Client, _ config.Integration, query model.CostQuery) ([]string, error) {
	return a.fetchTags(ctx, client, query, nil)
}

// FetchTagValues lists the values recorded for one tag key.
func (a *Adapter) FetchTagValues(ctx context.Context, client provider.Client, _ config.Integration, query model.CostQuery, tagKey string) ([]string, error) {
	return a.fetchTags(ctx, client, query, awssdk.String(tagKey))
}

func (a *Adapter) fetchTags(ctx context.Context, client provider.Client, query model.CostQuery, tagKey *string) ([]string, error) {
	ce, ok := client.(CostExplorerAPI)
	if !ok {
		return nil, fmt.Errorf("aws: unexpected client type %T", client)
	}

	input := &costexplorer.GetTagsInput{
		TimePeriod: &types.DateInterval{
			Start: awssdk.String(query.StartTime.UTC().Format("2006-01-02")),
			End:   awssdk.String(query.EndTime.UTC().Format("2006-01-02")),
		},
		TagKey: tagKey,
	}

	var tags []string
	for {
		out, err := resilience.Do(ctx, a.retryCfg, func() (*costexplorer.GetTagsOutput, error) {
			return ce.GetTags(ctx, input)
		})
		if err != nil {
			return nil, fmt.Errorf("aws: get tags: %w", err)
		}
		for _, tag := range out.Tags {
			if tag != "" {
				tags = append(tags, tag)
			}
		}
		if out.NextPageToken == nil || *out.NextPageToken == "" {
			break
		}
		input.NextPageToken = out.NextPageToken
	}
	return tags, nil
}
