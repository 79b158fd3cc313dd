// Package elasticprovider implements the Elastic Cloud billing adapter,
// backed by the organization costs charts API.
package elasticprovider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/resilience"
)

const defaultAPIURL = "https://api.elastic-cloud.com"

// Adapter fetches and normalizes Elastic Cloud cost data.
type Adapter struct {
	deps     provider.Deps
	retryCfg resilience.RetryConfig
}

// New builds the Elastic Cloud adapter.
func New(deps provider.Deps) (provider.Adapter, error) {
	return &Adapter{deps: deps, retryCfg: resilience.DefaultRetryConfig}, nil
}

func (a *Adapter) Type() config.ProviderType { return config.ProviderElasticCloud }

type session struct {
	baseURL string
	headers map[string]string
}

// InitClient validates the organization API key.
func (a *Adapter) InitClient(_ context.Context, integration config.Integration) (provider.Client, error) {
	if integration.APIKey == "" {
		return nil, &resilience.AuthError{
			Cause: fmt.Errorf("elastic-cloud integration %s: api-key is required", integration.Name),
		}
	}
	baseURL := integration.BaseURL
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	return &session{
		baseURL: baseURL,
		headers: map[string]string{"Authorization": "ApiKey " + integration.APIKey},
	}, nil
}

// chartPoint is one (service, timestamp, amount) sample from the charts
// response.
type chartPoint struct {
	Service   string
	Timestamp time.Time
	Amount    float64
}

type rawCosts struct {
	points []chartPoint
}

// FetchRawCosts queries the costs charts endpoint for the window. The
// bucketing_strategy follows the query granularity so periods line up
// without client-side resampling.
func (a *Adapter) FetchRawCosts(ctx context.Context, client provider.Client, integration config.Integration, query model.CostQuery) (any, error) {
	sess, ok := client.(*session)
	if !ok {
		return nil, fmt.Errorf("elastic-cloud: unexpected client type %T", client)
	}

	bucketing := "daily"
	if query.Granularity == model.GranularityMonthly {
		bucketing = "monthly"
	}
	endpoint := fmt.Sprintf("%s/api/v2/billing/organizations/%s/charts?from=%s&to=%s&bucketing_strategy=%s",
		sess.baseURL, integration.AccountID,
		url.QueryEscape(query.StartTime.Format("2006-01-02")),
		url.QueryEscape(query.EndTime.Format("2006-01-02")),
		bucketing)

	body, err := provider.DoJSON(ctx, a.deps.HTTPClient, a.retryCfg, provider.HTTPRequest{
		Method:  http.MethodGet,
		URL:     endpoint,
		Headers: sess.headers,
	})
	if err != nil {
		return nil, fmt.Errorf("elastic-cloud: fetch charts: %w", err)
	}

	raw := &rawCosts{}
	gjson.GetBytes(body, "data").ForEach(func(_, bucket gjson.Result) bool {
		ts := time.UnixMilli(bucket.Get("timestamp").Int()).UTC()
		bucket.Get("values").ForEach(func(_, value gjson.Result) bool {
			raw.points = append(raw.points, chartPoint{
				Service:   value.Get("name").String(),
				Timestamp: ts,
				Amount:    value.Get("value").Float(),
			})
			return true
		})
		return true
	})
	return raw, nil
}

// Transform groups chart points by service under the organization.
func (a *Adapter) Transform(_ context.Context, integration config.Integration, query model.CostQuery, raw any) ([]model.Report, error) {
	payload, ok := raw.(*rawCosts)
	if !ok {
		return nil, fmt.Errorf("elastic-cloud: unexpected payload type %T", raw)
	}

	var counters provider.SkipCounters
	grouped := make(map[string]*model.Report)
	var order []string

	for _, point := range payload.points {
		if point.Service == "" {
			counters.MissingFields++
			continue
		}
		if point.Amount == 0 {
			counters.ZeroAmount++
			continue
		}
		if point.Timestamp.IsZero() {
			counters.InvalidDate++
			continue
		}
		if !provider.InQueryRange(point.Timestamp, query) {
			counters.OutOfRange++
			continue
		}

		id := model.CompositeID(string(config.ProviderElasticCloud), integration.Name, integration.AccountID, point.Service)
		report, exists := grouped[id]
		if !exists {
			report = &model.Report{
				ID:       id,
				Account:  integration.AccountID,
				Service:  point.Service,
				Category: a.deps.Classifier.Classify(config.ProviderElasticCloud, point.Service),
				Provider: string(config.ProviderElasticCloud),
				Source:   model.SourceIntegration,
			}
			provider.ApplyIntegrationTags(report, integration)
			grouped[id] = report
			order = append(order, id)
		}
		report.AddAmount(query.Granularity.FormatPeriod(point.Timestamp), point.Amount)
		counters.Processed++
	}

	counters.LogSummary(config.ProviderElasticCloud, integration.Name)

	reports := make([]model.Report, 0, len(order))
	for _, id := range order {
		reports = append(reports, *grouped[id])
	}
	return reports, nil
}
