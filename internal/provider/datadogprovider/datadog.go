// Package datadogprovider implements the Datadog billing adapter on top
// of the v2 historical cost API.
package datadogprovider

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

const defaultAPIURL = "https://api.datadoghq.com"

// Adapter fetches and normalizes Datadog cost data.
type Adapter struct {
	deps     provider.Deps
	retryCfg resilience.RetryConfig
}

// New builds the Datadog adapter.
func New(deps provider.Deps) (provider.Adapter, error) {
	return &Adapter{deps: deps, retryCfg: resilience.DefaultRetryConfig}, nil
}

func (a *Adapter) Type() config.ProviderType { return config.ProviderDatadog }

type session struct {
	baseURL string
	headers map[string]string
}

// InitClient validates the key pair; Datadog auth is pure headers, so no
// token exchange happens here.
func (a *Adapter) InitClient(_ context.Context, integration config.Integration) (provider.Client, error) {
	if integration.APIKey == "" || integration.APISecret == "" {
		return nil, &resilience.AuthError{
			Cause: fmt.Errorf("datadog integration %s: api-key and api-secret (application key) are required", integration.Name),
		}
	}
	baseURL := integration.BaseURL
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	return &session{
		baseURL: baseURL,
		headers: map[string]string{
			"DD-API-KEY":         integration.APIKey,
			"DD-APPLICATION-KEY": integration.APISecret,
		},
	}, nil
}

// FetchRawCosts pulls the historical cost breakdown for the window. The
// endpoint always buckets by month; Transform spreads months into days
// for daily queries.
func (a *Adapter) FetchRawCosts(ctx context.Context, client provider.Client, integration config.Integration, query model.CostQuery) (any, error) {
	sess, ok := client.(*session)
	if !ok {
		return nil, fmt.Errorf("datadog: unexpected client type %T", client)
	}

	params := url.Values{}
	params.Set("view", "sub-org")
	params.Set("start_month", query.StartTime.UTC().Format("2006-01"))
	params.Set("end_month", query.EndTime.UTC().Format("2006-01"))

	endpoint := fmt.Sprintf("%s/api/v2/cost_by_org/historical_cost?%s", sess.baseURL, params.Encode())
	body, err := provider.DoJSON(ctx, a.deps.HTTPClient, a.retryCfg, provider.HTTPRequest{
		Method:  http.MethodGet,
		URL:     endpoint,
		Headers: sess.headers,
	})
	if err != nil {
		return nil, fmt.Errorf("datadog: historical cost: %w", err)
	}
	return body, nil
}

// Transform flattens the per-org charge list into reports grouped by org
// and product. Datadog only reports monthly totals; a daily query spreads
// each month evenly across its days, an upstream quirk kept on purpose.
func (a *Adapter) Transform(_ context.Context, integration config.Integration, query model.CostQuery, raw any) ([]model.Report, error) {
	body, ok := raw.([]byte)
	if !ok {
		return nil, fmt.Errorf("datadog: unexpected payload type %T", raw)
	}

	var counters provider.SkipCounters
	grouped := make(map[string]*model.Report)
	var order []string

	gjson.GetBytes(body, "data").ForEach(func(_, item gjson.Result) bool {
		attrs := item.Get("attributes")
		orgName := attrs.Get("org_name").String()
		dateStr := attrs.Get("date").String()
		if orgName == "" || dateStr == "" {
			counters.MissingFields++
			return true
		}
		monthStart, err := time.Parse(time.RFC3339, dateStr)
		if err != nil {
			counters.InvalidDate++
			return true
		}
		monthStart = time.Date(monthStart.Year(), monthStart.Month(), 1, 0, 0, 0, 0, time.UTC)

		if !provider.EvaluateIntegrationFilters(orgName, integration) {
			return true
		}

		attrs.Get("charges").ForEach(func(_, charge gjson.Result) bool {
			product := charge.Get("product_name").String()
			cost := charge.Get("cost").Float()
			if product == "" {
				counters.MissingFields++
				return true
			}
			if cost == 0 {
				counters.ZeroAmount++
				return true
			}
			// The API over-returns whole months at the window edges.
			if monthStart.Before(monthOf(query.StartTime)) || monthStart.After(query.EndTime) {
				counters.OutOfRange++
				return true
			}

			id := model.CompositeID(string(config.ProviderDatadog), integration.Name, orgName, product)
			report, exists := grouped[id]
			if !exists {
				report = &model.Report{
					ID:       id,
					Account:  orgName,
					Service:  product,
					Category: a.deps.Classifier.Classify(config.ProviderDatadog, product),
					Provider: string(config.ProviderDatadog),
					Source:   model.SourceIntegration,
				}
				provider.ApplyIntegrationTags(report, integration)
				grouped[id] = report
				order = append(order, id)
			}

			if query.Granularity == model.GranularityMonthly {
				report.AddAmount(query.Granularity.FormatPeriod(monthStart), cost)
			} else {
				spreadMonthIntoDays(report, monthStart, cost, query)
			}
			counters.Processed++
			return true
		})
		return true
	})

	counters.LogSummary(config.ProviderDatadog, integration.Name)

	reports := make([]model.Report, 0, len(order))
	for _, id := range order {
		reports = append(reports, *grouped[id])
	}
	return reports, nil
}

func monthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// spreadMonthIntoDays divides a monthly total evenly over the month's
// days, clamped to the query window.
func spreadMonthIntoDays(report *model.Report, monthStart time.Time, cost float64, query model.CostQuery) {
	daysInMonth := monthStart.AddDate(0, 1, -1).Day()
	perDay := cost / float64(daysInMonth)
	for day := 0; day < daysInMonth; day++ {
		current := monthStart.AddDate(0, 0, day)
		if !provider.InQueryRange(current, query) {
			continue
		}
		report.AddAmount(query.Granularity.FormatPeriod(current), perDay)
	}
}
