// Package confluentprovider implements the Confluent Cloud billing adapter.
// The costs API only accepts windows within a single calendar month, so
// queries are chunked month by month before fetching.
package confluentprovider

import (
	"context"
	"encoding/base64"
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

const (
	defaultAPIURL = "https://api.confluent.cloud"

	// The billing API rejects ranges wider than one month.
	maxWindowMonths = 1
)

// Adapter fetches and normalizes Confluent Cloud cost data.
type Adapter struct {
	deps     provider.Deps
	retryCfg resilience.RetryConfig
}

// New builds the Confluent adapter.
func New(deps provider.Deps) (provider.Adapter, error) {
	return &Adapter{deps: deps, retryCfg: resilience.DefaultRetryConfig}, nil
}

func (a *Adapter) Type() config.ProviderType { return config.ProviderConfluent }

type session struct {
	baseURL string
	headers map[string]string
}

// InitClient validates the cloud API key pair and prepares basic auth.
func (a *Adapter) InitClient(_ context.Context, integration config.Integration) (provider.Client, error) {
	if integration.APIKey == "" || integration.APISecret == "" {
		return nil, &resilience.AuthError{
			Cause: fmt.Errorf("confluent integration %s: api-key and api-secret are required", integration.Name),
		}
	}
	baseURL := integration.BaseURL
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	token := base64.StdEncoding.EncodeToString([]byte(integration.APIKey + ":" + integration.APISecret))
	return &session{
		baseURL: baseURL,
		headers: map[string]string{"Authorization": "Basic " + token},
	}, nil
}

// costRow is one usage line from the billing costs API.
type costRow struct {
	Environment string
	Resource    string
	Product     string
	Date        time.Time
	Amount      float64
}

type rawCosts struct {
	rows []costRow
}

// FetchRawCosts chunks the query window into month-sized requests and
// follows metadata.next pagination inside each chunk.
func (a *Adapter) FetchRawCosts(ctx context.Context, client provider.Client, _ config.Integration, query model.CostQuery) (any, error) {
	sess, ok := client.(*session)
	if !ok {
		return nil, fmt.Errorf("confluent: unexpected client type %T", client)
	}

	raw := &rawCosts{}
	for _, window := range provider.SplitByMonths(query.StartTime, query.EndTime, maxWindowMonths) {
		next := fmt.Sprintf("%s/billing/v1/costs?start_date=%s&end_date=%s&page_size=2000",
			sess.baseURL,
			url.QueryEscape(window.Start.Format("2006-01-02")),
			url.QueryEscape(window.End.Format("2006-01-02")))
		for next != "" {
			body, err := provider.DoJSON(ctx, a.deps.HTTPClient, a.retryCfg, provider.HTTPRequest{
				Method:  http.MethodGet,
				URL:     next,
				Headers: sess.headers,
			})
			if err != nil {
				return nil, fmt.Errorf("confluent: fetch costs: %w", err)
			}

			gjson.GetBytes(body, "data").ForEach(func(_, line gjson.Result) bool {
				row := costRow{
					Environment: line.Get("resource.environment.id").String(),
					Resource:    line.Get("resource.display_name").String(),
					Product:     line.Get("product").String(),
					Amount:      line.Get("amount").Float(),
				}
				if date, err := time.Parse("2006-01-02", line.Get("start_date").String()); err == nil {
					row.Date = date
				}
				raw.rows = append(raw.rows, row)
				return true
			})

			next = gjson.GetBytes(body, "metadata.next").String()
		}
	}
	return raw, nil
}

// Transform groups cost lines by environment and product.
func (a *Adapter) Transform(_ context.Context, integration config.Integration, query model.CostQuery, raw any) ([]model.Report, error) {
	payload, ok := raw.(*rawCosts)
	if !ok {
		return nil, fmt.Errorf("confluent: unexpected payload type %T", raw)
	}

	var counters provider.SkipCounters
	grouped := make(map[string]*model.Report)
	var order []string

	for _, row := range payload.rows {
		if row.Product == "" {
			counters.MissingFields++
			continue
		}
		if row.Amount == 0 {
			counters.ZeroAmount++
			continue
		}
		if row.Date.IsZero() {
			counters.InvalidDate++
			continue
		}
		if !provider.InQueryRange(row.Date, query) {
			counters.OutOfRange++
			continue
		}
		if !provider.EvaluateIntegrationFilters(row.Environment, integration) {
			continue
		}

		id := model.CompositeID(string(config.ProviderConfluent), integration.Name, row.Environment, row.Product)
		report, exists := grouped[id]
		if !exists {
			report = &model.Report{
				ID:       id,
				Account:  row.Environment,
				Service:  row.Product,
				Category: a.deps.Classifier.Classify(config.ProviderConfluent, row.Product),
				Provider: string(config.ProviderConfluent),
				Source:   model.SourceIntegration,
			}
			if row.Resource != "" {
				report.Dimensions = map[string]string{"resource": row.Resource}
			}
			provider.ApplyIntegrationTags(report, integration)
			grouped[id] = report
			order = append(order, id)
		}
		report.AddAmount(query.Granularity.FormatPeriod(row.Date), row.Amount)
		counters.Processed++
	}

	counters.LogSummary(config.ProviderConfluent, integration.Name)

	reports := make([]model.Report, 0, len(order))
	for _, id := range order {
		reports = append(reports, *grouped[id])
	}
	return reports, nil
}
