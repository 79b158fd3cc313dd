// Package githubprovider implements the GitHub billing adapter, backed
// by the enhanced billing platform usage report for an organization.
package githubprovider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/resilience"
)

const defaultAPIURL = "https://api.github.com"

// Adapter fetches and normalizes GitHub usage billing data.
type Adapter struct {
	deps     provider.Deps
	retryCfg resilience.RetryConfig
}

// New builds the GitHub adapter.
func New(deps provider.Deps) (provider.Adapter, error) {
	return &Adapter{deps: deps, retryCfg: resilience.DefaultRetryConfig}, nil
}

func (a *Adapter) Type() config.ProviderType { return config.ProviderGitHub }

type session struct {
	baseURL string
	headers map[string]string
}

// InitClient validates the token and prepares bearer auth. The token
// needs the "Plan: read" fine-grained permission on the organization.
func (a *Adapter) InitClient(_ context.Context, integration config.Integration) (provider.Client, error) {
	if integration.APIKey == "" {
		return nil, &resilience.AuthError{
			Cause: fmt.Errorf("github integration %s: api-key (personal access token) is required", integration.Name),
		}
	}
	baseURL := integration.BaseURL
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	return &session{
		baseURL: baseURL,
		headers: map[string]string{
			"Authorization":        "Bearer " + integration.APIKey,
			"Accept":               "application/vnd.github+json",
			"X-GitHub-Api-Version": "2022-11-28",
		},
	}, nil
}

// usageItem is one metered line from the usage report.
type usageItem struct {
	Product    string
	SKU        string
	Repository string
	Date       time.Time
	NetAmount  float64
}

type rawCosts struct {
	items []usageItem
}

// FetchRawCosts pulls the usage report month by month; the endpoint
// takes year/month pairs rather than a free date range.
func (a *Adapter) FetchRawCosts(ctx context.Context, client provider.Client, integration config.Integration, query model.CostQuery) (any, error) {
	sess, ok := client.(*session)
	if !ok {
		return nil, fmt.Errorf("github: unexpected client type %T", client)
	}

	raw := &rawCosts{}
	for _, window := range provider.SplitByMonths(query.StartTime, query.EndTime, 1) {
		url := fmt.Sprintf("%s/organizations/%s/settings/billing/usage?year=%d&month=%d",
			sess.baseURL, integration.AccountID, window.Start.Year(), int(window.Start.Month()))
		body, err := provider.DoJSON(ctx, a.deps.HTTPClient, a.retryCfg, provider.HTTPRequest{
			Method:  http.MethodGet,
			URL:     url,
			Headers: sess.headers,
		})
		if err != nil {
			return nil, fmt.Errorf("github: fetch usage report: %w", err)
		}

		gjson.GetBytes(body, "usageItems").ForEach(func(_, line gjson.Result) bool {
			item := usageItem{
				Product:    line.Get("product").String(),
				SKU:        line.Get("sku").String(),
				Repository: line.Get("repositoryName").String(),
				NetAmount:  line.Get("netAmount").Float(),
			}
			if date, err := time.Parse(time.RFC3339, line.Get("date").String()); err == nil {
				item.Date = date
			}
			raw.items = append(raw.items, item)
			return true
		})
	}
	return raw, nil
}

// Transform groups usage lines by product and repository.
func (a *Adapter) Transform(_ context.Context, integration config.Integration, query model.CostQuery, raw any) ([]model.Report, error) {
	payload, ok := raw.(*rawCosts)
	if !ok {
		return nil, fmt.Errorf("github: unexpected payload type %T", raw)
	}

	var counters provider.SkipCounters
	grouped := make(map[string]*model.Report)
	var order []string

	for _, item := range payload.items {
		if item.Product == "" {
			counters.MissingFields++
			continue
		}
		if item.NetAmount == 0 {
			counters.ZeroAmount++
			continue
		}
		if item.Date.IsZero() {
			counters.InvalidDate++
			continue
		}
		if !provider.InQueryRange(item.Date, query) {
			counters.OutOfRange++
			continue
		}
		if !provider.EvaluateIntegrationFilters(item.Repository, integration) {
			continue
		}

		id := model.CompositeID(string(config.ProviderGitHub), integration.Name, integration.AccountID, item.Product, item.Repository)
		report, exists := grouped[id]
		if !exists {
			report = &model.Report{
				ID:       id,
				Account:  integration.AccountID,
				Service:  item.Product,
				Category: a.deps.Classifier.Classify(config.ProviderGitHub, item.Product),
				Provider: string(config.ProviderGitHub),
				Source:   model.SourceIntegration,
			}
			if item.Repository != "" {
				report.Dimensions = map[string]string{"repository": item.Repository}
			}
			provider.ApplyIntegrationTags(report, integration)
			grouped[id] = report
			order = append(order, id)
		}
		report.AddAmount(query.Granularity.FormatPeriod(item.Date), item.NetAmount)
		counters.Processed++
	}

	counters.LogSummary(config.ProviderGitHub, integration.Name)

	reports := make([]model.Report, 0, len(order))
	for _, id := range order {
		reports = append(reports, *grouped[id])
	}
	return reports, nil
}
