// Package azureprovider implements the Azure billing adapter on top of
// the Cost Management Query API with AD client-credentials auth.
package azureprovider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/json"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/resilience"
)

const (
	defaultManagementURL = "https://management.azure.com"
	apiVersion           = "2023-03-01"
)

// Adapter fetches and normalizes Azure cost management data.
type Adapter struct {
	deps     provider.Deps
	retryCfg resilience.RetryConfig
}

// New builds the Azure adapter.
func New(deps provider.Deps) (provider.Adapter, error) {
	return &Adapter{deps: deps, retryCfg: resilience.DefaultRetryConfig}, nil
}

func (a *Adapter) Type() config.ProviderType { return config.ProviderAzure }

// session is the per-integration client handle: a token-injecting HTTP
// client plus the resolved endpoint.
type session struct {
	httpClient *http.Client
	baseURL    string
}

// InitClient exchanges the integration's AD app credentials for a token
// source scoped to the management API.
func (a *Adapter) InitClient(ctx context.Context, integration config.Integration) (provider.Client, error) {
	if integration.TenantID == "" || integration.ClientID == "" || integration.ClientSecret == "" {
		return nil, &resilience.AuthError{
			Cause: fmt.Errorf("azure integration %s: tenant-id, client-id, and client-secret are required", integration.Name),
		}
	}

	baseURL := integration.BaseURL
	if baseURL == "" {
		baseURL = defaultManagementURL
	}

	creds := &clientcredentials.Config{
		ClientID:     integration.ClientID,
		ClientSecret: integration.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", integration.TenantID),
		Scopes:       []string{baseURL + "/.default"},
	}
	if integration.BaseURL != "" {
		// Test servers also stand in for the token endpoint.
		creds.TokenURL = integration.BaseURL + "/token"
	}

	httpCtx := context.WithValue(ctx, oauth2.HTTPClient, a.deps.HTTPClient)
	client := creds.Client(httpCtx)
	client.Timeout = a.deps.HTTPClient.Timeout

	return &session{httpClient: client, baseURL: baseURL}, nil
}

// queryRequest is the Cost Management Query API request body.
type queryRequest struct {
	Type       string      `json:"type"`
	Timeframe  string      `json:"timeframe"`
	TimePeriod *timePeriod `json:"timePeriod,omitempty"`
	Dataset    dataset     `json:"dataset"`
}

type timePeriod struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type dataset struct {
	Granularity string            `json:"granularity"`
	Aggregation map[string]aggDef `json:"aggregation"`
	Grouping    []groupingDef     `json:"grouping"`
	Filter      map[string]any    `json:"filter,omitempty"`
}

type aggDef struct {
	Name     string `json:"name"`
	Function string `json:"function"`
}

type groupingDef struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// queryResponse is one page of the Cost Management Query API response.
type queryResponse struct {
	Properties struct {
		NextLink string      `json:"nextLink"`
		Columns  []columnDef `json:"columns"`
		Rows     [][]any     `json:"rows"`
	} `json:"properties"`
}

type columnDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// rawCosts carries the concatenated pages for Transform.
type rawCosts struct {
	columns []columnDef
	rows    [][]any
}

// FetchRawCosts posts the cost query for the subscription and follows
// nextLink until all pages are collected.
func (a *Adapter) FetchRawCosts(ctx context.Context, client provider.Client, integration config.Integration, query model.CostQuery) (any, error) {
	sess, ok := client.(*session)
	if !ok {
		return nil, fmt.Errorf("azure: unexpected client type %T", client)
	}

	granularity := "Monthly"
	if query.Granularity == model.GranularityDaily {
		granularity = "Daily"
	}

	body := queryRequest{
		Type:      "ActualCost",
		Timeframe: "Custom",
		TimePeriod: &timePeriod{
			From: query.StartTime.UTC().Format("2006-01-02"),
			To:   query.EndTime.UTC().Format("2006-01-02"),
		},
		Dataset: dataset{
			Granularity: granularity,
			Aggregation: map[string]aggDef{
				"totalCost": {Name: "Cost", Function: "Sum"},
			},
			Grouping: []groupingDef{
				{Type: "Dimension", Name: "ServiceName"},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/subscriptions/%s/providers/Microsoft.CostManagement/query?api-version=%s",
		sess.baseURL, integration.AccountID, apiVersion)

	raw := &rawCosts{}
	for url != "" {
		respBody, err := provider.DoJSON(ctx, sess.httpClient, a.retryCfg, provider.HTTPRequest{
			Method: http.MethodPost,
			URL:    url,
			Body:   payload,
		})
		if err != nil {
			return nil, fmt.Errorf("azure: cost query: %w", err)
		}

		var page queryResponse
		if err := json.Unmarshal(respBody, &page); err != nil {
			return nil, fmt.Errorf("azure: decode cost query response: %w", err)
		}
		if raw.columns == nil {
			raw.columns = page.Properties.Columns
		}
		raw.rows = append(raw.rows, page.Properties.Rows...)
		url = page.Properties.NextLink
	}
	return raw, nil
}

// Transform converts the columnar payload into normalized reports grouped
// by service. Rows with missing columns or unparsable dates are dropped
// and counted.
func (a *Adapter) Transform(_ context.Context, integration config.Integration, query model.CostQuery, raw any) ([]model.Report, error) {
	payload, ok := raw.(*rawCosts)
	if !ok {
		return nil, fmt.Errorf("azure: unexpected payload type %T", raw)
	}

	costIdx, serviceIdx, dateIdx := -1, -1, -1
	for i, col := range payload.columns {
		switch col.Name {
		case "Cost":
			costIdx = i
		case "ServiceName":
			serviceIdx = i
		case "UsageDate", "BillingMonth":
			dateIdx = i
		}
	}
	if costIdx == -1 || serviceIdx == -1 || dateIdx == -1 {
		return nil, fmt.Errorf("azure: response is missing required columns")
	}

	var counters provider.SkipCounters
	grouped := make(map[string]*model.Report)
	var order []string

	for _, row := range payload.rows {
		if len(row) <= costIdx || len(row) <= serviceIdx || len(row) <= dateIdx {
			counters.MissingFields++
			continue
		}
		amount, ok := row[costIdx].(float64)
		if !ok {
			counters.MissingFields++
			continue
		}
		if amount == 0 {
			counters.ZeroAmount++
			continue
		}
		service, ok := row[serviceIdx].(string)
		if !ok || service == "" {
			counters.MissingFields++
			continue
		}
		periodStart, ok := parseUsageDate(row[dateIdx])
		if !ok {
			counters.InvalidDate++
			continue
		}
		if !provider.InQueryRange(periodStart, query) {
			counters.OutOfRange++
			continue
		}

		account := integration.AccountID
		if !provider.EvaluateIntegrationFilters(account, integration) {
			continue
		}

		id := model.CompositeID(string(config.ProviderAzure), integration.Name, account, service)
		report, exists := grouped[id]
		if !exists {
			report = &model.Report{
				ID:       id,
				Account:  integration.Name,
				Service:  service,
				Category: a.deps.Classifier.Classify(config.ProviderAzure, service),
				Provider: string(config.ProviderAzure),
				Source:   model.SourceIntegration,
			}
			provider.ApplyIntegrationTags(report, integration)
			grouped[id] = report
			order = append(order, id)
		}
		report.AddAmount(query.Granularity.FormatPeriod(periodStart), amount)
		counters.Processed++
	}

	counters.LogSummary(config.ProviderAzure, integration.Name)

	reports := make([]model.Report, 0, len(order))
	for _, id := range order {
		reports = append(reports, *grouped[id])
	}
	return reports, nil
}

// parseUsageDate handles the two date encodings the API mixes: numeric
// YYYYMMDD and string dates.
func parseUsageDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case float64:
		t, err := time.Parse("20060102", fmt.Sprintf("%.0f", d))
		return t, err == nil
	case string:
		for _, layout := range []string{"20060102", "2006-01-02", time.RFC3339} {
			if t, err := time.Parse(layout, d); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
