// Package atlasprovider implements the MongoDB Atlas billing adapter.
// Costs come from the org invoice list; line items are fetched per
// invoice with a hard cap of two concurrent calls, which is what the
// Atlas API tolerates.
package atlasprovider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/resilience"
)

const (
	defaultAPIURL        = "https://cloud.mongodb.com"
	itemsPerPage         = 100
	maxConcurrentInvoice = 2
)

// Adapter fetches and normalizes MongoDB Atlas invoice data.
type Adapter struct {
	deps     provider.Deps
	retryCfg resilience.RetryConfig
}

// New builds the Atlas adapter.
func New(deps provider.Deps) (provider.Adapter, error) {
	return &Adapter{deps: deps, retryCfg: resilience.DefaultRetryConfig}, nil
}

func (a *Adapter) Type() config.ProviderType { return config.ProviderMongoAtlas }

type session struct {
	baseURL string
	headers map[string]string
}

// InitClient validates the API key pair and prepares auth headers.
func (a *Adapter) InitClient(_ context.Context, integration config.Integration) (provider.Client, error) {
	if integration.APIKey == "" || integration.APISecret == "" {
		return nil, &resilience.AuthError{
			Cause: fmt.Errorf("mongodb-atlas integration %s: api-key and api-secret are required", integration.Name),
		}
	}
	baseURL := integration.BaseURL
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	token := base64.StdEncoding.EncodeToString([]byte(integration.APIKey + ":" + integration.APISecret))
	return &session{
		baseURL: baseURL,
		headers: map[string]string{
			"Authorization": "Basic " + token,
			"Accept":        "application/vnd.atlas.2023-01-01+json",
		},
	}, nil
}

// invoiceItem is one usage line from an invoice.
type invoiceItem struct {
	Cluster   string
	Project   string
	SKU       string
	StartDate time.Time
	Cents     float64
}

type rawCosts struct {
	items []invoiceItem
}

// FetchRawCosts lists invoices page by page, then pulls line items for
// each invoice overlapping the window with at most two calls in flight.
func (a *Adapter) FetchRawCosts(ctx context.Context, client provider.Client, integration config.Integration, query model.CostQuery) (any, error) {
	sess, ok := client.(*session)
	if !ok {
		return nil, fmt.Errorf("mongodb-atlas: unexpected client type %T", client)
	}

	invoiceIDs, err := a.listInvoiceIDs(ctx, sess, integration, query)
	if err != nil {
		return nil, err
	}

	raw := &rawCosts{}
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentInvoice)
	for _, invoiceID := range invoiceIDs {
		group.Go(func() error {
			items, err := a.fetchInvoiceItems(groupCtx, sess, integration.AccountID, invoiceID)
			if err != nil {
				return err
			}
			mu.Lock()
			raw.items = append(raw.items, items...)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return raw, nil
}

// listInvoiceIDs walks the paginated invoice list and keeps invoices
// overlapping the query window.
func (a *Adapter) listInvoiceIDs(ctx context.Context, sess *session, integration config.Integration, query model.CostQuery) ([]string, error) {
	var ids []string
	for pageNum := 1; ; pageNum++ {
		url := fmt.Sprintf("%s/api/atlas/v2/orgs/%s/invoices?pageNum=%d&itemsPerPage=%d",
			sess.baseURL, integration.AccountID, pageNum, itemsPerPage)
		body, err := provider.DoJSON(ctx, a.deps.HTTPClient, a.retryCfg, provider.HTTPRequest{
			Method:  http.MethodGet,
			URL:     url,
			Headers: sess.headers,
		})
		if err != nil {
			return nil, fmt.Errorf("mongodb-atlas: list invoices: %w", err)
		}

		results := gjson.GetBytes(body, "results")
		results.ForEach(func(_, invoice gjson.Result) bool {
			start, err := time.Parse(time.RFC3339, invoice.Get("startDate").String())
			if err != nil {
				return true
			}
			end, err := time.Parse(time.RFC3339, invoice.Get("endDate").String())
			if err != nil {
				return true
			}
			if end.Before(query.StartTime) || start.After(query.EndTime) {
				return true
			}
			if id := invoice.Get("id").String(); id != "" {
				ids = append(ids, id)
			}
			return true
		})

		total := gjson.GetBytes(body, "totalCount").Int()
		if int64(pageNum*itemsPerPage) >= total {
			return ids, nil
		}
	}
}

func (a *Adapter) fetchInvoiceItems(ctx context.Context, sess *session, orgID, invoiceID string) ([]invoiceItem, error) {
	url := fmt.Sprintf("%s/api/atlas/v2/orgs/%s/invoices/%s", sess.baseURL, orgID, invoiceID)
	body, err := provider.DoJSON(ctx, a.deps.HTTPClient, a.retryCfg, provider.HTTPRequest{
		Method:  http.MethodGet,
		URL:     url,
		Headers: sess.headers,
	})
	if err != nil {
		return nil, fmt.Errorf("mongodb-atlas: invoice %s: %w", invoiceID, err)
	}

	var items []invoiceItem
	gjson.GetBytes(body, "lineItems").ForEach(func(_, line gjson.Result) bool {
		item := invoiceItem{
			Cluster: line.Get("clusterName").String(),
			Project: line.Get("groupName").String(),
			SKU:     line.Get("sku").String(),
			Cents:   line.Get("totalPriceCents").Float(),
		}
		if start, err := time.Parse(time.RFC3339, line.Get("startDate").String()); err == nil {
			item.StartDate = start
		}
		items = append(items, item)
		return true
	})
	return items, nil
}

// Transform groups invoice line items by project, cluster, and SKU.
func (a *Adapter) Transform(_ context.Context, integration config.Integration, query model.CostQuery, raw any) ([]model.Report, error) {
	payload, ok := raw.(*rawCosts)
	if !ok {
		return nil, fmt.Errorf("mongodb-atlas: unexpected payload type %T", raw)
	}

	var counters provider.SkipCounters
	grouped := make(map[string]*model.Report)
	var order []string

	for _, item := range payload.items {
		if item.SKU == "" {
			counters.MissingFields++
			continue
		}
		if item.Cents == 0 {
			counters.ZeroAmount++
			continue
		}
		if item.StartDate.IsZero() {
			counters.InvalidDate++
			continue
		}
		if !provider.InQueryRange(item.StartDate, query) {
			counters.OutOfRange++
			continue
		}
		if !provider.EvaluateIntegrationFilters(item.Project, integration) {
			continue
		}

		id := model.CompositeID(string(config.ProviderMongoAtlas), integration.Name, item.Project, item.Cluster, item.SKU)
		report, exists := grouped[id]
		if !exists {
			report = &model.Report{
				ID:       id,
				Account:  item.Project,
				Service:  item.SKU,
				Category: a.deps.Classifier.Classify(config.ProviderMongoAtlas, item.SKU),
				Provider: string(config.ProviderMongoAtlas),
				Source:   model.SourceIntegration,
			}
			if item.Cluster != "" {
				report.Dimensions = map[string]string{"cluster": item.Cluster}
			}
			provider.ApplyIntegrationTags(report, integration)
			grouped[id] = report
			order = append(order, id)
		}
		report.AddAmount(query.Granularity.FormatPeriod(item.StartDate), item.Cents/100)
		counters.Processed++
	}

	counters.LogSummary(config.ProviderMongoAtlas, integration.Name)

	reports := make([]model.Report, 0, len(order))
	for _, id := range order {
		reports = append(reports, *grouped[id])
	}
	return reports, nil
}
