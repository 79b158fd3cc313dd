// Package gcpprovider implements the GCP billing adapter by querying the
// BigQuery billing export with service-account JWT auth.
package gcpprovider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/json"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/resilience"
)

const (
	defaultBigQueryURL = "https://bigquery.googleapis.com"
	bigQueryScope      = "https://www.googleapis.com/auth/bigquery.readonly"
	queryTimeoutMs     = 60000
	maxResultPolls     = 5
)

// Adapter fetches and normalizes GCP billing-export data.
type Adapter struct {
	deps     provider.Deps
	retryCfg resilience.RetryConfig
}

// New builds the GCP adapter.
func New(deps provider.Deps) (provider.Adapter, error) {
	return &Adapter{deps: deps, retryCfg: resilience.DefaultRetryConfig}, nil
}

func (a *Adapter) Type() config.ProviderType { return config.ProviderGCP }

type session struct {
	httpClient *http.Client
	baseURL    string
	projectID  string
}

// InitClient builds a JWT token source from the integration's service
// account key. With a BaseURL override the token exchange is skipped so
// tests can run against a plain HTTP server.
func (a *Adapter) InitClient(ctx context.Context, integration config.Integration) (provider.Client, error) {
	if integration.AccountID == "" {
		return nil, &resilience.AuthError{
			Cause: fmt.Errorf("gcp integration %s: account-id (project) is required", integration.Name),
		}
	}

	baseURL := integration.BaseURL
	if baseURL == "" {
		baseURL = defaultBigQueryURL
	}

	httpClient := a.deps.HTTPClient
	if integration.BaseURL == "" {
		if integration.ServiceAccountJSON == "" {
			return nil, &resilience.AuthError{
				Cause: fmt.Errorf("gcp integration %s: service-account-json is required", integration.Name),
			}
		}
		jwtCfg, err := google.JWTConfigFromJSON([]byte(integration.ServiceAccountJSON), bigQueryScope)
		if err != nil {
			return nil, &resilience.AuthError{
				Cause: fmt.Errorf("gcp integration %s: parse service account key: %w", integration.Name, err),
			}
		}
		httpCtx := context.WithValue(ctx, oauth2.HTTPClient, a.deps.HTTPClient)
		httpClient = jwtCfg.Client(httpCtx)
		httpClient.Timeout = a.deps.HTTPClient.Timeout
	}

	return &session{
		httpClient: httpClient,
		baseURL:    baseURL,
		projectID:  integration.AccountID,
	}, nil
}

type queryRequest struct {
	Query        string `json:"query"`
	UseLegacySQL bool   `json:"useLegacySql"`
	TimeoutMs    int    `json:"timeoutMs"`
}

type queryResponse struct {
	JobComplete  bool `json:"jobComplete"`
	JobReference struct {
		JobID string `json:"jobId"`
	} `json:"jobReference"`
	PageToken string `json:"pageToken"`
	Schema    struct {
		Fields []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"fields"`
	} `json:"schema"`
	Rows []struct {
		F []struct {
			V any `json:"v"`
		} `json:"f"`
	} `json:"rows"`
}

// costRow is one normalized billing-export row.
type costRow struct {
	Project string
	Service string
	Period  string
	Amount  float64
}

type rawCosts struct {
	rows []costRow
}

// FetchRawCosts runs the billing-export aggregation query, following the
// result page token until exhausted.
func (a *Adapter) FetchRawCosts(ctx context.Context, client provider.Client, integration config.Integration, query model.CostQuery) (any, error) {
	sess, ok := client.(*session)
	if !ok {
		return nil, fmt.Errorf("gcp: unexpected client type %T", client)
	}
	if integration.BillingDataset == "" {
		return nil, fmt.Errorf("gcp integration %s: billing-dataset is required", integration.Name)
	}

	periodExpr := "FORMAT_DATE('%Y-%m', usage_start_time)"
	if query.Granularity == model.GranularityDaily {
		periodExpr = "FORMAT_DATE('%Y-%m-%d', usage_start_time)"
	}
	sql := fmt.Sprintf(`SELECT project.id AS project, service.description AS service, %s AS period, SUM(cost) AS amount
FROM `+"`%s`"+`
WHERE usage_start_time >= TIMESTAMP('%s') AND usage_start_time < TIMESTAMP('%s')
GROUP BY project, service, period
ORDER BY period`,
		periodExpr,
		integration.BillingDataset,
		query.StartTime.UTC().Format("2006-01-02"),
		query.EndTime.UTC().Format("2006-01-02"),
	)

	reqBody, err := json.Marshal(queryRequest{
		Query:        sql,
		UseLegacySQL: false,
		TimeoutMs:    queryTimeoutMs,
	})
	if err != nil {
		return nil, err
	}
	respBody, err := provider.DoJSON(ctx, sess.httpClient, a.retryCfg, provider.HTTPRequest{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/bigquery/v2/projects/%s/queries", sess.baseURL, sess.projectID),
		Body:   reqBody,
	})
	if err != nil {
		return nil, fmt.Errorf("gcp: billing query: %w", err)
	}

	raw := &rawCosts{}
	polls := 0
	for {
		var page queryResponse
		if err := json.Unmarshal(respBody, &page); err != nil {
			return nil, fmt.Errorf("gcp: decode billing query response: %w", err)
		}

		// jobs.query answers jobComplete:false with no rows when its
		// server-side timeout elapses before the job finishes. Poll
		// getQueryResults until it completes rather than treating the
		// empty answer as zero cost.
		if !page.JobComplete {
			if page.JobReference.JobID == "" {
				return nil, fmt.Errorf("gcp integration %s: billing query incomplete with no job reference", integration.Name)
			}
			polls++
			if polls > maxResultPolls {
				return nil, fmt.Errorf("gcp integration %s: billing query still incomplete after %d polls", integration.Name, maxResultPolls)
			}
			respBody, err = a.getQueryResults(ctx, sess, page.JobReference.JobID, "")
			if err != nil {
				return nil, err
			}
			continue
		}

		for _, row := range page.Rows {
			if len(row.F) < 4 {
				continue
			}
			parsed := costRow{
				Project: stringValue(row.F[0].V),
				Service: stringValue(row.F[1].V),
				Period:  stringValue(row.F[2].V),
			}
			amount, err := strconv.ParseFloat(stringValue(row.F[3].V), 64)
			if err != nil {
				continue
			}
			parsed.Amount = amount
			raw.rows = append(raw.rows, parsed)
		}

		if page.PageToken == "" {
			return raw, nil
		}
		if page.JobReference.JobID == "" {
			return nil, fmt.Errorf("gcp integration %s: paged billing result carries no job reference", integration.Name)
		}
		respBody, err = a.getQueryResults(ctx, sess, page.JobReference.JobID, page.PageToken)
		if err != nil {
			return nil, err
		}
	}
}

// getQueryResults fetches one page of a finished or still-running query job.
func (a *Adapter) getQueryResults(ctx context.Context, sess *session, jobID, pageToken string) ([]byte, error) {
	params := url.Values{}
	params.Set("timeoutMs", strconv.Itoa(queryTimeoutMs))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	body, err := provider.DoJSON(ctx, sess.httpClient, a.retryCfg, provider.HTTPRequest{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/bigquery/v2/projects/%s/queries/%s?%s", sess.baseURL, sess.projectID, jobID, params.Encode()),
	})
	if err != nil {
		return nil, fmt.Errorf("gcp: billing query results: %w", err)
	}
	return body, nil
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

// Transform groups billing-export rows by project and service. GCP rows
// arrive pre-bucketed by the SQL period expression; rows whose period
// fails to parse or falls outside the window are dropped and counted.
func (a *Adapter) Transform(_ context.Context, integration config.Integration, query model.CostQuery, raw any) ([]model.Report, error) {
	payload, ok := raw.(*rawCosts)
	if !ok {
		return nil, fmt.Errorf("gcp: unexpected payload type %T", raw)
	}

	var counters provider.SkipCounters
	grouped := make(map[string]*model.Report)
	var order []string

	for _, row := range payload.rows {
		if row.Project == "" || row.Service == "" || row.Period == "" {
			counters.MissingFields++
			continue
		}
		if row.Amount == 0 {
			counters.ZeroAmount++
			continue
		}
		periodStart, err := query.Granularity.ParsePeriod(row.Period)
		if err != nil {
			counters.InvalidDate++
			continue
		}
		if !provider.InQueryRange(periodStart, query) {
			counters.OutOfRange++
			continue
		}
		if !provider.EvaluateIntegrationFilters(row.Project, integration) {
			continue
		}

		id := model.CompositeID(string(config.ProviderGCP), integration.Name, row.Project, row.Service)
		report, exists := grouped[id]
		if !exists {
			report = &model.Report{
				ID:       id,
				Account:  row.Project,
				Service:  row.Service,
				Category: a.deps.Classifier.Classify(config.ProviderGCP, row.Service),
				Provider: string(config.ProviderGCP),
				Source:   model.SourceIntegration,
				Dimensions: map[string]string{
					"project": row.Project,
				},
			}
			provider.ApplyIntegrationTags(report, integration)
			grouped[id] = report
			order = append(order, id)
		}
		report.AddAmount(row.Period, row.Amount)
		counters.Processed++
	}

	counters.LogSummary(config.ProviderGCP, integration.Name)

	reports := make([]model.Report, 0, len(order))
	for _, id := range order {
		reports = append(reports, *grouped[id])
	}
	return reports, nil
}
