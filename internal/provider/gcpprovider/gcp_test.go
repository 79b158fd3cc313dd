package gcpprovider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electrolux-oss/infrawallet-sub000/internal/classifier"
	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider"
	"github.com/electrolux-oss/infrawallet-sub000/internal/resilience"
)

func newTestAdapter(client *http.Client) *Adapter {
	return &Adapter{
		deps: provider.Deps{
			Classifier: classifier.New(config.CategoryConfig{
				Local: map[string]map[string][]string{
					"Compute": {"gcp": {"Compute Engine"}},
				},
			}),
			HTTPClient: client,
		},
		retryCfg: resilience.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
}

func page(rows, token string) string {
	return fmt.Sprintf(`{"jobComplete":true,"jobReference":{"jobId":"job-1"},"pageToken":%q,"rows":[%s],
		"schema":{"fields":[{"name":"project"},{"name":"service"},{"name":"period"},{"name":"amount"}]}}`, token, rows)
}

const incompleteJob = `{"jobComplete":false,"jobReference":{"jobId":"job-1"}}`

func row(project, service, period string, amount float64) string {
	return fmt.Sprintf(`{"f":[{"v":%q},{"v":%q},{"v":%q},{"v":"%g"}]}`, project, service, period, amount)
}

func q1Query() model.CostQuery {
	return model.CostQuery{
		Granularity: model.GranularityMonthly,
		StartTime:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetchPaginatesAndTransforms(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Method == http.MethodPost {
			require.Equal(t, "/bigquery/v2/projects/proj-main/queries", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			require.Contains(t, string(body), "billing_export.gcp_billing")
			fmt.Fprint(w, page(
				row("proj-main", "Compute Engine", "2024-01", 10)+","+
					row("proj-main", "Compute Engine", "2024-02", 20)+","+
					row("proj-main", "Cloud Storage", "2024-01", 5),
				"p2"))
			return
		}
		require.Equal(t, "/bigquery/v2/projects/proj-main/queries/job-1", r.URL.Path)
		require.Equal(t, "p2", r.URL.Query().Get("pageToken"))
		fmt.Fprint(w, page(row("proj-main", "Compute Engine", "2024-03", 30), ""))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.Client())
	integration := config.Integration{
		Name: "main", AccountID: "proj-main",
		BillingDataset: "billing_export.gcp_billing", BaseURL: server.URL,
	}
	query := q1Query()

	client, err := adapter.InitClient(context.Background(), integration)
	require.NoError(t, err)
	raw, err := adapter.FetchRawCosts(context.Background(), client, integration, query)
	require.NoError(t, err)
	assert.Equal(t, 2, requests)

	reports, err := adapter.Transform(context.Background(), integration, query, raw)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	compute := reports[0]
	assert.Equal(t, "Compute Engine", compute.Service)
	assert.Equal(t, "Compute", compute.Category)
	assert.ElementsMatch(t, []string{"2024-01", "2024-02", "2024-03"}, compute.SortedPeriods())
	assert.InDelta(t, 60.0, compute.Total(), 1e-9)

	storage := reports[1]
	assert.Equal(t, "Uncategorized", storage.Category)
	proj, ok := storage.Dimension("project")
	require.True(t, ok)
	assert.Equal(t, "proj-main", proj)
}

func TestFetchPollsUntilJobCompletes(t *testing.T) {
	var polls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, incompleteJob)
			return
		}
		require.Equal(t, "/bigquery/v2/projects/proj-main/queries/job-1", r.URL.Path)
		polls++
		if polls == 1 {
			fmt.Fprint(w, incompleteJob)
			return
		}
		fmt.Fprint(w, page(row("proj-main", "Compute Engine", "2024-01", 10), ""))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.Client())
	integration := config.Integration{
		Name: "main", AccountID: "proj-main",
		BillingDataset: "billing_export.gcp_billing", BaseURL: server.URL,
	}
	query := q1Query()

	client, err := adapter.InitClient(context.Background(), integration)
	require.NoError(t, err)
	raw, err := adapter.FetchRawCosts(context.Background(), client, integration, query)
	require.NoError(t, err)
	assert.Equal(t, 2, polls)

	reports, err := adapter.Transform(context.Background(), integration, query, raw)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.InDelta(t, 10.0, reports[0].Total(), 1e-9)
}

func TestFetchFailsWhenJobNeverCompletes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, incompleteJob)
	}))
	defer server.Close()

	adapter := newTestAdapter(server.Client())
	integration := config.Integration{
		Name: "main", AccountID: "proj-main",
		BillingDataset: "billing_export.gcp_billing", BaseURL: server.URL,
	}

	client, err := adapter.InitClient(context.Background(), integration)
	require.NoError(t, err)
	_, err = adapter.FetchRawCosts(context.Background(), client, integration, q1Query())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete")
}

func TestTransformDropsBadRows(t *testing.T) {
	adapter := newTestAdapter(http.DefaultClient)
	raw := &rawCosts{rows: []costRow{
		{Project: "proj-main", Service: "Compute Engine", Period: "2024-01", Amount: 10},
		{Project: "", Service: "Compute Engine", Period: "2024-01", Amount: 10},
		{Project: "proj-main", Service: "Compute Engine", Period: "2024-01", Amount: 0},
		{Project: "proj-main", Service: "Compute Engine", Period: "not-a-period", Amount: 10},
		{Project: "proj-main", Service: "Compute Engine", Period: "2023-12", Amount: 10},
	}}

	reports, err := adapter.Transform(context.Background(), config.Integration{Name: "main"}, q1Query(), raw)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.InDelta(t, 10.0, reports[0].Total(), 1e-9)
}

func TestFetchRequiresBillingDataset(t *testing.T) {
	adapter := newTestAdapter(http.DefaultClient)
	integration := config.Integration{Name: "main", AccountID: "proj-main", BaseURL: "http://unused"}
	client, err := adapter.InitClient(context.Background(), integration)
	require.NoError(t, err)
	_, err = adapter.FetchRawCosts(context.Background(), client, integration, q1Query())
	assert.Error(t, err)
}

func TestInitClientRequiresServiceAccount(t *testing.T) {
	adapter := newTestAdapter(http.DefaultClient)
	_, err := adapter.InitClient(context.Background(), config.Integration{Name: "main", AccountID: "proj-main"})
	var authErr *resilience.AuthError
	assert.ErrorAs(t, err, &authErr)
}
