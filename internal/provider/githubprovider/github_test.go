package githubprovider

import (
	"context"
	"fmt"
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
					"CI/CD": {"github": {"^actions$"}},
				},
			}),
			HTTPClient: client,
		},
		retryCfg: resilience.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
}

func TestFetchRequestsEachMonthAndGroupsByRepository(t *testing.T) {
	var months []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/organizations/acme/settings/billing/usage", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		month := r.URL.Query().Get("month")
		months = append(months, r.URL.Query().Get("year")+"-"+month)
		fmt.Fprintf(w, `{"usageItems":[
			{"product":"actions","sku":"actions_linux","repositoryName":"acme/api","date":"2024-0%s-10T00:00:00Z","netAmount":12.5},
			{"product":"actions","sku":"actions_linux","repositoryName":"acme/web","date":"2024-0%s-11T00:00:00Z","netAmount":4},
			{"product":"copilot","sku":"copilot_seats","repositoryName":"","date":"2024-0%s-01T00:00:00Z","netAmount":19}
		]}`, month, month, month)
	}))
	defer server.Close()

	adapter := newTestAdapter(server.Client())
	integration := config.Integration{Name: "org", AccountID: "acme", APIKey: "tok", BaseURL: server.URL}
	query := model.CostQuery{
		Granularity: model.GranularityMonthly,
		StartTime:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
	}

	client, err := adapter.InitClient(context.Background(), integration)
	require.NoError(t, err)
	raw, err := adapter.FetchRawCosts(context.Background(), client, integration, query)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-1", "2024-2"}, months)

	reports, err := adapter.Transform(context.Background(), integration, query, raw)
	require.NoError(t, err)
	// actions×2 repos + copilot without a repository.
	require.Len(t, reports, 3)

	api := reports[0]
	assert.Equal(t, "CI/CD", api.Category)
	repo, ok := api.Dimension("repository")
	require.True(t, ok)
	assert.Equal(t, "acme/api", repo)
	assert.InDelta(t, 25.0, api.Total(), 1e-9)

	copilot := reports[2]
	assert.Equal(t, "Uncategorized", copilot.Category)
	_, hasRepo := copilot.Dimension("repository")
	assert.False(t, hasRepo)
}

func TestInitClientRequiresToken(t *testing.T) {
	adapter := newTestAdapter(http.DefaultClient)
	_, err := adapter.InitClient(context.Background(), config.Integration{Name: "org", AccountID: "acme"})
	var authErr *resilience.AuthError
	assert.ErrorAs(t, err, &authErr)
}
