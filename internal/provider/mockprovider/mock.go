// Package mockprovider generates synthetic cost reports for demos and
// local development. It never talks to a network and is excluded from
// the snapshot refresh job.
package mockprovider

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider"
)

var mockServices = []string{
	"Compute Instances",
	"Object Storage",
	"Managed Database",
	"Load Balancer",
	"Log Analytics",
}

// Adapter produces randomized reports. Amounts are seeded from the
// integration name so repeated queries within a process stay stable.
type Adapter struct {
	deps provider.Deps
}

// New builds the mock adapter.
func New(deps provider.Deps) (provider.Adapter, error) {
	return &Adapter{deps: deps}, nil
}

func (a *Adapter) Type() config.ProviderType { return config.ProviderMock }

func (a *Adapter) InitClient(_ context.Context, integration config.Integration) (provider.Client, error) {
	return integration.Name, nil
}

func (a *Adapter) FetchRawCosts(_ context.Context, _ provider.Client, integration config.Integration, query model.CostQuery) (any, error) {
	seed := fnv.New64a()
	seed.Write([]byte(integration.Name))
	rng := rand.New(rand.NewSource(int64(seed.Sum64())))

	account := integration.AccountID
	if account == "" {
		account = "mock-" + uuid.NewString()[:8]
	}

	var rows []mockRow
	for _, service := range mockServices {
		base := 50 + rng.Float64()*450
		for _, period := range periodsBetween(query) {
			rows = append(rows, mockRow{
				Account: account,
				Service: service,
				Period:  period,
				Amount:  base * (0.8 + rng.Float64()*0.4),
			})
		}
	}
	return rows, nil
}

type mockRow struct {
	Account string
	Service string
	Period  string
	Amount  float64
}

func (a *Adapter) Transform(_ context.Context, integration config.Integration, query model.CostQuery, raw any) ([]model.Report, error) {
	rows, _ := raw.([]mockRow)

	grouped := make(map[string]*model.Report)
	var order []string
	for _, row := range rows {
		id := model.CompositeID(string(config.ProviderMock), integration.Name, row.Account, row.Service)
		report, exists := grouped[id]
		if !exists {
			report = &model.Report{
				ID:       id,
				Account:  row.Account,
				Service:  row.Service,
				Category: a.deps.Classifier.Classify(config.ProviderMock, row.Service),
				Provider: string(config.ProviderMock),
				Source:   model.SourceIntegration,
			}
			provider.ApplyIntegrationTags(report, integration)
			grouped[id] = report
			order = append(order, id)
		}
		report.AddAmount(row.Period, row.Amount)
	}

	reports := make([]model.Report, 0, len(order))
	for _, id := range order {
		reports = append(reports, *grouped[id])
	}
	return reports, nil
}

func periodsBetween(query model.CostQuery) []string {
	var out []string
	step := func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	if query.Granularity == model.GranularityDaily {
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	}
	seen := make(map[string]bool)
	for cursor := query.StartTime; !cursor.After(query.EndTime); cursor = step(cursor) {
		key := query.Granularity.FormatPeriod(cursor)
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}
