// Package customprovider implements the adapter for manually entered
// costs persisted in Postgres. There is no live backend; rows are read
// for the window and monthly entries are amortized into daily buckets
// under one of three strategies.
package customprovider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	log "github.com/electrolux-oss/infrawallet-sub000/internal/logging"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
	"github.com/electrolux-oss/infrawallet-sub000/internal/provider"
)

// AmortizationMode controls how a monthly cost row is spread across days
// when the query asks for daily granularity.
type AmortizationMode string

const (
	// AmortizeAverage divides the amount evenly across the days of the
	// usage month.
	AmortizeAverage AmortizationMode = "average"
	// AmortizeStartDay attributes the whole amount to the first day.
	AmortizeStartDay AmortizationMode = "start_day"
	// AmortizeEndDay attributes the whole amount to the last day. This
	// is the default.
	AmortizeEndDay AmortizationMode = "end_day"
)

// CostRow is one manually entered cost record.
type CostRow struct {
	Account    string
	Service    string
	Category   string
	UsageMonth int // YYYYMM
	Cost       decimal.Decimal
}

// RowSource abstracts the table read so tests can feed rows directly.
type RowSource interface {
	CustomCosts(ctx context.Context, wallet string, fromMonth, toMonth int) ([]CostRow, error)
}

// Adapter serves manually entered costs.
type Adapter struct {
	deps   provider.Deps
	wallet string
	source RowSource
}

// New builds the custom-cost adapter backed by the shared Postgres pool.
func New(deps provider.Deps) (provider.Adapter, error) {
	a := &Adapter{deps: deps, wallet: "default"}
	if deps.DB != nil {
		a.source = &pgSource{pool: deps.DB}
	}
	return a, nil
}

// NewWithSource builds the adapter over an explicit row source.
func NewWithSource(deps provider.Deps, wallet string, source RowSource) *Adapter {
	return &Adapter{deps: deps, wallet: wallet, source: source}
}

func (a *Adapter) Type() config.ProviderType { return config.ProviderCustom }

// InitClient requires a configured database; there is no remote session.
func (a *Adapter) InitClient(_ context.Context, integration config.Integration) (provider.Client, error) {
	if a.source == nil {
		return nil, fmt.Errorf("custom integration %s: database is not configured", integration.Name)
	}
	return a.source, nil
}

// FetchRawCosts reads the persisted rows overlapping the query window.
func (a *Adapter) FetchRawCosts(ctx context.Context, client provider.Client, _ config.Integration, query model.CostQuery) (any, error) {
	source, ok := client.(RowSource)
	if !ok {
		return nil, fmt.Errorf("custom: unexpected client type %T", client)
	}
	fromMonth := query.StartTime.Year()*100 + int(query.StartTime.Month())
	toMonth := query.EndTime.Year()*100 + int(query.EndTime.Month())
	rows, err := source.CustomCosts(ctx, a.wallet, fromMonth, toMonth)
	if err != nil {
		return nil, fmt.Errorf("custom: read costs: %w", err)
	}
	return rows, nil
}

// Transform groups rows by account and service. With daily granularity,
// each monthly amount is spread per the integration's amortization mode.
func (a *Adapter) Transform(_ context.Context, integration config.Integration, query model.CostQuery, raw any) ([]model.Report, error) {
	rows, ok := raw.([]CostRow)
	if !ok {
		return nil, fmt.Errorf("custom: unexpected payload type %T", raw)
	}
	mode := parseMode(integration.AmortizationMode)

	var counters provider.SkipCounters
	grouped := make(map[string]*model.Report)
	var order []string

	for _, row := range rows {
		if row.Service == "" {
			counters.MissingFields++
			continue
		}
		if row.Cost.IsZero() {
			counters.ZeroAmount++
			continue
		}
		monthStart, err := time.Parse("200601", strconv.Itoa(row.UsageMonth))
		if err != nil {
			counters.InvalidDate++
			continue
		}

		id := model.CompositeID(string(config.ProviderCustom), integration.Name, row.Account, row.Service)
		report, exists := grouped[id]
		if !exists {
			category := row.Category
			if category == "" {
				category = a.deps.Classifier.Classify(config.ProviderCustom, row.Service)
			}
			report = &model.Report{
				ID:       id,
				Account:  row.Account,
				Service:  row.Service,
				Category: category,
				Provider: string(config.ProviderCustom),
				Source:   model.SourceCustom,
			}
			provider.ApplyIntegrationTags(report, integration)
			grouped[id] = report
			order = append(order, id)
		}

		for period, amount := range Amortize(row.Cost, monthStart, query.Granularity, mode) {
			report.AddAmount(period, amount)
		}
		counters.Processed++
	}

	counters.LogSummary(config.ProviderCustom, integration.Name)

	reports := make([]model.Report, 0, len(order))
	for _, id := range order {
		reports = append(reports, *grouped[id])
	}
	return reports, nil
}

// Amortize buckets one monthly amount into period keys. Monthly
// granularity yields a single bucket; daily granularity spreads the
// amount per the chosen strategy.
func Amortize(cost decimal.Decimal, monthStart time.Time, granularity model.Granularity, mode AmortizationMode) map[string]float64 {
	if granularity == model.GranularityMonthly {
		amount, _ := cost.Float64()
		return map[string]float64{model.GranularityMonthly.FormatPeriod(monthStart): amount}
	}

	daysInMonth := monthStart.AddDate(0, 1, -1).Day()
	out := make(map[string]float64)
	switch mode {
	case AmortizeAverage:
		perDay := cost.DivRound(decimal.NewFromInt(int64(daysInMonth)), 10)
		for day := 0; day < daysInMonth; day++ {
			amount, _ := perDay.Float64()
			out[model.GranularityDaily.FormatPeriod(monthStart.AddDate(0, 0, day))] = amount
		}
	case AmortizeStartDay:
		amount, _ := cost.Float64()
		out[model.GranularityDaily.FormatPeriod(monthStart)] = amount
	default: // AmortizeEndDay
		amount, _ := cost.Float64()
		out[model.GranularityDaily.FormatPeriod(monthStart.AddDate(0, 0, daysInMonth-1))] = amount
	}
	return out
}

func parseMode(raw string) AmortizationMode {
	switch AmortizationMode(raw) {
	case AmortizeAverage, AmortizeStartDay, AmortizeEndDay:
		return AmortizationMode(raw)
	case "":
		return AmortizeEndDay
	default:
		log.Warnf("custom: unknown amortization mode %q, using %s", raw, AmortizeEndDay)
		return AmortizeEndDay
	}
}

// pgSource reads the custom_costs table.
type pgSource struct {
	pool dbQuerier
}

type dbQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *pgSource) CustomCosts(ctx context.Context, wallet string, fromMonth, toMonth int) ([]CostRow, error) {
	const q = `SELECT account, service, COALESCE(category, ''), usage_month, cost
		FROM custom_costs
		WHERE wallet_id = $1 AND usage_month BETWEEN $2 AND $3
		ORDER BY account, service, usage_month`
	dbRows, err := s.pool.Query(ctx, q, wallet, fromMonth, toMonth)
	if err != nil {
		return nil, err
	}
	defer dbRows.Close()

	var out []CostRow
	for dbRows.Next() {
		var row CostRow
		var cost string
		if err := dbRows.Scan(&row.Account, &row.Service, &row.Category, &row.UsageMonth, &cost); err != nil {
			return nil, err
		}
		row.Cost, err = decimal.NewFromString(cost)
		if err != nil {
			return nil, fmt.Errorf("custom_costs row for %s/%s: bad cost %q", row.Account, row.Service, cost)
		}
		out = append(out, row)
	}
	if err := dbRows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
