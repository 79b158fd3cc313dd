// Package snapshot persists normalized cost line items in Postgres so
// default unfiltered queries can be answered without live backend calls.
// Windows are rebuilt by full replace: delete the (wallet, provider,
// granularity, window) scope in a transaction, then bulk-insert fresh rows.
package snapshot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
)

const bootstrapTimeout = 30 * time.Second

// CostItem is one persisted cost line for a single usage date.
type CostItem struct {
	WalletID  string
	Key       string
	Account   string
	Service   string
	Category  string
	Provider  string
	UsageDate int // YYYYMMDD for daily rows, YYYYMM for monthly
	Cost      decimal.Decimal
}

// Store wraps the cost_items table.
type Store struct {
	pool *pgxpool.Pool
}

// New connects the pool and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("snapshot: postgres DSN is required")
	}

	bootstrapCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	pool, err := pgxpool.New(bootstrapCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("snapshot: create connection pool: %w", err)
	}
	if err := pool.Ping(bootstrapCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("snapshot: ping database: %w", err)
	}
	if err := ensureSchema(bootstrapCtx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("snapshot: initialize schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool, ensuring the schema exists.
func NewWithPool(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if err := ensureSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("snapshot: initialize schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cost_items (
		id BIGSERIAL PRIMARY KEY,
		wallet_id TEXT NOT NULL,
		key TEXT NOT NULL,
		account TEXT NOT NULL DEFAULT '',
		service TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		usage_date INTEGER NOT NULL,
		cost NUMERIC(18,6) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_cost_items_scope ON cost_items(wallet_id, provider, usage_date);
	CREATE INDEX IF NOT EXISTS idx_cost_items_key ON cost_items(key);
	`
	_, err := pool.Exec(ctx, schema)
	return err
}

// Pool exposes the underlying pool for collaborators sharing the database.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Window is the inclusive usage-date range of one refresh scope, encoded
// compactly (YYYYMMDD or YYYYMM to match the granularity).
type Window struct {
	From int
	To   int
}

// WindowFor encodes a time range per granularity.
func WindowFor(granularity model.Granularity, start, end time.Time) Window {
	return Window{
		From: UsageDate(granularity, start),
		To:   UsageDate(granularity, end),
	}
}

// UsageDate encodes t as a compact integer matching the granularity.
func UsageDate(granularity model.Granularity, t time.Time) int {
	n, _ := strconv.Atoi(t.UTC().Format(granularity.UsageDateLayout()))
	return n
}

// ReplaceWindow atomically swaps all rows in the (wallet, provider,
// granularity, window) scope for the given items. Daily and monthly rows
// never collide: their usage_date encodings occupy disjoint ranges.
func (s *Store) ReplaceWindow(ctx context.Context, wallet string, provider string, window Window, items []CostItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM cost_items WHERE wallet_id = $1 AND provider = $2 AND usage_date BETWEEN $3 AND $4`,
		wallet, provider, window.From, window.To)
	if err != nil {
		return fmt.Errorf("snapshot: clear window: %w", err)
	}

	if len(items) > 0 {
		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"cost_items"},
			[]string{"wallet_id", "key", "account", "service", "category", "provider", "usage_date", "cost"},
			pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
				item := items[i]
				return []any{
					item.WalletID, item.Key, item.Account, item.Service,
					item.Category, item.Provider, item.UsageDate, item.Cost.String(),
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("snapshot: bulk insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Query reads the wallet's rows for a granularity window, optionally
// scoped to one provider, and regroups them into reports.
func (s *Store) Query(ctx context.Context, wallet string, provider string, granularity model.Granularity, start, end time.Time) ([]model.Report, error) {
	window := WindowFor(granularity, start, end)

	sql := `SELECT key, account, service, category, provider, usage_date, cost
		FROM cost_items
		WHERE wallet_id = $1 AND usage_date BETWEEN $2 AND $3`
	args := []any{wallet, window.From, window.To}
	if provider != "" {
		sql += ` AND provider = $4`
		args = append(args, provider)
	}
	sql += ` ORDER BY key, usage_date`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("snapshot: query window: %w", err)
	}
	defer rows.Close()

	grouped := make(map[string]*model.Report)
	var order []string
	for rows.Next() {
		var item CostItem
		var cost string
		if err := rows.Scan(&item.Key, &item.Account, &item.Service, &item.Category, &item.Provider, &item.UsageDate, &cost); err != nil {
			return nil, fmt.Errorf("snapshot: scan row: %w", err)
		}

		date, err := time.Parse(granularity.UsageDateLayout(), strconv.Itoa(item.UsageDate))
		if err != nil {
			continue
		}
		amount, err := strconv.ParseFloat(cost, 64)
		if err != nil {
			continue
		}

		report, exists := grouped[item.Key]
		if !exists {
			report = &model.Report{
				ID:       item.Key,
				Account:  item.Account,
				Service:  item.Service,
				Category: item.Category,
				Provider: item.Provider,
				Source:   model.SourceIntegration,
			}
			grouped[item.Key] = report
			order = append(order, item.Key)
		}
		report.AddAmount(granularity.FormatPeriod(date), amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: iterate rows: %w", err)
	}

	out := make([]model.Report, 0, len(order))
	for _, key := range order {
		out = append(out, *grouped[key])
	}
	return out, nil
}

// ItemsFromReports flattens normalized reports into persistable rows.
func ItemsFromReports(wallet string, granularity model.Granularity, reports []model.Report) []CostItem {
	var items []CostItem
	for _, report := range reports {
		for _, period := range report.SortedPeriods() {
			date, err := granularity.ParsePeriod(period)
			if err != nil {
				continue
			}
			items = append(items, CostItem{
				WalletID:  wallet,
				Key:       report.ID,
				Account:   report.Account,
				Service:   report.Service,
				Category:  report.Category,
				Provider:  report.Provider,
				UsageDate: UsageDate(granularity, date),
				Cost:      decimal.NewFromFloat(report.Reports[period]),
			})
		}
	}
	return items
}
