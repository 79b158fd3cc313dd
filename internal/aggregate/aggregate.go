// Package aggregate provides the pure report-reshaping functions: rolling
// reports up by a dimension and collapsing the long tail into an "others"
// bucket.
package aggregate

import (
	"sort"

	"github.com/samber/lo"

	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
)

const (
	// TotalID is the single report id produced when aggregating by "none".
	TotalID = "Total"
	// NoValue labels reports whose grouping dimension is absent.
	NoValue = "no value"
	// OthersID is the bucket holding everything past the kept top N.
	OthersID = "others"
)

// AggregateBy rolls reports up by a dimension: "none" collapses everything
// into a single "Total" report; otherwise reports sharing a dimension value
// merge into one report per value, with absent values grouped under
// "no value". Per-period sums are preserved exactly.
func AggregateBy(reports []model.Report, dimension string) []model.Report {
	grouped := make(map[string]*model.Report)
	var order []string

	for i := range reports {
		key := groupKey(&reports[i], dimension)
		target, exists := grouped[key]
		if !exists {
			target = &model.Report{ID: key, Reports: make(map[string]float64)}
			grouped[key] = target
			order = append(order, key)
		}
		target.AddFrom(&reports[i])
	}

	out := make([]model.Report, 0, len(order))
	for _, key := range order {
		out = append(out, *grouped[key])
	}
	return out
}

func groupKey(report *model.Report, dimension string) string {
	if dimension == "" || dimension == "none" {
		return TotalID
	}
	if value, ok := report.Dimension(dimension); ok {
		return value
	}
	return NoValue
}

// MergeLongTail keeps the n reports with the largest grand totals and
// folds the rest into one "others" report. The sort is stable so reports
// with equal totals keep their input order. The sum of all returned
// grand totals equals the sum of all input grand totals.
func MergeLongTail(reports []model.Report, n int) []model.Report {
	if n < 0 {
		n = 0
	}
	if len(reports) <= n {
		return reports
	}

	ranked := make([]model.Report, len(reports))
	copy(ranked, reports)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Total() > ranked[j].Total()
	})

	kept := ranked[:n]
	others := &model.Report{
		ID:      OthersID,
		Service: OthersID,
		Reports: make(map[string]float64),
	}
	for i := range ranked[n:] {
		others.AddFrom(&ranked[n:][i])
	}

	out := make([]model.Report, 0, n+1)
	out = append(out, kept...)
	out = append(out, *others)
	return out
}

// Totals sums every report's grand total, a convenience for callers
// checking cost conservation.
func Totals(reports []model.Report) float64 {
	return lo.SumBy(reports, func(r model.Report) float64 { return r.Total() })
}
