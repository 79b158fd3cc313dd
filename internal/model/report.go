// Package model defines the normalized cost report shapes shared by every
// billing backend adapter and the aggregation pipeline.
package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Granularity selects the period bucketing of cost reports.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityMonthly Granularity = "monthly"
)

// PeriodLayout returns the time layout for period keys at this granularity:
// YYYY-MM-DD for daily, YYYY-MM for monthly.
func (g Granularity) PeriodLayout() string {
	if g == GranularityDaily {
		return "2006-01-02"
	}
	return "2006-01"
}

// FormatPeriod renders t as a period key for this granularity.
func (g Granularity) FormatPeriod(t time.Time) string {
	return t.UTC().Format(g.PeriodLayout())
}

// ParsePeriod parses a period key back into a time at the start of the period.
func (g Granularity) ParsePeriod(key string) (time.Time, error) {
	return time.Parse(g.PeriodLayout(), key)
}

// UsageDateLayout returns the compact numeric layout used by the snapshot
// store: YYYYMMDD for daily, YYYYMM for monthly.
func (g Granularity) UsageDateLayout() string {
	if g == GranularityDaily {
		return "20060102"
	}
	return "200601"
}

// CostQuery describes one aggregation request. It is immutable per request
// and serialized verbatim into cache keys.
type CostQuery struct {
	Filters     string      `json:"filters,omitempty"`
	Tags        string      `json:"tags,omitempty"`
	Groups      string      `json:"groups,omitempty"`
	Granularity Granularity `json:"granularity"`
	StartTime   time.Time   `json:"startTime"`
	EndTime     time.Time   `json:"endTime"`
}

// CacheKey returns a stable serialization of the query for cache lookups.
func (q CostQuery) CacheKey() string {
	return strings.Join([]string{
		q.Filters,
		q.Tags,
		q.Groups,
		string(q.Granularity),
		q.StartTime.UTC().Format(time.RFC3339),
		q.EndTime.UTC().Format(time.RFC3339),
	}, "|")
}

// IsDefault reports whether the query carries no filter, tag, or group
// predicate. Default queries are eligible for the snapshot fast path.
func (q CostQuery) IsDefault() bool {
	return q.Filters == "" && q.Tags == "" && q.Groups == ""
}

// ProviderSource distinguishes live integrations from manually entered costs.
type ProviderSource string

const (
	SourceIntegration ProviderSource = "integration"
	SourceCustom      ProviderSource = "custom"
)

// Report is one normalized cost line: a stable id, fixed identity columns,
// a period->amount map keyed per the query granularity, and an open side-map
// of backend-specific dimensions (project, cluster, tags...).
type Report struct {
	ID         string             `json:"id"`
	Account    string             `json:"account"`
	Service    string             `json:"service"`
	Category   string             `json:"category"`
	Provider   string             `json:"provider"`
	Source     ProviderSource     `json:"providerType"`
	Reports    map[string]float64 `json:"reports"`
	Dimensions map[string]string  `json:"-"`
}

// AddAmount accumulates amount into the given period bucket.
func (r *Report) AddAmount(period string, amount float64) {
	if r.Reports == nil {
		r.Reports = make(map[string]float64)
	}
	r.Reports[period] += amount
}

// Total returns the sum of all period amounts.
func (r *Report) Total() float64 {
	var total float64
	for _, v := range r.Reports {
		total += v
	}
	return total
}

// AddFrom adds every period amount of other into r.
func (r *Report) AddFrom(other *Report) {
	for period, amount := range other.Reports {
		r.AddAmount(period, amount)
	}
}

// Dimension returns the named field of the report, checking the fixed
// columns before the open dimension map. ok is false when absent.
func (r *Report) Dimension(name string) (string, bool) {
	switch name {
	case "account":
		return r.Account, r.Account != ""
	case "service":
		return r.Service, r.Service != ""
	case "category":
		return r.Category, r.Category != ""
	case "provider":
		return r.Provider, r.Provider != ""
	}
	v, ok := r.Dimensions[name]
	return v, ok && v != ""
}

// SortedPeriods returns the report's period keys in ascending order.
func (r *Report) SortedPeriods() []string {
	keys := make([]string, 0, len(r.Reports))
	for k := range r.Reports {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CloudProviderError records one integration's failure without aborting the
// overall aggregation.
type CloudProviderError struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Error    string `json:"error"`
}

// NewCloudProviderError builds an error record from an integration failure.
func NewCloudProviderError(provider, name string, err error) CloudProviderError {
	return CloudProviderError{Provider: provider, Name: name, Error: err.Error()}
}

// CostReportsResponse is the aggregation result: reports from every
// integration that succeeded plus one error per integration that failed.
type CostReportsResponse struct {
	Reports []Report             `json:"reports"`
	Errors  []CloudProviderError `json:"errors"`
}

// PartialSuccess reports whether some integrations failed while others
// produced data.
func (r CostReportsResponse) PartialSuccess() bool {
	return len(r.Errors) > 0 && len(r.Reports) > 0
}

// TagsResponse carries tag keys or tag values for one provider.
type TagsResponse struct {
	Tags   []string             `json:"tags"`
	Errors []CloudProviderError `json:"errors"`
}

// CompositeID joins report identity parts into a result-set-unique id.
func CompositeID(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "->")
}

// Uncategorized is the sentinel category for unmapped service names.
const Uncategorized = "Uncategorized"

// ValidateQuery rejects queries with an inverted or zero time window.
func ValidateQuery(q CostQuery) error {
	if q.Granularity != GranularityDaily && q.Granularity != GranularityMonthly {
		return fmt.Errorf("unsupported granularity %q", q.Granularity)
	}
	if !q.EndTime.After(q.StartTime) {
		return fmt.Errorf("end time %s is not after start time %s", q.EndTime, q.StartTime)
	}
	return nil
}
