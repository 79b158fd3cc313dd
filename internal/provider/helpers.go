package provider

import (
	"regexp"
	"strings"
	"time"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	log "github.com/electrolux-oss/infrawallet-sub000/internal/logging"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
)

// EvaluateIntegrationFilters applies the integration's include/exclude
// regex filters to an account name. Any exclude match rejects; when
// include filters exist at least one must match; with no filters at all
// everything is included. Invalid patterns are skipped with a warning.
func EvaluateIntegrationFilters(account string, integration config.Integration) bool {
	for _, raw := range integration.ExcludeFilters {
		re, err := regexp.Compile(raw)
		if err != nil {
			log.Warnf("provider: invalid exclude filter %q on %s: %v", raw, integration.Name, err)
			continue
		}
		if re.MatchString(account) {
			return false
		}
	}
	if len(integration.IncludeFilters) == 0 {
		return true
	}
	for _, raw := range integration.IncludeFilters {
		re, err := regexp.Compile(raw)
		if err != nil {
			log.Warnf("provider: invalid include filter %q on %s: %v", raw, integration.Name, err)
			continue
		}
		if re.MatchString(account) {
			return true
		}
	}
	return false
}

// ParseTagPairs splits "key=value" entries into a dimension map. Entries
// without "=" are kept with an empty value.
func ParseTagPairs(tags []string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		key, value, _ := strings.Cut(strings.TrimSpace(tag), "=")
		if key != "" {
			out[key] = value
		}
	}
	return out
}

// ParseTagExpression parses a query tag expression of the form
// "(key=value AND key2=value2)" into pairs. Empty input yields nil.
func ParseTagExpression(expr string) map[string]string {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimPrefix(expr, "(")
	expr = strings.TrimSuffix(expr, ")")
	if expr == "" {
		return nil
	}
	parts := strings.Split(expr, " AND ")
	out := make(map[string]string, len(parts))
	for _, part := range parts {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && key != "" {
			out[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SkipCounters tallies dropped rows during Transform. Rows are skipped
// silently and countably; only the summary is logged.
type SkipCounters struct {
	Processed     int
	MissingFields int
	ZeroAmount    int
	InvalidDate   int
	OutOfRange    int
}

// Skipped returns the number of rows dropped for any reason.
func (c SkipCounters) Skipped() int {
	return c.MissingFields + c.ZeroAmount + c.InvalidDate + c.OutOfRange
}

// LogSummary emits one warning summarizing the drop counts when any row
// was skipped.
func (c SkipCounters) LogSummary(provider config.ProviderType, integration string) {
	if c.Skipped() == 0 {
		return
	}
	log.WithFields(map[string]any{
		"provider":       provider,
		"integration":    integration,
		"processed":      c.Processed,
		"missing_fields": c.MissingFields,
		"zero_amount":    c.ZeroAmount,
		"invalid_date":   c.InvalidDate,
		"out_of_range":   c.OutOfRange,
	}).Warn("transform dropped rows")
}

// InQueryRange reports whether a period start falls inside the query
// window. Backends over-return at month boundaries; amounts before the
// requested start are discarded.
func InQueryRange(periodStart time.Time, query model.CostQuery) bool {
	if periodStart.Before(query.StartTime) {
		return false
	}
	return !periodStart.After(query.EndTime)
}

// MonthWindow is one chunk of a query window.
type MonthWindow struct {
	Start time.Time
	End   time.Time
}

// SplitByMonths splits [start, end] into consecutive windows of at most
// maxMonths calendar months, for backends that cap the range per call.
func SplitByMonths(start, end time.Time, maxMonths int) []MonthWindow {
	if maxMonths <= 0 {
		return []MonthWindow{{Start: start, End: end}}
	}
	var out []MonthWindow
	cursor := start
	for cursor.Before(end) {
		next := time.Date(cursor.Year(), cursor.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, maxMonths, 0)
		if next.After(end) {
			next = end
		}
		out = append(out, MonthWindow{Start: cursor, End: next})
		cursor = next
	}
	return out
}

// ApplyIntegrationTags copies the integration's static tag pairs onto a
// report's dimension map.
func ApplyIntegrationTags(report *model.Report, integration config.Integration) {
	pairs := ParseTagPairs(integration.Tags)
	if len(pairs) == 0 {
		return
	}
	if report.Dimensions == nil {
		report.Dimensions = make(map[string]string, len(pairs))
	}
	for k, v := range pairs {
		report.Dimensions[k] = v
	}
}
