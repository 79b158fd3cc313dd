package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
)

func sampleReports() []model.Report {
	return []model.Report{
		{
			ID: "aws->main->acct-1->EC2", Account: "acct-1", Service: "EC2",
			Category: "Compute", Provider: "aws",
			Reports: map[string]float64{"2024-01": 100, "2024-02": 120},
		},
		{
			ID: "aws->main->acct-1->S3", Account: "acct-1", Service: "S3",
			Category: "Storage", Provider: "aws",
			Reports: map[string]float64{"2024-01": 30, "2024-02": 25},
		},
		{
			ID: "azure->main->sub-1->VM", Account: "sub-1", Service: "Virtual Machines",
			Category: "Compute", Provider: "azure",
			Reports: map[string]float64{"2024-01": 80, "2024-02": 90},
		},
	}
}

func TestAggregateByNoneYieldsSingleTotal(t *testing.T) {
	out := AggregateBy(sampleReports(), "none")
	require.Len(t, out, 1)
	assert.Equal(t, TotalID, out[0].ID)
	assert.InDelta(t, 210.0, out[0].Reports["2024-01"], 1e-9)
	assert.InDelta(t, 235.0, out[0].Reports["2024-02"], 1e-9)
	assert.InDelta(t, Totals(sampleReports()), out[0].Total(), 1e-9)
}

func TestAggregateByCategory(t *testing.T) {
	out := AggregateBy(sampleReports(), "category")
	require.Len(t, out, 2)
	assert.Equal(t, "Compute", out[0].ID)
	assert.InDelta(t, 180.0, out[0].Reports["2024-01"], 1e-9)
	assert.Equal(t, "Storage", out[1].ID)
	assert.InDelta(t, 30.0, out[1].Reports["2024-01"], 1e-9)
}

func TestAggregateByProvider(t *testing.T) {
	out := AggregateBy(sampleReports(), "provider")
	require.Len(t, out, 2)
	assert.Equal(t, "aws", out[0].ID)
	assert.InDelta(t, 275.0, out[0].Total(), 1e-9)
	assert.Equal(t, "azure", out[1].ID)
	assert.InDelta(t, 170.0, out[1].Total(), 1e-9)
}

func TestAggregateByAbsentDimensionGroupsUnderNoValue(t *testing.T) {
	reports := sampleReports()
	reports[0].Dimensions = map[string]string{"team": "platform"}
	out := AggregateBy(reports, "team")
	require.Len(t, out, 2)
	assert.Equal(t, "platform", out[0].ID)
	assert.Equal(t, NoValue, out[1].ID)
	assert.InDelta(t, 225.0, out[1].Total(), 1e-9)
}

func TestMergeLongTailKeepsTopNAndConservesTotal(t *testing.T) {
	in := sampleReports()
	before := Totals(in)

	out := MergeLongTail(in, 1)
	require.Len(t, out, 2)
	// EC2 has the largest grand total (220).
	assert.Equal(t, "aws->main->acct-1->EC2", out[0].ID)
	assert.Equal(t, OthersID, out[1].ID)
	assert.InDelta(t, before, Totals(out), 1e-9)
	assert.InDelta(t, 110.0, out[1].Reports["2024-01"], 1e-9)
}

func TestMergeLongTailNoOpWhenUnderN(t *testing.T) {
	in := sampleReports()
	out := MergeLongTail(in, 10)
	assert.Equal(t, in, out)
}

func TestMergeLongTailStableOnTies(t *testing.T) {
	in := []model.Report{
		{ID: "a", Reports: map[string]float64{"2024-01": 10}},
		{ID: "b", Reports: map[string]float64{"2024-01": 10}},
		{ID: "c", Reports: map[string]float64{"2024-01": 10}},
	}
	out := MergeLongTail(in, 2)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
	assert.Equal(t, OthersID, out[2].ID)
}

func TestAggregateByNoneEmptyInput(t *testing.T) {
	out := AggregateBy(nil, "none")
	assert.Empty(t, out)
}
