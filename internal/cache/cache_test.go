package cache

import (
	"testing"
	"time"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
)

func testQuery() model.CostQuery {
	return model.CostQuery{
		Granularity: model.GranularityMonthly,
		StartTime:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory()
	defer m.Stop()

	key := ReportKey(config.ProviderAWS, "prod", testQuery())
	reports := []model.Report{{ID: "a", Provider: "aws", Reports: map[string]float64{"2024-01": 10}}}

	if _, ok := m.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	m.Set(key, reports, time.Minute)
	got, ok := m.Get(key)
	if !ok || len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("expected hit, got %v %v", got, ok)
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	defer m.Stop()

	key := ReportKey(config.ProviderMock, "demo", testQuery())
	m.Set(key, []model.Report{{ID: "x"}}, 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	if _, ok := m.Get(key); ok {
		t.Error("expected entry to expire")
	}
}

func TestKeysDifferPerIntegration(t *testing.T) {
	q := testQuery()
	a := ReportKey(config.ProviderAWS, "prod", q)
	b := ReportKey(config.ProviderAWS, "staging", q)
	if a.String() == b.String() {
		t.Error("integration name must be part of the key")
	}
}

func TestTTLForIsBackendSpecific(t *testing.T) {
	if TTLFor(config.ProviderAWS) >= TTLFor(config.ProviderAzure) {
		t.Error("AWS TTL should be shorter than Azure TTL")
	}
	if TTLFor(config.ProviderType("unknown")) <= 0 {
		t.Error("unknown providers still need a positive TTL")
	}
}
