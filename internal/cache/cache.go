// Package cache provides the report cache used to avoid redundant
// upstream billing calls, keyed by (provider, integration, query).
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
)

// Key identifies one cached fetch result.
type Key struct {
	Provider    string
	Integration string
	Query       string
}

// String renders the key for the underlying store.
func (k Key) String() string {
	return strings.Join([]string{k.Provider, k.Integration, k.Query}, "#")
}

// ReportKey builds a cache key from a provider, integration, and query.
func ReportKey(provider config.ProviderType, integration string, query model.CostQuery) Key {
	return Key{
		Provider:    string(provider),
		Integration: integration,
		Query:       query.CacheKey(),
	}
}

// Cache is the report cache contract. Implementations must be safe for
// concurrent use; within one request concurrent writers never share a key.
type Cache interface {
	// Get returns the cached reports for key, or ok=false.
	Get(key Key) ([]model.Report, bool)

	// Set stores reports under key for ttl.
	Set(key Key, reports []model.Report, ttl time.Duration)

	// Stop releases background resources.
	Stop()
}

// TTLFor returns the backend-specific cache lifetime. High-rate-limit
// backends stay fresh; slow-moving ones cache longer. The TTL is a
// property of the backend, not of the query.
func TTLFor(provider config.ProviderType) time.Duration {
	switch provider {
	case config.ProviderAWS:
		return 2 * time.Hour
	case config.ProviderAzure:
		return 12 * time.Hour
	case config.ProviderGCP:
		return 6 * time.Hour
	case config.ProviderDatadog, config.ProviderElasticCloud:
		return 8 * time.Hour
	case config.ProviderMongoAtlas, config.ProviderConfluent, config.ProviderGitHub:
		return 6 * time.Hour
	case config.ProviderCustom:
		return 30 * time.Minute
	case config.ProviderMock:
		return time.Minute
	default:
		return time.Hour
	}
}

type entry struct {
	reports   []model.Report
	expiresAt time.Time
}

// Memory is an in-process TTL cache with a lazy janitor loop.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	stop    chan struct{}
	once    sync.Once
}

const janitorInterval = 5 * time.Minute

// NewMemory creates a memory cache and starts its expiry janitor.
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	go m.janitor()
	return m
}

// Get returns the cached reports for key when present and unexpired.
func (m *Memory) Get(key Key) ([]model.Report, bool) {
	m.mu.RLock()
	e, ok := m.entries[key.String()]
	m.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.reports, true
}

// Set stores reports under key for ttl. Non-positive ttl is a no-op.
func (m *Memory) Set(key Key, reports []model.Report, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	m.entries[key.String()] = entry{reports: reports, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
}

// Stop terminates the janitor loop.
func (m *Memory) Stop() {
	m.once.Do(func() { close(m.stop) })
}

func (m *Memory) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for k, e := range m.entries {
				if now.After(e.expiresAt) {
					delete(m.entries, k)
				}
			}
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}
