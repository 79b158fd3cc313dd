// Package classifier maps raw backend service names to human cost
// categories using a remote default dataset plus local overrides.
package classifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/electrolux-oss/infrawallet-sub000/internal/config"
	log "github.com/electrolux-oss/infrawallet-sub000/internal/logging"
	"github.com/electrolux-oss/infrawallet-sub000/internal/model"
	"github.com/tidwall/gjson"
)

// providerPatterns holds the compiled patterns for one provider within a
// category.
type providerPatterns struct {
	provider string
	patterns []*regexp.Regexp
}

// categoryMapping is one category with its per-provider service patterns,
// kept as a slice so scan order follows mapping declaration order.
type categoryMapping struct {
	category  string
	providers []providerPatterns
}

// Classifier resolves (provider, service name) pairs to categories. It is
// constructed once at startup and injected into adapters; the exact-match
// reverse index is populated lazily and guarded for concurrent use.
type Classifier struct {
	datasetURL string
	local      map[string]map[string][]string
	httpClient *http.Client

	mu       sync.RWMutex
	mappings []categoryMapping
	exact    map[string]string // provider + "\x00" + service -> category
}

// New builds a classifier from the category config. Call Refresh to load
// the remote dataset; before that only local mappings apply.
func New(cfg config.CategoryConfig) *Classifier {
	c := &Classifier{
		datasetURL: cfg.DatasetURL,
		local:      cfg.Local,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		exact:      make(map[string]string),
	}
	c.mappings = c.buildLocalMappings()
	return c
}

// Refresh fetches the remote default dataset, merges local overrides
// (local entries win), and resets the reverse index. A fetch failure is
// non-fatal: existing mappings stay in place and lookups keep working.
func (c *Classifier) Refresh(ctx context.Context) error {
	merged := c.buildLocalMappings()

	if c.datasetURL != "" {
		remote, err := c.fetchDataset(ctx)
		if err != nil {
			log.Warnf("classifier: dataset fetch failed, keeping current mappings: %v", err)
			return nil
		}
		merged = mergeMappings(merged, remote)
	}

	c.mu.Lock()
	c.mappings = merged
	c.exact = make(map[string]string)
	c.mu.Unlock()
	return nil
}

// Classify returns the category for a (provider, service name) pair. The
// exact index is checked first; on miss the patterns are scanned in
// declaration order, first match wins, and the hit is memoized. Unmapped
// pairs resolve to Uncategorized, never an error.
func (c *Classifier) Classify(provider config.ProviderType, serviceName string) string {
	key := string(provider) + "\x00" + serviceName

	c.mu.RLock()
	if category, ok := c.exact[key]; ok {
		c.mu.RUnlock()
		return category
	}
	mappings := c.mappings
	c.mu.RUnlock()

	category := model.Uncategorized
	for _, m := range mappings {
		if matchProvider(m, string(provider), serviceName) {
			category = m.category
			break
		}
	}

	// Concurrent writers for the same key compute the same value, so
	// last-writer-wins is fine.
	c.mu.Lock()
	c.exact[key] = category
	c.mu.Unlock()
	return category
}

func matchProvider(m categoryMapping, provider, serviceName string) bool {
	for _, pp := range m.providers {
		if pp.provider != provider {
			continue
		}
		for _, pattern := range pp.patterns {
			if pattern.MatchString(serviceName) {
				return true
			}
		}
	}
	return false
}

// buildLocalMappings compiles the locally configured overrides. Categories
// are ordered alphabetically: YAML maps carry no declaration order, and a
// stable scan order matters for first-match semantics.
func (c *Classifier) buildLocalMappings() []categoryMapping {
	categories := make([]string, 0, len(c.local))
	for category := range c.local {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	out := make([]categoryMapping, 0, len(categories))
	for _, category := range categories {
		providers := c.local[category]
		names := make([]string, 0, len(providers))
		for name := range providers {
			names = append(names, name)
		}
		sort.Strings(names)

		m := categoryMapping{category: category}
		for _, name := range names {
			pp := providerPatterns{provider: name}
			for _, raw := range providers[name] {
				re, err := regexp.Compile(raw)
				if err != nil {
					log.Warnf("classifier: skipping invalid local pattern %q for %s/%s: %v", raw, category, name, err)
					continue
				}
				pp.patterns = append(pp.patterns, re)
			}
			if len(pp.patterns) > 0 {
				m.providers = append(m.providers, pp)
			}
		}
		if len(m.providers) > 0 {
			out = append(out, m)
		}
	}
	return out
}

// fetchDataset downloads and parses the remote default mapping dataset:
// { category: { provider: [patterns] } }. Document order is preserved so
// first-match ties break by mapping declaration order.
func (c *Classifier) fetchDataset(ctx context.Context) ([]categoryMapping, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.datasetURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataset fetch returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("dataset is not valid JSON")
	}

	var out []categoryMapping
	gjson.ParseBytes(body).ForEach(func(category, providers gjson.Result) bool {
		m := categoryMapping{category: category.String()}
		providers.ForEach(func(provider, patterns gjson.Result) bool {
			pp := providerPatterns{provider: provider.String()}
			patterns.ForEach(func(_, raw gjson.Result) bool {
				re, err := regexp.Compile(raw.String())
				if err != nil {
					log.Warnf("classifier: skipping invalid pattern %q for %s/%s: %v",
						raw.String(), category.String(), provider.String(), err)
					return true
				}
				pp.patterns = append(pp.patterns, re)
				return true
			})
			if len(pp.patterns) > 0 {
				m.providers = append(m.providers, pp)
			}
			return true
		})
		if len(m.providers) > 0 {
			out = append(out, m)
		}
		return true
	})
	return out, nil
}

// mergeMappings appends remote entries after local ones, dropping remote
// (category, provider) pairs already covered locally. Local wins both by
// scan order and by pattern replacement.
func mergeMappings(local, remote []categoryMapping) []categoryMapping {
	covered := make(map[string]struct{})
	for _, m := range local {
		for _, pp := range m.providers {
			covered[m.category+"\x00"+pp.provider] = struct{}{}
		}
	}

	out := append([]categoryMapping{}, local...)
	for _, m := range remote {
		kept := categoryMapping{category: m.category}
		for _, pp := range m.providers {
			if _, dup := covered[m.category+"\x00"+pp.provider]; dup {
				continue
			}
			kept.providers = append(kept.providers, pp)
		}
		if len(kept.providers) > 0 {
			out = append(out, kept)
		}
	}
	return out
}
