// Package config provides configuration management for the cost
// aggregation service: typed provider/integration records, the snapshot
// autoload settings, and category mapping overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AutoloadConfig controls the snapshot store fast path and its refresh job.
type AutoloadConfig struct {
	// Enabled switches on snapshot-backed answers for default queries.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Interval is the refresh job cadence, set from a duration string in
	// YAML. Default: 8h.
	Interval time.Duration `yaml:"-" json:"interval,omitempty"`

	// DailyLookbackDays bounds the daily refresh window. Default: 93.
	DailyLookbackDays int `yaml:"daily-lookback-days,omitempty" json:"daily-lookback-days,omitempty"`

	// MonthlyLookbackMonths bounds the monthly refresh window. Default: 12.
	MonthlyLookbackMonths int `yaml:"monthly-lookback-months,omitempty" json:"monthly-lookback-months,omitempty"`
}

// CategoryConfig controls the service-to-category classifier dataset.
type CategoryConfig struct {
	// DatasetURL is the remote default mapping source. Fetch failure is
	// non-fatal; the classifier degrades to Uncategorized.
	DatasetURL string `yaml:"dataset-url,omitempty" json:"dataset-url,omitempty"`

	// Local mappings override the remote dataset:
	// category -> provider -> service name patterns.
	Local map[string]map[string][]string `yaml:"local,omitempty" json:"local,omitempty"`
}

// Config is the resolved service configuration.
type Config struct {
	Debug   bool   `yaml:"debug,omitempty" json:"debug,omitempty"`
	Port    int    `yaml:"port,omitempty" json:"port,omitempty"`
	LogFile string `yaml:"log-file,omitempty" json:"log-file,omitempty"`

	// DatabaseDSN is the postgres connection string for the snapshot
	// store and custom cost tables. INFRAWALLET_DB_DSN overrides it.
	DatabaseDSN string `yaml:"database-dsn,omitempty" json:"database-dsn,omitempty"`

	// Wallet is the wallet name snapshot rows are scoped to. Default: "default".
	Wallet string `yaml:"wallet,omitempty" json:"wallet,omitempty"`

	// RequestTimeout bounds each per-integration fetch, set from a
	// duration string in YAML. Default: 2m.
	RequestTimeout time.Duration `yaml:"-" json:"request-timeout,omitempty"`

	Autoload   AutoloadConfig   `yaml:"autoload,omitempty" json:"autoload,omitempty"`
	Categories CategoryConfig   `yaml:"categories,omitempty" json:"categories,omitempty"`
	Providers  []ProviderConfig `yaml:"providers" json:"providers"`
}

// UnmarshalYAML accepts Go duration strings ("8h", "90s") for Interval.
func (a *AutoloadConfig) UnmarshalYAML(value *yaml.Node) error {
	type alias AutoloadConfig
	var aux struct {
		Interval string `yaml:"interval"`
		Rest     alias  `yaml:",inline"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	*a = AutoloadConfig(aux.Rest)
	if aux.Interval != "" {
		d, err := time.ParseDuration(aux.Interval)
		if err != nil {
			return fmt.Errorf("autoload interval: %w", err)
		}
		a.Interval = d
	}
	return nil
}

// UnmarshalYAML accepts a Go duration string for request-timeout.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type alias Config
	var aux struct {
		RequestTimeout string `yaml:"request-timeout"`
		Rest           alias  `yaml:",inline"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	*c = Config(aux.Rest)
	if aux.RequestTimeout != "" {
		d, err := time.ParseDuration(aux.RequestTimeout)
		if err != nil {
			return fmt.Errorf("request-timeout: %w", err)
		}
		c.RequestTimeout = d
	}
	return nil
}

const (
	defaultPort                  = 8318
	defaultWallet                = "default"
	defaultRequestTimeout        = 2 * time.Minute
	defaultAutoloadInterval      = 8 * time.Hour
	defaultDailyLookbackDays     = 93
	defaultMonthlyLookbackMonths = 12
)

// LoadConfig reads and validates the YAML config at path, applying
// defaults and environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	for i := range cfg.Providers {
		if err := cfg.Providers[i].Validate(); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Wallet == "" {
		c.Wallet = defaultWallet
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.Autoload.Interval <= 0 {
		c.Autoload.Interval = defaultAutoloadInterval
	}
	if c.Autoload.DailyLookbackDays <= 0 {
		c.Autoload.DailyLookbackDays = defaultDailyLookbackDays
	}
	if c.Autoload.MonthlyLookbackMonths <= 0 {
		c.Autoload.MonthlyLookbackMonths = defaultMonthlyLookbackMonths
	}
}

func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("INFRAWALLET_DB_DSN"); dsn != "" {
		c.DatabaseDSN = dsn
	}
	if wallet := os.Getenv("INFRAWALLET_WALLET"); wallet != "" {
		c.Wallet = wallet
	}
}

// EnabledProviders returns the enabled provider configs in declaration order.
func (c *Config) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.IsEnabled() {
			out = append(out, p)
		}
	}
	return out
}

// ProviderByType returns the config block for one backend, or nil.
func (c *Config) ProviderByType(t ProviderType) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].Type == t {
			return &c.Providers[i]
		}
	}
	return nil
}
