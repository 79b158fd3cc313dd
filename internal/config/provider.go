package config

// ProviderType identifies one billing backend kind.
type ProviderType string

const (
	ProviderAWS          ProviderType = "aws"
	ProviderAzure        ProviderType = "azure"
	ProviderGCP          ProviderType = "gcp"
	ProviderDatadog      ProviderType = "datadog"
	ProviderMongoAtlas   ProviderType = "mongodb-atlas"
	ProviderConfluent    ProviderType = "confluent"
	ProviderGitHub       ProviderType = "github"
	ProviderElasticCloud ProviderType = "elastic-cloud"
	ProviderCustom       ProviderType = "custom"
	ProviderMock         ProviderType = "mock"
)

// AllProviderTypes lists every supported backend in registry order.
var AllProviderTypes = []ProviderType{
	ProviderAWS,
	ProviderAzure,
	ProviderGCP,
	ProviderDatadog,
	ProviderMongoAtlas,
	ProviderConfluent,
	ProviderGitHub,
	ProviderElasticCloud,
	ProviderCustom,
	ProviderMock,
}

// Integration is one configured account/credential set under a backend.
// Many integrations may exist per backend (e.g. several AWS accounts).
// Records are loaded once per request or job and never mutated.
type Integration struct {
	// Name is the display label for this integration. Required, and used
	// in cache keys and error reports.
	Name string `yaml:"name" json:"name"`

	// Enabled allows disabling an integration without removing it. Default: true.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// AccountID identifies the billing scope: AWS account id, Azure
	// subscription id, GCP project, Datadog/Atlas org, Confluent env,
	// GitHub org, Elastic organization.
	AccountID string `yaml:"account-id,omitempty" json:"account-id,omitempty"`

	// Generic credential material; which fields matter depends on the
	// provider type.
	APIKey       string `yaml:"api-key,omitempty" json:"api-key,omitempty"`
	APISecret    string `yaml:"api-secret,omitempty" json:"api-secret,omitempty"`
	ClientID     string `yaml:"client-id,omitempty" json:"client-id,omitempty"`
	ClientSecret string `yaml:"client-secret,omitempty" json:"client-secret,omitempty"`
	TenantID     string `yaml:"tenant-id,omitempty" json:"tenant-id,omitempty"`

	// RoleARN is assumed by the AWS adapter via STS for cross-account reads.
	RoleARN string `yaml:"role-arn,omitempty" json:"role-arn,omitempty"`

	// Region overrides the default region for backends that need one.
	Region string `yaml:"region,omitempty" json:"region,omitempty"`

	// ServiceAccountJSON holds the GCP service-account key file content.
	ServiceAccountJSON string `yaml:"service-account-json,omitempty" json:"service-account-json,omitempty"`

	// BillingDataset is the BigQuery billing-export table for GCP.
	BillingDataset string `yaml:"billing-dataset,omitempty" json:"billing-dataset,omitempty"`

	// BaseURL overrides the backend endpoint, mainly for tests.
	BaseURL string `yaml:"base-url,omitempty" json:"base-url,omitempty"`

	// Tags are static key=value pairs applied to every report from this
	// integration as extra dimensions.
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// IncludeFilters/ExcludeFilters are account-name regex filters.
	// Any exclude match rejects; with include filters present at least
	// one must match; with neither, everything is included.
	IncludeFilters []string `yaml:"include-filters,omitempty" json:"include-filters,omitempty"`
	ExcludeFilters []string `yaml:"exclude-filters,omitempty" json:"exclude-filters,omitempty"`

	// AmortizationMode selects how monthly custom costs spread into daily
	// buckets: average, start_day, or end_day (default).
	AmortizationMode string `yaml:"amortization-mode,omitempty" json:"amortization-mode,omitempty"`
}

// IsEnabled returns true unless the integration was explicitly disabled.
func (i *Integration) IsEnabled() bool {
	if i.Enabled == nil {
		return true
	}
	return *i.Enabled
}

// ProviderConfig groups the integrations configured under one backend.
type ProviderConfig struct {
	Type ProviderType `yaml:"type" json:"type"`

	// Enabled allows disabling a whole backend. Default: true.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	Integrations []Integration `yaml:"integrations" json:"integrations"`
}

// IsEnabled returns true unless the backend was explicitly disabled.
func (p *ProviderConfig) IsEnabled() bool {
	if p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

// EnabledIntegrations returns the integrations that are switched on,
// preserving declaration order.
func (p *ProviderConfig) EnabledIntegrations() []Integration {
	out := make([]Integration, 0, len(p.Integrations))
	for _, integ := range p.Integrations {
		if integ.IsEnabled() {
			out = append(out, integ)
		}
	}
	return out
}

// ValidationError describes an invalid provider or integration record.
type ValidationError struct {
	Provider string
	Field    string
	Message  string
}

func (e *ValidationError) Error() string {
	return "config: " + e.Provider + ": " + e.Field + ": " + e.Message
}

// Validate checks structural requirements common to all backends.
// Credential completeness is the adapter's concern: a missing secret is
// that one integration's runtime error, not a config load failure.
func (p *ProviderConfig) Validate() error {
	known := false
	for _, t := range AllProviderTypes {
		if p.Type == t {
			known = true
			break
		}
	}
	if !known {
		return &ValidationError{Provider: string(p.Type), Field: "type", Message: "unknown provider type"}
	}
	seen := make(map[string]struct{}, len(p.Integrations))
	for _, integ := range p.Integrations {
		if integ.Name == "" {
			return &ValidationError{Provider: string(p.Type), Field: "name", Message: "integration name is required"}
		}
		if _, dup := seen[integ.Name]; dup {
			return &ValidationError{Provider: string(p.Type), Field: "name", Message: "duplicate integration name " + integ.Name}
		}
		seen[integ.Name] = struct{}{}
	}
	return nil
}
