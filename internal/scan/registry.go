package scan

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the configuration for all data sources.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// FetchConfig defines HTTP fetching configuration for a source.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // Default: 30
	MaxRetries     int     `yaml:"max_retries,omitempty"`     // Default: 3
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // Requests per second, default: 1.0
}

// SourceConfig defines a single scan source.
type SourceConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Strategy    string `yaml:"strategy"`
	BaseURL     string `yaml:"base_url,omitempty"`
	APIKey      string `yaml:"api_key,omitempty"`
	RequiresKey bool   `yaml:"requires_key,omitempty"`
	Enabled     bool   `yaml:"enabled"`
	DaysBack    int    `yaml:"days_back,omitempty"`
	Description string `yaml:"description,omitempty"`

	Fetch FetchConfig `yaml:"fetch,omitempty"`
}

// Descriptor converts the config into the static registry view.
func (c SourceConfig) Descriptor() SourceDescriptor {
	return SourceDescriptor{
		ID:          c.ID,
		Name:        c.Name,
		RequiresKey: c.RequiresKey,
		Enabled:     c.Enabled,
	}
}

// KeyMissing reports a source that needs an API key but has none configured.
// Such sources are skipped before any fetch is attempted.
func (c SourceConfig) KeyMissing() bool {
	return c.RequiresKey && strings.TrimSpace(c.APIKey) == ""
}

// LoadRegistry reads the embedded sources.yaml. Environment variables inside
// the YAML (e.g. ${SAM_GOV_API_KEY}) are expanded first.
func LoadRegistry() (*Registry, error) {
	data, err := sourcesYAML.ReadFile("config/sources.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded sources: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}

	seen := make(map[string]struct{}, len(reg.Sources))
	for _, src := range reg.Sources {
		if src.ID == "" {
			return nil, fmt.Errorf("source with empty id")
		}
		if _, dup := seen[src.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = struct{}{}
	}

	return &reg, nil
}

// Get returns the config for a source id.
func (r *Registry) Get(id string) (SourceConfig, bool) {
	for _, src := range r.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return SourceConfig{}, false
}
