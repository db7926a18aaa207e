package aigateway

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default provider settings applied when a field is left zero.
const (
	defaultRequestsPerWindow = 100
	defaultWindow            = time.Minute
	defaultMaxConcurrency    = 5
	defaultMaxRetries        = 3
	defaultTimeout           = 30 * time.Second
	defaultRetention         = 24 * time.Hour
)

// Config is the top-level gateway configuration. It is loaded once at
// startup and read-only afterwards.
type Config struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Tracking  TrackingConfig            `yaml:"tracking"`
}

// ProviderConfig holds the static per-provider settings.
type ProviderConfig struct {
	RequestsPerWindow int      `yaml:"requests_per_window"`
	Window            Duration `yaml:"window"`
	MaxConcurrency    int      `yaml:"max_concurrency"`
	MaxRetries        int      `yaml:"max_retries"`
	Timeout           Duration `yaml:"timeout"`
	Auth              Auth     `yaml:"auth"`
	BaseURL           string   `yaml:"base_url"`
}

// Auth holds authentication credentials for a provider.
type Auth struct {
	APIKey string `yaml:"api_key" json:"api_key"`
}

// TrackingConfig configures the usage tracker.
type TrackingConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Retention Duration `yaml:"retention"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("aigateway: config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("aigateway: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("aigateway: parse config: %w", err)
	}

	cfg = cfg.withDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// withDefaults returns a copy of the config with zero fields filled in.
func (c Config) withDefaults() Config {
	out := c
	out.Providers = make(map[string]ProviderConfig, len(c.Providers))
	for name, pc := range c.Providers {
		if pc.RequestsPerWindow == 0 {
			pc.RequestsPerWindow = defaultRequestsPerWindow
		}
		if pc.Window == 0 {
			pc.Window = Duration(defaultWindow)
		}
		if pc.MaxConcurrency == 0 {
			pc.MaxConcurrency = defaultMaxConcurrency
		}
		if pc.MaxRetries == 0 {
			pc.MaxRetries = defaultMaxRetries
		}
		if pc.Timeout == 0 {
			pc.Timeout = Duration(defaultTimeout)
		}
		out.Providers[name] = pc
	}
	if out.Tracking.Retention == 0 {
		out.Tracking.Retention = Duration(defaultRetention)
	}
	return out
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("aigateway: config: at least one provider is required")
	}

	for name, pc := range c.Providers {
		if pc.RequestsPerWindow < 0 {
			return fmt.Errorf("aigateway: config: provider %q: requests_per_window must not be negative", name)
		}
		if pc.Window < 0 {
			return fmt.Errorf("aigateway: config: provider %q: window must not be negative", name)
		}
		if pc.MaxConcurrency < 0 {
			return fmt.Errorf("aigateway: config: provider %q: max_concurrency must not be negative", name)
		}
		if pc.MaxRetries < 0 {
			return fmt.Errorf("aigateway: config: provider %q: max_retries must not be negative", name)
		}
		if pc.Timeout < 0 {
			return fmt.Errorf("aigateway: config: provider %q: timeout must not be negative", name)
		}
	}

	if c.Tracking.Retention < 0 {
		return fmt.Errorf("aigateway: config: tracking retention must not be negative")
	}

	return nil
}

// Provider returns the config for a named provider with defaults applied,
// whether or not the provider appears in the config file.
func (c Config) Provider(name string) ProviderConfig {
	if pc, ok := c.Providers[name]; ok {
		return pc
	}
	return ProviderConfig{
		RequestsPerWindow: defaultRequestsPerWindow,
		Window:            Duration(defaultWindow),
		MaxConcurrency:    defaultMaxConcurrency,
		MaxRetries:        defaultMaxRetries,
		Timeout:           Duration(defaultTimeout),
	}
}
