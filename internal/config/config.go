// Package config loads gateway configuration from a YAML file with
// environment expansion.
//
// DESIGN: Config is read once at startup. Values referencing environment
// variables (${VAR} or ${VAR:-default}) are expanded before parsing, so
// secrets stay out of the file. Missing values fall back to defaults.go.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the gateway.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  []ProviderConfig `yaml:"providers"`
	Generation GenerationConfig `yaml:"generation"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// ProviderConfig describes one upstream completion provider. Providers are
// tried in the order they appear in the file (primary first).
type ProviderConfig struct {
	Name     string `yaml:"name"` // anthropic | openai | bedrock
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	Region   string `yaml:"region"` // bedrock only
}

// GenerationConfig carries the pipeline constants.
type GenerationConfig struct {
	CacheTTL          Duration `yaml:"cache_ttl"`
	ThrottleInterval  Duration `yaml:"throttle_interval"`
	CallTimeout       Duration `yaml:"call_timeout"`
	MaxRetries        int      `yaml:"max_retries"`
	BackoffCeiling    Duration `yaml:"backoff_ceiling"`
	CooldownCeiling   Duration `yaml:"cooldown_ceiling"`
	ScoreThreshold    int      `yaml:"score_threshold"`
	MaxSentences      int      `yaml:"max_sentences"`
	MaxChars          int      `yaml:"max_chars"`
	RetrievalExamples int      `yaml:"retrieval_examples"`
	CriticalExamples  int      `yaml:"critical_examples"`
	CriticalIntents   []string `yaml:"critical_intents"`
	PromptTokenBudget int      `yaml:"prompt_token_budget"`
}

// MonitoringConfig controls the interaction log sinks.
type MonitoringConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"` // JSONL interaction log
	DBPath      string `yaml:"db_path"`  // SQLite interaction store
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// Duration wraps time.Duration for YAML parsing ("90s", "1200ms").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// D returns the underlying time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Load reads and parses a config file. A missing path returns defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		expanded := ExpandEnvWithDefaults(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(DefaultServerReadTimeout)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(DefaultServerWriteTimeout)
	}

	g := &c.Generation
	if g.CacheTTL == 0 {
		g.CacheTTL = Duration(DefaultCacheTTL)
	}
	if g.ThrottleInterval == 0 {
		g.ThrottleInterval = Duration(DefaultThrottleInterval)
	}
	if g.CallTimeout == 0 {
		g.CallTimeout = Duration(DefaultCallTimeout)
	}
	if g.MaxRetries == 0 {
		g.MaxRetries = DefaultMaxRetries
	}
	if g.BackoffCeiling == 0 {
		g.BackoffCeiling = Duration(DefaultBackoffCeiling)
	}
	if g.CooldownCeiling == 0 {
		g.CooldownCeiling = Duration(DefaultCooldownCeiling)
	}
	if g.ScoreThreshold == 0 {
		g.ScoreThreshold = DefaultScoreThreshold
	}
	if g.MaxSentences == 0 {
		g.MaxSentences = DefaultMaxSentences
	}
	if g.MaxChars == 0 {
		g.MaxChars = DefaultMaxChars
	}
	if g.RetrievalExamples == 0 {
		g.RetrievalExamples = DefaultRetrievalExamples
	}
	if g.CriticalExamples == 0 {
		g.CriticalExamples = DefaultCriticalRetrievalExamples
	}
	if g.PromptTokenBudget == 0 {
		g.PromptTokenBudget = DefaultPromptTokenBudget
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider entry missing name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider %q", p.Name)
		}
		seen[p.Name] = true
	}
	if c.Generation.ScoreThreshold < 0 || c.Generation.ScoreThreshold > 100 {
		return fmt.Errorf("score_threshold must be in [0,100], got %d", c.Generation.ScoreThreshold)
	}
	return nil
}

// IsCriticalIntent reports whether an intent gets the larger retrieval
// example budget and full-failover routing.
func (c *Config) IsCriticalIntent(intent string) bool {
	for _, ci := range c.Generation.CriticalIntents {
		if ci == intent {
			return true
		}
	}
	return false
}
