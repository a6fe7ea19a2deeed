// Package config provides configuration structures and loading logic for qtrace.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultPath is used when neither --config nor QTRACE_CONFIG is given.
const DefaultPath = "config.toml"

// Config represents the root configuration structure for qtrace.
type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	Loki      LokiConfig      `mapstructure:"loki"`
	GraphNode GraphNodeConfig `mapstructure:"graph-node"`
	Output    OutputConfig    `mapstructure:"output"`
	History   HistoryConfig   `mapstructure:"history"`
	LLM       LLMConfig       `mapstructure:"llm"`
}

// LokiConfig defines where query-node logs are searched.
type LokiConfig struct {
	Cluster  string `mapstructure:"cluster"`
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Timeout  string `mapstructure:"timeout"`
}

// GraphNodeConfig defines the graph-node instance that replays queries with tracing on.
type GraphNodeConfig struct {
	URL        string `mapstructure:"url"`
	TraceToken string `mapstructure:"trace-token"`
	Timeout    string `mapstructure:"timeout"`
}

// OutputConfig names the files raw artifacts are saved to. Empty means don't save.
type OutputConfig struct {
	Trace     string `mapstructure:"trace"`
	Data      string `mapstructure:"data"`
	Query     string `mapstructure:"query"`
	Variables string `mapstructure:"variables"`
	Metrics   string `mapstructure:"metrics"`
}

// HistoryConfig controls the local SQLite record of retrieved traces.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LLMConfig configures the OpenAI-compatible endpoint used by --explain.
type LLMConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	APIKeyEnv   string  `mapstructure:"api_key_env"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	APIKey      string  `mapstructure:"-"`
}

// GetTimeoutDuration parses the configured string timeout into a time.Duration.
func (c *LokiConfig) GetTimeoutDuration() time.Duration {
	return parseTimeout(c.Timeout)
}

// GetTimeoutDuration parses the configured string timeout into a time.Duration.
func (c *GraphNodeConfig) GetTimeoutDuration() time.Duration {
	return parseTimeout(c.Timeout)
}

func parseTimeout(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Load reads the TOML config file at path and validates it. Every key can be
// overridden from the environment, e.g. QTRACE_LOKI_PASSWORD or
// QTRACE_GRAPH_NODE_TRACE_TOKEN.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for commands that only touch local state.
func Read(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix("qtrace")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Every key gets a default so that AutomaticEnv can see it during Unmarshal.
	v.SetDefault("log_level", "info")
	v.SetDefault("loki.cluster", "")
	v.SetDefault("loki.url", "")
	v.SetDefault("loki.username", "")
	v.SetDefault("loki.password", "")
	v.SetDefault("loki.timeout", "30s")
	v.SetDefault("graph-node.url", "")
	v.SetDefault("graph-node.trace-token", "")
	v.SetDefault("graph-node.timeout", "30s")
	v.SetDefault("output.trace", "")
	v.SetDefault("output.data", "")
	v.SetDefault("output.query", "")
	v.SetDefault("output.variables", "")
	v.SetDefault("output.metrics", "")
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "qtrace.db")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 1000)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.LLM.APIKeyEnv != "" {
		cfg.LLM.APIKey = os.Getenv(cfg.LLM.APIKeyEnv)
	}

	return &cfg, nil
}

// Validate checks that the settings every run depends on are present.
func (c *Config) Validate() error {
	var errs []error
	if c.Loki.URL == "" {
		errs = append(errs, errors.New("loki.url is required"))
	}
	if c.Loki.Cluster == "" {
		errs = append(errs, errors.New("loki.cluster is required"))
	}
	if c.GraphNode.URL == "" {
		errs = append(errs, errors.New("graph-node.url is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
