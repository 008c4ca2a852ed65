// Package config loads recall's configuration from YAML files and RECALL_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Protocol-Lattice/recall/pkg/logging"
	"github.com/Protocol-Lattice/recall/pkg/memory/embed"
	"github.com/Protocol-Lattice/recall/pkg/memory/engine"
	"github.com/Protocol-Lattice/recall/pkg/memory/format"
	"github.com/Protocol-Lattice/recall/pkg/memory/store"
)

const EnvPrefix = "RECALL"

// Config holds the complete configuration.
type Config struct {
	Scoring   engine.Params   `mapstructure:"scoring" yaml:"scoring"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	Formatter FormatterConfig `mapstructure:"formatter" yaml:"formatter"`
	Embedding embed.Config    `mapstructure:"embedding" yaml:"embedding"`
	Rerank    RerankConfig    `mapstructure:"rerank" yaml:"rerank"`
	Worker    WorkerConfig    `mapstructure:"worker" yaml:"worker"`
	Store     store.Config    `mapstructure:"store" yaml:"store"`
	Logging   logging.Config  `mapstructure:"logging" yaml:"logging"`
}

// RetrievalConfig holds the default token budgets of a retrieval call.
type RetrievalConfig struct {
	PreFilterTokens int  `mapstructure:"pre_filter_tokens" yaml:"pre_filter_tokens"`
	FinalTokens     int  `mapstructure:"final_tokens" yaml:"final_tokens"`
	Smart           bool `mapstructure:"smart" yaml:"smart"`
}

// FormatterConfig holds the bucket sizes and the injected block's budget.
type FormatterConfig struct {
	format.Sizes `mapstructure:",squash" yaml:",inline"`
	Budget       int `mapstructure:"budget" yaml:"budget"`
}

// RerankConfig selects the LLM used by smart mode.
type RerankConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
}

// WorkerConfig controls the scoring worker and embedding cache.
type WorkerConfig struct {
	Offload   bool          `mapstructure:"offload" yaml:"offload"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheSize int           `mapstructure:"cache_size" yaml:"cache_size"`
}

// Default returns a configuration with every value set to its default.
func Default() *Config {
	opts := engine.DefaultOptions()
	return &Config{
		Scoring: engine.DefaultParams(),
		Retrieval: RetrievalConfig{
			PreFilterTokens: 4000,
			FinalTokens:     1500,
		},
		Formatter: FormatterConfig{
			Sizes:  format.DefaultSizes(),
			Budget: 2000,
		},
		Embedding: embed.Config{
			CacheSize:  opts.CacheSize,
			BatchWidth: 5,
		},
		Worker: WorkerConfig{
			Offload:   opts.Offload,
			Timeout:   opts.Timeout,
			CacheSize: opts.CacheSize,
		},
		Store: store.Config{
			Driver: "json",
			Path:   "./data",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads configuration from path (or ./recall.yaml and
// $HOME/.config/recall/recall.yaml when path is empty) layered over the
// defaults and RECALL_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("recall")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/recall")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys the
// config file does not mention.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("scoring.base_lambda", d.Scoring.BaseLambda)
	v.SetDefault("scoring.importance5_floor", d.Scoring.Importance5Floor)
	v.SetDefault("scoring.vector_threshold", d.Scoring.VectorThreshold)
	v.SetDefault("scoring.vector_weight", d.Scoring.VectorWeight)
	v.SetDefault("scoring.keyword_weight", d.Scoring.KeywordWeight)
	v.SetDefault("scoring.k1", d.Scoring.K1)
	v.SetDefault("scoring.b", d.Scoring.B)
	v.SetDefault("retrieval.pre_filter_tokens", d.Retrieval.PreFilterTokens)
	v.SetDefault("retrieval.final_tokens", d.Retrieval.FinalTokens)
	v.SetDefault("retrieval.smart", d.Retrieval.Smart)
	v.SetDefault("formatter.current_scene_size", d.Formatter.CurrentScene)
	v.SetDefault("formatter.leading_up_size", d.Formatter.LeadingUp)
	v.SetDefault("formatter.budget", d.Formatter.Budget)
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.endpoint", d.Embedding.Endpoint)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.cache_dir", d.Embedding.CacheDir)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	v.SetDefault("embedding.batch_width", d.Embedding.BatchWidth)
	v.SetDefault("rerank.provider", d.Rerank.Provider)
	v.SetDefault("rerank.model", d.Rerank.Model)
	v.SetDefault("worker.offload", d.Worker.Offload)
	v.SetDefault("worker.timeout", d.Worker.Timeout)
	v.SetDefault("worker.cache_size", d.Worker.CacheSize)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.database", d.Store.Database)
	v.SetDefault("store.graph.uri", d.Store.Graph.URI)
	v.SetDefault("store.graph.user", d.Store.Graph.User)
	v.SetDefault("store.graph.password", d.Store.Graph.Password)
	v.SetDefault("store.graph.database", d.Store.Graph.Database)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
}

// Validate rejects values no component can work with and clamps the
// scoring constants.
func (c *Config) Validate() error {
	var errs []error
	c.Scoring = c.Scoring.Normalized()
	if c.Retrieval.PreFilterTokens < 0 || c.Retrieval.FinalTokens < 0 {
		errs = append(errs, errors.New("retrieval budgets must not be negative"))
	}
	if c.Formatter.Budget < 0 {
		errs = append(errs, errors.New("formatter budget must not be negative"))
	}
	if c.Formatter.CurrentScene < 0 || c.Formatter.LeadingUp < 0 {
		errs = append(errs, errors.New("formatter bucket sizes must not be negative"))
	} else if c.Formatter.CurrentScene > 0 && c.Formatter.LeadingUp > 0 && c.Formatter.LeadingUp < c.Formatter.CurrentScene {
		errs = append(errs, fmt.Errorf("formatter leading_up_size (%d) must be at least current_scene_size (%d)",
			c.Formatter.LeadingUp, c.Formatter.CurrentScene))
	}
	if c.Worker.Timeout < 0 {
		errs = append(errs, errors.New("worker timeout must not be negative"))
	}
	if c.Worker.CacheSize < 0 || c.Embedding.CacheSize < 0 {
		errs = append(errs, errors.New("cache sizes must not be negative"))
	}
	if c.Retrieval.Smart && c.Rerank.Provider == "" {
		errs = append(errs, errors.New("retrieval.smart requires rerank.provider"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}
