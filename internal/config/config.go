package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/agenthands/bayesnet/internal/core/estimation"
	"github.com/agenthands/bayesnet/internal/core/inference"
	"github.com/agenthands/bayesnet/internal/core/model"
)

// VariableConfig declares a variable domain inline. Variables without a
// declared domain take their states from the data.
type VariableConfig struct {
	Name   string   `toml:"name"`
	States []string `toml:"states"`
}

type NetworkConfig struct {
	File      string           `toml:"file"`
	Edges     []model.Edge     `toml:"edges"`
	Variables []VariableConfig `toml:"variables"`
}

type DataConfig struct {
	Source string `toml:"source"`
	Path   string `toml:"path"`
	Table  string `toml:"table"`
}

type EstimatorConfig struct {
	Method               string  `toml:"method"`
	EquivalentSampleSize float64 `toml:"equivalent_sample_size"`
	Workers              int     `toml:"workers"`
}

type InferenceConfig struct {
	EliminationOrder string `toml:"elimination_order"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Prompt   string `toml:"prompt"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Config struct {
	Network   NetworkConfig   `toml:"network"`
	Data      DataConfig      `toml:"data"`
	Estimator EstimatorConfig `toml:"estimator"`
	Inference InferenceConfig `toml:"inference"`
	Server    ServerConfig    `toml:"server"`
	LLM       LLMConfig       `toml:"llm"`
	Memgraph  MemgraphConfig  `toml:"memgraph"`
	Log       LogConfig       `toml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Data:      DataConfig{Source: "csv"},
		Estimator: EstimatorConfig{Method: "mle", EquivalentSampleSize: 5, Workers: runtime.NumCPU()},
		Inference: InferenceConfig{EliminationOrder: "min_degree"},
		Server:    ServerConfig{Port: "8080"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a TOML file over the defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// Parse decodes TOML over the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides file settings with any environment variables that are set.
func (c *Config) ApplyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Data.Path, "BN_DATA_PATH")
	override(&c.Log.Level, "BN_LOG_LEVEL")
	override(&c.Server.Port, "PORT")
	override(&c.Memgraph.URI, "MEMGRAPH_URI")
	override(&c.Memgraph.User, "MEMGRAPH_USER")
	override(&c.Memgraph.Password, "MEMGRAPH_PASSWORD")
	override(&c.LLM.Provider, "LLM_PROVIDER")
	override(&c.LLM.Model, "LLM_MODEL")
	override(&c.LLM.APIKey, "LLM_API_KEY")
	override(&c.LLM.BaseURL, "LLM_BASE_URL")
	if v := os.Getenv("BN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Estimator.Workers = n
		}
	}
}

// Validate rejects enum values and numbers no component accepts.
func (c *Config) Validate() error {
	switch c.Data.Source {
	case "csv", "sqlite":
	default:
		return fmt.Errorf("invalid data source %q (want csv or sqlite)", c.Data.Source)
	}
	if c.Data.Source == "sqlite" && c.Data.Table == "" {
		return fmt.Errorf("data source sqlite requires a table")
	}
	if _, err := estimation.ParseMethod(c.Estimator.Method); err != nil {
		return err
	}
	if c.Estimator.EquivalentSampleSize <= 0 {
		return fmt.Errorf("equivalent_sample_size must be positive, got %v", c.Estimator.EquivalentSampleSize)
	}
	if c.Estimator.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Estimator.Workers)
	}
	if _, err := inference.ParseOrdering(c.Inference.EliminationOrder); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	switch c.LLM.Provider {
	case "", "openai", "ollama", "claude", "anthropic", "gemini":
	default:
		return fmt.Errorf("unsupported LLM provider %q", c.LLM.Provider)
	}
	return nil
}
