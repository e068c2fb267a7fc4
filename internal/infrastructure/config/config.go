package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration, loaded once at startup.
type Config struct {
	MongoDB    MongoDBConfig   `mapstructure:"mongodb"`
	Ollama     OllamaConfig    `mapstructure:"ollama"`
	Anthropic  CloudConfig     `mapstructure:"anthropic"`
	OpenAI     CloudConfig     `mapstructure:"openai"`
	OpenRouter CloudConfig     `mapstructure:"openrouter"`
	Voyage     CloudConfig     `mapstructure:"voyage"`
	Embedding  EmbeddingConfig `mapstructure:"embedding"`
	API        APIConfig       `mapstructure:"api"`
	Log        LogConfig       `mapstructure:"log"`
	Telegram   TelegramConfig  `mapstructure:"telegram"`
	MCP        MCPConfig       `mapstructure:"mcp"`
	Agents     AgentsConfig    `mapstructure:"agents"`
	Debug      bool            `mapstructure:"debug"`
}

// MongoDBConfig points at the document store.
type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// OllamaConfig points at the local model server.
type OllamaConfig struct {
	URL string `mapstructure:"url"`
}

// CloudConfig holds a cloud backend credential. An empty key is not a load
// error; availability is gated at the LLM manager.
type CloudConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// EmbeddingConfig selects the embedding provider chain.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"` // ollama (primary); voyage used as fallback when keyed
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
	BatchSize int    `mapstructure:"batch_size"`
}

// APIConfig is the HTTP bind address.
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the host:port bind string.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelegramConfig enables the optional Telegram surface when Token is set.
type TelegramConfig struct {
	Token    string  `mapstructure:"token"`
	AllowIDs []int64 `mapstructure:"allow_ids"`
}

// MCPConfig locates the remote tool server registry file.
type MCPConfig struct {
	ConfigPath string `mapstructure:"config_path"`
}

// AgentsConfig locates optional agent seed definitions.
type AgentsConfig struct {
	SeedDir string `mapstructure:"seed_dir"`
}

// Load reads configuration in layers: defaults, then an optional YAML file
// ($ARIA_CONFIG or ./aria.yaml), then ARIA_* environment variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path := os.Getenv("ARIA_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("aria")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".aria"))
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("ARIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Embedding.Dimension <= 0 {
		return nil, fmt.Errorf("embedding.dimension must be positive, got %d", cfg.Embedding.Dimension)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.database", "aria")

	v.SetDefault("ollama.url", "http://localhost:11434")

	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.model", "qwen3-embedding:0.6b")
	v.SetDefault("embedding.dimension", 1024)
	v.SetDefault("embedding.batch_size", 32)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("mcp.config_path", "./mcp_servers.json")
	v.SetDefault("agents.seed_dir", "./agents.d")

	v.SetDefault("debug", false)
}
