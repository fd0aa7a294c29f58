package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Similarity SimilarityConfig `mapstructure:"similarity"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// CatalogConfig selects where product records come from.
type CatalogConfig struct {
	Source string `mapstructure:"source"` // "file" or "database"
	Path   string `mapstructure:"path"`   // JSONL path for the file source
	Limit  int    `mapstructure:"limit"`  // only the first N records; 0 means all
}

// SimilarityConfig tunes a similarity run.
type SimilarityConfig struct {
	Workers                  int     `mapstructure:"workers"`
	TopK                     int     `mapstructure:"top_k"`
	MinScore                 float64 `mapstructure:"min_score"`
	ExcludeReferenceCategory bool    `mapstructure:"exclude_reference_category"`
}

// Load reads configuration from file, .env and environment, in that order of
// increasing precedence.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets and deployment overrides use conventional env names.
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("catalog.path", "CATALOG_PATH")
	v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY", "JINA_API_KEY", "KSERVE_API_KEY")
	v.BindEnv("embedding.base_url", "EMBEDDING_BASE_URL")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.region", "S3_REGION")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/catalog.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("catalog.source", "file")
	v.SetDefault("catalog.path", "./data/data.jsonl")
	v.SetDefault("catalog.limit", 0)

	v.SetDefault("embedding.provider", "jina")
	v.SetDefault("embedding.model", "jina-clip-v2")
	v.SetDefault("embedding.base_url", "https://api.jina.ai/v1")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("embedding.image_size", 224)
	v.SetDefault("embedding.timeout", 10*time.Second)
	v.SetDefault("embedding.fetch_timeout", 10*time.Second)
	v.SetDefault("embedding.output_name", "image_embeds")
	v.SetDefault("embedding.retry_count", 0)
	v.SetDefault("embedding.retry_wait", 500*time.Millisecond)
	v.SetDefault("embedding.retry_max_wait", 5*time.Second)

	v.SetDefault("similarity.workers", 4)
	v.SetDefault("similarity.top_k", 0)
	v.SetDefault("similarity.min_score", -1.0)
	v.SetDefault("similarity.exclude_reference_category", false)

	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.region", "")
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	switch c.Catalog.Source {
	case "file":
		if c.Catalog.Path == "" {
			return fmt.Errorf("catalog: path is required for file source")
		}
	case "database":
	default:
		return fmt.Errorf("catalog: unknown source %q", c.Catalog.Source)
	}
	if c.Catalog.Limit < 0 {
		return fmt.Errorf("catalog: limit must not be negative")
	}
	if c.Similarity.Workers <= 0 {
		return fmt.Errorf("similarity: workers must be positive")
	}
	if c.Similarity.TopK < 0 {
		return fmt.Errorf("similarity: top_k must not be negative")
	}
	if c.Similarity.MinScore < -1 || c.Similarity.MinScore > 1 {
		return fmt.Errorf("similarity: min_score must be within [-1, 1]")
	}
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	return c.Database.Validate()
}
