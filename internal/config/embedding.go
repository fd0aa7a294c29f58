package config

import (
	"fmt"
	"time"
)

// EmbeddingConfig configures the image embedding model and the fetch step.
type EmbeddingConfig struct {
	Provider     string        `mapstructure:"provider"`      // "jina" or "kserve"
	Model        string        `mapstructure:"model"`         // model name/ID
	APIKey       string        `mapstructure:"api_key"`       // bearer token, optional for kserve
	BaseURL      string        `mapstructure:"base_url"`      // API root of the inference server
	Dimensions   int           `mapstructure:"dimensions"`    // expected vector length, 0 accepts the model's
	ImageSize    int           `mapstructure:"image_size"`    // square input edge in pixels
	Timeout      time.Duration `mapstructure:"timeout"`       // per inference call
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"` // per image download
	OutputName   string        `mapstructure:"output_name"`   // kserve output tensor to read
	RetryCount   int           `mapstructure:"retry_count"`
	RetryWait    time.Duration `mapstructure:"retry_wait"`
	RetryMaxWait time.Duration `mapstructure:"retry_max_wait"`
}

// Validate checks that the embedding configuration is usable.
func (c *EmbeddingConfig) Validate() error {
	switch c.Provider {
	case "jina", "kserve":
	default:
		return fmt.Errorf("embedding: unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("embedding: model is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("embedding: base_url is required")
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("embedding: dimensions must not be negative")
	}
	if c.ImageSize <= 0 {
		return fmt.Errorf("embedding: image_size must be positive")
	}
	if c.Timeout <= 0 || c.FetchTimeout <= 0 {
		return fmt.Errorf("embedding: timeouts must be positive")
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("embedding: retry_count must not be negative")
	}
	return nil
}

// ValidateWithAPIKey additionally requires credentials, which the hosted
// jina provider always needs.
func (c *EmbeddingConfig) ValidateWithAPIKey() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Provider == "jina" && c.APIKey == "" {
		return fmt.Errorf("embedding: api_key is required for provider %q (set EMBEDDING_API_KEY or JINA_API_KEY)", c.Provider)
	}
	return nil
}
