package config

// StorageConfig configures the S3-compatible store that serves s3:// image URLs.
// An empty endpoint uses AWS's default resolution.
type StorageConfig struct {
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

// Enabled reports whether s3:// image URLs can be resolved.
func (c *StorageConfig) Enabled() bool {
	return c.Endpoint != "" || c.AccessKey != ""
}
