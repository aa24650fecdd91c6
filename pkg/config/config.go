package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Lookup  LookupConfig  `mapstructure:"lookup" yaml:"lookup"`
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Quota   QuotaConfig   `mapstructure:"quota" yaml:"quota"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CacheConfig contains caching configuration
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Persist writes entries through to the storage backend
	Persist         bool          `mapstructure:"persist" yaml:"persist"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
	// LookupSweepInterval is how often the lookup caches drop expired entries while serving
	LookupSweepInterval time.Duration `mapstructure:"lookup_sweep_interval" yaml:"lookup_sweep_interval"`
}

// StorageConfig selects the durable backend for persisted cache entries
type StorageConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`
	BaseDir   string `mapstructure:"base_dir" yaml:"base_dir"`
	BackupDir string `mapstructure:"backup_dir" yaml:"backup_dir"`
	MaxBytes  int    `mapstructure:"max_bytes" yaml:"max_bytes"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	Account   string `mapstructure:"account" yaml:"account"`
	Container string `mapstructure:"container" yaml:"container"`
	SASToken  string `mapstructure:"sas_token" yaml:"-"`
}

// LookupConfig configures the postal code and geocoding clients
type LookupConfig struct {
	ViaCEPURL    string        `mapstructure:"viacep_url" yaml:"viacep_url"`
	NominatimURL string        `mapstructure:"nominatim_url" yaml:"nominatim_url"`
	UserAgent    string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// MinInterval is the spacing enforced between geocoding requests
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
}

// BackendConfig selects the document store
type BackendConfig struct {
	Type       string `mapstructure:"type" yaml:"type"`
	Table      string `mapstructure:"table" yaml:"table"`
	Region     string `mapstructure:"region" yaml:"region"`
	Profile    string `mapstructure:"profile" yaml:"profile"`
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`
	MaxRetries int    `mapstructure:"max_retries" yaml:"max_retries"`
}

// QuotaConfig holds the daily operation budget of the backend plan
type QuotaConfig struct {
	Reads     int64   `mapstructure:"reads" yaml:"reads"`
	Writes    int64   `mapstructure:"writes" yaml:"writes"`
	Deletes   int64   `mapstructure:"deletes" yaml:"deletes"`
	NearRatio float64 `mapstructure:"near_ratio" yaml:"near_ratio"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Address         string        `mapstructure:"address" yaml:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// OutputConfig contains output formatting configuration
type OutputConfig struct {
	Format  string `mapstructure:"format" yaml:"format"`
	Pretty  bool   `mapstructure:"pretty" yaml:"pretty"`
	NoColor bool   `mapstructure:"no_color" yaml:"no_color"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled:             true,
			Persist:             true,
			CleanupInterval:     5 * time.Minute,
			LookupSweepInterval: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Backend: "local",
			BaseDir: NewDefaultsManager().GetRecommendedStoragePath(),
		},
		Lookup: LookupConfig{
			ViaCEPURL:    "https://viacep.com.br/ws",
			NominatimURL: "https://nominatim.openstreetmap.org",
			UserAgent:    "AcessivelMobility/1.0 (accessibility-focused ride-sharing app)",
			Timeout:      15 * time.Second,
			MinInterval:  time.Second,
		},
		Backend: BackendConfig{
			Type:       "memory",
			Table:      "acessivel",
			MaxRetries: 3,
		},
		Quota: QuotaConfig{
			Reads:     50000,
			Writes:    20000,
			Deletes:   20000,
			NearRatio: 0.9,
		},
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Output: OutputConfig{
			Format:  "table",
			Pretty:  true,
			NoColor: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// Load loads configuration from various sources
func Load() (*Config, error) {
	return LoadWith(viper.GetViper())
}

// LoadWith loads configuration through v, so tests can use an isolated viper
func LoadWith(v *viper.Viper) (*Config, error) {
	config := DefaultConfig()

	// SetConfigName would discard a file chosen with --config
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".acessivel"))
		}
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Set environment variable support
	v.SetEnvPrefix("ACESSIVEL")
	v.AutomaticEnv()

	// Map environment variables to config keys
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("storage.backend", "ACESSIVEL_STORAGE_BACKEND")
	v.BindEnv("storage.sas_token", "AZURE_STORAGE_SAS_TOKEN")
	v.BindEnv("backend.profile", "AWS_PROFILE")
	v.BindEnv("server.address", "ACESSIVEL_SERVER_ADDRESS")

	// Read configuration file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is not an error - we'll use defaults
	}

	// Unmarshal into our config struct
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage base directory is required")
		}
	case "memory":
	case "s3", "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required for the %s backend", c.Storage.Backend)
		}
	case "azure":
		if c.Storage.Account == "" || c.Storage.Container == "" {
			return fmt.Errorf("storage account and container are required for the azure backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Backend.Type {
	case "memory":
	case "dynamodb":
		if c.Backend.Table == "" {
			return fmt.Errorf("backend table is required for dynamodb")
		}
	default:
		return fmt.Errorf("unknown backend type %q", c.Backend.Type)
	}

	if c.Cache.CleanupInterval < 0 {
		return fmt.Errorf("cache cleanup interval must not be negative")
	}

	if c.Lookup.MinInterval < 0 {
		return fmt.Errorf("lookup min interval must not be negative")
	}

	if c.Quota.NearRatio < 0 || c.Quota.NearRatio > 1 {
		return fmt.Errorf("quota near ratio must be between 0 and 1")
	}

	return nil
}

// ExpandPaths expands home directory paths
func (c *Config) ExpandPaths() error {
	var err error
	c.Storage.BaseDir, err = expandPath(c.Storage.BaseDir)
	if err != nil {
		return fmt.Errorf("failed to expand storage base dir: %w", err)
	}

	c.Storage.BackupDir, err = expandPath(c.Storage.BackupDir)
	if err != nil {
		return fmt.Errorf("failed to expand storage backup dir: %w", err)
	}

	c.Logging.File, err = expandPath(c.Logging.File)
	if err != nil {
		return fmt.Errorf("failed to expand log file path: %w", err)
	}

	return nil
}

// expandPath expands ~ to home directory
func expandPath(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path, err
	}

	if len(path) == 1 {
		return home, nil
	}

	return filepath.Join(home, path[1:]), nil
}
