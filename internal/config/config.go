// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	TLS        TLSConfig        `mapstructure:"tls"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Watcher    WatcherConfig    `mapstructure:"watcher"`
	Inbox      InboxConfig      `mapstructure:"inbox"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	DocsEnabled     bool          `mapstructure:"docs_enabled"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// TLSConfig holds TLS/CertMagic configuration.
type TLSConfig struct {
	Enabled  bool      `mapstructure:"enabled"`
	Domains  []string  `mapstructure:"domains"`
	Email    string    `mapstructure:"email"`
	CacheDir string    `mapstructure:"cache_dir"`
	Staging  bool      `mapstructure:"staging"` // Use Let's Encrypt staging
	DNS      DNSConfig `mapstructure:"dns"`
}

// DNSConfig holds Azure DNS settings for the DNS-01 challenge.
type DNSConfig struct {
	SubscriptionID    string `mapstructure:"subscription_id"`
	ResourceGroupName string `mapstructure:"resource_group_name"`
	ClientID          string `mapstructure:"client_id"` // user-assigned managed identity, optional
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"` // separate listener when set, else served by the API
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// RemoteConfig holds the compute platform connection.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Project string        `mapstructure:"project"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ExtractionConfig holds request defaults.
type ExtractionConfig struct {
	Account    string `mapstructure:"account"`     // owner of stored geometry tables
	Folder     string `mapstructure:"folder"`      // export destination folder
	IDField    string `mapstructure:"id_field"`    // geometry identifier property
	AssetOwner string `mapstructure:"asset_owner"` // owner of the soil layers
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Type           string      `mapstructure:"type"` // local, s3, azure
	LocalPath      string      `mapstructure:"local_path"`
	ManifestPrefix string      `mapstructure:"manifest_prefix"`
	ResultsPrefix  string      `mapstructure:"results_prefix"`
	S3             S3Config    `mapstructure:"s3"`
	Azure          AzureConfig `mapstructure:"azure"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// LedgerConfig holds task ledger configuration.
type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"` // sqlite3, postgres
	DSN     string `mapstructure:"dsn"`
}

// WatcherConfig holds request directory watching configuration.
type WatcherConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Paths    []string      `mapstructure:"paths"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// InboxConfig holds object storage inbox configuration.
type InboxConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Prefix        string        `mapstructure:"prefix"`
	ReceiptPrefix string        `mapstructure:"receipt_prefix"`
	Interval      time.Duration `mapstructure:"interval"`
}

// Defaults sets the default configuration values.
func Defaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 5*time.Minute)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.max_body_bytes", 10<<20)
	viper.SetDefault("server.docs_enabled", true)
	viper.SetDefault("server.cors.allowed_origins", []string{})

	// TLS defaults
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cache_dir", "./.certmagic")
	viper.SetDefault("tls.staging", false)
	viper.SetDefault("tls.domains", []string{})
	viper.SetDefault("tls.email", "")
	viper.SetDefault("tls.dns.subscription_id", "")
	viper.SetDefault("tls.dns.resource_group_name", "")
	viper.SetDefault("tls.dns.client_id", "")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 0)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	// Remote defaults
	viper.SetDefault("remote.base_url", "https://earthengine.googleapis.com")
	viper.SetDefault("remote.project", "")
	viper.SetDefault("remote.token", "")
	viper.SetDefault("remote.timeout", 2*time.Minute)

	// Extraction defaults
	viper.SetDefault("extraction.account", "")
	viper.SetDefault("extraction.folder", "envextract")
	viper.SetDefault("extraction.id_field", "geeID")
	viper.SetDefault("extraction.asset_owner", "aschwantes")

	// Storage defaults
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local_path", "./data")
	viper.SetDefault("storage.manifest_prefix", "manifests")
	viper.SetDefault("storage.results_prefix", "exports")
	for _, key := range []string{"bucket", "region", "prefix", "endpoint", "access_key_id", "secret_access_key"} {
		viper.SetDefault("storage.s3."+key, "")
	}
	for _, key := range []string{"container", "account_name", "account_key", "connection_string", "prefix"} {
		viper.SetDefault("storage.azure."+key, "")
	}

	// Ledger defaults
	viper.SetDefault("ledger.enabled", true)
	viper.SetDefault("ledger.driver", "sqlite3")
	viper.SetDefault("ledger.dsn", "./data/envextract.db")

	// Watcher defaults
	viper.SetDefault("watcher.enabled", false)
	viper.SetDefault("watcher.paths", []string{"./requests"})
	viper.SetDefault("watcher.debounce", 500*time.Millisecond)

	// Inbox defaults
	viper.SetDefault("inbox.enabled", false)
	viper.SetDefault("inbox.prefix", "requests")
	viper.SetDefault("inbox.receipt_prefix", "receipts")
	viper.SetDefault("inbox.interval", 5*time.Minute)
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("ENVEXTRACT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/envextract")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.TLS.Enabled {
		if len(c.TLS.Domains) == 0 {
			return fmt.Errorf("TLS enabled but no domains specified")
		}
		if c.TLS.Email == "" {
			return fmt.Errorf("TLS enabled but no email specified")
		}
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown logging format: %s", c.Logging.Format)
	}

	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote base URL is required")
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote timeout must be positive")
	}

	switch c.Storage.Type {
	case "local":
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("local storage path is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required")
		}
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("S3 region is required")
		}
	case "azure":
		if c.Storage.Azure.Container == "" {
			return fmt.Errorf("azure container is required")
		}
		if c.Storage.Azure.AccountName == "" && c.Storage.Azure.ConnectionString == "" {
			return fmt.Errorf("azure account name or connection string is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	if c.Ledger.Enabled {
		switch c.Ledger.Driver {
		case "sqlite3":
		case "postgres":
			if c.Ledger.DSN == "" {
				return fmt.Errorf("postgres ledger requires a dsn")
			}
		default:
			return fmt.Errorf("unknown ledger driver: %s", c.Ledger.Driver)
		}
	}

	if c.Watcher.Enabled && len(c.Watcher.Paths) == 0 {
		return fmt.Errorf("watcher enabled but no paths specified")
	}

	if c.Inbox.Enabled && c.Inbox.Interval < time.Second {
		return fmt.Errorf("inbox interval must be at least one second")
	}

	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
