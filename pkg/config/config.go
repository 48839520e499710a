// Package config loads exec-heatmap configuration from YAML files and
// HEATMAP_* environment variables.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. HEATMAP_SERVER_PORT.
const EnvPrefix = "HEATMAP"

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Heatmap    HeatmapConfig    `mapstructure:"heatmap"`
	SourceMaps SourceMapsConfig `mapstructure:"sourcemaps"`
	Export     ExportConfig     `mapstructure:"export"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// HeatmapConfig holds query and ingestion defaults.
type HeatmapConfig struct {
	DefaultTopN    int  `mapstructure:"default_top_n"`
	AutoInstrument bool `mapstructure:"auto_instrument"`
}

// SourceMapsConfig controls source-map discovery.
type SourceMapsConfig struct {
	Root       string `mapstructure:"root"`
	Watch      bool   `mapstructure:"watch"`
	DebounceMS int    `mapstructure:"debounce_ms"`
	Workers    int    `mapstructure:"workers"`
}

// Debounce returns the watcher debounce interval.
func (c SourceMapsConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// ExportConfig controls snapshot export targets.
type ExportConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// DatabaseConfig holds database connection configuration.
// An empty Type disables the database target.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // sqlite, postgres or mysql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Path     string `mapstructure:"path"` // sqlite file
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration.
// An empty Type disables the storage target.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"` // e.g. "myqcloud.com"
	Scheme    string `mapstructure:"scheme"` // "https" or "http"
	LocalPath string `mapstructure:"local_path"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"` // empty writes to stdout
}

// Load reads configuration from configPath, or from config.yaml in the
// standard locations when configPath is empty. A missing file is not an
// error; defaults and environment overrides still apply.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/exec-heatmap")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values. Every key is registered
// so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 9999)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("heatmap.default_top_n", 10)
	v.SetDefault("heatmap.auto_instrument", false)

	v.SetDefault("sourcemaps.root", "./dist")
	v.SetDefault("sourcemaps.watch", false)
	v.SetDefault("sourcemaps.debounce_ms", 250)
	v.SetDefault("sourcemaps.workers", 4)

	v.SetDefault("export.enabled", false)
	v.SetDefault("export.database.type", "")
	v.SetDefault("export.database.host", "localhost")
	v.SetDefault("export.database.port", 0)
	v.SetDefault("export.database.database", "heatmap")
	v.SetDefault("export.database.user", "")
	v.SetDefault("export.database.password", "")
	v.SetDefault("export.database.path", "./heatmap.db")
	v.SetDefault("export.database.max_conns", 10)
	v.SetDefault("export.storage.type", "")
	v.SetDefault("export.storage.bucket", "")
	v.SetDefault("export.storage.region", "")
	v.SetDefault("export.storage.secret_id", "")
	v.SetDefault("export.storage.secret_key", "")
	v.SetDefault("export.storage.domain", "")
	v.SetDefault("export.storage.scheme", "https")
	v.SetDefault("export.storage.local_path", "./reports")
	v.SetDefault("export.storage.prefix", "heatmaps")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Heatmap.DefaultTopN < 1 {
		return fmt.Errorf("heatmap default_top_n must be at least 1")
	}
	if c.SourceMaps.Workers < 1 {
		return fmt.Errorf("sourcemaps workers must be at least 1")
	}
	if c.SourceMaps.DebounceMS < 0 {
		return fmt.Errorf("sourcemaps debounce_ms must not be negative")
	}

	if !c.Export.Enabled {
		return nil
	}

	switch c.Export.Database.Type {
	case "":
	case "sqlite":
		if c.Export.Database.Path == "" {
			return fmt.Errorf("sqlite database path is required")
		}
	case "postgres", "mysql":
		if c.Export.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Export.Database.Type)
	}

	// storage validation is delegated to the storage package
	if c.Export.Database.Type == "" && c.Export.Storage.Type == "" {
		return fmt.Errorf("export enabled but no database or storage target configured")
	}

	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
