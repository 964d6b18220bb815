package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. HTTPSERVER_SERVER_PORT.
const EnvPrefix = "HTTPSERVER"

// Config is the static configuration read once at startup.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the listening socket and connection handling.
type ServerConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	BufferSize int    `mapstructure:"buffer_size"`
	Backlog    int    `mapstructure:"backlog"`
	// MaxWorkers bounds concurrent connection workers. 0 leaves workers
	// detached and unbounded.
	MaxWorkers int `mapstructure:"max_workers"`
	// DrainTimeout is how long shutdown waits for in-flight workers.
	// 0 does not wait.
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// UpstreamConfig describes the remote services behind /exchange and /movie.
type UpstreamConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	ExchangeURL string        `mapstructure:"exchange_url"`
	OMDbURL     string        `mapstructure:"omdb_url"`
	OMDbAPIKey  string        `mapstructure:"omdb_api_key"`
}

// CacheConfig controls the on-disk cache of upstream payloads.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "localhost",
			Port:       8888,
			BufferSize: 4096,
			Backlog:    5,
		},
		Upstream: UpstreamConfig{
			Timeout:     10 * time.Second,
			ExchangeURL: "https://api.exchangerate-api.com/v4/latest/USD",
			OMDbURL:     "http://www.omdbapi.com/",
		},
		Cache: CacheConfig{
			Path: "httpserver-cache.db",
			TTL:  10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "human",
		},
	}
}

// New returns a viper instance carrying the defaults and the environment
// binding. Callers may bind CLI flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.buffer_size", d.Server.BufferSize)
	v.SetDefault("server.backlog", d.Server.Backlog)
	v.SetDefault("server.max_workers", d.Server.MaxWorkers)
	v.SetDefault("server.drain_timeout", d.Server.DrainTimeout)
	v.SetDefault("upstream.timeout", d.Upstream.Timeout)
	v.SetDefault("upstream.exchange_url", d.Upstream.ExchangeURL)
	v.SetDefault("upstream.omdb_url", d.Upstream.OMDbURL)
	v.SetDefault("upstream.omdb_api_key", d.Upstream.OMDbAPIKey)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file into v and decodes the result. With an empty
// path it looks for httpserver.{toml,yaml,json} in the working directory and
// in ~/.config/httpserver; a missing file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("httpserver")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "httpserver"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Addr is the host:port the server binds to.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return &ConfigError{Field: "server.port", Message: "must be between 0 and 65535"}
	case c.Server.BufferSize <= 0:
		return &ConfigError{Field: "server.buffer_size", Message: "must be positive"}
	case c.Server.Backlog <= 0:
		return &ConfigError{Field: "server.backlog", Message: "must be positive"}
	case c.Server.MaxWorkers < 0:
		return &ConfigError{Field: "server.max_workers", Message: "must not be negative"}
	case c.Server.DrainTimeout < 0:
		return &ConfigError{Field: "server.drain_timeout", Message: "must not be negative"}
	case c.Upstream.Timeout <= 0:
		return &ConfigError{Field: "upstream.timeout", Message: "must be positive"}
	case c.Cache.Enabled && c.Cache.Path == "":
		return &ConfigError{Field: "cache.path", Message: "required when the cache is enabled"}
	case c.Cache.Enabled && c.Cache.TTL <= 0:
		return &ConfigError{Field: "cache.ttl", Message: "must be positive"}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be human or json"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
