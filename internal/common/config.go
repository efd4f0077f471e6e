package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Store     StoreConfig       `toml:"store"`
	Query     string            `toml:"query"`      // Raw GraphQL query text
	QueryFile string            `toml:"query_file"` // Path to a file holding the query (used when query is empty)
	Variables map[string]string `toml:"variables"`  // Variable substitutions applied before submission
	Export    ExportConfig      `toml:"export"`
	Logging   LoggingConfig     `toml:"logging"`
	Cache     CacheConfig       `toml:"cache"`
}

// StoreConfig identifies the store and credential for the admin API
type StoreConfig struct {
	Name        string `toml:"name"`         // Store subdomain, e.g. "shop1"
	AccessToken string `toml:"access_token"` // Static admin API credential
	APIVersion  string `toml:"api_version"`  // Admin API version (empty = pinned default)
}

// ExportConfig controls the polling loop
type ExportConfig struct {
	Interval string `toml:"interval"` // e.g. "20s" - delay between status polls
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "off", "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// CacheConfig controls the content-addressable result cache
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`                                                     // Disabled = no filesystem access at all
	Backend string `toml:"backend" validate:"omitempty,oneof=filesystem memory badger"` // Blob store backend
	Dir     string `toml:"dir"`                                                         // Backing directory
}

// NewDefaultConfig returns configuration defaults
func NewDefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			APIVersion: "", // Pinned default applied by the client
		},
		Variables: map[string]string{},
		Export: ExportConfig{
			Interval: "20s", // Matches the platform's recommended poll cadence
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Cache: CacheConfig{
			Enabled: false,
			Backend: "filesystem",
			Dir:     "./data/cache",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files, later files
// overriding earlier ones, then applies environment variable overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if name := os.Getenv("EFFLUO_STORE_NAME"); name != "" {
		config.Store.Name = name
	}
	if token := os.Getenv("EFFLUO_ACCESS_TOKEN"); token != "" {
		config.Store.AccessToken = token
	}
	if version := os.Getenv("EFFLUO_API_VERSION"); version != "" {
		config.Store.APIVersion = version
	}
	if query := os.Getenv("EFFLUO_QUERY"); query != "" {
		config.Query = query
	}
	if queryFile := os.Getenv("EFFLUO_QUERY_FILE"); queryFile != "" {
		config.QueryFile = queryFile
	}
	if interval := os.Getenv("EFFLUO_EXPORT_INTERVAL"); interval != "" {
		config.Export.Interval = interval
	}
	if level := os.Getenv("EFFLUO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if enabled := os.Getenv("EFFLUO_CACHE_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Cache.Enabled = b
		}
	}
	if backend := os.Getenv("EFFLUO_CACHE_BACKEND"); backend != "" {
		config.Cache.Backend = backend
	}
	if dir := os.Getenv("EFFLUO_CACHE_DIR"); dir != "" {
		config.Cache.Dir = dir
	}
}

// Validate checks structural config constraints. Required export inputs
// (store name, token, query) are validated per invocation by the exporter,
// not here, so partial configs completed by CLI flags stay loadable.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return fmt.Errorf("invalid config: field %s failed %s", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := c.PollInterval(); err != nil {
		return err
	}

	return nil
}

// PollInterval parses the export interval.
func (c *Config) PollInterval() (time.Duration, error) {
	raw := strings.TrimSpace(c.Export.Interval)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid export interval %q: %w", raw, err)
	}
	return d, nil
}

// QueryText resolves the query from inline config or the query file.
func (c *Config) QueryText() (string, error) {
	if c.Query != "" {
		return c.Query, nil
	}
	if c.QueryFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.QueryFile)
	if err != nil {
		return "", fmt.Errorf("failed to read query file %s: %w", c.QueryFile, err)
	}
	return string(data), nil
}
