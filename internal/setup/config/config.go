package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v0.1.0"

// EnvPrefix is the prefix for environment variable overrides.
// Nested keys are separated by a double underscore, e.g. ROLESYNC_GITHUB__TOKEN.
const EnvPrefix = "ROLESYNC_"

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentWorkerVersion = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	Worker WorkerConfig
}

// CommonConfig contains configuration shared between the worker and tools.
type CommonConfig struct {
	// Version of the common config.
	Version int `koanf:"version"`
	// Deployment environment. Anything other than "production" enables development features.
	Environment string     `koanf:"environment"`
	Debug       Debug      `koanf:"debug"`
	PostgreSQL  PostgreSQL `koanf:"postgresql"`
	Redis       Redis      `koanf:"redis"`
	Discord     Discord    `koanf:"discord"`
	GitHub      GitHub     `koanf:"github"`
	API         API        `koanf:"api"`
}

// WorkerConfig contains worker specific configuration.
type WorkerConfig struct {
	// Version of the worker config.
	Version int `koanf:"version"`
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
	// Startup delay in milliseconds.
	StartupDelay int `koanf:"startup_delay"`
	// Role synchronization schedule and limits.
	Sync Sync `koanf:"sync"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Discord contains Discord bot configuration.
type Discord struct {
	// Discord bot token used for role management.
	Token string `koanf:"token"`
}

// GitHub contains GitHub REST API configuration.
type GitHub struct {
	// Optional personal access token for the elevated request quota.
	Token string `koanf:"token"`
	// Base URL of the REST API. Empty uses the public API.
	BaseURL string `koanf:"base_url"`
	// Maximum requests per minute across every caller.
	RequestsPerMinute int `koanf:"requests_per_minute"`
	// Maximum retry attempts for a single request.
	MaxRetries int `koanf:"max_retries"`
	// Seconds added to the primary rate limit reset before retrying.
	RateLimitBuffer int `koanf:"rate_limit_buffer"`
	// Response cache lifetime in minutes.
	CacheTTL int `koanf:"cache_ttl"`
	// Maximum number of cached responses.
	CacheSize int `koanf:"cache_size"`
}

// API contains admin HTTP API configuration.
type API struct {
	// Enable the admin API server.
	Enabled bool `koanf:"enabled"`
	// Listen host.
	Host string `koanf:"host"`
	// Listen port.
	Port int `koanf:"port"`
	// Bearer key required on every request.
	AdminKey string `koanf:"admin_key"`
	// Allow the manual sync trigger in production.
	EnableTrigger bool `koanf:"enable_trigger"`
	// Requests per second allowed from one client address.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	// Burst size for client rate limiting.
	BurstSize int `koanf:"burst_size"`
}

// Sync contains scheduler configuration.
type Sync struct {
	// Hours between passes.
	IntervalHours float64 `koanf:"interval_hours"`
	// Seconds before the first pass.
	InitialDelay int `koanf:"initial_delay"`
	// Minutes before retrying a pass that failed to orchestrate.
	RetryDelay int `koanf:"retry_delay"`
	// Guilds reconciled at the same time.
	GuildConcurrency int `koanf:"guild_concurrency"`
	// Members processed at the same time within one guild.
	UserConcurrency int `koanf:"user_concurrency"`
	// Days to keep sync history records.
	HistoryRetentionDays int `koanf:"history_retention_days"`
}

// IsProduction reports whether the configured environment is production.
func (c *CommonConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// TriggerEnabled reports whether the manual sync trigger may be served.
func (a *API) TriggerEnabled(common *CommonConfig) bool {
	return a.EnableTrigger || !common.IsProduction()
}

// Interval returns the time between scheduled passes.
func (s *Sync) Interval() time.Duration {
	return time.Duration(s.IntervalHours * float64(time.Hour))
}

// LoadConfig loads the configuration from the config search paths.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".rolesync",
		homeDir + "/.rolesync/config",
		"/etc/rolesync/config",
		"/app/config",
		"config",
		".",
	}

	return LoadConfigFrom(configPaths)
}

// LoadConfigFrom loads the configuration files from the first matching path in the given list.
func LoadConfigFrom(configPaths []string) (*Config, string, error) {
	var (
		config         Config
		usedConfigPath string
	)

	sections := []struct {
		name   string
		target any
	}{
		{"common", &config.Common},
		{"worker", &config.Worker},
	}

	for _, section := range sections {
		k := koanf.New(".")
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, section.name)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, section.name)
		}

		// Environment variables take precedence over file values
		if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
			return nil, "", fmt.Errorf("error loading environment overrides: %w", err)
		}

		if err := k.Unmarshal("", section.target); err != nil {
			return nil, "", fmt.Errorf("error unmarshaling %s config: %w", section.name, err)
		}
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("worker", config.Worker.Version, CurrentWorkerVersion); err != nil {
		return nil, "", err
	}

	config.applyDefaults()

	return &config, usedConfigPath, nil
}

// applyDefaults fills unset values with their defaults.
func (c *Config) applyDefaults() {
	if c.Common.Debug.LogLevel == "" {
		c.Common.Debug.LogLevel = "info"
	}

	if c.Common.Debug.MaxLogsToKeep <= 0 {
		c.Common.Debug.MaxLogsToKeep = 10
	}

	gh := &c.Common.GitHub
	if gh.RequestsPerMinute <= 0 {
		gh.RequestsPerMinute = 60
	}

	if gh.MaxRetries <= 0 {
		gh.MaxRetries = 3
	}

	if gh.RateLimitBuffer <= 0 {
		gh.RateLimitBuffer = 5
	}

	if gh.CacheTTL <= 0 {
		gh.CacheTTL = 10
	}

	if gh.CacheSize <= 0 {
		gh.CacheSize = 500
	}

	if c.Common.API.Host == "" {
		c.Common.API.Host = "127.0.0.1"
	}

	if c.Common.API.Port == 0 {
		c.Common.API.Port = 8080
	}

	if c.Common.API.RequestsPerSecond <= 0 {
		c.Common.API.RequestsPerSecond = 2
	}

	if c.Common.API.BurstSize <= 0 {
		c.Common.API.BurstSize = 5
	}

	if c.Worker.RequestTimeout <= 0 {
		c.Worker.RequestTimeout = 30000
	}

	s := &c.Worker.Sync
	if s.IntervalHours <= 0 {
		s.IntervalHours = 0.25
	}

	if s.InitialDelay <= 0 {
		s.InitialDelay = 30
	}

	if s.RetryDelay <= 0 {
		s.RetryDelay = 5
	}

	if s.GuildConcurrency <= 0 {
		s.GuildConcurrency = 2
	}

	if s.UserConcurrency <= 0 {
		s.UserConcurrency = 5
	}

	if s.HistoryRetentionDays <= 0 {
		s.HistoryRetentionDays = 30
	}
}

// envKey maps ROLESYNC_GITHUB__TOKEN to github.token.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/robalyx/rolesync/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}
