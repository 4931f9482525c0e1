package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kulaginds/wiener-restore/internal/codec/restoration"
	"github.com/kulaginds/wiener-restore/internal/codec/wiener"
)

// globalConfig stores the configuration loaded with command-line overrides
// This allows other packages to access the same configuration that was loaded by the server
var (
	globalConfig *Config
	configMutex  sync.Mutex
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig      `json:"server" yaml:"server"`
	Filter   FilterConfig      `json:"filter" yaml:"filter"`
	Security SecurityConfig    `json:"security" yaml:"security"`
	Logging  LoggingConfig     `json:"logging" yaml:"logging"`
	Presets  map[string]Preset `json:"presets" yaml:"presets"`
}

// LoadOptions holds command-line override options
type LoadOptions struct {
	Host       string
	Port       string
	LogLevel   string
	ConfigFile string
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string        `json:"host" yaml:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port         string        `json:"port" yaml:"port" env:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `json:"readTimeout" yaml:"readTimeout" env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout" env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `json:"idleTimeout" yaml:"idleTimeout" env:"SERVER_IDLE_TIMEOUT" default:"120s"`
}

// FilterConfig holds restoration filter configuration
type FilterConfig struct {
	BitDepth     int  `json:"bitDepth" yaml:"bitDepth" env:"FILTER_BIT_DEPTH" default:"8"`
	UnitSize     int  `json:"unitSize" yaml:"unitSize" env:"FILTER_UNIT_SIZE" default:"64"`
	Workers      int  `json:"workers" yaml:"workers" env:"FILTER_WORKERS" default:"0"`
	MaxBlockSize int  `json:"maxBlockSize" yaml:"maxBlockSize" env:"FILTER_MAX_BLOCK_SIZE" default:"128"`
	CheckTaps    bool `json:"checkTaps" yaml:"checkTaps" env:"FILTER_CHECK_TAPS" default:"true"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins" env:"ALLOWED_ORIGINS" default:""`
	MaxConnections int      `json:"maxConnections" yaml:"maxConnections" env:"MAX_CONNECTIONS" default:"100"`
	MaxMessageSize int      `json:"maxMessageSize" yaml:"maxMessageSize" env:"MAX_MESSAGE_SIZE" default:"65536"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `json:"level" yaml:"level" env:"LOG_LEVEL" default:"info"`
	Format       string `json:"format" yaml:"format" env:"LOG_FORMAT" default:"text"`
	EnableCaller bool   `json:"enableCaller" yaml:"enableCaller" env:"LOG_ENABLE_CALLER" default:"false"`
	File         string `json:"file" yaml:"file" env:"LOG_FILE" default:""`
}

// Preset is a named pair of Wiener filters given by their three side taps.
type Preset struct {
	Horizontal [3]int16 `json:"horizontal" yaml:"horizontal"`
	Vertical   [3]int16 `json:"vertical" yaml:"vertical"`
}

// Kernels expands the preset into unity-gain stored kernels.
func (p Preset) Kernels() (x, y wiener.Kernel) {
	x = wiener.NewKernel(p.Horizontal[0], p.Horizontal[1], p.Horizontal[2])
	y = wiener.NewKernel(p.Vertical[0], p.Vertical[1], p.Vertical[2])
	return x, y
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         "8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Filter: FilterConfig{
			BitDepth:     8,
			UnitSize:     64,
			MaxBlockSize: wiener.MaxSBSize,
			CheckTaps:    true,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{},
			MaxConnections: 100,
			MaxMessageSize: 65536,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Presets: map[string]Preset{
			"identity": {},
		},
	}
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	return LoadWithOverrides(LoadOptions{})
}

// LoadWithOverrides loads configuration with command-line overrides.
// Precedence, lowest first: defaults, config file, environment, options.
func LoadWithOverrides(opts LoadOptions) (*Config, error) {
	config := Defaults()

	if path := getOverrideOrEnv(opts.ConfigFile, "CONFIG_FILE", ""); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	// Server config
	config.Server.Host = getOverrideOrEnv(opts.Host, "SERVER_HOST", config.Server.Host)
	config.Server.Port = getOverrideOrEnv(opts.Port, "SERVER_PORT", config.Server.Port)
	config.Server.ReadTimeout = getDurationWithDefault("SERVER_READ_TIMEOUT", config.Server.ReadTimeout)
	config.Server.WriteTimeout = getDurationWithDefault("SERVER_WRITE_TIMEOUT", config.Server.WriteTimeout)
	config.Server.IdleTimeout = getDurationWithDefault("SERVER_IDLE_TIMEOUT", config.Server.IdleTimeout)

	// Filter config
	config.Filter.BitDepth = getIntWithDefault("FILTER_BIT_DEPTH", config.Filter.BitDepth)
	config.Filter.UnitSize = getIntWithDefault("FILTER_UNIT_SIZE", config.Filter.UnitSize)
	config.Filter.Workers = getIntWithDefault("FILTER_WORKERS", config.Filter.Workers)
	config.Filter.MaxBlockSize = getIntWithDefault("FILTER_MAX_BLOCK_SIZE", config.Filter.MaxBlockSize)
	config.Filter.CheckTaps = getBoolWithDefault("FILTER_CHECK_TAPS", config.Filter.CheckTaps)

	// Security config
	config.Security.AllowedOrigins = getStringSliceWithDefault("ALLOWED_ORIGINS", config.Security.AllowedOrigins)
	config.Security.MaxConnections = getIntWithDefault("MAX_CONNECTIONS", config.Security.MaxConnections)
	config.Security.MaxMessageSize = getIntWithDefault("MAX_MESSAGE_SIZE", config.Security.MaxMessageSize)

	// Logging config
	config.Logging.Level = getOverrideOrEnv(opts.LogLevel, "LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = getEnvWithDefault("LOG_FORMAT", config.Logging.Format)
	config.Logging.EnableCaller = getBoolWithDefault("LOG_ENABLE_CALLER", config.Logging.EnableCaller)
	config.Logging.File = getEnvWithDefault("LOG_FILE", config.Logging.File)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Store the configuration globally so other packages can access it
	configMutex.Lock()
	globalConfig = config
	configMutex.Unlock()

	return config, nil
}

// loadFile merges a YAML file into c. Keys missing from the file keep their
// current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// GetGlobalConfig returns the globally stored configuration
// This should be used by packages that need access to the configuration
// loaded by the server with command-line overrides
func GetGlobalConfig() *Config {
	configMutex.Lock()
	defer configMutex.Unlock()
	return globalConfig
}

// Preset returns the named preset.
func (c *Config) Preset(name string) (Preset, bool) {
	p, ok := c.Presets[name]
	return p, ok
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	// Validate filter config
	if c.Filter.BitDepth < wiener.MinBitDepth || c.Filter.BitDepth > wiener.MaxBitDepth {
		return fmt.Errorf("bit depth must be in [%d, %d]: %d", wiener.MinBitDepth, wiener.MaxBitDepth, c.Filter.BitDepth)
	}

	if u := c.Filter.UnitSize; u < restoration.MinUnitSize || u > restoration.MaxUnitSize || u&(u-1) != 0 {
		return fmt.Errorf("unit size must be a power of two in [%d, %d]: %d", restoration.MinUnitSize, restoration.MaxUnitSize, u)
	}

	if c.Filter.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}

	if b := c.Filter.MaxBlockSize; b < wiener.BatchWidth || b > wiener.MaxSBSize || b%wiener.BatchWidth != 0 {
		return fmt.Errorf("max block size must be a multiple of %d in [%d, %d]: %d", wiener.BatchWidth, wiener.BatchWidth, wiener.MaxSBSize, b)
	}

	// Validate security config
	if c.Security.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive")
	}

	if c.Security.MaxMessageSize <= 0 {
		return fmt.Errorf("max message size must be positive")
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}

	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Validate presets
	for name, p := range c.Presets {
		x, y := p.Kernels()
		if err := x.CheckRange(); err != nil {
			return fmt.Errorf("preset %q horizontal: %w", name, err)
		}
		if err := y.CheckRange(); err != nil {
			return fmt.Errorf("preset %q vertical: %w", name, err)
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceWithDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return splitString(value, ",")
	}
	return defaultValue
}

// getOverrideOrEnv returns command-line override value, env value, or default
func getOverrideOrEnv(override, envKey, defaultValue string) string {
	if override != "" {
		return override
	}
	return getEnvWithDefault(envKey, defaultValue)
}

func splitString(s, sep string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
