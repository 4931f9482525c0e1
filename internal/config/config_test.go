package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kulaginds/wiener-restore/internal/codec/wiener"
)

var configEnvKeys = []string{
	"CONFIG_FILE",
	"SERVER_HOST", "SERVER_PORT",
	"SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT", "SERVER_IDLE_TIMEOUT",
	"FILTER_BIT_DEPTH", "FILTER_UNIT_SIZE", "FILTER_WORKERS",
	"FILTER_MAX_BLOCK_SIZE", "FILTER_CHECK_TAPS",
	"ALLOWED_ORIGINS", "MAX_CONNECTIONS", "MAX_MESSAGE_SIZE",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_ENABLE_CALLER", "LOG_FILE",
}

// clearEnv unsets every variable the loader reads and restores them on cleanup.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected *Config
		wantErr  bool
	}{
		{
			name:    "default configuration",
			envVars: map[string]string{},
			expected: func() *Config {
				c := Defaults()
				return c
			}(),
		},
		{
			name: "custom configuration",
			envVars: map[string]string{
				"SERVER_HOST":         "127.0.0.1",
				"SERVER_PORT":         "9090",
				"SERVER_READ_TIMEOUT": "15s",
				"FILTER_BIT_DEPTH":    "12",
				"FILTER_UNIT_SIZE":    "128",
				"FILTER_WORKERS":      "4",
				"FILTER_CHECK_TAPS":   "false",
				"ALLOWED_ORIGINS":     "https://a.example, https://b.example",
				"MAX_MESSAGE_SIZE":    "1048576",
				"LOG_LEVEL":           "debug",
				"LOG_FORMAT":          "json",
				"LOG_ENABLE_CALLER":   "true",
			},
			expected: func() *Config {
				c := Defaults()
				c.Server.Host = "127.0.0.1"
				c.Server.Port = "9090"
				c.Server.ReadTimeout = 15 * time.Second
				c.Filter.BitDepth = 12
				c.Filter.UnitSize = 128
				c.Filter.Workers = 4
				c.Filter.CheckTaps = false
				c.Security.AllowedOrigins = []string{"https://a.example", "https://b.example"}
				c.Security.MaxMessageSize = 1048576
				c.Logging.Level = "debug"
				c.Logging.Format = "json"
				c.Logging.EnableCaller = true
				return c
			}(),
		},
		{
			name:    "invalid port",
			envVars: map[string]string{"SERVER_PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "invalid bit depth",
			envVars: map[string]string{"FILTER_BIT_DEPTH": "7"},
			wantErr: true,
		},
		{
			name:    "invalid unit size",
			envVars: map[string]string{"FILTER_UNIT_SIZE": "96"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			config, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, config)
			assert.Same(t, config, GetGlobalConfig())
		})
	}
}

func TestLoadWithOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_HOST", "10.0.0.1")
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("LOG_LEVEL", "warn")

	config, err := LoadWithOverrides(LoadOptions{Port: "7001", LogLevel: "error"})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", config.Server.Host)
	assert.Equal(t, "7001", config.Server.Port)
	assert.Equal(t, "error", config.Logging.Level)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "restore.yaml")
	data := `
filter:
  bitDepth: 10
  workers: 2
logging:
  level: debug
presets:
  smooth:
    horizontal: [3, -7, 15]
    vertical: [-1, 4, 9]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	t.Run("file values", func(t *testing.T) {
		config, err := LoadWithOverrides(LoadOptions{ConfigFile: path})
		require.NoError(t, err)

		assert.Equal(t, 10, config.Filter.BitDepth)
		assert.Equal(t, 2, config.Filter.Workers)
		assert.Equal(t, 64, config.Filter.UnitSize)
		assert.Equal(t, "debug", config.Logging.Level)
		assert.Equal(t, "8080", config.Server.Port)

		_, ok := config.Preset("identity")
		assert.True(t, ok)
		p, ok := config.Preset("smooth")
		require.True(t, ok)
		x, y := p.Kernels()
		assert.Equal(t, wiener.NewKernel(3, -7, 15), x)
		assert.Equal(t, wiener.NewKernel(-1, 4, 9), y)
	})

	t.Run("env beats file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", path)
		t.Setenv("FILTER_BIT_DEPTH", "12")
		config, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 12, config.Filter.BitDepth)
		assert.Equal(t, 2, config.Filter.Workers)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadWithOverrides(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "none.yaml")})
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("filter: [1, 2"), 0o600))
		_, err := LoadWithOverrides(LoadOptions{ConfigFile: bad})
		assert.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty port", func(c *Config) { c.Server.Port = "" }, "server port cannot be empty"},
		{"bad port", func(c *Config) { c.Server.Port = "http" }, "invalid server port"},
		{"bit depth high", func(c *Config) { c.Filter.BitDepth = 17 }, "bit depth"},
		{"unit size not power of two", func(c *Config) { c.Filter.UnitSize = 48 }, "unit size"},
		{"negative workers", func(c *Config) { c.Filter.Workers = -1 }, "workers"},
		{"block size not multiple of 8", func(c *Config) { c.Filter.MaxBlockSize = 20 }, "max block size"},
		{"block size too big", func(c *Config) { c.Filter.MaxBlockSize = 256 }, "max block size"},
		{"no connections", func(c *Config) { c.Security.MaxConnections = 0 }, "max connections"},
		{"no message size", func(c *Config) { c.Security.MaxMessageSize = 0 }, "max message size"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "invalid log level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{
			"preset out of range",
			func(c *Config) { c.Presets["wide"] = Preset{Horizontal: [3]int16{11, 0, 0}} },
			`preset "wide" horizontal`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			tt.modify(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("TEST_ENV_STRING", "value")
	assert.Equal(t, "value", getEnvWithDefault("TEST_ENV_STRING", "default"))
	assert.Equal(t, "default", getEnvWithDefault("TEST_ENV_MISSING", "default"))
}

func TestGetIntWithDefault(t *testing.T) {
	t.Setenv("TEST_ENV_INT", "42")
	t.Setenv("TEST_ENV_BAD_INT", "forty-two")
	assert.Equal(t, 42, getIntWithDefault("TEST_ENV_INT", 1))
	assert.Equal(t, 1, getIntWithDefault("TEST_ENV_BAD_INT", 1))
	assert.Equal(t, 1, getIntWithDefault("TEST_ENV_MISSING", 1))
}

func TestGetBoolWithDefault(t *testing.T) {
	t.Setenv("TEST_ENV_BOOL", "true")
	t.Setenv("TEST_ENV_BAD_BOOL", "maybe")
	assert.True(t, getBoolWithDefault("TEST_ENV_BOOL", false))
	assert.False(t, getBoolWithDefault("TEST_ENV_BAD_BOOL", false))
	assert.True(t, getBoolWithDefault("TEST_ENV_MISSING", true))
}

func TestGetDurationWithDefault(t *testing.T) {
	t.Setenv("TEST_ENV_DURATION", "5s")
	t.Setenv("TEST_ENV_BAD_DURATION", "five")
	assert.Equal(t, 5*time.Second, getDurationWithDefault("TEST_ENV_DURATION", time.Second))
	assert.Equal(t, time.Second, getDurationWithDefault("TEST_ENV_BAD_DURATION", time.Second))
}

func TestGetStringSliceWithDefault(t *testing.T) {
	t.Setenv("TEST_ENV_SLICE", "a, b,,c ")
	assert.Equal(t, []string{"a", "b", "c"}, getStringSliceWithDefault("TEST_ENV_SLICE", nil))
	assert.Equal(t, []string{"x"}, getStringSliceWithDefault("TEST_ENV_MISSING", []string{"x"}))
	assert.Equal(t, []string{}, splitString("", ","))
}
