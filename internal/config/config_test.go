package config_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/hrvmon/internal/config"
	"codeberg.org/mutker/hrvmon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hrvmon.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "debug"
window = "5m"
outlier_filter = 30.5
refresh_interval = "2s"
nats_url = "nats://broker:4222"
nats_subject = "strap.hrs"
publisher = "kafka"
kafka_brokers = ["k1:9092", "k2:9092"]
kafka_topic = "hrv"
http_addr = "127.0.0.1:9000"
metrics_enabled = true
metrics_db = "/tmp/hrv.db"
session_file = "/tmp/sessions.json"
`)

	// Set environment variable to point to the test config file
	t.Setenv("HRVMON_CONFIG", configPath)

	cfg, err := config.Load(config.WithArgs(nil))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.Window)
	assert.InDelta(t, 30.5, cfg.OutlierFilter, 0)
	assert.Equal(t, 2*time.Second, cfg.RefreshInterval)
	assert.Equal(t, "nats://broker:4222", cfg.NATSURL)
	assert.Equal(t, "strap.hrs", cfg.NATSSubject)
	assert.Equal(t, "kafka", cfg.Publisher)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "hrv", cfg.KafkaTopic)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, "/tmp/hrv.db", cfg.MetricsDB)
	assert.Equal(t, "/tmp/sessions.json", cfg.SessionFile)
}

func TestLoadDefaults(t *testing.T) {
	// Ensure no config file is used
	t.Setenv("HRVMON_CONFIG", "")

	cfg, err := config.Load(config.WithArgs(nil))
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Zero(t, cfg.Window)
	assert.InDelta(t, config.DefaultOutlierFilter, cfg.OutlierFilter, 0)
	assert.Equal(t, config.DefaultRefreshInterval, cfg.RefreshInterval)
	assert.Equal(t, config.DefaultNATSURL, cfg.NATSURL)
	assert.Equal(t, config.DefaultPublisher, cfg.Publisher)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.MetricsEnabled)
	assert.Empty(t, cfg.Replay)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(config.WithArgs(nil), config.WithConfigFile(filepath.Join(t.TempDir(), "absent.toml")))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrReadConfig))
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfig(t, `
This is not a valid TOML file
`)

	_, err := config.Load(config.WithArgs(nil), config.WithConfigFile(configPath))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "invalid"
`)

	_, err := config.Load(config.WithArgs(nil), config.WithConfigFile(configPath))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrInvalidLogLevel))
}

func TestFlagsOverrideFileAndEnv(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "error"
window = 120
`)
	t.Setenv("HRVMON_LOG_LEVEL", "warn")
	t.Setenv("HRVMON_OUTLIER_FILTER", "12")

	cfg, err := config.Load(
		config.WithConfigFile(configPath),
		config.WithArgs([]string{"--log-level", "debug", "--window", "PT1M30S"}),
	)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 90*time.Second, cfg.Window)
	assert.InDelta(t, 12.0, cfg.OutlierFilter, 0)
}

func TestEnvOverridesFile(t *testing.T) {
	configPath := writeConfig(t, `
publisher = "mqtt"
mqtt_broker = "tcp://file:1883"
`)
	t.Setenv("HRVMON_MQTT_BROKER", "tcp://env:1883")
	t.Setenv("HRVMON_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := config.Load(config.WithArgs(nil), config.WithConfigFile(configPath))
	require.NoError(t, err)

	assert.Equal(t, "tcp://env:1883", cfg.MQTTBroker)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
}

func TestEnvPrefix(t *testing.T) {
	t.Setenv("HRVTEST_HTTP_ADDR", ":9999")

	cfg, err := config.Load(config.WithArgs(nil), config.WithEnvPrefix("HRVTEST"))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
}

func TestValidate(t *testing.T) {
	base := config.Config{LogLevel: "info", RefreshInterval: time.Second, Publisher: "none"}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*config.Config)
		code   errors.ErrorCode
	}{
		{"negative window", func(c *config.Config) { c.Window = -time.Second }, config.ErrInvalidInterval},
		{"zero refresh", func(c *config.Config) { c.RefreshInterval = 0 }, config.ErrInvalidInterval},
		{"negative filter", func(c *config.Config) { c.OutlierFilter = -1 }, config.ErrInvalidConfig},
		{"NaN filter", func(c *config.Config) { c.OutlierFilter = math.NaN() }, config.ErrInvalidConfig},
		{"infinite filter", func(c *config.Config) { c.OutlierFilter = math.Inf(1) }, config.ErrInvalidConfig},
		{"unknown publisher", func(c *config.Config) { c.Publisher = "amqp" }, config.ErrInvalidConfig},
		{"mqtt without broker", func(c *config.Config) { c.Publisher = "mqtt" }, config.ErrMissingConfig},
		{"kafka without brokers", func(c *config.Config) { c.Publisher = "kafka" }, config.ErrMissingConfig},
		{"metrics without db", func(c *config.Config) { c.MetricsEnabled = true }, config.ErrMissingConfig},
		{"bad level", func(c *config.Config) { c.LogLevel = "trace" }, config.ErrInvalidLogLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.True(t, errors.HasCode(cfg.Validate(), tt.code))
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"0", 0},
		{"300", 5 * time.Minute},
		{"1.5", 1500 * time.Millisecond},
		{"90s", 90 * time.Second},
		{"PT5M", 5 * time.Minute},
		{"PT1H", time.Hour},
	}
	for _, tt := range tests {
		got, err := config.ParseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, in := range []string{"soon", "NaN", "P1X"} {
		_, err := config.ParseDuration(in)
		assert.True(t, errors.HasCode(err, config.ErrInvalidInterval), in)
	}
}
