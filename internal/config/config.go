package config

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/hrvmon/internal/errors"
	"github.com/sosodev/duration"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigFile      = "/etc/hrvmon.toml"
	DefaultEnvPrefix       = "HRVMON"
	DefaultLogLevel        = "info"
	DefaultOutlierFilter   = 50.0
	DefaultRefreshInterval = time.Second
	DefaultNATSURL         = "nats://127.0.0.1:4222"
	DefaultNATSSubject     = "hrs.notifications"
	DefaultPublisher       = "none"
	DefaultHTTPAddr        = ":8080"
	DefaultMetricsDB       = "/var/lib/hrvmon/metrics.db"
	DefaultSessionFile     = "/var/lib/hrvmon/sessions.json"
)

type Config struct {
	LogLevel        string
	Window          time.Duration
	OutlierFilter   float64
	RefreshInterval time.Duration
	NATSURL         string
	NATSSubject     string
	Publisher       string
	MQTTBroker      string
	MQTTTopic       string
	KafkaBrokers    []string
	KafkaTopic      string
	HTTPAddr        string
	MetricsEnabled  bool
	MetricsDB       string
	SessionFile     string
	Replay          string
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"config":           "config",
	"log-level":        "log_level",
	"window":           "window",
	"outlier-filter":   "outlier_filter",
	"refresh-interval": "refresh_interval",
	"nats-url":         "nats_url",
	"nats-subject":     "nats_subject",
	"publisher":        "publisher",
	"mqtt-broker":      "mqtt_broker",
	"mqtt-topic":       "mqtt_topic",
	"kafka-brokers":    "kafka_brokers",
	"kafka-topic":      "kafka_topic",
	"http-addr":        "http_addr",
	"metrics":          "metrics_enabled",
	"metrics-db":       "metrics_db",
	"session-file":     "session_file",
	"replay":           "replay",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("hrvmon", pflag.ContinueOnError)
	fs.String("config", "", "Path to the configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.String("window", "0", "Statistics window, e.g. 5m or PT5M (0 = whole recording)")
	fs.Float64("outlier-filter", DefaultOutlierFilter, "Moving-MAD outlier threshold in ms")
	fs.String("refresh-interval", DefaultRefreshInterval.String(), "Interval between statistics rebuilds")
	fs.String("nats-url", DefaultNATSURL, "NATS server URL")
	fs.String("nats-subject", DefaultNATSSubject, "Subject carrying raw heart rate notifications")
	fs.String("publisher", DefaultPublisher, "Snapshot publisher (none, mqtt, kafka)")
	fs.String("mqtt-broker", "", "MQTT broker URL")
	fs.String("mqtt-topic", "", "MQTT topic for snapshots")
	fs.StringSlice("kafka-brokers", nil, "Kafka broker addresses")
	fs.String("kafka-topic", "", "Kafka topic for snapshots")
	fs.String("http-addr", DefaultHTTPAddr, "HTTP listen address (empty disables the API)")
	fs.Bool("metrics", false, "Record snapshot history to SQLite")
	fs.String("metrics-db", DefaultMetricsDB, "Path to the snapshot history database")
	fs.String("session-file", DefaultSessionFile, "JSON file receiving the recording on shutdown")
	fs.String("replay", "", "Rebuild and report the recordings in this JSON file, then exit")
	return fs
}

// Load reads the configuration from defaults, the TOML file, the
// environment and the command line, in increasing order of precedence.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix, args: os.Args[1:]}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(ErrInvalidConfig, err)
		}
	}

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(ErrBindFlags, err)
	}

	v := viper.New()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(ErrBindFlags, err)
		}
	}
	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	path := o.configPath
	if path == "" {
		path = v.GetString("config")
	}
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	if _, err := os.Stat(path); err == nil || explicit {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(ErrReadConfig, err)
		}
	}

	cfg := &Config{
		LogLevel:       strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		OutlierFilter:  v.GetFloat64("outlier_filter"),
		NATSURL:        v.GetString("nats_url"),
		NATSSubject:    v.GetString("nats_subject"),
		Publisher:      strings.ToLower(v.GetString("publisher")),
		MQTTBroker:     v.GetString("mqtt_broker"),
		MQTTTopic:      v.GetString("mqtt_topic"),
		KafkaBrokers:   splitList(v.GetStringSlice("kafka_brokers")),
		KafkaTopic:     v.GetString("kafka_topic"),
		HTTPAddr:       v.GetString("http_addr"),
		MetricsEnabled: v.GetBool("metrics_enabled"),
		MetricsDB:      v.GetString("metrics_db"),
		SessionFile:    v.GetString("session_file"),
		Replay:         v.GetString("replay"),
	}

	var err error
	if cfg.Window, err = ParseDuration(v.GetString("window")); err != nil {
		return nil, errFactory.Wrap(ErrInvalidInterval, err)
	}
	if cfg.RefreshInterval, err = ParseDuration(v.GetString("refresh_interval")); err != nil {
		return nil, errFactory.Wrap(ErrInvalidInterval, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and the publisher selection.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Window < 0 {
		return errFactory.WithData(ErrInvalidInterval, c.Window)
	}
	if c.RefreshInterval <= 0 {
		return errFactory.WithData(ErrInvalidInterval, c.RefreshInterval)
	}
	if c.OutlierFilter < 0 || math.IsNaN(c.OutlierFilter) || math.IsInf(c.OutlierFilter, 0) {
		return errFactory.WithMessage(ErrInvalidConfig, "outlier_filter must be a finite non-negative number")
	}

	switch c.Publisher {
	case "", "none":
	case "mqtt":
		if c.MQTTBroker == "" {
			return errFactory.WithMessage(ErrMissingConfig, "mqtt_broker is required by the mqtt publisher")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return errFactory.WithMessage(ErrMissingConfig, "kafka_brokers is required by the kafka publisher")
		}
	default:
		return errFactory.WithMessage(ErrInvalidConfig, "unknown publisher "+strconv.Quote(c.Publisher))
	}

	if c.MetricsEnabled && c.MetricsDB == "" {
		return errFactory.WithMessage(ErrMissingConfig, "metrics_db is required when metrics are enabled")
	}

	return nil
}

// ParseDuration accepts Go durations ("90s"), ISO 8601 durations ("PT5M")
// and bare numbers of seconds. Empty means zero.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, errors.New().WithData(ErrInvalidInterval, s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	d, err := duration.Parse(s)
	if err != nil {
		return 0, errors.New().WithData(ErrInvalidInterval, s)
	}
	return d.ToTimeDuration(), nil
}

// splitList flattens comma separated entries, as given by environment
// variables.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
