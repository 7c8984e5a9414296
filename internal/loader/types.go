// Package loader - Configuration Types
//
// LOCATION: internal/loader/types.go
//
// Defines the YAML configuration structure for lenedastatd.
//
//	metering_point, obis_code, initial_lookback_days   what to poll
//	api:       Leneda credentials and request limits
//	poll:      cycle interval and jitter
//	series:    the power (mean) and energy (cumulative) views
//	store:     statistics database
//	archive:   optional Parquet archive of raw samples
//	publish:   optional MQTT and Kafka fan-out
//	http:      health, metrics and query API
//	log:       level and format

package loader

import (
	"time"

	"github.com/xtxerr/lenedastat/config"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for lenedastatd.
type Config struct {
	// MeteringPoint is the Leneda metering point code. Required.
	MeteringPoint string `yaml:"metering_point"`

	// OBISCode selects the measured quantity.
	// Default: "1-1:1.29.0"
	OBISCode string `yaml:"obis_code"`

	// InitialLookbackDays is how far back the first cycle reaches.
	// It also caps the range of any later cycle.
	// Default: 180
	InitialLookbackDays int `yaml:"initial_lookback_days"`

	API      APIConfig      `yaml:"api"`
	Poll     PollConfig     `yaml:"poll"`
	Series   SeriesConfig   `yaml:"series"`
	Store    StoreConfig    `yaml:"store"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Publish  PublishConfig  `yaml:"publish"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
}

// =============================================================================
// Upstream API
// =============================================================================

// APIConfig configures the retrieval client and the fetch planner.
type APIConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	EnergyID string `yaml:"energy_id"`

	// RequestTimeout bounds a single retrieval call.
	// Default: 30s
	RequestTimeout Duration `yaml:"request_timeout"`

	// MaxDaysPerRequest is the widest range requested per call.
	// Default: 30
	MaxDaysPerRequest int `yaml:"max_days_per_request"`

	// MinDaysToFetch is the narrowest range fetched per cycle.
	// Default: 2
	MinDaysToFetch int `yaml:"min_days_to_fetch"`

	// FetchConcurrency is the number of chunks fetched in parallel.
	// Default: 1
	FetchConcurrency int `yaml:"fetch_concurrency"`
}

// =============================================================================
// Scheduling
// =============================================================================

// PollConfig configures the cycle trigger.
type PollConfig struct {
	// Interval is the time between two cycles.
	// Default: 2h
	Interval Duration `yaml:"interval"`

	// Jitter delays each cycle by a random amount up to this value.
	// Default: 1m
	Jitter Duration `yaml:"jitter"`

	// RunOnStart triggers a cycle immediately at startup.
	// Default: true
	RunOnStart bool `yaml:"run_on_start"`
}

// ShutdownConfig configures graceful shutdown.
type ShutdownConfig struct {
	// DrainTimeout is how long shutdown waits for a running cycle.
	// Default: 30s
	DrainTimeout Duration `yaml:"drain_timeout"`
}

// =============================================================================
// Series
// =============================================================================

// SeriesConfig selects the derived series.
type SeriesConfig struct {
	Power  PowerSeriesConfig  `yaml:"power"`
	Energy EnergySeriesConfig `yaml:"energy"`
}

// PowerSeriesConfig configures the hourly mean power series.
type PowerSeriesConfig struct {
	Enabled bool `yaml:"enabled"`

	// Source is the feed the series is built from.
	// Default: "15min"
	Source string `yaml:"source"`

	// Percentiles adds p50/p90/p95/p99 to each record.
	Percentiles bool `yaml:"percentiles"`

	// PercentileAccuracy is the relative accuracy of the percentile sketch.
	// Default: 0.01
	PercentileAccuracy float64 `yaml:"percentile_accuracy"`
}

// EnergySeriesConfig configures the hourly cumulative energy series.
type EnergySeriesConfig struct {
	Enabled bool `yaml:"enabled"`

	// Source is the feed the series is built from.
	// Default: "hourly"
	Source string `yaml:"source"`

	// MinSamplesPerBucket is the number of samples a bucket needs before it
	// is added to the running total.
	// Default: 1
	MinSamplesPerBucket int `yaml:"min_samples_per_bucket"`
}

// =============================================================================
// Storage and Outputs
// =============================================================================

// StoreConfig configures the statistics database.
type StoreConfig struct {
	// Driver is one of duckdb, sqlite or postgres.
	// Default: "duckdb"
	Driver string `yaml:"driver"`

	// DSN is the database file or connection string.
	// Default: "lenedastat.duckdb"
	DSN string `yaml:"dsn"`

	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    Duration `yaml:"query_timeout"`
}

// ArchiveConfig configures the Parquet archive.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`

	// Compression is one of none, snappy, zstd, lz4 or gzip.
	// Default: "zstd"
	Compression string `yaml:"compression"`
}

// PublishConfig configures the optional publishers.
type PublishConfig struct {
	MQTT  MQTTConfig  `yaml:"mqtt"`
	Kafka KafkaConfig `yaml:"kafka"`
}

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Broker      string   `yaml:"broker"`
	ClientID    string   `yaml:"client_id"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	TopicPrefix string   `yaml:"topic_prefix"`
	QoS         int      `yaml:"qos"`
	Retain      bool     `yaml:"retain"`
	Timeout     Duration `yaml:"timeout"`
}

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Timeout Duration `yaml:"timeout"`
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		OBISCode:            config.DefaultOBISCode,
		InitialLookbackDays: config.DefaultInitialLookbackDays,
		API: APIConfig{
			BaseURL:           config.DefaultAPIBaseURL,
			RequestTimeout:    Duration(config.DefaultRequestTimeout),
			MaxDaysPerRequest: config.APIMaxDaysToFetch,
			MinDaysToFetch:    config.APIMinDaysToFetch,
			FetchConcurrency:  config.DefaultFetchConcurrency,
		},
		Poll: PollConfig{
			Interval:   Duration(config.DefaultPollInterval),
			Jitter:     Duration(config.DefaultPollJitter),
			RunOnStart: true,
		},
		Series: SeriesConfig{
			Power: PowerSeriesConfig{
				Enabled:            true,
				Source:             "15min",
				PercentileAccuracy: config.DefaultPercentileAccuracy,
			},
			Energy: EnergySeriesConfig{
				Enabled:             true,
				Source:              "hourly",
				MinSamplesPerBucket: config.DefaultMinSamplesPerBucket,
			},
		},
		Store: StoreConfig{
			Driver:          config.DefaultStoreDriver,
			DSN:             config.DefaultStoreDSN,
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: Duration(5 * time.Minute),
			QueryTimeout:    Duration(config.DefaultStoreQueryTimeout),
		},
		Archive: ArchiveConfig{
			Dir:         config.DefaultArchiveDir,
			Compression: config.DefaultArchiveCompression,
		},
		Publish: PublishConfig{
			MQTT: MQTTConfig{
				Broker:      "tcp://localhost:1883",
				ClientID:    config.DefaultMQTTClientID,
				TopicPrefix: config.DefaultMQTTTopicPrefix,
				Retain:      true,
				Timeout:     Duration(config.DefaultPublishTimeout),
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   config.DefaultKafkaTopic,
				Timeout: Duration(config.DefaultPublishTimeout),
			},
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Listen:  config.DefaultHTTPListen,
		},
		Log: LogConfig{
			Level: "info",
		},
		Shutdown: ShutdownConfig{
			DrainTimeout: Duration(time.Duration(config.DefaultDrainTimeoutSec) * time.Second),
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
// A plain integer is read as seconds.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var i int
	if err := unmarshal(&i); err == nil {
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}

	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
