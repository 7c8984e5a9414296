// Package loader handles configuration file loading, validation, and conversion.
//
// LOCATION: internal/loader/loader.go
//
// This package is responsible for:
//   - Loading .env files and YAML configuration files
//   - Expanding environment variables
//   - Validating the configuration as a whole
//   - Converting the YAML representation into component configs
//   - Watching the file and reloading it on change

package loader

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xtxerr/lenedastat/internal/archive"
	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/leneda"
	"github.com/xtxerr/lenedastat/internal/logging"
	"github.com/xtxerr/lenedastat/internal/obis"
	"github.com/xtxerr/lenedastat/internal/orchestrator"
	"github.com/xtxerr/lenedastat/internal/parquet"
	"github.com/xtxerr/lenedastat/internal/planner"
	"github.com/xtxerr/lenedastat/internal/publish"
	"github.com/xtxerr/lenedastat/internal/scheduler"
	"github.com/xtxerr/lenedastat/internal/series"
	"github.com/xtxerr/lenedastat/internal/store"
)

const day = 24 * time.Hour

// =============================================================================
// Load
// =============================================================================

// LoadEnv loads the first existing file of paths into the process
// environment. Variables already set are not overridden.
func LoadEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}

// Load loads configuration from a YAML file.
//
// A .env file next to the config file is loaded first so that ${VAR}
// references can be resolved from it.
func Load(path string) (*Config, error) {
	if err := LoadEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration, expanding environment variables.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w: %w", errors.ErrInvalidConfig, err)
	}

	return cfg, nil
}

// LoadAndValidate loads and validates configuration from a YAML file.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration and reports every problem found.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if cfg.MeteringPoint == "" {
		errs.AddMissing("metering_point")
	}
	if cfg.OBISCode == "" {
		errs.AddMissing("obis_code")
	} else if !obis.Known(cfg.OBISCode) {
		errs.Add(errors.NewInvalidValue("obis_code", cfg.OBISCode, "not in the OBIS catalogue"))
	}
	if cfg.InitialLookbackDays < 1 {
		errs.AddField("initial_lookback_days", "must be at least 1")
	}

	// API validation
	if cfg.API.APIKey == "" {
		errs.AddMissing("api.api_key")
	}
	if cfg.API.EnergyID == "" {
		errs.AddMissing("api.energy_id")
	}
	if u, err := url.Parse(cfg.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.Add(errors.NewInvalidValue("api.base_url", cfg.API.BaseURL, "must be an absolute URL"))
	}
	if cfg.API.RequestTimeout.Duration() <= 0 {
		errs.AddField("api.request_timeout", "must be positive")
	}
	if cfg.API.MaxDaysPerRequest < 1 {
		errs.AddField("api.max_days_per_request", "must be at least 1")
	}
	if cfg.API.MinDaysToFetch < 1 {
		errs.AddField("api.min_days_to_fetch", "must be at least 1")
	} else if cfg.InitialLookbackDays >= 1 && cfg.API.MinDaysToFetch > cfg.InitialLookbackDays {
		errs.AddField("api.min_days_to_fetch", "must not exceed initial_lookback_days")
	}
	if cfg.API.FetchConcurrency < 1 {
		errs.AddField("api.fetch_concurrency", "must be at least 1")
	}

	// Poll validation
	if cfg.Poll.Interval.Duration() < time.Minute {
		errs.Add(fmt.Errorf("poll.interval %s: must be at least 1m: %w", cfg.Poll.Interval.Duration(), errors.ErrInvalidInterval))
	}
	if cfg.Poll.Jitter.Duration() < 0 {
		errs.AddField("poll.jitter", "must not be negative")
	} else if cfg.Poll.Jitter.Duration() >= cfg.Poll.Interval.Duration() && cfg.Poll.Interval.Duration() > 0 {
		errs.AddField("poll.jitter", "must be shorter than poll.interval")
	}

	// Series validation
	if !cfg.Series.Power.Enabled && !cfg.Series.Energy.Enabled {
		errs.AddField("series", "at least one of power or energy must be enabled")
	}
	if cfg.Series.Power.Enabled {
		if _, err := leneda.ParseFeed(cfg.Series.Power.Source); err != nil {
			errs.Add(errors.Wrap(err, "series.power.source"))
		}
		if cfg.Series.Power.Percentiles {
			acc := cfg.Series.Power.PercentileAccuracy
			if acc <= 0 || acc >= 1 {
				errs.Add(errors.NewInvalidValue("series.power.percentile_accuracy", acc, "must be in (0, 1)"))
			}
		}
	}
	if cfg.Series.Energy.Enabled {
		if _, err := leneda.ParseFeed(cfg.Series.Energy.Source); err != nil {
			errs.Add(errors.Wrap(err, "series.energy.source"))
		}
		if cfg.Series.Energy.MinSamplesPerBucket < 1 {
			errs.AddField("series.energy.min_samples_per_bucket", "must be at least 1")
		}
	}

	// Store validation
	if !supportedDriver(cfg.Store.Driver) {
		errs.Add(errors.Wrapf(errors.ErrUnsupportedDriver, "store.driver %q", cfg.Store.Driver))
	}
	if cfg.Store.DSN == "" {
		errs.AddMissing("store.dsn")
	}

	// Archive validation (if enabled)
	if cfg.Archive.Enabled {
		if cfg.Archive.Dir == "" {
			errs.AddField("archive.dir", "cannot be empty when enabled")
		}
		if _, err := parquet.ParseCompression(cfg.Archive.Compression); err != nil {
			errs.Add(errors.Wrap(err, "archive"))
		}
	}

	// Publisher validation (if enabled)
	if cfg.Publish.MQTT.Enabled {
		if cfg.Publish.MQTT.Broker == "" {
			errs.AddField("publish.mqtt.broker", "cannot be empty when enabled")
		}
		if cfg.Publish.MQTT.QoS < 0 || cfg.Publish.MQTT.QoS > 2 {
			errs.Add(errors.NewInvalidValue("publish.mqtt.qos", cfg.Publish.MQTT.QoS, "must be 0, 1 or 2"))
		}
	}
	if cfg.Publish.Kafka.Enabled {
		if len(cfg.Publish.Kafka.Brokers) == 0 {
			errs.AddField("publish.kafka.brokers", "at least one broker is required when enabled")
		}
		if cfg.Publish.Kafka.Topic == "" {
			errs.AddField("publish.kafka.topic", "cannot be empty when enabled")
		}
	}

	// HTTP validation
	if cfg.HTTP.Enabled && cfg.HTTP.Listen == "" {
		errs.AddField("http.listen", "cannot be empty when enabled")
	}

	// Log validation
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs.AddField("log.level", err.Error())
	}

	return errs.Err()
}

func supportedDriver(name string) bool {
	for _, d := range store.Drivers() {
		if d == name {
			return true
		}
	}
	return false
}

// =============================================================================
// Conversion: Config → Component Configs
// =============================================================================

// ToCycle builds the per-cycle orchestrator input.
func ToCycle(cfg *Config) (orchestrator.Cycle, error) {
	c := orchestrator.Cycle{
		MeteringPoint:   cfg.MeteringPoint,
		OBISCode:        cfg.OBISCode,
		Granularity:     time.Hour,
		InitialLookback: time.Duration(cfg.InitialLookbackDays) * day,
		Planner: planner.Planner{
			MaxDaysPerRequest: cfg.API.MaxDaysPerRequest,
			MinDays:           cfg.API.MinDaysToFetch,
			MaxDays:           cfg.InitialLookbackDays,
		},
		FetchConcurrency: cfg.API.FetchConcurrency,
	}

	if cfg.Series.Power.Enabled {
		feed, err := leneda.ParseFeed(cfg.Series.Power.Source)
		if err != nil {
			return orchestrator.Cycle{}, errors.Wrap(err, "series.power.source")
		}
		c.Views = append(c.Views, orchestrator.ViewConfig{
			Kind:               series.KindMean,
			Feed:               feed,
			Percentiles:        cfg.Series.Power.Percentiles,
			PercentileAccuracy: cfg.Series.Power.PercentileAccuracy,
		})
	}
	if cfg.Series.Energy.Enabled {
		feed, err := leneda.ParseFeed(cfg.Series.Energy.Source)
		if err != nil {
			return orchestrator.Cycle{}, errors.Wrap(err, "series.energy.source")
		}
		c.Views = append(c.Views, orchestrator.ViewConfig{
			Kind:       series.KindCumulative,
			Feed:       feed,
			MinSamples: cfg.Series.Energy.MinSamplesPerBucket,
		})
	}

	return c, c.Validate()
}

// ToClientConfig converts the API section to the retrieval client config.
func ToClientConfig(cfg *APIConfig) leneda.Config {
	return leneda.Config{
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey,
		EnergyID: cfg.EnergyID,
		Timeout:  cfg.RequestTimeout.Duration(),
	}
}

// ToStoreConfig converts the store section to the store config.
func ToStoreConfig(cfg *StoreConfig) store.Config {
	return store.Config{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime.Duration(),
		QueryTimeout:    cfg.QueryTimeout.Duration(),
	}
}

// ToArchiveConfig converts the archive section. It returns nil when the
// archive is disabled.
func ToArchiveConfig(cfg *ArchiveConfig) *archive.Config {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &archive.Config{
		Dir:         cfg.Dir,
		Compression: cfg.Compression,
	}
}

// ToMQTTConfig converts the MQTT section. It returns nil when disabled.
func ToMQTTConfig(cfg *MQTTConfig) *publish.MQTTConfig {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &publish.MQTTConfig{
		Broker:      cfg.Broker,
		ClientID:    cfg.ClientID,
		Username:    cfg.Username,
		Password:    cfg.Password,
		TopicPrefix: cfg.TopicPrefix,
		QoS:         byte(cfg.QoS),
		Retain:      cfg.Retain,
		Timeout:     cfg.Timeout.Duration(),
	}
}

// ToKafkaConfig converts the Kafka section. It returns nil when disabled.
func ToKafkaConfig(cfg *KafkaConfig) *publish.KafkaConfig {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	brokers := make([]string, len(cfg.Brokers))
	copy(brokers, cfg.Brokers)
	return &publish.KafkaConfig{
		Brokers: brokers,
		Topic:   cfg.Topic,
		Timeout: cfg.Timeout.Duration(),
	}
}

// ToSchedulerConfig converts the poll and shutdown sections.
func ToSchedulerConfig(cfg *Config) *scheduler.Config {
	return &scheduler.Config{
		Interval:     cfg.Poll.Interval.Duration(),
		Jitter:       cfg.Poll.Jitter.Duration(),
		RunOnStart:   cfg.Poll.RunOnStart,
		DrainTimeout: cfg.Shutdown.DrainTimeout.Duration(),
	}
}
