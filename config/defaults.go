// Package config provides configuration defaults for the lenedastat
// application.
//
// This package defines all configurable constants with documented defaults.
// Users can override most of these values via config.yaml or environment
// variables.
package config

import "time"

// =============================================================================
// Upstream API Defaults
// =============================================================================

const (
	// DefaultAPIBaseURL is the Leneda metering-data API root.
	// Override via config: api.base_url
	DefaultAPIBaseURL = "https://api.leneda.eu/api"

	// DefaultRequestTimeout bounds a single retrieval call. A call that
	// exceeds it is treated as an empty chunk.
	// Override via config: api.request_timeout
	DefaultRequestTimeout = 30 * time.Second

	// APIMaxDaysToFetch is the widest range the API serves per request.
	// Wider ranges are split into chunks of at most this many days.
	// Override via config: api.max_days_per_request
	APIMaxDaysToFetch = 30

	// APIMinDaysToFetch is the narrowest range requested per cycle. Re-reading
	// the last couple of days picks up late corrections for the mean series.
	// Override via config: api.min_days_to_fetch
	APIMinDaysToFetch = 2

	// DefaultFetchConcurrency is the number of chunks fetched in parallel.
	// 1 keeps retrieval sequential.
	// Override via config: api.fetch_concurrency
	DefaultFetchConcurrency = 1

	// RequestTimeFormat is the timestamp layout the API expects in queries.
	RequestTimeFormat = "2006-01-02T15:04:05Z"

	// HeaderAPIKey and HeaderEnergyID carry the two credentials.
	HeaderAPIKey   = "X-API-KEY"
	HeaderEnergyID = "X-ENERGY-ID"
)

// =============================================================================
// Series Defaults
// =============================================================================

const (
	// DefaultOBISCode is measured active consumption.
	// Override via config: obis_code
	DefaultOBISCode = "1-1:1.29.0"

	// DefaultInitialLookbackDays is how far back the first cycle reaches
	// when no statistics have been persisted yet.
	// Override via config: initial_lookback_days
	DefaultInitialLookbackDays = 180

	// DefaultGranularity is the bucket width of both derived series.
	DefaultGranularity = time.Hour

	// DefaultMinSamplesPerBucket is the number of samples a bucket needs
	// before the cumulative series accepts it.
	// Override via config: series.energy.min_samples_per_bucket
	DefaultMinSamplesPerBucket = 1

	// DefaultPercentileAccuracy is the DDSketch relative accuracy.
	// Override via config: series.power.percentile_accuracy
	DefaultPercentileAccuracy = 0.01

	// PowerSeriesSuffix and EnergySeriesSuffix end the series identifiers.
	PowerSeriesSuffix  = "pwr_15min"
	EnergySeriesSuffix = "energy_hourly"

	// SeriesSource tags every series written by this application.
	SeriesSource = "leneda"
)

// =============================================================================
// Scheduler Defaults
// =============================================================================

const (
	// DefaultPollInterval is the time between two update cycles.
	// Override via config: poll.interval
	DefaultPollInterval = 2 * time.Hour

	// DefaultPollJitter spreads cycle start times.
	// Override via config: poll.jitter
	DefaultPollJitter = time.Minute

	// DefaultDrainTimeoutSec is how long shutdown waits for a running cycle.
	DefaultDrainTimeoutSec = 30
)

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultStoreDriver is the statistics store engine.
	// Override via config: store.driver
	DefaultStoreDriver = "duckdb"

	// DefaultStoreDSN is the DuckDB database file.
	// Override via config: store.dsn
	DefaultStoreDSN = "lenedastat.duckdb"

	// DefaultStoreQueryTimeout bounds a single store query.
	DefaultStoreQueryTimeout = 30 * time.Second
)

// =============================================================================
// Output Defaults
// =============================================================================

const (
	// DefaultArchiveDir receives per-cycle raw sample files.
	// Override via config: archive.dir
	DefaultArchiveDir = "archive"

	// DefaultArchiveCompression is the Parquet codec for archive files.
	// Override via config: archive.compression
	DefaultArchiveCompression = "zstd"

	// DefaultMQTTTopicPrefix prefixes the per-series MQTT topic.
	// Override via config: publish.mqtt.topic_prefix
	DefaultMQTTTopicPrefix = "lenedastat"

	// DefaultMQTTClientID identifies the daemon at the broker.
	// Override via config: publish.mqtt.client_id
	DefaultMQTTClientID = "lenedastat"

	// DefaultKafkaTopic receives emitted records.
	// Override via config: publish.kafka.topic
	DefaultKafkaTopic = "lenedastat.records"

	// DefaultPublishTimeout bounds one publish call.
	DefaultPublishTimeout = 10 * time.Second

	// DefaultHTTPListen is the metrics and API listen address.
	// Override via config: http.listen
	DefaultHTTPListen = ":9464"
)
