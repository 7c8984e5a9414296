package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/leneda"
	"github.com/xtxerr/lenedastat/internal/series"
	"github.com/xtxerr/lenedastat/internal/testutil"
)

const minimalYAML = `
metering_point: LU0000010637000000000000070232
api:
  api_key: ${TEST_LENEDA_KEY}
  energy_id: ${TEST_LENEDA_ENERGY}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParse_DefaultsAndEnv(t *testing.T) {
	t.Setenv("TEST_LENEDA_KEY", "secret")
	t.Setenv("TEST_LENEDA_ENERGY", "LUXE-1")

	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.API.APIKey != "secret" || cfg.API.EnergyID != "LUXE-1" {
		t.Errorf("env not expanded: %+v", cfg.API)
	}
	if cfg.OBISCode != "1-1:1.29.0" {
		t.Errorf("obis default = %s", cfg.OBISCode)
	}
	if cfg.InitialLookbackDays != 180 {
		t.Errorf("lookback default = %d", cfg.InitialLookbackDays)
	}
	if cfg.API.MaxDaysPerRequest != 30 || cfg.API.MinDaysToFetch != 2 {
		t.Errorf("api limits = %d/%d", cfg.API.MaxDaysPerRequest, cfg.API.MinDaysToFetch)
	}
	if cfg.Poll.Interval.Duration() != 2*time.Hour {
		t.Errorf("poll interval = %s", cfg.Poll.Interval.Duration())
	}
	if cfg.Store.Driver != "duckdb" {
		t.Errorf("store driver = %s", cfg.Store.Driver)
	}
	if !cfg.Series.Power.Enabled || !cfg.Series.Energy.Enabled {
		t.Error("both series should be enabled by default")
	}
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
metering_point: LU1
obis_code: "1-65:1.29.1"
initial_lookback_days: 60
api:
  api_key: k
  energy_id: e
  request_timeout: 10
  fetch_concurrency: 3
poll:
  interval: 30m
  jitter: 0s
series:
  power: { enabled: false }
  energy: { source: 15min, min_samples_per_bucket: 4 }
store: { driver: sqlite, dsn: ":memory:" }
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.API.RequestTimeout.Duration() != 10*time.Second {
		t.Errorf("integer duration should be seconds, got %s", cfg.API.RequestTimeout.Duration())
	}
	if cfg.Poll.Interval.Duration() != 30*time.Minute {
		t.Errorf("interval = %s", cfg.Poll.Interval.Duration())
	}

	c, err := ToCycle(cfg)
	if err != nil {
		t.Fatalf("ToCycle: %v", err)
	}
	if len(c.Views) != 1 {
		t.Fatalf("views = %d, want 1", len(c.Views))
	}
	v := c.Views[0]
	if v.Kind != series.KindCumulative || v.Feed != leneda.FeedQuarterHour || v.MinSamples != 4 {
		t.Errorf("unexpected view: %+v", v)
	}
	if c.InitialLookback != 60*24*time.Hour || c.Planner.MaxDays != 60 {
		t.Errorf("lookback = %s, max days = %d", c.InitialLookback, c.Planner.MaxDays)
	}
	if c.FetchConcurrency != 3 {
		t.Errorf("fetch concurrency = %d", c.FetchConcurrency)
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("metering_point: [unclosed"))
	if !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OBISCode = "0-0:0.0.0"
	cfg.Store.Driver = "oracle"
	cfg.Archive.Enabled = true
	cfg.Archive.Compression = "rar"
	cfg.Publish.MQTT.Enabled = true
	cfg.Publish.MQTT.QoS = 3
	cfg.Log.Level = "chatty"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}

	var verrs *errors.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	// metering_point, api_key, energy_id, obis, driver, compression, qos, log level
	if len(verrs.Errors) != 8 {
		t.Errorf("got %d errors, want 8:\n%v", len(verrs.Errors), err)
	}
	if !errors.Is(err, errors.ErrMissingField) {
		t.Error("missing fields not reported")
	}
	if !errors.Is(err, errors.ErrUnsupportedDriver) {
		t.Error("unsupported driver not reported")
	}
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no series", func(c *Config) { c.Series.Power.Enabled = false; c.Series.Energy.Enabled = false }},
		{"bad feed", func(c *Config) { c.Series.Energy.Source = "daily" }},
		{"short interval", func(c *Config) { c.Poll.Interval = Duration(time.Second) }},
		{"jitter too long", func(c *Config) { c.Poll.Jitter = Duration(3 * time.Hour) }},
		{"min days above lookback", func(c *Config) { c.InitialLookbackDays = 1 }},
		{"zero concurrency", func(c *Config) { c.API.FetchConcurrency = 0 }},
		{"bad accuracy", func(c *Config) { c.Series.Power.Percentiles = true; c.Series.Power.PercentileAccuracy = 1.5 }},
		{"relative base url", func(c *Config) { c.API.BaseURL = "/api" }},
		{"kafka without brokers", func(c *Config) { c.Publish.Kafka.Enabled = true; c.Publish.Kafka.Brokers = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.MeteringPoint = "LU1"
			cfg.API.APIKey = "k"
			cfg.API.EnergyID = "e"
			if err := Validate(cfg); err != nil {
				t.Fatalf("base config invalid: %v", err)
			}

			tt.mutate(cfg)
			if err := Validate(cfg); !errors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "TEST_DOTENV_KEY=from-dotenv\n")
	path := writeFile(t, dir, "lenedastat.yaml", `
metering_point: LU1
api:
  api_key: ${TEST_DOTENV_KEY}
  energy_id: e
`)
	t.Cleanup(func() { os.Unsetenv("TEST_DOTENV_KEY") })

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate: %v", err)
	}
	if cfg.API.APIKey != "from-dotenv" {
		t.Errorf("api key = %q, want from-dotenv", cfg.API.APIKey)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()

	if ToArchiveConfig(&cfg.Archive) != nil {
		t.Error("disabled archive should convert to nil")
	}
	if ToMQTTConfig(&cfg.Publish.MQTT) != nil || ToKafkaConfig(&cfg.Publish.Kafka) != nil {
		t.Error("disabled publishers should convert to nil")
	}

	cfg.Publish.MQTT.Enabled = true
	cfg.Publish.MQTT.QoS = 1
	m := ToMQTTConfig(&cfg.Publish.MQTT)
	if m == nil || m.QoS != 1 || m.TopicPrefix != "lenedastat" {
		t.Errorf("unexpected mqtt config: %+v", m)
	}

	sc := ToSchedulerConfig(cfg)
	if sc.Interval != 2*time.Hour || sc.Jitter != time.Minute || !sc.RunOnStart {
		t.Errorf("unexpected scheduler config: %+v", sc)
	}

	st := ToStoreConfig(&cfg.Store)
	if st.Driver != "duckdb" || st.QueryTimeout != 30*time.Second {
		t.Errorf("unexpected store config: %+v", st)
	}

	cc := ToClientConfig(&cfg.API)
	if cc.Timeout != 30*time.Second || cc.BaseURL != "https://api.leneda.eu/api" {
		t.Errorf("unexpected client config: %+v", cc)
	}
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lenedastat.yaml", "metering_point: LU1\napi: { api_key: k, energy_id: e }\n")

	initial, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate: %v", err)
	}

	var changed []*Config
	w := NewWatcher(path, initial, func(c *Config) { changed = append(changed, c) })

	writeFile(t, dir, "lenedastat.yaml", "metering_point: LU2\napi: { api_key: k, energy_id: e }\n")
	if !w.Reload() {
		t.Fatal("valid reload rejected")
	}
	if w.Current().MeteringPoint != "LU2" {
		t.Errorf("current = %s, want LU2", w.Current().MeteringPoint)
	}

	writeFile(t, dir, "lenedastat.yaml", "metering_point: LU3\n")
	if w.Reload() {
		t.Error("invalid reload accepted")
	}
	if w.Current().MeteringPoint != "LU2" {
		t.Errorf("invalid file replaced config: %s", w.Current().MeteringPoint)
	}
	if len(changed) != 1 {
		t.Errorf("onChange called %d times, want 1", len(changed))
	}
}

func TestWatcher_FileEvents(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lenedastat.yaml", "metering_point: LU1\napi: { api_key: k, energy_id: e }\n")

	initial, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate: %v", err)
	}

	reloaded := make(chan *Config, 4)
	w := NewWatcher(path, initial, func(c *Config) { reloaded <- c })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	writeFile(t, dir, "lenedastat.yaml", "metering_point: LU9\napi: { api_key: k, energy_id: e }\n")

	c := testutil.Receive[*Config](t, reloaded)
	if c.MeteringPoint != "LU9" {
		t.Errorf("reloaded metering point = %s", c.MeteringPoint)
	}
}
