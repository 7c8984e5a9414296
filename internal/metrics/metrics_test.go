package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metric:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestMetrics_Cycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Cycle("energy", OutcomeOK, time.Second)
	m.Cycle("energy", OutcomeOK, time.Second)
	m.Cycle("power", OutcomeError, time.Second)

	if got := counterValue(t, reg, "lenedastat_cycles_total", map[string]string{"view": "energy", "outcome": "ok"}); got != 2 {
		t.Errorf("expected 2 ok energy cycles, got %f", got)
	}
	if got := counterValue(t, reg, "lenedastat_cycles_total", map[string]string{"view": "power", "outcome": "error"}); got != 1 {
		t.Errorf("expected 1 failed power cycle, got %f", got)
	}
}

func TestMetrics_ChunkAndEmit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Chunk("15min", true, 96, 2, time.Millisecond)
	m.Chunk("15min", false, 0, 0, time.Millisecond)
	sum := 42.0
	m.Emitted("energy", "s1", 3, time.Unix(3600, 0), &sum)
	m.SinkError("mqtt")

	if got := counterValue(t, reg, "lenedastat_samples_fetched_total", map[string]string{"feed": "15min"}); got != 96 {
		t.Errorf("expected 96 samples, got %f", got)
	}
	if got := counterValue(t, reg, "lenedastat_samples_dropped_total", map[string]string{"feed": "15min"}); got != 2 {
		t.Errorf("expected 2 dropped, got %f", got)
	}
	if got := counterValue(t, reg, "lenedastat_chunk_fetches_total", map[string]string{"outcome": "error"}); got != 1 {
		t.Errorf("expected 1 failed chunk, got %f", got)
	}
	if got := counterValue(t, reg, "lenedastat_last_sum", map[string]string{"series_id": "s1"}); got != 42 {
		t.Errorf("expected last sum 42, got %f", got)
	}
	if got := counterValue(t, reg, "lenedastat_sink_errors_total", map[string]string{"sink": "mqtt"}); got != 1 {
		t.Errorf("expected 1 sink error, got %f", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Cycle("energy", OutcomeOK, time.Second)
	m.Chunk("hourly", true, 1, 0, time.Second)
	m.Excluded("energy", 3)
	m.Emitted("energy", "s", 1, time.Now(), nil)
	m.SinkError("kafka")

	rec := httptest.NewRecorder()
	m.WrapHandler("/x", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected wrapped handler to run, got %d", rec.Code)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New(nil)
	m.Cycle("power", OutcomeEmpty, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `lenedastat_cycles_total{outcome="empty",view="power"} 1`) {
		t.Errorf("expected cycle counter in exposition, got:\n%s", rec.Body.String())
	}
}
