package aggregate

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/xtxerr/lenedastat/internal/series"
)

var hour0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func s(offset time.Duration, v float64) series.Sample {
	return series.NewSample(hour0.Add(offset), v)
}

func TestStreamingAggregate_Basic(t *testing.T) {
	agg := NewStreaming(hour0, 0)

	if !agg.IsEmpty() {
		t.Error("new aggregate should be empty")
	}

	agg.Add(10.0)
	agg.Add(20.0)
	agg.Add(30.0)

	if agg.Count() != 3 {
		t.Errorf("expected count=3, got %d", agg.Count())
	}

	rec := agg.Result()

	if rec.Min != 10.0 {
		t.Errorf("expected min=10, got %f", rec.Min)
	}
	if rec.Max != 30.0 {
		t.Errorf("expected max=30, got %f", rec.Max)
	}
	if math.Abs(rec.Mean-20.0) > 0.001 {
		t.Errorf("expected mean=20, got %f", rec.Mean)
	}
	if rec.HasPercentiles() {
		t.Error("should not have percentiles")
	}
	if rec.HasSum() {
		t.Error("streaming result should not carry a sum")
	}
}

func TestStreamingAggregate_WithPercentiles(t *testing.T) {
	agg := NewStreaming(hour0, 0.01)

	for i := 1; i <= 100; i++ {
		agg.Add(float64(i))
	}

	rec := agg.Result()
	if !rec.HasPercentiles() {
		t.Fatal("should have percentiles")
	}

	if math.Abs(*rec.P50-50) > 2 {
		t.Errorf("expected p50 ~50, got %f", *rec.P50)
	}
	if math.Abs(*rec.P99-99) > 2 {
		t.Errorf("expected p99 ~99, got %f", *rec.P99)
	}
}

func TestStreamingAggregate_Reset(t *testing.T) {
	a := NewStreaming(hour0, 0.01)
	a.Add(1)
	a.Add(9)
	if rec := a.Result(); rec.Max != 9 || rec.Min != 1 || rec.Count != 2 {
		t.Errorf("expected min=1 max=9 count=2, got %+v", rec)
	}

	next := hour0.Add(time.Hour)
	a.Reset(next)
	if !a.IsEmpty() {
		t.Error("aggregate should be empty after reset")
	}
	a.Add(4)
	rec := a.Result()
	if rec.Mean != 4 || rec.Min != 4 || rec.Max != 4 || !rec.HasPercentiles() {
		t.Errorf("expected mean=min=max=4 with percentiles after reset, got %+v", rec)
	}
	if !rec.PeriodStart.Equal(next) {
		t.Errorf("expected period start %v, got %v", next, rec.PeriodStart)
	}
	if math.Abs(*rec.P99-4) > 0.1 {
		t.Errorf("percentiles kept values from the previous bucket: p99=%f", *rec.P99)
	}
}

func TestMean_SingleHour(t *testing.T) {
	samples := []series.Sample{
		s(0, 1.0),
		s(15*time.Minute, 2.0),
		s(30*time.Minute, 3.0),
	}

	recs := Mean{Granularity: time.Hour}.Aggregate(samples)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Mean != 2.0 {
		t.Errorf("expected mean=2.0, got %f", recs[0].Mean)
	}
	if recs[0].Sum != nil {
		t.Errorf("expected no sum, got %f", *recs[0].Sum)
	}
	if !recs[0].PeriodStart.Equal(hour0) {
		t.Errorf("expected period %v, got %v", hour0, recs[0].PeriodStart)
	}
}

func TestMean_Empty(t *testing.T) {
	recs := Mean{Granularity: time.Hour}.Aggregate(nil)
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}

func TestMean_Idempotent(t *testing.T) {
	var samples []series.Sample
	for i := 0; i < 96; i++ {
		samples = append(samples, s(time.Duration(95-i)*15*time.Minute, 0.1*float64(i)+0.37))
	}

	m := Mean{Granularity: time.Hour, Percentiles: true, Accuracy: 0.01}
	first := m.Aggregate(samples)
	second := m.Aggregate(samples)

	if len(first) != 24 {
		t.Fatalf("expected 24 records, got %d", len(first))
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical records on re-aggregation")
	}
	for i := 1; i < len(first); i++ {
		if !first[i].PeriodStart.After(first[i-1].PeriodStart) {
			t.Errorf("records not ascending at %d", i)
		}
	}
}

func TestCumulative_NoHistory(t *testing.T) {
	samples := []series.Sample{
		s(0, 5.0),
		s(time.Hour, 3.0),
	}

	recs := Cumulative{Granularity: time.Hour}.Aggregate(samples, 0)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}

	want := []float64{5.0, 8.0}
	for i, w := range want {
		if recs[i].Sum == nil || *recs[i].Sum != w {
			t.Errorf("record %d: expected sum=%f, got %v", i, w, recs[i].Sum)
		}
	}
	if recs[1].Mean != 3.0 {
		t.Errorf("expected hourly energy 3.0, got %f", recs[1].Mean)
	}
}

func TestCumulative_Seeded(t *testing.T) {
	recs := Cumulative{Granularity: time.Hour}.Aggregate([]series.Sample{s(0, 10.0)}, 100.0)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if *recs[0].Sum != 110.0 {
		t.Errorf("expected sum=110, got %f", *recs[0].Sum)
	}
	if !recs[0].PeriodStart.Equal(hour0) {
		t.Errorf("expected period %v, got %v", hour0, recs[0].PeriodStart)
	}
}

func TestCumulative_RunningTotal(t *testing.T) {
	const seed = 42.5
	means := []float64{1.25, 0.5, 2.0}

	var samples []series.Sample
	for h, m := range means {
		// Two samples per hour averaging to m.
		samples = append(samples,
			s(time.Duration(h)*time.Hour, m-0.25),
			s(time.Duration(h)*time.Hour+30*time.Minute, m+0.25),
		)
	}

	recs := Cumulative{Granularity: time.Hour}.Aggregate(samples, seed)
	if len(recs) != len(means) {
		t.Fatalf("expected %d records, got %d", len(means), len(recs))
	}

	acc := seed
	for i, m := range means {
		acc += m
		if *recs[i].Sum != acc {
			t.Errorf("record %d: expected sum=%f, got %f", i, acc, *recs[i].Sum)
		}
	}
}

func TestCumulative_SortsInput(t *testing.T) {
	ordered := []series.Sample{s(0, 1), s(time.Hour, 2), s(2*time.Hour, 3)}
	shuffled := []series.Sample{ordered[2], ordered[0], ordered[1]}

	c := Cumulative{Granularity: time.Hour}
	want := c.Aggregate(ordered, 0)
	got := c.Aggregate(shuffled, 0)

	if !reflect.DeepEqual(want, got) {
		t.Error("expected identical records regardless of input order")
	}
	if shuffled[0].Value != 3 {
		t.Error("input slice should not be reordered")
	}
}

func TestCumulative_NonDecreasing(t *testing.T) {
	var samples []series.Sample
	for i := 0; i < 48; i++ {
		samples = append(samples, s(time.Duration(i)*15*time.Minute, float64(i%5)))
	}

	recs := Cumulative{Granularity: time.Hour}.Aggregate(samples, 7)
	prev := 7.0
	for i, r := range recs {
		if *r.Sum < prev {
			t.Errorf("record %d: sum %f below previous %f", i, *r.Sum, prev)
		}
		prev = *r.Sum
	}
}

func TestCumulative_MinSamples(t *testing.T) {
	samples := []series.Sample{
		s(0, 1), s(15*time.Minute, 1), s(30*time.Minute, 1), s(45*time.Minute, 1),
		s(time.Hour, 2), s(time.Hour+15*time.Minute, 2),
		s(2*time.Hour, 3), s(2*time.Hour+15*time.Minute, 3), s(2*time.Hour+30*time.Minute, 3), s(2*time.Hour+45*time.Minute, 3),
	}

	recs := Cumulative{Granularity: time.Hour, MinSamples: 4}.Aggregate(samples, 0)
	if len(recs) != 1 {
		t.Fatalf("expected aggregation to stop at the short hour, got %d records", len(recs))
	}
	if *recs[0].Sum != 1 {
		t.Errorf("expected sum=1, got %f", *recs[0].Sum)
	}

	all := Cumulative{Granularity: time.Hour}.Aggregate(samples, 0)
	if len(all) != 3 {
		t.Errorf("expected 3 records with default MinSamples, got %d", len(all))
	}
}
