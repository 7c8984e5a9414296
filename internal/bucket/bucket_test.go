package bucket

import (
	"testing"
	"time"

	"github.com/xtxerr/lenedastat/internal/series"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func sample(ts string, v float64) series.Sample {
	return series.NewSample(at(ts), v)
}

func TestStart(t *testing.T) {
	tests := []struct {
		name string
		ts   time.Time
		want time.Time
	}{
		{"on boundary", at("2024-03-01T10:00:00Z"), at("2024-03-01T10:00:00Z")},
		{"inside hour", at("2024-03-01T10:45:00Z"), at("2024-03-01T10:00:00Z")},
		{"last second", at("2024-03-01T10:59:59Z"), at("2024-03-01T10:00:00Z")},
		{"offset input", at("2024-03-01T12:15:00+02:00"), at("2024-03-01T10:00:00Z")},
		{"before epoch", at("1969-12-31T23:30:00Z"), at("1969-12-31T23:00:00Z")},
		{"epoch", time.Unix(0, 0), time.Unix(0, 0).UTC()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Start(tt.ts, time.Hour)
			if !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGroup_OrderedAndUnique(t *testing.T) {
	samples := []series.Sample{
		sample("2024-03-01T12:15:00Z", 4),
		sample("2024-03-01T10:00:00Z", 1),
		sample("2024-03-01T12:00:00Z", 3),
		sample("2024-03-01T10:30:00Z", 2),
	}

	buckets := collect(samples, time.Hour)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}

	if !buckets[0].Start.Equal(at("2024-03-01T10:00:00Z")) {
		t.Errorf("expected first bucket at 10:00, got %v", buckets[0].Start)
	}
	if !buckets[1].Start.Equal(at("2024-03-01T12:00:00Z")) {
		t.Errorf("expected second bucket at 12:00, got %v", buckets[1].Start)
	}

	// Samples keep their input order inside a bucket.
	if buckets[1].Samples[0].Value != 4 || buckets[1].Samples[1].Value != 3 {
		t.Errorf("expected input order [4 3], got %v", buckets[1].Samples)
	}
}

func TestGroup_Partition(t *testing.T) {
	base := at("2024-01-01T00:00:00Z")
	var samples []series.Sample
	for i := 0; i < 500; i++ {
		// Scatter samples over ~20 hours, out of order, with duplicates.
		off := time.Duration((i*7919)%(20*3600)) * time.Second
		samples = append(samples, series.NewSample(base.Add(off), float64(i)))
	}

	total := 0
	seen := make(map[time.Time]bool)
	var prev time.Time
	for start, b := range Group(samples, time.Hour) {
		if seen[start] {
			t.Fatalf("bucket %v emitted twice", start)
		}
		seen[start] = true

		if !prev.IsZero() && !start.After(prev) {
			t.Errorf("bucket %v not after %v", start, prev)
		}
		prev = start

		if b.Len() == 0 {
			t.Errorf("empty bucket at %v", start)
		}
		for _, s := range b.Samples {
			if s.Timestamp.Before(start) || !s.Timestamp.Before(start.Add(time.Hour)) {
				t.Errorf("sample %v outside bucket %v", s.Timestamp, start)
			}
		}
		total += b.Len()
	}

	if total != len(samples) {
		t.Errorf("expected %d samples across buckets, got %d", len(samples), total)
	}
}

func TestGroup_IdenticalTimestamps(t *testing.T) {
	samples := []series.Sample{
		sample("2024-03-01T10:15:00Z", 1),
		sample("2024-03-01T10:15:00Z", 3),
	}

	buckets := collect(samples, time.Hour)
	if len(buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(buckets))
	}
	if buckets[0].Len() != 2 {
		t.Errorf("expected both samples in the bucket, got %d", buckets[0].Len())
	}
}

func TestGroup_EmptyAndInvalidGranularity(t *testing.T) {
	if got := collect(nil, time.Hour); len(got) != 0 {
		t.Errorf("expected no buckets for empty input, got %d", len(got))
	}

	samples := []series.Sample{sample("2024-03-01T10:15:00Z", 1)}
	if got := collect(samples, 0); len(got) != 0 {
		t.Errorf("expected no buckets for zero granularity, got %d", len(got))
	}
	if got := collect(samples, -time.Hour); len(got) != 0 {
		t.Errorf("expected no buckets for negative granularity, got %d", len(got))
	}
}

func TestGroup_EarlyStop(t *testing.T) {
	samples := []series.Sample{
		sample("2024-03-01T10:00:00Z", 1),
		sample("2024-03-01T11:00:00Z", 2),
		sample("2024-03-01T12:00:00Z", 3),
	}

	n := 0
	for range Group(samples, time.Hour) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("expected iteration to stop after 2 buckets, got %d", n)
	}
}

func TestGroup_QuarterHourGranularity(t *testing.T) {
	samples := []series.Sample{
		sample("2024-03-01T10:00:00Z", 1),
		sample("2024-03-01T10:14:59Z", 2),
		sample("2024-03-01T10:15:00Z", 3),
	}

	buckets := collect(samples, 15*time.Minute)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].Len() != 2 || buckets[1].Len() != 1 {
		t.Errorf("expected sizes [2 1], got [%d %d]", buckets[0].Len(), buckets[1].Len())
	}
}

func collect(samples []series.Sample, granularity time.Duration) []series.Bucket {
	var out []series.Bucket
	for _, b := range Group(samples, granularity) {
		out = append(out, b)
	}
	return out
}

func TestSettled(t *testing.T) {
	samples := []series.Sample{
		sample("2024-03-01T10:00:00Z", 1),
		sample("2024-03-01T10:45:00Z", 2),
		sample("2024-03-01T11:00:00Z", 3),
		sample("2024-03-01T11:15:00Z", 4),
	}

	tests := []struct {
		name string
		now  string
		want int
	}{
		{"inside first window", "2024-03-01T10:30:00Z", 0},
		{"first window just closed", "2024-03-01T11:00:00Z", 2},
		{"inside second window", "2024-03-01T11:30:00Z", 2},
		{"both closed", "2024-03-01T13:00:00Z", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Settled(samples, time.Hour, at(tt.now))
			if len(got) != tt.want {
				t.Errorf("expected %d settled samples, got %d", tt.want, len(got))
			}
		})
	}

	if got := Settled(samples, 0, at("2024-03-01T13:00:00Z")); len(got) != 0 {
		t.Errorf("expected nothing for zero granularity, got %d", len(got))
	}
}
