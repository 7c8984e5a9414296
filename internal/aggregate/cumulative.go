package aggregate

import (
	"iter"
	"slices"
	"time"

	"github.com/xtxerr/lenedastat/internal/bucket"
	"github.com/xtxerr/lenedastat/internal/series"
)

// Cumulative turns hourly buckets into energy records with a running total.
//
// The mean of an hour of power readings (kW) equals the energy of that
// hour (kWh). Each record carries that hourly energy as Mean and the
// running total as Sum.
type Cumulative struct {
	Granularity time.Duration

	// MinSamples is the number of samples a bucket needs to be accepted.
	// Aggregation stops at the first bucket below it, so a partially
	// published trailing hour is picked up again next cycle. Values below
	// 1 are treated as 1.
	MinSamples int
}

// Group sorts a copy of samples by timestamp and buckets it. The running
// total is only correct over chronologically ordered buckets, so callers
// always go through Group rather than bucketing themselves.
func (c Cumulative) Group(samples []series.Sample) iter.Seq2[time.Time, series.Bucket] {
	sorted := slices.Clone(samples)
	slices.SortStableFunc(sorted, func(a, b series.Sample) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return bucket.Group(sorted, c.Granularity)
}

// Reduce folds buckets into records, continuing the running total from seed.
func (c Cumulative) Reduce(buckets iter.Seq2[time.Time, series.Bucket], seed float64) []series.Record {
	minSamples := c.MinSamples
	if minSamples < 1 {
		minSamples = 1
	}

	acc := seed
	var out []series.Record
	agg := NewStreaming(time.Time{}, 0)
	for start, b := range buckets {
		if b.Len() < minSamples {
			break
		}

		agg.Reset(start)
		agg.AddBucket(b)

		rec := agg.Result()
		acc += rec.Mean
		rec.Sum = series.Float(acc)
		out = append(out, rec)
	}
	return out
}

// Aggregate returns energy records seeded with seed, ordered by period.
// The input may be in any order and is not modified.
func (c Cumulative) Aggregate(samples []series.Sample, seed float64) []series.Record {
	return c.Reduce(c.Group(samples), seed)
}
