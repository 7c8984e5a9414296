package aggregate

import (
	"iter"
	"time"

	"github.com/xtxerr/lenedastat/internal/bucket"
	"github.com/xtxerr/lenedastat/internal/series"
)

// Mean reduces each bucket to its arithmetic mean.
//
// The output depends only on the input multiset, so re-aggregating an
// overlapping range yields identical records for the shared periods.
type Mean struct {
	Granularity time.Duration

	// Percentiles adds p50/p90/p95/p99 to each record.
	Percentiles bool
	Accuracy    float64
}

// Group buckets samples at the configured granularity.
func (m Mean) Group(samples []series.Sample) iter.Seq2[time.Time, series.Bucket] {
	return bucket.Group(samples, m.Granularity)
}

// Reduce returns one record per non-empty bucket, in bucket order.
// Sum is always nil.
func (m Mean) Reduce(buckets iter.Seq2[time.Time, series.Bucket]) []series.Record {
	accuracy := 0.0
	if m.Percentiles {
		accuracy = m.Accuracy
	}

	var out []series.Record
	agg := NewStreaming(time.Time{}, accuracy)
	for start, b := range buckets {
		if b.Len() == 0 {
			continue
		}
		agg.Reset(start)
		agg.AddBucket(b)
		out = append(out, agg.Result())
	}
	return out
}

// Aggregate groups and reduces samples.
func (m Mean) Aggregate(samples []series.Sample) []series.Record {
	return m.Reduce(m.Group(samples))
}
