// Package aggregate reduces hourly buckets to statistic records.
//
// Mean produces the power view: one record per bucket, no state carried
// between cycles. Cumulative produces the energy view: the bucket mean is
// the hourly energy and is added to a running total seeded from the store.
package aggregate

import (
	"math"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/xtxerr/lenedastat/internal/series"
)

// StreamingAggregate maintains running statistics for a single bucket.
// It supports optional percentile calculation using DDSketch.
//
// An aggregate is owned by one aggregation pass and is not safe for
// concurrent use.
type StreamingAggregate struct {
	bucketStart time.Time

	// Running statistics
	count int64
	sum   float64
	min   float64
	max   float64

	// DDSketch for percentiles (nil if disabled)
	sketch   *ddsketch.DDSketch
	accuracy float64
}

// NewStreaming creates an aggregate for the bucket starting at bucketStart.
// A positive accuracy enables percentiles with that relative accuracy.
func NewStreaming(bucketStart time.Time, accuracy float64) *StreamingAggregate {
	agg := &StreamingAggregate{
		bucketStart: bucketStart,
		min:         math.MaxFloat64,
		max:         -math.MaxFloat64,
		accuracy:    accuracy,
	}
	agg.sketch = newSketch(accuracy)
	return agg
}

func newSketch(accuracy float64) *ddsketch.DDSketch {
	if accuracy <= 0 || accuracy >= 1 {
		return nil
	}
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil
	}
	return sketch
}

// Add adds a value to the aggregate.
func (a *StreamingAggregate) Add(value float64) {
	a.count++
	a.sum += value

	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}

	if a.sketch != nil {
		_ = a.sketch.Add(value)
	}
}

// AddBucket adds every sample of b.
func (a *StreamingAggregate) AddBucket(b series.Bucket) {
	for _, s := range b.Samples {
		a.Add(s.Value)
	}
}

// Count returns the number of values added.
func (a *StreamingAggregate) Count() int64 {
	return a.count
}

// IsEmpty returns true if no values have been added.
func (a *StreamingAggregate) IsEmpty() bool {
	return a.count == 0
}

// Mean returns the arithmetic mean, or 0 for an empty aggregate.
func (a *StreamingAggregate) Mean() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

// Result returns the aggregation result without a running total.
func (a *StreamingAggregate) Result() series.Record {
	rec := series.Record{
		PeriodStart: a.bucketStart,
		Count:       a.count,
	}

	if a.count > 0 {
		rec.Mean = a.Mean()
		rec.Min = a.min
		rec.Max = a.max
	}

	if a.sketch != nil && a.count > 0 {
		p50, err50 := a.sketch.GetValueAtQuantile(0.50)
		p90, err90 := a.sketch.GetValueAtQuantile(0.90)
		p95, err95 := a.sketch.GetValueAtQuantile(0.95)
		p99, err99 := a.sketch.GetValueAtQuantile(0.99)
		if err50 == nil && err90 == nil && err95 == nil && err99 == nil {
			rec.SetPercentiles(p50, p90, p95, p99)
		}
	}

	return rec
}

// Reset clears the aggregate for the bucket starting at bucketStart, so one
// aggregate can be reused across the buckets of a pass.
func (a *StreamingAggregate) Reset(bucketStart time.Time) {
	a.bucketStart = bucketStart
	a.count = 0
	a.sum = 0
	a.min = math.MaxFloat64
	a.max = -math.MaxFloat64

	if a.sketch != nil {
		a.sketch = newSketch(a.accuracy)
	}
}
