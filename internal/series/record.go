package series

import "time"

// Record is the aggregated statistic for one bucket.
type Record struct {
	PeriodStart time.Time

	// Basic statistics (always present)
	Mean  float64
	Min   float64
	Max   float64
	Count int64

	// Sum is the running total of the cumulative view, nil for the mean view.
	Sum *float64

	// Percentiles (optional, nil if not enabled)
	P50 *float64
	P90 *float64
	P95 *float64
	P99 *float64
}

// State returns the value shown for the period. For the cumulative view
// this is the hourly energy.
func (r Record) State() float64 {
	return r.Mean
}

// HasSum reports whether the record carries a running total.
func (r Record) HasSum() bool {
	return r.Sum != nil
}

// SumValue returns the running total, or 0 when absent.
func (r Record) SumValue() float64 {
	if r.Sum == nil {
		return 0
	}
	return *r.Sum
}

// SetPercentiles sets the percentile values.
func (r *Record) SetPercentiles(p50, p90, p95, p99 float64) {
	r.P50 = &p50
	r.P90 = &p90
	r.P95 = &p95
	r.P99 = &p99
}

// HasPercentiles returns true if percentiles are available.
func (r Record) HasPercentiles() bool {
	return r.P50 != nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// ResumeState is the snapshot of previously persisted output for a series.
// It is read once per cycle and never modified.
type ResumeState struct {
	LastPeriodStart time.Time
	LastSum         float64
	HasHistory      bool
}
