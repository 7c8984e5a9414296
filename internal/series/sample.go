package series

import "time"

// Sample is a single metering reading.
// Timestamp is always UTC with second precision.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// NewSample normalizes ts to UTC and truncates it to whole seconds.
func NewSample(ts time.Time, value float64) Sample {
	return Sample{
		Timestamp: ts.UTC().Truncate(time.Second),
		Value:     value,
	}
}

// Unix returns the sample timestamp in Unix seconds.
func (s Sample) Unix() int64 {
	return s.Timestamp.Unix()
}

// Bucket is a run of samples sharing one aligned window.
type Bucket struct {
	Start   time.Time
	Samples []Sample
}

// Len returns the number of samples in the bucket.
func (b Bucket) Len() int {
	return len(b.Samples)
}
