// Package bucket groups samples into fixed windows aligned to the Unix epoch.
package bucket

import (
	"iter"
	"slices"
	"time"

	"github.com/xtxerr/lenedastat/internal/series"
)

// Start returns the start of the window containing ts.
// Windows are aligned to the Unix epoch; timestamps before the epoch floor
// towards negative infinity.
func Start(ts time.Time, granularity time.Duration) time.Time {
	return time.Unix(startUnix(ts.Unix(), seconds(granularity)), 0).UTC()
}

func startUnix(ts, width int64) int64 {
	q := ts / width
	if ts%width != 0 && ts < 0 {
		q--
	}
	return q * width
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

// Group yields one bucket per occupied window, in ascending window order.
//
// Samples are grouped by a stable sort on the window start, so samples
// sharing a window keep their input order. Callers that need
// chronological order inside a bucket sort the input first. Nothing is
// computed until the sequence is ranged over. A granularity shorter than
// one second yields nothing.
func Group(samples []series.Sample, granularity time.Duration) iter.Seq2[time.Time, series.Bucket] {
	return func(yield func(time.Time, series.Bucket) bool) {
		width := seconds(granularity)
		if width <= 0 || len(samples) == 0 {
			return
		}

		type keyed struct {
			start  int64
			sample series.Sample
		}

		keyedSamples := make([]keyed, len(samples))
		for i, s := range samples {
			keyedSamples[i] = keyed{start: startUnix(s.Unix(), width), sample: s}
		}
		slices.SortStableFunc(keyedSamples, func(a, b keyed) int {
			switch {
			case a.start < b.start:
				return -1
			case a.start > b.start:
				return 1
			default:
				return 0
			}
		})

		for i := 0; i < len(keyedSamples); {
			j := i
			for j < len(keyedSamples) && keyedSamples[j].start == keyedSamples[i].start {
				j++
			}

			run := make([]series.Sample, 0, j-i)
			for _, k := range keyedSamples[i:j] {
				run = append(run, k.sample)
			}

			start := time.Unix(keyedSamples[i].start, 0).UTC()
			if !yield(start, series.Bucket{Start: start, Samples: run}) {
				return
			}
			i = j
		}
	}
}

// Settled returns the samples whose window has closed at now, that is
// whose window end is not after now. The input is not modified.
func Settled(samples []series.Sample, granularity time.Duration, now time.Time) []series.Sample {
	width := seconds(granularity)
	out := make([]series.Sample, 0, len(samples))
	if width <= 0 {
		return out
	}
	limit := now.Unix()
	for _, s := range samples {
		if startUnix(s.Unix(), width)+width <= limit {
			out = append(out, s)
		}
	}
	return out
}
