// Package planner splits a retrieval range into API-sized chunks.
package planner

import (
	"math"
	"time"

	"github.com/xtxerr/lenedastat/config"
)

const day = 24 * time.Hour

// Chunk is one half-open retrieval range [Start, End).
type Chunk struct {
	Start time.Time
	End   time.Time
}

// Duration returns the chunk length.
func (c Chunk) Duration() time.Duration {
	return c.End.Sub(c.Start)
}

// Plan is the retrieval plan of one view for one cycle.
type Plan struct {
	Start  time.Time
	End    time.Time
	Days   int
	Chunks []Chunk
}

// Empty reports whether the plan issues no retrieval calls.
func (p Plan) Empty() bool {
	return len(p.Chunks) == 0
}

// Planner turns a resume point into a chunked retrieval plan.
type Planner struct {
	// MaxDaysPerRequest is the widest range the API serves per call.
	MaxDaysPerRequest int
	// MinDays is the narrowest range fetched per cycle.
	MinDays int
	// MaxDays caps the total range of one cycle.
	MaxDays int
}

// Default returns a Planner with the API limits and the initial lookback
// as upper bound.
func Default() Planner {
	return Planner{
		MaxDaysPerRequest: config.APIMaxDaysToFetch,
		MinDays:           config.APIMinDaysToFetch,
		MaxDays:           config.DefaultInitialLookbackDays,
	}
}

// Days returns the whole days needed to reach back from end to since,
// rounded up and clamped to [MinDays, MaxDays]. A bound of zero or less
// is not applied.
func (p Planner) Days(since, end time.Time) int {
	days := 0
	if end.After(since) {
		days = int(math.Ceil(float64(end.Sub(since)) / float64(day)))
	}

	if p.MinDays > 0 && days < p.MinDays {
		days = p.MinDays
	}
	if p.MaxDays > 0 && days > p.MaxDays {
		days = p.MaxDays
	}
	return days
}

// Plan builds the retrieval plan for [end - Days(since, end), end).
func (p Planner) Plan(since, end time.Time) Plan {
	end = end.UTC().Truncate(time.Second)
	days := p.Days(since, end)
	start := end.Add(-time.Duration(days) * day)

	maxSpan := time.Duration(p.MaxDaysPerRequest) * day
	if p.MaxDaysPerRequest <= 0 {
		maxSpan = end.Sub(start)
	}

	return Plan{
		Start:  start,
		End:    end,
		Days:   days,
		Chunks: Split(start, end, maxSpan),
	}
}

// Split partitions [start, end) into contiguous chunks of at most maxSpan,
// in chronological order. The last chunk absorbs the remainder. An empty
// range or a non-positive span yields no chunks.
func Split(start, end time.Time, maxSpan time.Duration) []Chunk {
	if !end.After(start) || maxSpan <= 0 {
		return nil
	}

	n := int((end.Sub(start) + maxSpan - 1) / maxSpan)
	chunks := make([]Chunk, 0, n)
	for cur := start; cur.Before(end); {
		next := cur.Add(maxSpan)
		if next.After(end) {
			next = end
		}
		chunks = append(chunks, Chunk{Start: cur, End: next})
		cur = next
	}
	return chunks
}
