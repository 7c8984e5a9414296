// Package resume derives where a cycle starts from what the store already holds.
package resume

import (
	"context"
	"time"

	"github.com/xtxerr/lenedastat/internal/bucket"
	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/series"
)

// StateReader reads the last persisted record of a series.
// Absent history is reported as HasHistory=false, not as an error.
type StateReader interface {
	ReadLast(ctx context.Context, seriesID string) (series.ResumeState, error)
}

// Cursor resolves the fetch start and the cumulative seed for a series.
type Cursor struct {
	Reader          StateReader
	Granularity     time.Duration
	InitialLookback time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Position is the resolved resume point for one cycle.
type Position struct {
	// Since is the earliest instant still needed.
	Since time.Time
	// Seed is the running total the cumulative view continues from.
	Seed float64
	// State is the snapshot the position was derived from.
	State series.ResumeState

	granularity time.Duration
}

// Resolve reads the resume state of seriesID and derives a Position.
//
// Without history the cycle reaches back InitialLookback and starts from a
// zero total. With history it starts one bucket after the last persisted
// period and continues from the last persisted sum.
func (c Cursor) Resolve(ctx context.Context, seriesID string) (Position, error) {
	if c.Reader == nil {
		return Position{}, errors.NewMissingField("resume reader")
	}
	if c.Granularity <= 0 {
		return Position{}, errors.ErrInvalidGranularity
	}

	state, err := c.Reader.ReadLast(ctx, seriesID)
	if err != nil {
		return Position{}, errors.Wrapf(err, "read resume state for %s", seriesID)
	}

	return c.position(state), nil
}

func (c Cursor) position(state series.ResumeState) Position {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	pos := Position{State: state, granularity: c.Granularity}
	if !state.HasHistory {
		pos.Since = now().UTC().Add(-c.InitialLookback)
		return pos
	}

	pos.Since = state.LastPeriodStart.UTC().Add(c.Granularity)
	pos.Seed = state.LastSum
	return pos
}

// Exclude drops every sample that falls into an already persisted bucket.
// This removes all samples with a timestamp at or before the last persisted
// period start, and also those later in that same bucket, which were
// already folded into the persisted total.
//
// The returned slice is newly allocated; samples is not modified. Without
// history every sample is kept.
func (p Position) Exclude(samples []series.Sample) []series.Sample {
	if !p.State.HasHistory || p.granularity <= 0 {
		out := make([]series.Sample, len(samples))
		copy(out, samples)
		return out
	}

	last := p.State.LastPeriodStart.UTC()
	out := make([]series.Sample, 0, len(samples))
	for _, s := range samples {
		if bucket.Start(s.Timestamp, p.granularity).After(last) {
			out = append(out, s)
		}
	}
	return out
}
