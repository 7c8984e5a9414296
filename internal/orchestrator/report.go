package orchestrator

import (
	"time"

	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/series"
)

// Report summarises one update cycle.
type Report struct {
	CycleID  string
	Started  time.Time
	Finished time.Time
	Views    []ViewReport

	// Shared is set when the result was delivered to more than one caller
	// because triggers overlapped.
	Shared bool
}

// ViewReport summarises one view of a cycle.
type ViewReport struct {
	SeriesID string
	Kind     series.Kind
	Feed     string

	Since time.Time
	Seed  float64
	Days  int

	Chunks       int
	ChunksFailed int
	Fetched      int
	Dropped      int
	Excluded     int
	Pending      int

	Records    int
	Written    bool
	LastPeriod time.Time
	LastSum    *float64
	SinkErrors int

	States   []State
	Duration time.Duration
	Err      error
}

// Err joins the errors of all views.
func (r Report) Err() error {
	var errs []error
	for _, v := range r.Views {
		if v.Err != nil {
			errs = append(errs, errors.Wrap(v.Err, v.SeriesID))
		}
	}
	return errors.Join(errs...)
}

// Records returns the number of records emitted across all views.
func (r Report) Records() int {
	n := 0
	for _, v := range r.Views {
		if v.Written {
			n += v.Records
		}
	}
	return n
}

// Duration returns the wall time of the cycle.
func (r Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}
