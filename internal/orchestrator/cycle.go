package orchestrator

import (
	"iter"
	"time"

	"github.com/xtxerr/lenedastat/config"
	"github.com/xtxerr/lenedastat/internal/aggregate"
	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/leneda"
	"github.com/xtxerr/lenedastat/internal/obis"
	"github.com/xtxerr/lenedastat/internal/planner"
	"github.com/xtxerr/lenedastat/internal/series"
)

// ViewConfig selects one derived series.
type ViewConfig struct {
	Kind series.Kind
	Feed leneda.Feed

	// Power view
	Percentiles        bool
	PercentileAccuracy float64

	// Energy view
	MinSamples int
}

// Cycle is the immutable input of one update cycle.
type Cycle struct {
	MeteringPoint    string
	OBISCode         string
	Views            []ViewConfig
	Granularity      time.Duration
	InitialLookback  time.Duration
	Planner          planner.Planner
	FetchConcurrency int

	// Now is the end of the retrieval range. Zero means time.Now.
	Now time.Time
}

// DefaultCycle returns a cycle with both views on their default feeds.
func DefaultCycle(meteringPoint string) Cycle {
	return Cycle{
		MeteringPoint: meteringPoint,
		OBISCode:      config.DefaultOBISCode,
		Views: []ViewConfig{
			{Kind: series.KindMean, Feed: leneda.FeedQuarterHour, PercentileAccuracy: config.DefaultPercentileAccuracy},
			{Kind: series.KindCumulative, Feed: leneda.FeedHourly, MinSamples: config.DefaultMinSamplesPerBucket},
		},
		Granularity:      config.DefaultGranularity,
		InitialLookback:  config.DefaultInitialLookbackDays * 24 * time.Hour,
		Planner:          planner.Default(),
		FetchConcurrency: config.DefaultFetchConcurrency,
	}
}

// Validate checks the cycle before it runs.
func (c Cycle) Validate() error {
	errs := errors.NewValidationErrors()

	if c.MeteringPoint == "" {
		errs.AddMissing("metering_point")
	}
	if c.OBISCode == "" {
		errs.AddMissing("obis_code")
	} else if !obis.Known(c.OBISCode) {
		errs.AddField("obis_code", "unknown OBIS code "+c.OBISCode)
	}
	if len(c.Views) == 0 {
		errs.AddField("views", "at least one view is required")
	}
	if c.Granularity < time.Second {
		errs.AddField("granularity", "must be at least one second")
	}
	if c.InitialLookback <= 0 {
		errs.AddField("initial_lookback", "must be positive")
	}
	if c.Planner.MaxDaysPerRequest <= 0 {
		errs.AddField("max_days_per_request", "must be positive")
	}

	seen := make(map[series.Kind]bool)
	for _, v := range c.Views {
		if seen[v.Kind] {
			errs.AddField("views", "duplicate view "+v.Kind.String())
		}
		seen[v.Kind] = true
	}

	return errs.Err()
}

func (c Cycle) now() time.Time {
	if c.Now.IsZero() {
		return time.Now().UTC()
	}
	return c.Now.UTC()
}

// key identifies cycles that overlapping triggers may share.
func (c Cycle) key() string {
	return c.MeteringPoint + "|" + c.OBISCode
}

func (c Cycle) concurrency() int {
	if c.FetchConcurrency < 1 {
		return 1
	}
	return c.FetchConcurrency
}

// Meta returns the store metadata of a view.
func (c Cycle) Meta(kind series.Kind) series.Meta {
	code, _ := obis.Lookup(c.OBISCode)

	meta := series.Meta{
		ID:            series.ID(c.MeteringPoint, c.OBISCode, kind),
		Source:        config.SeriesSource,
		OBISCode:      c.OBISCode,
		MeteringPoint: c.MeteringPoint,
		HasMean:       true,
	}
	switch kind {
	case series.KindCumulative:
		meta.Name = code.AggregatedName
		meta.Unit = code.AggregatedUnit
		meta.HasSum = true
	default:
		meta.Name = code.Name
		meta.Unit = code.Unit
	}
	return meta
}

// aggregator splits a view into its bucketing and aggregating phases.
type aggregator interface {
	Group(samples []series.Sample) iter.Seq2[time.Time, series.Bucket]
	Reduce(buckets iter.Seq2[time.Time, series.Bucket], seed float64) []series.Record
}

// meanAggregator ignores the seed; the mean view carries no running total.
type meanAggregator struct {
	aggregate.Mean
}

func (m meanAggregator) Reduce(buckets iter.Seq2[time.Time, series.Bucket], _ float64) []series.Record {
	return m.Mean.Reduce(buckets)
}

func (v ViewConfig) aggregator(granularity time.Duration) aggregator {
	if v.Kind == series.KindCumulative {
		return aggregate.Cumulative{Granularity: granularity, MinSamples: v.MinSamples}
	}
	return meanAggregator{aggregate.Mean{
		Granularity: granularity,
		Percentiles: v.Percentiles,
		Accuracy:    v.PercentileAccuracy,
	}}
}
