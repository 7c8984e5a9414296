// Package orchestrator runs update cycles.
//
// A cycle resolves where each view resumes, plans the retrieval range, fetches
// the chunks, buckets and aggregates the samples and writes the records. Each
// view walks the same state machine:
//
//	Idle -> RangeDetermined -> Fetching -> Bucketing -> Aggregating -> Emitting -> Idle
//
// Every phase may fall back to Idle. The store write is the only side effect
// of the core path. Sinks run after a successful write and their failures are
// logged and counted without affecting the cycle outcome.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/lenedastat/internal/bucket"
	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/leneda"
	"github.com/xtxerr/lenedastat/internal/logging"
	"github.com/xtxerr/lenedastat/internal/metrics"
	"github.com/xtxerr/lenedastat/internal/planner"
	"github.com/xtxerr/lenedastat/internal/resume"
	"github.com/xtxerr/lenedastat/internal/series"
)

var log = logging.Component("orchestrator")

// =============================================================================
// Collaborators
// =============================================================================

// Fetcher retrieves one chunk of a feed. Failures are reported in the
// Result, never as a panic or a partial sample list.
type Fetcher interface {
	Fetch(ctx context.Context, feed leneda.Feed, meteringPoint, obisCode string, chunk planner.Chunk) leneda.Result
}

// Store persists statistics and reports where a series ends.
type Store interface {
	resume.StateReader
	Write(ctx context.Context, meta series.Meta, records []series.Record) error
}

// Sink receives every successfully written batch.
type Sink interface {
	Name() string
	Emit(ctx context.Context, b series.Batch) error
	Close() error
}

// =============================================================================
// Orchestrator
// =============================================================================

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSinks adds sinks that receive each written batch.
func WithSinks(sinks ...Sink) Option {
	return func(o *Orchestrator) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// WithMetrics records cycle metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator runs cycles for one metering point at a time.
//
// Orchestrator is safe for concurrent use. Overlapping RunCycle calls for the
// same metering point share one execution.
type Orchestrator struct {
	fetcher Fetcher
	store   Store
	sinks   []Sink
	metrics *metrics.Metrics

	flight singleflight.Group

	mu     sync.Mutex
	active map[string]*machine // series ID -> running view
	last   *Report
}

// New creates an Orchestrator.
func New(fetcher Fetcher, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher: fetcher,
		store:   store,
		active:  make(map[string]*machine),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunCycle runs one update cycle for c and waits for it to finish.
//
// If a cycle for the same metering point and OBIS code is already running,
// the caller joins it and receives its report with Shared set. The returned error joins
// the per-view errors; a view that found no new data is not an error.
func (o *Orchestrator) RunCycle(ctx context.Context, c Cycle) (Report, error) {
	if err := c.Validate(); err != nil {
		return Report{}, err
	}

	v, err, shared := o.flight.Do(c.key(), func() (interface{}, error) {
		report := o.run(ctx, c)
		return report, report.Err()
	})
	if v == nil {
		return Report{}, err
	}

	report := v.(Report)
	report.Shared = shared
	return report, err
}

// Status returns the current state of every running view, keyed by series ID.
func (o *Orchestrator) Status() map[string]State {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]State, len(o.active))
	for id, m := range o.active {
		out[id] = m.current()
	}
	return out
}

// LastReport returns the report of the most recent finished cycle.
func (o *Orchestrator) LastReport() (Report, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.last == nil {
		return Report{}, false
	}
	return *o.last, true
}

// Close closes all sinks.
func (o *Orchestrator) Close() error {
	var errs []error
	for _, s := range o.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "close sink %s", s.Name()))
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// Cycle
// =============================================================================

func (o *Orchestrator) run(ctx context.Context, c Cycle) Report {
	report := Report{
		CycleID: uuid.NewString(),
		Started: time.Now().UTC(),
		Views:   make([]ViewReport, len(c.Views)),
	}
	ctx = logging.ContextWithCycleID(ctx, report.CycleID)
	now := c.now()

	logging.WithContext(ctx).Info("cycle started",
		"component", "orchestrator",
		"metering_point", c.MeteringPoint,
		"obis_code", c.OBISCode,
		"views", len(c.Views))

	// Views are independent: one failing view must not cancel the other.
	var g errgroup.Group
	for i, view := range c.Views {
		g.Go(func() error {
			report.Views[i] = o.runView(ctx, c, view, now, report.CycleID)
			return nil
		})
	}
	_ = g.Wait()

	report.Finished = time.Now().UTC()

	o.mu.Lock()
	last := report
	o.last = &last
	o.mu.Unlock()

	logging.WithContext(ctx).Info("cycle finished",
		"component", "orchestrator",
		"records", report.Records(),
		"duration", report.Duration(),
		"error", report.Err())

	return report
}

func (o *Orchestrator) runView(ctx context.Context, c Cycle, view ViewConfig, now time.Time, cycleID string) (rep ViewReport) {
	meta := c.Meta(view.Kind)
	ctx = logging.ContextWithSeriesID(ctx, meta.ID)
	vlog := logging.WithContext(ctx).With("component", "orchestrator", "view", view.Kind.String())

	rep = ViewReport{SeriesID: meta.ID, Kind: view.Kind, Feed: view.Feed.String()}
	started := time.Now()

	m := newMachine()
	o.track(meta.ID, m)

	defer func() {
		if r := recover(); r != nil {
			rep.Err = fmt.Errorf("%w: panic: %v", errors.ErrInternal, r)
			vlog.Error("panic in view", "panic", r)
		}
		m.reset()
		o.untrack(meta.ID)
		rep.States = m.path()
		rep.Duration = time.Since(started)
		o.metrics.Cycle(view.Kind.String(), outcome(rep), rep.Duration)
	}()

	// RangeDetermined
	cursor := resume.Cursor{
		Reader:          o.store,
		Granularity:     c.Granularity,
		InitialLookback: c.InitialLookback,
		Now:             func() time.Time { return now },
	}
	pos, err := cursor.Resolve(ctx, meta.ID)
	if err != nil {
		rep.Err = err
		vlog.Error("resolve resume position", "error", err)
		return rep
	}
	plan := c.Planner.Plan(pos.Since, now)
	rep.Since = plan.Start
	rep.Seed = pos.Seed
	rep.Days = plan.Days
	rep.Chunks = len(plan.Chunks)
	if rep.Err = m.transitionTo(StateRangeDetermined); rep.Err != nil {
		return rep
	}
	vlog.Debug("range determined",
		"since", plan.Start,
		"end", plan.End,
		"days", plan.Days,
		"chunks", len(plan.Chunks),
		"has_history", pos.State.HasHistory,
		"seed", pos.Seed)

	// Fetching
	if rep.Err = m.transitionTo(StateFetching); rep.Err != nil {
		return rep
	}
	samples := o.fetch(ctx, c, view, plan, &rep, vlog)
	if err := ctx.Err(); err != nil {
		rep.Err = err
		return rep
	}

	// Bucketing
	if rep.Err = m.transitionTo(StateBucketing); rep.Err != nil {
		return rep
	}
	if view.Kind == series.KindCumulative {
		kept := pos.Exclude(samples)
		rep.Excluded = len(samples) - len(kept)
		o.metrics.Excluded(view.Kind.String(), rep.Excluded)

		// An hour still open at now stays out of the running total until a
		// later cycle sees it closed.
		samples = bucket.Settled(kept, c.Granularity, now)
		rep.Pending = len(kept) - len(samples)
		if rep.Pending > 0 {
			vlog.Debug("open bucket deferred", "samples", rep.Pending)
		}
	}
	agg := view.aggregator(c.Granularity)
	buckets := agg.Group(samples)

	// Aggregating
	if rep.Err = m.transitionTo(StateAggregating); rep.Err != nil {
		return rep
	}
	records := agg.Reduce(buckets, pos.Seed)
	rep.Records = len(records)

	// Emitting
	if rep.Err = m.transitionTo(StateEmitting); rep.Err != nil {
		return rep
	}
	if err := ctx.Err(); err != nil {
		rep.Err = err
		return rep
	}
	if len(records) == 0 {
		vlog.Info("no new records", "fetched", rep.Fetched, "excluded", rep.Excluded, "pending", rep.Pending)
		return rep
	}
	if err := o.store.Write(ctx, meta, records); err != nil {
		rep.Err = err
		vlog.Error("write records", "records", len(records), "error", err)
		return rep
	}

	last := records[len(records)-1]
	rep.Written = true
	rep.LastPeriod = last.PeriodStart
	rep.LastSum = last.Sum
	o.metrics.Emitted(view.Kind.String(), meta.ID, len(records), last.PeriodStart, last.Sum)

	vlog.Info("records written",
		"records", len(records),
		"first", records[0].PeriodStart,
		"last", last.PeriodStart)

	rep.SinkErrors = o.emit(ctx, series.Batch{
		CycleID: cycleID,
		Meta:    meta,
		Kind:    view.Kind,
		Feed:    view.Feed.String(),
		Samples: samples,
		Records: records,
	}, vlog)

	return rep
}

// fetch retrieves all chunks of plan. Results are kept in plan order
// regardless of completion order. A failed chunk contributes no samples.
func (o *Orchestrator) fetch(ctx context.Context, c Cycle, view ViewConfig, plan planner.Plan, rep *ViewReport, vlog *slog.Logger) []series.Sample {
	slots := make([]leneda.Result, len(plan.Chunks))

	var g errgroup.Group
	g.SetLimit(c.concurrency())
	for i, chunk := range plan.Chunks {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slots[i] = leneda.Result{Err: fmt.Errorf("%w: panic: %v", errors.ErrInternal, r)}
					o.metrics.Chunk(view.Feed.String(), false, 0, 0, 0)
				}
			}()
			if err := ctx.Err(); err != nil {
				slots[i] = leneda.Result{Err: err}
				return nil
			}
			res := o.fetcher.Fetch(ctx, view.Feed, c.MeteringPoint, c.OBISCode, chunk)
			if !res.OK() {
				res.Samples = nil
			}
			slots[i] = res
			o.metrics.Chunk(view.Feed.String(), res.OK(), len(res.Samples), res.Dropped, res.Duration)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, res := range slots {
		total += len(res.Samples)
	}
	samples := make([]series.Sample, 0, total)

	for i, res := range slots {
		chunk := plan.Chunks[i]
		rep.Dropped += res.Dropped
		if !res.OK() {
			rep.ChunksFailed++
			vlog.Warn("chunk failed",
				"start", chunk.Start,
				"end", chunk.End,
				"status", res.Status,
				"error", res.Err)
			continue
		}
		if res.Dropped > 0 {
			vlog.Warn("records dropped", "start", chunk.Start, "dropped", res.Dropped)
		}
		vlog.Debug("chunk fetched",
			"start", chunk.Start,
			"end", chunk.End,
			"samples", len(res.Samples),
			"duration", res.Duration)
		samples = append(samples, res.Samples...)
	}
	rep.Fetched = len(samples)

	// Chunks are contiguous and in order; the sort only matters when the
	// API returns a chunk out of order.
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	return samples
}

// emit hands b to every sink and returns the number of failures.
func (o *Orchestrator) emit(ctx context.Context, b series.Batch, vlog *slog.Logger) int {
	failed := 0
	for _, s := range o.sinks {
		if err := s.Emit(ctx, b); err != nil {
			failed++
			o.metrics.SinkError(s.Name())
			vlog.Warn("sink failed", "sink", s.Name(), "records", len(b.Records), "error", err)
		}
	}
	return failed
}

func (o *Orchestrator) track(id string, m *machine) {
	o.mu.Lock()
	o.active[id] = m
	o.mu.Unlock()
}

func (o *Orchestrator) untrack(id string) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}

func outcome(rep ViewReport) string {
	switch {
	case rep.Err != nil:
		return metrics.OutcomeError
	case !rep.Written:
		return metrics.OutcomeEmpty
	default:
		return metrics.OutcomeOK
	}
}
