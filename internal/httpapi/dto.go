package httpapi

import (
	"time"

	"github.com/xtxerr/lenedastat/internal/orchestrator"
	"github.com/xtxerr/lenedastat/internal/scheduler"
	"github.com/xtxerr/lenedastat/internal/series"
	"github.com/xtxerr/lenedastat/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

type seriesInfo struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Unit          string     `json:"unit"`
	Source        string     `json:"source"`
	OBISCode      string     `json:"obis_code"`
	MeteringPoint string     `json:"metering_point"`
	HasMean       bool       `json:"has_mean"`
	HasSum        bool       `json:"has_sum"`
	Records       int64      `json:"records"`
	First         *time.Time `json:"first,omitempty"`
	Last          *time.Time `json:"last,omitempty"`
}

func newSeriesInfo(info store.SeriesInfo) seriesInfo {
	out := seriesInfo{
		ID:            info.ID,
		Name:          info.Name,
		Unit:          info.Unit,
		Source:        info.Source,
		OBISCode:      info.OBISCode,
		MeteringPoint: info.MeteringPoint,
		HasMean:       info.HasMean,
		HasSum:        info.HasSum,
		Records:       info.Records,
	}
	if info.Records > 0 {
		first, last := info.First.UTC(), info.Last.UTC()
		out.First = &first
		out.Last = &last
	}
	return out
}

type record struct {
	PeriodStart time.Time `json:"period_start"`
	Mean        float64   `json:"mean"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Count       int64     `json:"count"`
	Sum         *float64  `json:"sum,omitempty"`
	P50         *float64  `json:"p50,omitempty"`
	P90         *float64  `json:"p90,omitempty"`
	P95         *float64  `json:"p95,omitempty"`
	P99         *float64  `json:"p99,omitempty"`
}

func newRecord(r series.Record) record {
	return record{
		PeriodStart: r.PeriodStart.UTC(),
		Mean:        r.Mean,
		Min:         r.Min,
		Max:         r.Max,
		Count:       r.Count,
		Sum:         r.Sum,
		P50:         r.P50,
		P90:         r.P90,
		P95:         r.P95,
		P99:         r.P99,
	}
}

type lastResponse struct {
	SeriesID    string    `json:"series_id"`
	Unit        string    `json:"unit"`
	PeriodStart time.Time `json:"period_start"`
	Sum         *float64  `json:"sum,omitempty"`
}

type recordsResponse struct {
	SeriesID string    `json:"series_id"`
	Unit     string    `json:"unit"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Records  []record  `json:"records"`
}

type refreshResponse struct {
	Triggered bool `json:"triggered"`
}

type viewStatus struct {
	SeriesID     string    `json:"series_id"`
	Kind         string    `json:"kind"`
	Feed         string    `json:"feed"`
	Since        time.Time `json:"since"`
	Chunks       int       `json:"chunks"`
	ChunksFailed int       `json:"chunks_failed"`
	Fetched      int       `json:"fetched"`
	Dropped      int       `json:"dropped"`
	Excluded     int       `json:"excluded"`
	Pending      int       `json:"pending"`
	Records      int       `json:"records"`
	Written      bool      `json:"written"`
	SinkErrors   int       `json:"sink_errors"`
	Error        string    `json:"error,omitempty"`
}

type cycleStatus struct {
	CycleID  string       `json:"cycle_id"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Views    []viewStatus `json:"views"`
}

type schedulerStatus struct {
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	Triggered int64     `json:"triggered"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run"`
}

type statusResponse struct {
	Active    map[string]string `json:"active"`
	LastCycle *cycleStatus      `json:"last_cycle,omitempty"`
	Scheduler *schedulerStatus  `json:"scheduler,omitempty"`
}

func newCycleStatus(r orchestrator.Report) *cycleStatus {
	out := &cycleStatus{
		CycleID:  r.CycleID,
		Started:  r.Started,
		Finished: r.Finished,
		Views:    make([]viewStatus, 0, len(r.Views)),
	}
	for _, v := range r.Views {
		vs := viewStatus{
			SeriesID:     v.SeriesID,
			Kind:         v.Kind.String(),
			Feed:         v.Feed,
			Since:        v.Since,
			Chunks:       v.Chunks,
			ChunksFailed: v.ChunksFailed,
			Fetched:      v.Fetched,
			Dropped:      v.Dropped,
			Excluded:     v.Excluded,
			Pending:      v.Pending,
			Records:      v.Records,
			Written:      v.Written,
			SinkErrors:   v.SinkErrors,
		}
		if v.Err != nil {
			vs.Error = v.Err.Error()
		}
		out.Views = append(out.Views, vs)
	}
	return out
}

func newSchedulerStatus(s scheduler.Stats) *schedulerStatus {
	return &schedulerStatus{
		Runs:      s.Runs,
		Failures:  s.Failures,
		Triggered: s.Triggered,
		Running:   s.Running,
		LastRun:   s.LastRun,
		LastError: s.LastError,
		NextRun:   s.NextRun,
	}
}
