// Package publish fans emitted records out to message brokers.
//
// Publishing happens after the store commit and is best-effort: a failed
// publish is logged and counted by the caller but never undoes the write.
// Consumers must tolerate duplicates; a record is identified by
// (series_id, period_start).
package publish

import (
	"encoding/json"
	"time"

	"github.com/xtxerr/lenedastat/internal/series"
)

// Message is the JSON payload of one published record.
type Message struct {
	SeriesID      string    `json:"series_id"`
	Name          string    `json:"name"`
	Unit          string    `json:"unit"`
	OBISCode      string    `json:"obis_code"`
	MeteringPoint string    `json:"metering_point"`
	CycleID       string    `json:"cycle_id,omitempty"`
	PeriodStart   time.Time `json:"period_start"`
	State         float64   `json:"state"`
	Mean          float64   `json:"mean"`
	Min           float64   `json:"min"`
	Max           float64   `json:"max"`
	Count         int64     `json:"count"`
	Sum           *float64  `json:"sum,omitempty"`
}

// NewMessage builds the payload of one record of a batch.
func NewMessage(b series.Batch, r series.Record) Message {
	return Message{
		SeriesID:      b.Meta.ID,
		Name:          b.Meta.Name,
		Unit:          b.Meta.Unit,
		OBISCode:      b.Meta.OBISCode,
		MeteringPoint: b.Meta.MeteringPoint,
		CycleID:       b.CycleID,
		PeriodStart:   r.PeriodStart.UTC(),
		State:         r.State(),
		Mean:          r.Mean,
		Min:           r.Min,
		Max:           r.Max,
		Count:         r.Count,
		Sum:           r.Sum,
	}
}

// Encode returns the JSON encoding of m.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
