package parquet

import (
	"time"

	"github.com/xtxerr/lenedastat/internal/series"
)

// SampleRow represents a raw sample in Parquet format.
type SampleRow struct {
	MeteringPoint string  `parquet:"metering_point,dict"`
	OBISCode      string  `parquet:"obis_code,dict"`
	Feed          string  `parquet:"feed,dict"`
	Timestamp     int64   `parquet:"timestamp"`
	Value         float64 `parquet:"value"`
}

// RecordRow represents a statistic record in Parquet format.
type RecordRow struct {
	SeriesID    string   `parquet:"series_id,dict"`
	PeriodStart int64    `parquet:"period_start"`
	Mean        float64  `parquet:"mean"`
	Min         float64  `parquet:"min"`
	Max         float64  `parquet:"max"`
	Count       int64    `parquet:"count"`
	Sum         *float64 `parquet:"sum,optional"`
	P50         *float64 `parquet:"p50,optional"`
	P90         *float64 `parquet:"p90,optional"`
	P95         *float64 `parquet:"p95,optional"`
	P99         *float64 `parquet:"p99,optional"`
}

// SampleToRow converts a Sample to a SampleRow.
func SampleToRow(meteringPoint, obisCode, feed string, s series.Sample) SampleRow {
	return SampleRow{
		MeteringPoint: meteringPoint,
		OBISCode:      obisCode,
		Feed:          feed,
		Timestamp:     s.Unix(),
		Value:         s.Value,
	}
}

// RowToSample converts a SampleRow to a Sample.
func RowToSample(r SampleRow) series.Sample {
	return series.NewSample(time.Unix(r.Timestamp, 0), r.Value)
}

// RecordToRow converts a Record to a RecordRow.
func RecordToRow(seriesID string, r series.Record) RecordRow {
	return RecordRow{
		SeriesID:    seriesID,
		PeriodStart: r.PeriodStart.Unix(),
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

// RowToRecord converts a RecordRow to a Record.
func RowToRecord(r RecordRow) series.Record {
	return series.Record{
		PeriodStart: time.Unix(r.PeriodStart, 0).UTC(),
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

// RecordsToRows converts records of one series.
func RecordsToRows(seriesID string, records []series.Record) []RecordRow {
	rows := make([]RecordRow, len(records))
	for i, r := range records {
		rows[i] = RecordToRow(seriesID, r)
	}
	return rows
}
