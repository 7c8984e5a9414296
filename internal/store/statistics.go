package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/series"
)

// SeriesInfo summarizes one stored series.
type SeriesInfo struct {
	series.Meta
	Records   int64
	First     time.Time
	Last      time.Time
	UpdatedAt time.Time
}

// =============================================================================
// Reads
// =============================================================================

// ReadLast returns the last persisted period and running total of a series.
// A series without records yields HasHistory=false and no error.
func (s *Store) ReadLast(ctx context.Context, seriesID string) (series.ResumeState, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		periodStart int64
		sum         sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT period_start, sum
		FROM statistics
		WHERE series_id = ?
		ORDER BY period_start DESC
		LIMIT 1
	`), seriesID).Scan(&periodStart, &sum)

	if err == sql.ErrNoRows {
		return series.ResumeState{}, nil
	}
	if err != nil {
		return series.ResumeState{}, dbErr("read last", err)
	}

	return series.ResumeState{
		LastPeriodStart: time.Unix(periodStart, 0).UTC(),
		LastSum:         sum.Float64,
		HasHistory:      true,
	}, nil
}

// Records returns the records of a series with from <= period_start < to,
// ordered by period. A zero to means no upper bound.
func (s *Store) Records(ctx context.Context, seriesID string, from, to time.Time) ([]series.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT period_start, mean, min, max, sample_count, sum, p50, p90, p95, p99
		FROM statistics
		WHERE series_id = ? AND period_start >= ?`
	args := []interface{}{seriesID, from.Unix()}
	if !to.IsZero() {
		query += ` AND period_start < ?`
		args = append(args, to.Unix())
	}
	query += ` ORDER BY period_start`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, dbErr("query records", err)
	}
	defer rows.Close()

	var out []series.Record
	for rows.Next() {
		var (
			rec                     series.Record
			periodStart             int64
			sum, p50, p90, p95, p99 sql.NullFloat64
		)
		if err := rows.Scan(&periodStart, &rec.Mean, &rec.Min, &rec.Max, &rec.Count, &sum, &p50, &p90, &p95, &p99); err != nil {
			return nil, dbErr("scan record", err)
		}
		rec.PeriodStart = time.Unix(periodStart, 0).UTC()
		rec.Sum = nullable(sum)
		rec.P50 = nullable(p50)
		rec.P90 = nullable(p90)
		rec.P95 = nullable(p95)
		rec.P99 = nullable(p99)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("iterate records", err)
	}
	return out, nil
}

// Meta returns the metadata of a series.
func (s *Store) Meta(ctx context.Context, seriesID string) (series.Meta, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var m series.Meta
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT series_id, name, unit, source, obis_code, metering_point, has_mean, has_sum
		FROM statistics_meta
		WHERE series_id = ?
	`), seriesID).Scan(&m.ID, &m.Name, &m.Unit, &m.Source, &m.OBISCode, &m.MeteringPoint, &m.HasMean, &m.HasSum)

	if err == sql.ErrNoRows {
		return series.Meta{}, errors.Wrapf(errors.ErrSeriesNotFound, "%q", seriesID)
	}
	if err != nil {
		return series.Meta{}, dbErr("read meta", err)
	}
	return m, nil
}

// ListSeries returns all known series ordered by ID.
func (s *Store) ListSeries(ctx context.Context) ([]SeriesInfo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.series_id, m.name, m.unit, m.source, m.obis_code, m.metering_point,
		       m.has_mean, m.has_sum, m.updated_at,
		       COUNT(st.period_start), MIN(st.period_start), MAX(st.period_start)
		FROM statistics_meta m
		LEFT JOIN statistics st ON st.series_id = m.series_id
		GROUP BY m.series_id, m.name, m.unit, m.source, m.obis_code, m.metering_point,
		         m.has_mean, m.has_sum, m.updated_at
		ORDER BY m.series_id
	`)
	if err != nil {
		return nil, dbErr("list series", err)
	}
	defer rows.Close()

	var out []SeriesInfo
	for rows.Next() {
		var (
			info        SeriesInfo
			updatedAt   int64
			first, last sql.NullInt64
		)
		if err := rows.Scan(&info.ID, &info.Name, &info.Unit, &info.Source, &info.OBISCode, &info.MeteringPoint,
			&info.HasMean, &info.HasSum, &updatedAt, &info.Records, &first, &last); err != nil {
			return nil, dbErr("scan series", err)
		}
		info.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		if first.Valid {
			info.First = time.Unix(first.Int64, 0).UTC()
		}
		if last.Valid {
			info.Last = time.Unix(last.Int64, 0).UTC()
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("iterate series", err)
	}
	return out, nil
}

// =============================================================================
// Writes
// =============================================================================

// Write upserts the series metadata and records in one transaction.
// Either every record is stored or none is.
func (s *Store) Write(ctx context.Context, meta series.Meta, records []series.Record) error {
	if meta.ID == "" {
		return errors.NewMissingField("series id")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.TransactionContext(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO statistics_meta (series_id, name, unit, source, obis_code, metering_point, has_mean, has_sum, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (series_id) DO UPDATE SET
				name = excluded.name,
				unit = excluded.unit,
				source = excluded.source,
				obis_code = excluded.obis_code,
				metering_point = excluded.metering_point,
				has_mean = excluded.has_mean,
				has_sum = excluded.has_sum,
				updated_at = excluded.updated_at
		`), meta.ID, meta.Name, meta.Unit, meta.Source, meta.OBISCode, meta.MeteringPoint,
			meta.HasMean, meta.HasSum, time.Now().Unix())
		if err != nil {
			return dbErr("upsert meta", err)
		}

		if len(records) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, s.q(`
			INSERT INTO statistics (series_id, period_start, mean, min, max, sample_count, sum, p50, p90, p95, p99)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (series_id, period_start) DO UPDATE SET
				mean = excluded.mean,
				min = excluded.min,
				max = excluded.max,
				sample_count = excluded.sample_count,
				sum = excluded.sum,
				p50 = excluded.p50,
				p90 = excluded.p90,
				p95 = excluded.p95,
				p99 = excluded.p99
		`))
		if err != nil {
			return dbErr("prepare upsert", err)
		}
		defer stmt.Close()

		for _, r := range records {
			if _, err := stmt.ExecContext(ctx,
				meta.ID, r.PeriodStart.Unix(), r.Mean, r.Min, r.Max, r.Count,
				nullArg(r.Sum), nullArg(r.P50), nullArg(r.P90), nullArg(r.P95), nullArg(r.P99),
			); err != nil {
				return dbErr("upsert record", err)
			}
		}
		return nil
	})
}

// DeleteSeries removes a series and its records.
func (s *Store) DeleteSeries(ctx context.Context, seriesID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.TransactionContext(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM statistics WHERE series_id = ?`), seriesID); err != nil {
			return dbErr("delete records", err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM statistics_meta WHERE series_id = ?`), seriesID); err != nil {
			return dbErr("delete meta", err)
		}
		return nil
	})
}

func nullArg(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
