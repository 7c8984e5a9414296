package store

import (
	"context"
	"fmt"
)

// =============================================================================
// Schema Migration
// =============================================================================

// migrate creates the statistics tables.
//
// This is idempotent - safe to run on every start.
func (s *Store) migrate(ctx context.Context) error {
	float := s.dialect.floatType

	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "statistics_meta",
			sql: `CREATE TABLE IF NOT EXISTS statistics_meta (
				series_id      TEXT PRIMARY KEY,
				name           TEXT NOT NULL,
				unit           TEXT NOT NULL,
				source         TEXT NOT NULL,
				obis_code      TEXT NOT NULL,
				metering_point TEXT NOT NULL,
				has_mean       BOOLEAN NOT NULL,
				has_sum        BOOLEAN NOT NULL,
				updated_at     BIGINT NOT NULL
			)`,
		},
		{
			name: "statistics",
			sql: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS statistics (
				series_id    TEXT NOT NULL,
				period_start BIGINT NOT NULL,
				mean         %[1]s NOT NULL,
				min          %[1]s NOT NULL,
				max          %[1]s NOT NULL,
				sample_count BIGINT NOT NULL,
				sum          %[1]s,
				p50          %[1]s,
				p90          %[1]s,
				p95          %[1]s,
				p99          %[1]s,
				PRIMARY KEY (series_id, period_start)
			)`, float),
		},
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		log.Debug("migration applied", "name", m.name)
	}

	return nil
}
