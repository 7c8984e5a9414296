// Package archive keeps a Parquet copy of every emitted batch.
//
// Each cycle writes two files per series under the archive directory:
//
//	samples/<series>/<date>/<cycle>.parquet   raw samples the view used
//	records/<series>/<date>/<cycle>.parquet   records written to the store
//
// The archive is best-effort output. It is written after the store commit
// and never feeds back into the pipeline.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xtxerr/lenedastat/internal/logging"
	"github.com/xtxerr/lenedastat/internal/parquet"
	"github.com/xtxerr/lenedastat/internal/series"
)

var log = logging.Component("archive")

// Config holds archive settings.
type Config struct {
	Dir         string
	Compression string
}

// Archive writes batches to Parquet files.
type Archive struct {
	dir  string
	opts parquet.Options
	now  func() time.Time
}

// New creates an archive rooted at cfg.Dir.
func New(cfg Config) (*Archive, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("archive dir is empty")
	}
	codec, err := parquet.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Archive{
		dir:  cfg.Dir,
		opts: parquet.Options{Compression: codec},
		now:  time.Now,
	}, nil
}

// Name identifies the sink in logs and metrics.
func (a *Archive) Name() string {
	return "archive"
}

// Emit writes the samples and records of b.
func (a *Archive) Emit(ctx context.Context, b series.Batch) error {
	if b.Empty() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	date := a.now().UTC().Format("2006-01-02")
	name := fileName(b.CycleID) + ".parquet"
	dir := fileName(b.Meta.ID)

	if len(b.Samples) > 0 {
		rows := make([]parquet.SampleRow, len(b.Samples))
		for i, s := range b.Samples {
			rows[i] = parquet.SampleToRow(b.Meta.MeteringPoint, b.Meta.OBISCode, b.Feed, s)
		}
		path := filepath.Join(a.dir, "samples", dir, date, name)
		if err := parquet.WriteFile(path, rows, a.opts); err != nil {
			return fmt.Errorf("archive samples: %w", err)
		}
	}

	path := filepath.Join(a.dir, "records", dir, date, name)
	if err := parquet.WriteFile(path, parquet.RecordsToRows(b.Meta.ID, b.Records), a.opts); err != nil {
		return fmt.Errorf("archive records: %w", err)
	}

	log.Debug("batch archived", "series_id", b.Meta.ID, "records", len(b.Records), "samples", len(b.Samples))
	return nil
}

// Close is a no-op; files are closed after each batch.
func (a *Archive) Close() error {
	return nil
}

// RecordFiles lists the archived record files of a series, oldest first.
func (a *Archive) RecordFiles(seriesID string) ([]string, error) {
	root := filepath.Join(a.dir, "records", fileName(seriesID))
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".parquet") {
			files = append(files, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// fileName makes an identifier safe for use as a path element.
func fileName(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\', ' ':
			return '_'
		}
		return r
	}, id)
}
