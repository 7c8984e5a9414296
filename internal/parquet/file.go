package parquet

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/lenedastat/internal/errors"
)

// Compression names a page compression codec.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionSnappy Compression = "snappy"
	CompressionZstd   Compression = "zstd"
	CompressionLZ4    Compression = "lz4"
	CompressionGzip   Compression = "gzip"
)

var codecs = map[Compression]compress.Codec{
	CompressionNone:   &parquet.Uncompressed,
	CompressionSnappy: &parquet.Snappy,
	CompressionZstd:   &parquet.Zstd,
	CompressionLZ4:    &parquet.Lz4Raw,
	CompressionGzip:   &parquet.Gzip,
}

// ParseCompression accepts a codec name case-insensitively. An empty name
// means no compression.
func ParseCompression(s string) (Compression, error) {
	c := Compression(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CompressionNone, nil
	}
	if _, ok := codecs[c]; !ok {
		return "", errors.NewInvalidValue("compression", s, "expected none, snappy, zstd, lz4 or gzip")
	}
	return c, nil
}

// Options configures WriteFile.
type Options struct {
	Compression Compression

	// RowGroupSize caps rows per row group. 0 uses the library default.
	RowGroupSize int64
}

// DefaultOptions compresses with zstd.
func DefaultOptions() Options {
	return Options{Compression: CompressionZstd}
}

func (o Options) writerOptions() []parquet.WriterOption {
	codec, ok := codecs[o.Compression]
	if !ok {
		codec = codecs[CompressionZstd]
	}
	opts := []parquet.WriterOption{parquet.Compression(codec)}
	if o.RowGroupSize > 0 {
		opts = append(opts, parquet.MaxRowsPerRowGroup(o.RowGroupSize))
	}
	return opts
}

// WriteFile writes rows to path, creating missing directories. An existing
// file at path is replaced.
func WriteFile[T any](path string, rows []T, opts Options) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	w := parquet.NewGenericWriter[T](f, opts.writerOptions()...)
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// readBatch is the number of rows decoded per call into the reader.
const readBatch = 1024

// ReadFile returns every row of the file at path.
func ReadFile[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	r := parquet.NewGenericReader[T](f)
	defer r.Close()

	out := make([]T, 0, r.NumRows())
	buf := make([]T, readBatch)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if n == 0 {
			return out, nil
		}
	}
}
