// Package store persists statistic series for the lenedastat application.
//
// Two tables hold the data: statistics_meta describes each series and
// statistics holds one row per series and period. Writes are upserts keyed
// by (series_id, period_start), so re-submitting a period overwrites it.
// DuckDB is the default engine; SQLite and PostgreSQL are supported through
// the same database/sql interface.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite"

	"github.com/xtxerr/lenedastat/config"
	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/logging"
)

var log = logging.Component("store")

// =============================================================================
// Dialects
// =============================================================================

// Supported drivers.
const (
	DriverDuckDB   = "duckdb"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type dialect struct {
	driver     string
	floatType  string
	dollarArgs bool
}

var dialects = map[string]dialect{
	DriverDuckDB:   {driver: "duckdb", floatType: "DOUBLE"},
	DriverSQLite:   {driver: "sqlite", floatType: "REAL"},
	DriverPostgres: {driver: "postgres", floatType: "DOUBLE PRECISION", dollarArgs: true},
}

// Drivers returns the supported driver names.
func Drivers() []string {
	return []string{DriverDuckDB, DriverSQLite, DriverPostgres}
}

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// Driver is one of duckdb, sqlite or postgres.
	Driver string

	// DSN is the database connection string.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration

	// QueryTimeout is applied to calls whose context has no deadline.
	QueryTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:          config.DefaultStoreDriver,
		DSN:             config.DefaultStoreDSN,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		QueryTimeout:    config.DefaultStoreQueryTimeout,
	}
}

// =============================================================================
// Store
// =============================================================================

// Store provides statistics persistence.
//
// Store is safe for concurrent use.
type Store struct {
	db      *sql.DB
	config  Config
	dialect dialect
	mu      sync.RWMutex
	closed  bool
}

// New opens the database, verifies the connection and applies the schema.
func New(cfg Config) (*Store, error) {
	d, ok := dialects[strings.ToLower(cfg.Driver)]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnsupportedDriver, "%q", cfg.Driver)
	}

	db, err := sql.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		db:      db,
		config:  cfg,
		dialect: d,
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("store opened", "driver", d.driver)
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// DB returns the underlying database connection.
// Use with caution - prefer using Store methods.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the configured driver name.
func (s *Store) Driver() string {
	return s.dialect.driver
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.config.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.QueryTimeout)
}

// q rewrites a query written with ? placeholders for the active dialect.
func (s *Store) q(query string) string {
	if !s.dialect.dollarArgs {
		return query
	}
	return Rebind(query)
}

// Rebind replaces ? placeholders with $1, $2, ... outside of quoted
// literals and identifiers.
func Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func dbErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, errors.ErrDatabase, err)
}

// =============================================================================
// Transaction Support
// =============================================================================

// TransactionContext executes a function within a database transaction.
//
// If the function returns an error, the transaction is rolled back.
// If the function returns nil, the transaction is committed.
func (s *Store) TransactionContext(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// =============================================================================
// Health Check
// =============================================================================

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return errors.ErrClosed
	}
	return s.db.PingContext(ctx)
}
