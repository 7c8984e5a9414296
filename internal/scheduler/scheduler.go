// Package scheduler triggers update cycles.
//
// The scheduler owns no cycle logic. It calls a RunFunc on a fixed interval,
// optionally right after start, and whenever Trigger is called. At most one
// run is in flight; triggers that arrive while a run is active coalesce into
// a single follow-up run.
//
// Key features:
//   - Jitter on every scheduled run to spread load on the upstream API
//   - Manual trigger with coalescing
//   - Panic recovery around each run
//   - Graceful shutdown with drain timeout
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/lenedastat/config"
	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/logging"
)

var log = logging.Component("scheduler")

// =============================================================================
// Scheduler Configuration
// =============================================================================

// RunFunc executes one update cycle.
type RunFunc func(ctx context.Context) error

// Config holds scheduler configuration.
type Config struct {
	// Interval is the time between two scheduled runs.
	Interval time.Duration

	// Jitter adds a random delay in [0, Jitter) to every scheduled run.
	Jitter time.Duration

	// RunOnStart triggers a run right after Start.
	RunOnStart bool

	// DrainTimeout is how long Stop waits for an in-flight run before
	// cancelling it.
	// Similar to Kubernetes terminationGracePeriodSeconds.
	DrainTimeout time.Duration
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:     config.DefaultPollInterval,
		Jitter:       config.DefaultPollJitter,
		RunOnStart:   true,
		DrainTimeout: time.Duration(config.DefaultDrainTimeoutSec) * time.Second,
	}
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Runs      int64
	Failures  int64
	Triggered int64
	Running   bool
	LastRun   time.Time
	LastError string
	NextRun   time.Time
}

// =============================================================================
// Scheduler
// =============================================================================

// Scheduler runs a RunFunc periodically.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	run RunFunc
	cfg Config

	trigger  chan struct{}
	shutdown chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
	cancel   context.CancelFunc

	running   atomic.Bool
	runs      atomic.Int64
	failures  atomic.Int64
	triggered atomic.Int64

	mu        sync.Mutex
	lastRun   time.Time
	lastError string
	nextRun   time.Time
}

// New creates a new Scheduler.
func New(cfg *Config, run RunFunc) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Scheduler{
		run:      run,
		cfg:      *cfg,
		trigger:  make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start starts the scheduler loop. Runs receive a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.run == nil {
		return errors.NewMissingField("run function")
	}
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("interval %s: %w", s.cfg.Interval, errors.ErrInvalidInterval)
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.loop(runCtx)

	log.Info("scheduler started",
		"interval", s.cfg.Interval,
		"jitter", s.cfg.Jitter,
		"run_on_start", s.cfg.RunOnStart)
	return nil
}

// Stop stops the scheduler gracefully, waiting for an in-flight run.
// Uses the configured drain timeout.
func (s *Scheduler) Stop() {
	s.StopWithContext(context.Background())
}

// StopWithContext stops the scheduler with a custom context.
// The drain timeout from config is still respected as a maximum. A run
// still active after the drain timeout is cancelled.
func (s *Scheduler) StopWithContext(ctx context.Context) {
	if !s.started.Load() {
		return
	}

	s.stopOnce.Do(func() {
		log.Info("scheduler stopping")
		close(s.shutdown)

		drain := s.cfg.DrainTimeout
		if drain <= 0 {
			drain = time.Duration(config.DefaultDrainTimeoutSec) * time.Second
		}
		drainCtx, cancel := context.WithTimeout(ctx, drain)
		defer cancel()

		select {
		case <-s.done:
			log.Info("scheduler stopped gracefully")
		case <-drainCtx.Done():
			log.Warn("scheduler drain timeout, cancelling run", "running", s.running.Load())
			s.cancel()
			<-s.done
		}
		s.cancel()
	})
}

// Trigger requests an immediate run. It returns false if a triggered run is
// already pending or the scheduler is stopped.
func (s *Scheduler) Trigger() bool {
	select {
	case <-s.shutdown:
		return false
	default:
	}

	select {
	case s.trigger <- struct{}{}:
		s.triggered.Add(1)
		return true
	default:
		return false
	}
}

// Stats returns scheduler statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Runs:      s.runs.Load(),
		Failures:  s.failures.Load(),
		Triggered: s.triggered.Load(),
		Running:   s.running.Load(),
		LastRun:   s.lastRun,
		LastError: s.lastError,
		NextRun:   s.nextRun,
	}
}

// =============================================================================
// Schedule Loop
// =============================================================================

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	first := s.delay()
	if s.cfg.RunOnStart {
		first = 0
	}
	timer := time.NewTimer(first)
	defer timer.Stop()
	s.setNext(first)

	for {
		select {
		case <-timer.C:
			s.execute(ctx)
		case <-s.trigger:
			s.execute(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-s.shutdown:
			return
		case <-ctx.Done():
			return
		}

		next := s.delay()
		timer.Reset(next)
		s.setNext(next)
	}
}

// delay returns the interval plus a random jitter.
func (s *Scheduler) delay() time.Duration {
	d := s.cfg.Interval
	if s.cfg.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(s.cfg.Jitter)))
	}
	return d
}

func (s *Scheduler) setNext(d time.Duration) {
	s.mu.Lock()
	s.nextRun = time.Now().Add(d)
	s.mu.Unlock()
}

// execute runs once with panic recovery.
func (s *Scheduler) execute(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.running.Store(true)
	started := time.Now()

	var err error
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in run", "panic", r)
			err = fmt.Errorf("%w: panic: %v", errors.ErrInternal, r)
		}

		s.running.Store(false)
		s.runs.Add(1)

		s.mu.Lock()
		s.lastRun = started
		s.lastError = ""
		if err != nil {
			s.lastError = err.Error()
		}
		s.mu.Unlock()

		if err != nil {
			s.failures.Add(1)
			log.Warn("run failed", "duration", time.Since(started), "error", err)
		} else {
			log.Debug("run finished", "duration", time.Since(started))
		}
	}()

	err = s.run(ctx)
}
