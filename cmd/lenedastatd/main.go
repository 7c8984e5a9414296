// lenedastatd polls the Leneda API and maintains the hourly statistic series.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtxerr/lenedastat/internal/archive"
	"github.com/xtxerr/lenedastat/internal/httpapi"
	"github.com/xtxerr/lenedastat/internal/leneda"
	"github.com/xtxerr/lenedastat/internal/loader"
	"github.com/xtxerr/lenedastat/internal/logging"
	"github.com/xtxerr/lenedastat/internal/metrics"
	"github.com/xtxerr/lenedastat/internal/orchestrator"
	"github.com/xtxerr/lenedastat/internal/publish"
	"github.com/xtxerr/lenedastat/internal/scheduler"
	"github.com/xtxerr/lenedastat/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lenedastatd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// CLI flags
	cfgPath := flag.String("config", "lenedastat.yaml", "config file path")
	once := flag.Bool("once", false, "run a single cycle and exit")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	watch := flag.Bool("watch", true, "reload the config file on change")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println(Version)
		return nil
	}

	// Load config
	cfg, err := loader.LoadAndValidate(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI overrides
	if *listen != "" {
		cfg.HTTP.Listen = *listen
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logging.Init(level, cfg.Log.JSON)
	log := logging.Component("main")
	log.Info("lenedastatd starting", "version", Version, "config", *cfgPath)

	// =========================================================================
	// Store
	// =========================================================================

	st, err := store.New(loader.ToStoreConfig(&cfg.Store))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	log.Info("store opened", "driver", st.Driver())

	// =========================================================================
	// Sinks
	// =========================================================================

	var sinks []orchestrator.Sink
	if ac := loader.ToArchiveConfig(&cfg.Archive); ac != nil {
		a, err := archive.New(*ac)
		if err != nil {
			return fmt.Errorf("create archive: %w", err)
		}
		sinks = append(sinks, a)
		log.Info("archive enabled", "dir", ac.Dir, "compression", ac.Compression)
	}
	if mc := loader.ToMQTTConfig(&cfg.Publish.MQTT); mc != nil {
		p, err := publish.NewMQTT(*mc)
		if err != nil {
			return fmt.Errorf("connect mqtt: %w", err)
		}
		sinks = append(sinks, p)
		log.Info("mqtt publisher enabled", "broker", mc.Broker, "prefix", mc.TopicPrefix)
	}
	if kc := loader.ToKafkaConfig(&cfg.Publish.Kafka); kc != nil {
		p, err := publish.NewKafka(*kc)
		if err != nil {
			return fmt.Errorf("create kafka writer: %w", err)
		}
		sinks = append(sinks, p)
		log.Info("kafka publisher enabled", "brokers", kc.Brokers, "topic", kc.Topic)
	}

	// =========================================================================
	// Orchestrator
	// =========================================================================

	m := metrics.New(nil)
	client := leneda.New(loader.ToClientConfig(&cfg.API), nil)
	orch := orchestrator.New(client, st, orchestrator.WithSinks(sinks...), orchestrator.WithMetrics(m))
	defer func() {
		if err := orch.Close(); err != nil {
			log.Warn("close sinks", "error", err)
		}
	}()

	// Each cycle is built from the newest valid config. Store, client and
	// sinks keep the settings they were started with.
	current := func() *loader.Config { return cfg }
	if *watch && !*once {
		w := loader.NewWatcher(*cfgPath, cfg, func(*loader.Config) {
			log.Info("config change applies from the next cycle")
		})
		if err := w.Start(); err != nil {
			log.Warn("config watch disabled", "error", err)
		} else {
			defer w.Stop()
			current = w.Current
		}
	}

	runCycle := func(ctx context.Context) error {
		c, err := loader.ToCycle(current())
		if err != nil {
			return err
		}
		report, err := orch.RunCycle(ctx, c)
		for _, v := range report.Views {
			log.Info("view finished",
				"cycle_id", report.CycleID,
				"series_id", v.SeriesID,
				"records", v.Records,
				"written", v.Written,
				"chunks_failed", v.ChunksFailed,
				"dropped", v.Dropped)
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		return runCycle(ctx)
	}

	// =========================================================================
	// Scheduler and HTTP
	// =========================================================================

	// Cycles get their own context so a signal drains them instead of
	// cancelling them outright.
	sched := scheduler.New(loader.ToSchedulerConfig(cfg), runCycle)
	if err := sched.Start(context.Background()); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	var srv *http.Server
	errCh := make(chan error, 1)
	if cfg.HTTP.Enabled {
		api := httpapi.New(httpapi.Config{
			Store:     st,
			Trigger:   sched,
			Cycles:    orch,
			Metrics:   m,
			AccessLog: os.Stdout,
		})
		srv = &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("http listening", "addr", cfg.HTTP.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("http server failed", "error", runErr)
	}

	// Stop HTTP first (stop accepting new triggers)
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		cancel()
	}

	// Drain the running cycle, then close sinks and store via defers.
	sched.Stop()
	return runErr
}
