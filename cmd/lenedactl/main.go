// lenedactl inspects the statistics store of lenedastatd.
//
// Usage:
//
//	lenedactl [-config file] [-driver name] [-dsn dsn] <command> [args]
//
// Commands:
//
//	series                          list stored series
//	last [series-id...]             last period and running total
//	records [-from] [-to] [-format table|csv|json] <series-id>
//	plot [-from] [-to] [-field mean|sum|min|max] <series-id>
//	export [-from] [-to] [-compression zstd] -out file.parquet <series-id>
//	sql <query>                     run a query against the store
//	obis                            list known OBIS codes
//	shell                           interactive prompt
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/loader"
	"github.com/xtxerr/lenedastat/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "lenedastat.yaml", "config file path (store section)")
	driver := flag.String("driver", "", "store driver (overrides config)")
	dsn := flag.String("dsn", "", "store DSN (overrides config)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	if flag.Arg(0) == "version" {
		fmt.Println(Version)
		return
	}

	st, err := openStore(*cfgPath, *driver, *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lenedactl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	a := newApp(st, os.Stdout)

	if flag.Arg(0) == "shell" {
		runShell(ctx, a, func() {
			stop()
			st.Close()
		})
		return
	}

	err = a.dispatch(ctx, flag.Args())
	stop()
	st.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lenedactl: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// openStore reads the store section of the daemon config. A missing config
// file falls back to defaults.
func openStore(cfgPath, driver, dsn string) (*store.Store, error) {
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = loader.DefaultConfig()
	}

	sc := loader.ToStoreConfig(&cfg.Store)
	if driver != "" {
		sc.Driver = driver
	}
	if dsn != "" {
		sc.DSN = dsn
	}
	return store.New(sc)
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: lenedactl [flags] <command> [args]

commands:
  series                          list stored series
  last [series-id...]             last period and running total
  records [-from] [-to] [-format table|csv|json] <series-id>
  plot [-from] [-to] [-field mean|sum|min|max] <series-id>
  export [-from] [-to] [-compression zstd] -out file.parquet <series-id>
  sql <query>                     run a query against the store
  obis                            list known OBIS codes
  shell                           interactive prompt

times accept RFC 3339, YYYY-MM-DD, unix seconds or a lookback like 7d or 36h.

flags:
`)
	flag.PrintDefaults()
}
