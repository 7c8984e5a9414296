package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"golang.org/x/term"

	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/obis"
	"github.com/xtxerr/lenedastat/internal/parquet"
	"github.com/xtxerr/lenedastat/internal/series"
	"github.com/xtxerr/lenedastat/internal/store"
)

var errUsage = errors.New("usage")

// defaultRange is the records window when -from is omitted.
const defaultRange = 7 * 24 * time.Hour

// Store is the part of the statistics store the commands use.
type Store interface {
	ListSeries(ctx context.Context) ([]store.SeriesInfo, error)
	Meta(ctx context.Context, seriesID string) (series.Meta, error)
	ReadLast(ctx context.Context, seriesID string) (series.ResumeState, error)
	Records(ctx context.Context, seriesID string, from, to time.Time) ([]series.Record, error)
	ExecSQL(ctx context.Context, query string) (*store.QueryResult, error)
	DeleteSeries(ctx context.Context, seriesID string) error
}

type app struct {
	st  Store
	out io.Writer
	now func() time.Time

	// plotWidth overrides terminal detection when > 0.
	plotWidth int
}

func newApp(st Store, out io.Writer) *app {
	return &app{st: st, out: out, now: time.Now}
}

type command struct {
	name  string
	usage string
	run   func(a *app, ctx context.Context, args []string) error
}

var commands = []command{
	{"series", "series", (*app).cmdSeries},
	{"last", "last [series-id...]", (*app).cmdLast},
	{"records", "records [-from t] [-to t] [-format table|csv|json] <series-id>", (*app).cmdRecords},
	{"plot", "plot [-from t] [-to t] [-field mean|sum|min|max] [-height n] <series-id>", (*app).cmdPlot},
	{"export", "export [-from t] [-to t] [-compression c] -out file <series-id>", (*app).cmdExport},
	{"delete", "delete -yes <series-id>", (*app).cmdDelete},
	{"sql", "sql <query>", (*app).cmdSQL},
	{"obis", "obis", (*app).cmdOBIS},
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(a, ctx, args[1:])
		}
	}
	return errors.Wrapf(errUsage, "unknown command %q", args[0])
}

// =============================================================================
// Commands
// =============================================================================

func (a *app) cmdSeries(ctx context.Context, args []string) error {
	infos, err := a.st.ListSeries(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(a.out, "no series stored")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUNIT\tRECORDS\tFIRST\tLAST")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			info.ID, info.Name, info.Unit, info.Records,
			formatTime(info.First), formatTime(info.Last))
	}
	return tw.Flush()
}

func (a *app) cmdLast(ctx context.Context, args []string) error {
	ids := args
	if len(ids) == 0 {
		infos, err := a.st.ListSeries(ctx)
		if err != nil {
			return err
		}
		for _, info := range infos {
			ids = append(ids, info.ID)
		}
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLAST PERIOD\tSUM")
	for _, id := range ids {
		meta, err := a.st.Meta(ctx, id)
		if err != nil {
			return err
		}
		state, err := a.st.ReadLast(ctx, id)
		if err != nil {
			return err
		}
		if !state.HasHistory {
			fmt.Fprintf(tw, "%s\t-\t-\n", id)
			continue
		}
		sum := "-"
		if meta.HasSum {
			sum = formatFloat(state.LastSum) + " " + meta.Unit
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", id, formatTime(state.LastPeriodStart), sum)
	}
	return tw.Flush()
}

type rangeFlags struct {
	from, to string
}

func (r *rangeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&r.from, "from", "", "start of range (default: 7d before -to)")
	fs.StringVar(&r.to, "to", "", "end of range, exclusive (default: now)")
}

func (r *rangeFlags) resolve(now time.Time) (time.Time, time.Time, error) {
	to := now.UTC()
	if r.to != "" {
		t, err := parseTime(r.to, now)
		if err != nil {
			return time.Time{}, time.Time{}, errors.NewInvalidValue("to", r.to, err.Error())
		}
		to = t
	}
	from := to.Add(-defaultRange)
	if r.from != "" {
		t, err := parseTime(r.from, now)
		if err != nil {
			return time.Time{}, time.Time{}, errors.NewInvalidValue("from", r.from, err.Error())
		}
		from = t
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.Wrapf(errors.ErrInvalidRange, "from %s is not before to %s", formatTime(from), formatTime(to))
	}
	return from, to, nil
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// seriesArg parses fs and returns its single positional series ID.
func seriesArg(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", errors.Wrap(errUsage, err.Error())
	}
	if fs.NArg() != 1 {
		return "", errors.Wrapf(errUsage, "%s needs exactly one series ID", fs.Name())
	}
	return fs.Arg(0), nil
}

func (a *app) cmdRecords(ctx context.Context, args []string) error {
	var rng rangeFlags
	fs := newFlagSet("records", a.out)
	rng.register(fs)
	format := fs.String("format", "table", "output format: table, csv or json")
	id, err := seriesArg(fs, args)
	if err != nil {
		return err
	}
	from, to, err := rng.resolve(a.now())
	if err != nil {
		return err
	}

	recs, err := a.records(ctx, id, from, to)
	if err != nil {
		return err
	}

	switch *format {
	case "table":
		return writeTable(a.out, recs)
	case "csv":
		return writeCSV(a.out, recs)
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	default:
		return errors.NewInvalidValue("format", *format, "expected table, csv or json")
	}
}

// records checks the series exists before reading so unknown IDs are
// reported instead of printing an empty table.
func (a *app) records(ctx context.Context, id string, from, to time.Time) ([]series.Record, error) {
	if _, err := a.st.Meta(ctx, id); err != nil {
		return nil, err
	}
	return a.st.Records(ctx, id, from, to)
}

func (a *app) cmdPlot(ctx context.Context, args []string) error {
	var rng rangeFlags
	fs := newFlagSet("plot", a.out)
	rng.register(fs)
	field := fs.String("field", "", "value to plot: mean, sum, min or max (default: sum for cumulative series)")
	height := fs.Int("height", 15, "plot height in rows")
	id, err := seriesArg(fs, args)
	if err != nil {
		return err
	}
	from, to, err := rng.resolve(a.now())
	if err != nil {
		return err
	}

	meta, err := a.st.Meta(ctx, id)
	if err != nil {
		return err
	}
	if *field == "" {
		*field = "mean"
		if meta.HasSum {
			*field = "sum"
		}
	}
	pick, err := fieldFunc(*field)
	if err != nil {
		return err
	}

	recs, err := a.st.Records(ctx, id, from, to)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(a.out, "no records in range")
		return nil
	}

	data := make([]float64, len(recs))
	for i, r := range recs {
		data[i] = pick(r)
	}

	caption := fmt.Sprintf("%s %s [%s] %s .. %s", id, *field, meta.Unit,
		formatTime(recs[0].PeriodStart), formatTime(recs[len(recs)-1].PeriodStart))
	graph := asciigraph.Plot(data,
		asciigraph.Height(*height),
		asciigraph.Width(a.width()),
		asciigraph.Caption(caption),
	)
	fmt.Fprintln(a.out, graph)
	return nil
}

func fieldFunc(name string) (func(series.Record) float64, error) {
	switch name {
	case "mean":
		return func(r series.Record) float64 { return r.Mean }, nil
	case "sum":
		return series.Record.SumValue, nil
	case "min":
		return func(r series.Record) float64 { return r.Min }, nil
	case "max":
		return func(r series.Record) float64 { return r.Max }, nil
	}
	return nil, errors.NewInvalidValue("field", name, "expected mean, sum, min or max")
}

// width leaves room for the axis labels.
func (a *app) width() int {
	if a.plotWidth > 0 {
		return a.plotWidth
	}
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		if w, _, err := term.GetSize(fd); err == nil && w > 20 {
			return w - 12
		}
	}
	return 68
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	var rng rangeFlags
	fs := newFlagSet("export", a.out)
	rng.register(fs)
	out := fs.String("out", "", "output parquet file")
	compression := fs.String("compression", "zstd", "compression: none, snappy, gzip, zstd or lz4")
	id, err := seriesArg(fs, args)
	if err != nil {
		return err
	}
	if *out == "" {
		return errors.NewMissingField("out")
	}
	from, to, err := rng.resolve(a.now())
	if err != nil {
		return err
	}

	ct, err := parquet.ParseCompression(*compression)
	if err != nil {
		return err
	}
	recs, err := a.records(ctx, id, from, to)
	if err != nil {
		return err
	}

	opts := parquet.DefaultOptions()
	opts.Compression = ct
	if err := parquet.WriteFile(*out, parquet.RecordsToRows(id, recs), opts); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %d records to %s\n", len(recs), *out)
	return nil
}

func (a *app) cmdDelete(ctx context.Context, args []string) error {
	fs := newFlagSet("delete", a.out)
	yes := fs.Bool("yes", false, "confirm deletion")
	id, err := seriesArg(fs, args)
	if err != nil {
		return err
	}
	if _, err := a.st.Meta(ctx, id); err != nil {
		return err
	}
	if !*yes {
		return errors.Wrapf(errUsage, "delete %s needs -yes", id)
	}

	if err := a.st.DeleteSeries(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s\n", id)
	return nil
}

func (a *app) cmdSQL(ctx context.Context, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return errors.Wrap(errUsage, "sql needs a query")
	}

	res, err := a.st.ExecSQL(ctx, query)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(res.Columns, "\t")))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "(%d rows)\n", len(res.Rows))
	return nil
}

func (a *app) cmdOBIS(ctx context.Context, args []string) error {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tSERVICE\tUNIT\tDESCRIPTION")
	for _, code := range obis.Codes() {
		c, err := obis.Lookup(code)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\n", c.Code, c.ServiceType, c.Unit, c.AggregatedUnit, c.Description)
	}
	return tw.Flush()
}

// =============================================================================
// Output
// =============================================================================

func writeTable(w io.Writer, recs []series.Record) error {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no records in range")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "PERIOD\tMEAN\tMIN\tMAX\tCOUNT\tSUM\tP50\tP90\tP95\tP99\t")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
			formatTime(r.PeriodStart), formatFloat(r.Mean), formatFloat(r.Min), formatFloat(r.Max), r.Count,
			formatOptional(r.Sum), formatOptional(r.P50), formatOptional(r.P90), formatOptional(r.P95), formatOptional(r.P99))
	}
	return tw.Flush()
}

func writeCSV(w io.Writer, recs []series.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"period_start", "mean", "min", "max", "count", "sum", "p50", "p90", "p95", "p99"}); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			r.PeriodStart.UTC().Format(time.RFC3339),
			formatFloat(r.Mean), formatFloat(r.Min), formatFloat(r.Max),
			strconv.FormatInt(r.Count, 10),
			csvOptional(r.Sum), csvOptional(r.P50), csvOptional(r.P90), csvOptional(r.P95), csvOptional(r.P99),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatFloat(*v)
}

func csvOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case float64:
		return formatFloat(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// parseTime accepts RFC 3339 timestamps, dates, unix seconds and lookbacks
// relative to now such as 36h or 7d.
func parseTime(v string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t.UTC(), nil
	}
	if days, ok := strings.CutSuffix(v, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n >= 0 {
			return now.UTC().AddDate(0, 0, -n), nil
		}
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return now.UTC().Add(-d), nil
	}
	if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, errors.New("expected RFC 3339, YYYY-MM-DD, unix seconds or a lookback like 7d")
}
