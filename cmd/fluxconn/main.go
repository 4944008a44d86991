package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"fluxconn/internal/config"
	"fluxconn/internal/conn"
	"fluxconn/internal/exporter"
	"fluxconn/internal/security"
	"fluxconn/internal/shape"
	"fluxconn/internal/storage"
	"fluxconn/internal/worker"
)

var version = "dev"

func usage() {
	fmt.Fprintf(os.Stderr, "fluxconn %s\n\n", version)
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  fluxconn query  [flags] QUERY [ARG...]   print shaped results as JSON\n")
	fmt.Fprintf(os.Stderr, "  fluxconn export [flags] QUERY [ARG...]   stream results to a file\n")
	fmt.Fprintf(os.Stderr, "  fluxconn batch  [flags] FILE             export one query per line\n\n")
	fmt.Fprintf(os.Stderr, "Environment Variables:\n")
	fmt.Fprintf(os.Stderr, "  DB_DRIVER    mysql, postgres, sqlite or mongo\n")
	fmt.Fprintf(os.Stderr, "  DB_DSN       Driver data source name\n")
	fmt.Fprintf(os.Stderr, "  DB_USER      Merged into the DSN\n")
	fmt.Fprintf(os.Stderr, "  DB_PASSWORD  Merged into the DSN\n")
	fmt.Fprintf(os.Stderr, "  DB_OPTIONS   Driver options, k=v,k=v\n")
	fmt.Fprintf(os.Stderr, "\nRun 'fluxconn COMMAND -h' for command flags.\n")
}

func main() {
	flag.Usage = usage
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fluxconn %s\n", version)
		return
	}
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "query":
		err = runQuery(ctx, cfg, logger, args, os.Stdout)
	case "export":
		err = runExport(ctx, cfg, logger, args, os.Stdout)
	case "batch":
		err = runBatch(ctx, cfg, logger, args, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		var se *conn.StatementError
		if errors.As(err, &se) {
			logger.Error("Statement failed", "code", se.Code, "debug", se.Debug)
		}
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// queryArgs turns trailing command-line words into bind values.
func queryArgs(words []string) []any {
	args := make([]any, len(words))
	for i, w := range words {
		args[i] = w
	}
	return args
}

func runQuery(ctx context.Context, cfg *config.Config, logger *slog.Logger, argv []string, out io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	as := fs.String("shape", "rows", "Result shape: rows, row, column, value, keyed, allkeyed")
	mode := fs.String("mode", "string", "Keyed value mode: string, record, values, object")
	readOnly := fs.Bool("readonly", false, "Reject anything but a single SELECT")
	sanitize := fs.Bool("sanitize", false, "Strip script, style and comment markup from text values")
	debug := fs.Bool("debug", false, "Print the interpolated statement to stderr")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("query: missing QUERY")
	}
	query, args := fs.Arg(0), queryArgs(fs.Args()[1:])

	if *readOnly {
		if err := security.ValidateQuery(query); err != nil {
			return err
		}
	}
	m, err := shape.ParseMode(*mode)
	if err != nil {
		return err
	}

	c, err := cfg.OpenConn(ctx, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	var result any
	switch *as {
	case "rows":
		result, err = c.FetchAll(ctx, query, args...)
	case "row":
		result, err = c.FetchOne(ctx, query, args...)
	case "column":
		result, err = c.FetchColumn(ctx, query, args...)
	case "value":
		result, err = c.FetchValue(ctx, query, args...)
	case "keyed":
		result, err = c.FetchKeyed(ctx, m, query, args...)
	case "allkeyed":
		result, err = c.FetchAllKeyed(ctx, m, query, args...)
	default:
		return fmt.Errorf("query: unknown shape %q", *as)
	}
	if *debug {
		if st := c.LatestStatement(); st != nil {
			fmt.Fprintln(os.Stderr, st.Debug())
		}
	}
	if err != nil {
		return err
	}

	var clean func(string) string
	if *sanitize {
		clean = func(s string) string { return security.SanitizeMarkup(s, security.DefaultSanitize) }
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(render(result, clean))
}

// render converts shaped results into plain JSON-friendly values.
func render(v any, clean func(string) string) any {
	switch t := v.(type) {
	case string:
		if clean != nil {
			return clean(t)
		}
		return t
	case shape.Row:
		m := make(map[string]any, t.Len())
		for i, col := range t.Columns {
			m[col] = render(t.Values[i], clean)
		}
		return m
	case *shape.Row:
		if t == nil {
			return nil
		}
		return render(*t, clean)
	case []shape.Row:
		out := make([]any, len(t))
		for i, r := range t {
			out[i] = render(r, clean)
		}
		return out
	case shape.Keyed:
		return map[string]any{"key": render(t.Key, clean), "value": render(t.Value, clean)}
	case *shape.Keyed:
		if t == nil {
			return nil
		}
		return render(*t, clean)
	case []shape.Keyed:
		out := make([]any, len(t))
		for i, k := range t {
			out[i] = render(k, clean)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = render(x, clean)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = render(x, clean)
		}
		return out
	default:
		return v
	}
}

func runExport(ctx context.Context, cfg *config.Config, logger *slog.Logger, argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	format := fs.String("format", "csv", "Output format: "+strings.Join(exporter.Formats, ", "))
	outPath := fs.String("out", "-", "Output file, '-' for stdout")
	readOnly := fs.Bool("readonly", false, "Reject anything but a single SELECT")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("export: missing QUERY")
	}
	query, args := fs.Arg(0), queryArgs(fs.Args()[1:])
	if *readOnly {
		if err := security.ValidateQuery(query); err != nil {
			return err
		}
	}

	out := stdout
	if *outPath != "-" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc, err := exporter.NewEncoder(*format, out)
	if err != nil {
		return err
	}
	defer enc.Close()

	c, err := cfg.OpenConn(ctx, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.DefaultTimeout)
	defer cancel()

	res, err := exporter.Query(ctx, c, enc, query, args...)
	if err != nil {
		return err
	}
	logger.Info("Export finished", "rows", res.RowsProcessed, "duration", res.Duration, "format", *format)
	return nil
}

func runBatch(ctx context.Context, cfg *config.Config, logger *slog.Logger, argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	format := fs.String("format", "csv", "Output format: "+strings.Join(exporter.Formats, ", "))
	readOnly := fs.Bool("readonly", true, "Reject anything but a single SELECT")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("batch: expected one FILE")
	}

	queries, err := readQueries(fs.Arg(0))
	if err != nil {
		return err
	}

	store, err := storage.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	base, err := cfg.ConnConfig(logger)
	if err != nil {
		return err
	}

	pool := worker.NewPool(worker.Config{
		Workers:          cfg.WorkerCount,
		MaxDBConcurrency: cfg.MaxDBConcurrency,
		QueueSize:        len(queries),
		Connect: func(ctx context.Context) (*conn.Conn, error) {
			return conn.Open(ctx, base)
		},
		Storage:   store,
		Compress:  cfg.Compression,
		IdlePause: cfg.IdlePause,
		ReadOnly:  *readOnly,
		Logger:    logger,
	})
	pool.Start()
	defer pool.Stop()

	jobs := make([]*worker.ExportJob, 0, len(queries))
	for _, q := range queries {
		job := worker.NewExportJob(q, *format, cfg.DefaultTimeout)
		if !pool.Submit(job) {
			return fmt.Errorf("batch: queue rejected job for %q", q)
		}
		jobs = append(jobs, job)
	}

	// Cancel everything still running on interrupt.
	go func() {
		<-ctx.Done()
		for _, j := range jobs {
			j.Cancel()
		}
	}()

	var g errgroup.Group
	for _, j := range jobs {
		g.Go(j.Wait)
	}
	waitErr := g.Wait()

	enc := json.NewEncoder(stdout)
	for _, j := range jobs {
		line := map[string]any{"id": j.ID, "status": j.Status, "query": j.Query}
		if j.Err != nil {
			line["error"] = j.Err.Error()
		} else {
			line["url"] = store.URL(j.Key)
			line["rows"] = j.Stats.RowsProcessed
			line["duration"] = j.Stats.Duration.Round(time.Millisecond).String()
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return waitErr
}

// readQueries reads one query per line, skipping blanks and "--" comments.
func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("batch: no queries in %s", path)
	}
	return out, nil
}
