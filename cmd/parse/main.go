package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/docparse/internal/app"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/export"
	"github.com/joseph-ayodele/docparse/internal/ingest"
	"github.com/joseph-ayodele/docparse/internal/pipeline"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func usage() {
	printError("usage: parse [-b backend] [-c config.json] [-v] [-report out.xlsx] file|dir...\n\nbackends: %s (llama-parse also selects llamaparse)\n\n",
		strings.Join(app.BackendNames, ", "))
	flag.PrintDefaults()
}

func main() {
	_ = godotenv.Load()
	os.Exit(run())
}

func run() int {
	var (
		backendName  = flag.String("b", app.DefaultBackend, "backend to parse with")
		configPath   = flag.String("c", "", "backend config file (default: ./<name> then ~/<name>)")
		verbose      = flag.Bool("v", false, "verbose logging")
		report       = flag.String("report", "", "write an XLSX run report to this path")
		abort        = flag.Bool("abort-on-error", false, "stop at the first failed document (overrides the config file)")
		skipReadable = flag.Bool("skip-readable", true, "pass .txt/.md inputs through without parsing")
		inspectPDF   = flag.Bool("inspect-pdf", true, "open PDFs locally to reject broken files before submission")
		noPreflight  = flag.Bool("no-preflight", false, "skip the backend availability check")
	)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		return 2
	}

	cfg := common.LoadConfig()
	level := cfg.Log.Level
	if *verbose {
		level = "debug"
	}
	logger := app.NewLogger(os.Stderr, level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := app.Options{
		Backend:      *backendName,
		ConfigPath:   *configPath,
		SkipReadable: *skipReadable,
		InspectPDF:   *inspectPDF,
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "abort-on-error" {
			opts.AbortOnError = abort
		}
	})

	a, err := app.New(ctx, cfg, opts, logger)
	if err != nil {
		printError("Error: %v\n", err)
		return 2
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	paths, stats, err := ingest.ExpandPaths(flag.Args(), true, logger)
	if err != nil {
		printError("Error: %v\n", err)
		return 2
	}
	if stats.Scanned > 0 {
		logger.Info("expanded directories", "matched", stats.Matched, "skipped", stats.Skipped, "failed", stats.Failed)
	}
	if len(paths) == 0 {
		printError("Error: no parseable files found\n")
		return 1
	}

	if !*noPreflight {
		if err := a.Orchestrator.Preflight(ctx); err != nil {
			printError("Error: backend %s unavailable: %v\n", a.Spec.Backend.ID(), err)
			return 1
		}
	}

	results := a.Orchestrator.Parse(ctx, paths)
	outputs := a.WriteOutputs(results)

	for i, r := range results {
		switch {
		case r.Err != nil:
			printError("%s: %v\n", r.Path, r.Err)
		case outputs[i] == "":
			printError("%s: parsed but output could not be written\n", r.Path)
		default:
			fmt.Println(outputs[i])
		}
		if r.Warning != "" {
			printError("%s: warning: %s\n", r.Path, r.Warning)
		}
	}

	if *report != "" {
		if err := writeReport(ctx, a, *report, results, outputs); err != nil {
			printError("Error: report: %v\n", err)
		}
	}

	summary := pipeline.Summarize(results)
	logger.Info("done", "total", summary.Total, "parsed", summary.Parsed, "cached", summary.Cached,
		"skipped", summary.Skipped, "failed", summary.Failed, "cancelled", summary.Cancelled)
	if summary.Failed+summary.Cancelled > 0 && a.Spec.Runtime.AbortOnError {
		return 1
	}
	return 0
}

func writeReport(ctx context.Context, a *app.App, path string, results []pipeline.Result, outputs []string) error {
	rows := make([]export.Row, len(results))
	for i, r := range results {
		rows[i] = export.RowFromResult(r, outputs[i])
	}
	b, err := export.NewService(a.Logger).RunReportXLSX(ctx, a.Spec.Backend.ID(), rows, pipeline.Summarize(results))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
