// Package app wires the cache store, backend, scheduler and orchestrator from the
// environment and the per-backend config files. It is shared by every command.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/joseph-ayodele/docparse/internal/backend"
	"github.com/joseph-ayodele/docparse/internal/backend/docling"
	"github.com/joseph-ayodele/docparse/internal/backend/doclingserve"
	"github.com/joseph-ayodele/docparse/internal/backend/llamaparse"
	"github.com/joseph-ayodele/docparse/internal/cache"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/config"
	"github.com/joseph-ayodele/docparse/internal/ingest"
	"github.com/joseph-ayodele/docparse/internal/output"
	"github.com/joseph-ayodele/docparse/internal/pipeline"
)

// DefaultBackend is used when no backend is named.
const DefaultBackend = docling.ID

// BackendNames lists the selectable backends.
var BackendNames = []string{docling.ID, doclingserve.ID, llamaparse.ID}

// backendAliases keeps older command lines working.
var backendAliases = map[string]string{
	"llama-parse": llamaparse.ID,
}

// ResolveBackend maps an alias onto its backend ID; other names pass through.
func ResolveBackend(name string) string {
	if id, ok := backendAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return id
	}
	return name
}

// NewLogger builds the process logger: text for terminals, JSON for daemons.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// OpenStore opens the cache selected by CACHE_DRIVER.
func OpenStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (cache.Store, error) {
	switch cfg.Cache.Driver {
	case common.CacheDriverSQLite, "":
		s, err := cache.OpenSQLite(ctx, cfg.Cache.SQLitePath(), logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case common.CacheDriverPostgres:
		s, err := cache.OpenPostgres(ctx, cache.PostgresConfig{
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case common.CacheDriverGCS:
		s, err := cache.OpenGCS(ctx, cfg.Cache.Bucket, cfg.Cache.Prefix, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case common.CacheDriverMemory:
		return cache.NewMemoryStore(), nil
	}
	return nil, common.NewAppError("CONFIG_ERROR", "unknown cache driver "+cfg.Cache.Driver, common.ErrInvalidInput)
}

// BackendSpec is a resolved backend with the settings that drive its scheduling.
type BackendSpec struct {
	Backend backend.Backend
	Runtime backend.Runtime
	// ConfigPath is the file the options came from, empty when defaults were used.
	ConfigPath string
	OutputDir  string
}

// LoadBackend reads the named backend's config file (explicit path, then ./, then ~/)
// and builds the backend.
func LoadBackend(name, configPath string, logger *slog.Logger) (*BackendSpec, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch name = ResolveBackend(name); name {
	case docling.ID, "":
		cfg := docling.DefaultConfig()
		p, err := config.Load(configPath, docling.ConfigFileName, docling.Schema, &cfg, logger)
		if err != nil {
			return nil, err
		}
		return &BackendSpec{Backend: docling.New(cfg, nil, logger), Runtime: cfg.Runtime(), ConfigPath: p, OutputDir: cfg.OutputDir}, nil
	case doclingserve.ID:
		cfg := doclingserve.DefaultConfig()
		p, err := config.Load(configPath, doclingserve.ConfigFileName, doclingserve.Schema, &cfg, logger)
		if err != nil {
			return nil, err
		}
		return &BackendSpec{Backend: doclingserve.New(cfg, logger), Runtime: cfg.Runtime(), ConfigPath: p, OutputDir: cfg.OutputDir}, nil
	case llamaparse.ID:
		cfg := llamaparse.DefaultConfig()
		p, err := config.Load(configPath, llamaparse.ConfigFileName, llamaparse.Schema, &cfg, logger)
		if err != nil {
			return nil, err
		}
		return &BackendSpec{Backend: llamaparse.New(cfg, logger), Runtime: cfg.Runtime(), ConfigPath: p, OutputDir: cfg.OutputDir}, nil
	}
	return nil, common.NewAppError("CONFIG_ERROR",
		fmt.Sprintf("unknown backend %q (want one of %s)", name, strings.Join(BackendNames, ", ")), common.ErrInvalidInput)
}

// Options select what New builds.
type Options struct {
	Backend      string
	ConfigPath   string
	SkipReadable bool
	// AbortOnError overrides the config file value when set.
	AbortOnError *bool
	// InspectPDF opens PDFs before submission to reject broken files early.
	InspectPDF bool
}

// App holds the wired components of one process.
type App struct {
	Config       *common.Config
	Logger       *slog.Logger
	Store        cache.Store
	Spec         *BackendSpec
	Orchestrator *pipeline.Orchestrator
	Writer       *output.Writer
}

// New loads and validates the environment config, opens the cache store and builds the
// orchestrator for the selected backend.
func New(ctx context.Context, cfg *common.Config, opts Options, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = common.LoadConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts.Backend = ResolveBackend(opts.Backend)
	if opts.Backend != "" && !slices.Contains(BackendNames, opts.Backend) {
		return nil, common.NewAppError("CONFIG_ERROR", "unknown backend "+opts.Backend, common.ErrInvalidInput)
	}

	spec, err := LoadBackend(opts.Backend, opts.ConfigPath, logger)
	if err != nil {
		return nil, err
	}
	if opts.AbortOnError != nil {
		spec.Runtime.AbortOnError = *opts.AbortOnError
	}

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	loader := ingest.NewLoader(logger)
	loader.InspectPDF = opts.InspectPDF

	outDir := cfg.Output.Dir
	if outDir == "" {
		outDir = spec.OutputDir
	}

	orch := pipeline.New(spec.Backend, store, spec.Runtime,
		pipeline.WithLogger(logger),
		pipeline.WithLoader(loader),
		pipeline.WithSkipReadable(opts.SkipReadable),
	)
	logger.Info("app.ready",
		"backend", spec.Backend.ID(),
		"config", spec.ConfigPath,
		"cache", cfg.Cache.Driver,
		"max_concurrency", orch.Scheduler().Capacity(),
		"max_attempts", orch.Scheduler().MaxAttempts(),
	)
	return &App{
		Config:       cfg,
		Logger:       logger,
		Store:        store,
		Spec:         spec,
		Orchestrator: orch,
		Writer:       output.NewWriter(outDir, logger),
	}, nil
}

// WriteOutputs materialises every successful, non-skipped result and returns the
// primary path per result index. Skipped inputs map to their own path.
func (a *App) WriteOutputs(results []pipeline.Result) []string {
	paths := make([]string, len(results))
	for i, r := range results {
		switch {
		case r.Err != nil:
			continue
		case r.Skipped:
			paths[i] = r.Path
		default:
			p, err := a.Writer.Write(r.Path, r.Fingerprint, a.Spec.Backend.ID(), r.Artifact)
			if err != nil {
				a.Logger.Warn("output write failed", "path", r.Path, "error", err)
				continue
			}
			paths[i] = p
		}
	}
	return paths
}

func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("close cache: %w", err)
	}
	return nil
}
