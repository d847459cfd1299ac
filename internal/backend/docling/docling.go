// Package docling runs the docling CLI locally. It never returns a pending job.
package docling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/backend"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/entity"
)

const ID = "docling"

type Backend struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

var (
	_ backend.Backend = (*Backend)(nil)
	_ backend.Checker = (*Backend)(nil)
)

// New builds the backend; a nil runner executes the real command.
func New(cfg Config, runner Runner, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = execRunner{}
	}
	if cfg.Command == "" {
		cfg.Command = "docling"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "md"
	}
	return &Backend{cfg: cfg, runner: runner, logger: logger}
}

func (b *Backend) ID() string { return ID }

func (b *Backend) CacheKey() map[string]any { return b.cfg.CacheKey() }

func (b *Backend) Config() Config { return b.cfg }

func (b *Backend) Submit(ctx context.Context, doc *entity.Document) (backend.Outcome, error) {
	tmpDir, err := os.MkdirTemp("", "docparse-docling-*")
	if err != nil {
		return backend.Outcome{}, common.JobErrorf(constants.KindInternal, "create temp dir: %v", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	_, stderr, err := b.runner.Run(ctx, b.cfg.Command, b.logger, b.cfg.args(doc.Path, tmpDir)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if cause := context.Cause(ctx); cause != nil {
				return backend.Outcome{}, cause
			}
			return backend.Outcome{}, ctxErr
		}
		if errors.Is(err, exec.ErrNotFound) {
			return backend.Outcome{}, common.JobErrorf(constants.KindInternal, "%s not installed: %v", b.cfg.Command, err)
		}
		msg := strings.TrimSpace(truncate(string(stderr), 1024))
		return backend.Outcome{}, common.JobErrorf(constants.KindInvalidDocument, "docling failed: %v: %s", err, msg)
	}

	content, err := b.readOutput(tmpDir, doc.Path)
	if err != nil {
		return backend.Outcome{}, err
	}
	format, ok := constants.ParseFormat(b.cfg.OutputFormat)
	if !ok {
		format = constants.FormatMarkdown
	}
	return backend.Immediate(entity.NewArtifact(format, content)), nil
}

// readOutput prefers <stem>.<ext> and falls back to any file with the right extension.
func (b *Backend) readOutput(dir, input string) (string, error) {
	ext := outputExt(b.cfg.OutputFormat)
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))

	expected := filepath.Join(dir, stem+"."+ext)
	if data, err := os.ReadFile(expected); err == nil {
		return string(data), nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", common.JobErrorf(constants.KindInternal, "read docling output: %v", err)
	}
	for _, e := range entries {
		if e.IsDir() || constants.NormalizeExt(filepath.Ext(e.Name())) != ext {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return "", common.JobErrorf(constants.KindInternal, "read docling output: %v", err)
		}
		b.logger.Debug("docling output found by extension", "file", e.Name())
		return string(data), nil
	}
	return "", common.JobErrorf(constants.KindInvalidDocument, "no %s output produced", ext)
}

// Poll is never called: every submission completes immediately.
func (b *Backend) Poll(context.Context, string) (backend.Status, error) {
	return backend.Status{}, fmt.Errorf("%s: %w", ID, common.ErrPollNotSupported)
}

// Check verifies the CLI is installed.
func (b *Backend) Check(ctx context.Context) error {
	if _, _, err := b.runner.Run(ctx, b.cfg.Command, b.logger, "--version"); err != nil {
		return fmt.Errorf("docling is not available (%s --version): %w", b.cfg.Command, err)
	}
	return nil
}

func outputExt(format string) string {
	if f, ok := constants.ParseFormat(format); ok {
		return f.FileExt()
	}
	return format
}
