package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/backend/docling"
	"github.com/joseph-ayodele/docparse/internal/backend/doclingserve"
	"github.com/joseph-ayodele/docparse/internal/backend/llamaparse"
	"github.com/joseph-ayodele/docparse/internal/cache"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/entity"
	"github.com/joseph-ayodele/docparse/internal/pipeline"
)

// isolate keeps config discovery away from the developer's real files.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func TestLoadBackend_Defaults(t *testing.T) {
	isolate(t)
	for _, name := range BackendNames {
		spec, err := LoadBackend(name, "", nil)
		require.NoError(t, err, name)
		assert.Equal(t, name, spec.Backend.ID())
		assert.Empty(t, spec.ConfigPath)
		assert.Positive(t, spec.Runtime.MaxConcurrency, name)
	}

	spec, err := LoadBackend("", "", nil)
	require.NoError(t, err)
	assert.Equal(t, docling.ID, spec.Backend.ID())
}

func TestLoadBackend_AcceptsAlias(t *testing.T) {
	isolate(t)
	spec, err := LoadBackend("llama-parse", "", nil)
	require.NoError(t, err)
	assert.Equal(t, llamaparse.ID, spec.Backend.ID())

	assert.Equal(t, llamaparse.ID, ResolveBackend("llama-parse"))
	assert.Equal(t, doclingserve.ID, ResolveBackend(doclingserve.ID))
}

func TestLoadBackend_ReadsLocalConfigFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, doclingserve.ConfigFileName),
		[]byte(`{"base_url":"http://parser.internal:5001","use_async":true,"poll_interval":0.5,"abort_on_error":true}`), 0o644))

	spec, err := LoadBackend(doclingserve.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, doclingserve.ConfigFileName, spec.ConfigPath)
	assert.Equal(t, 500*time.Millisecond, spec.Runtime.PollInterval)
	assert.True(t, spec.Runtime.AbortOnError)
}

func TestLoadBackend_Errors(t *testing.T) {
	dir := isolate(t)

	_, err := LoadBackend("tesseract", "", nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = LoadBackend(llamaparse.ID, filepath.Join(dir, "missing.json"), nil)
	assert.ErrorIs(t, err, common.ErrNotFound)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"max_poll_attempts":"many"}`), 0o644))
	_, err = LoadBackend(llamaparse.ID, bad, nil)
	var appErr *common.AppError
	assert.ErrorAs(t, err, &appErr)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	cfg := &common.Config{Cache: common.CacheConfig{Driver: common.CacheDriverMemory}}
	s, err := OpenStore(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryStore{}, s)

	cfg.Cache = common.CacheConfig{Driver: common.CacheDriverSQLite, Dir: t.TempDir()}
	s, err = OpenStore(ctx, cfg, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.FileExists(t, cfg.Cache.SQLitePath())

	cfg.Cache.Driver = "redis"
	_, err = OpenStore(ctx, cfg, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestNew_WiresOrchestratorAndWriter(t *testing.T) {
	dir := isolate(t)
	cfg := &common.Config{
		Cache:  common.CacheConfig{Driver: common.CacheDriverMemory},
		Output: common.OutputConfig{Dir: filepath.Join(dir, "out")},
		Log:    common.LogConfig{Level: "info", Format: "text"},
		Watch:  common.WatchConfig{Workers: 1},
	}
	abort := true
	a, err := New(context.Background(), cfg, Options{Backend: llamaparse.ID, AbortOnError: &abort}, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, llamaparse.ID, a.Orchestrator.Backend().ID())
	assert.True(t, a.Spec.Runtime.AbortOnError)

	src := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF"), 0o644))
	results := []pipeline.Result{
		{Path: src, Fingerprint: "fp", Artifact: entity.NewArtifact(constants.FormatMarkdown, "# a")},
		{Path: filepath.Join(dir, "notes.txt"), Skipped: true},
		{Path: filepath.Join(dir, "broken.pdf"), Err: common.JobErrorf(constants.KindInvalidDocument, "bad")},
	}
	paths := a.WriteOutputs(results)
	assert.Equal(t, filepath.Join(dir, "out", "a.pdf.md"), paths[0])
	assert.Equal(t, results[1].Path, paths[1])
	assert.Empty(t, paths[2])
}

func TestNew_ResolvesBackendAlias(t *testing.T) {
	dir := isolate(t)
	cfg := &common.Config{
		Cache:  common.CacheConfig{Driver: common.CacheDriverMemory},
		Output: common.OutputConfig{Dir: filepath.Join(dir, "out")},
		Watch:  common.WatchConfig{Workers: 1},
	}
	a, err := New(context.Background(), cfg, Options{Backend: "llama-parse"}, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, llamaparse.ID, a.Orchestrator.Backend().ID())
}

func TestNew_RejectsInvalidEnvironment(t *testing.T) {
	isolate(t)
	cfg := &common.Config{Cache: common.CacheConfig{Driver: common.CacheDriverPostgres}, Watch: common.WatchConfig{Workers: 1}}
	_, err := New(context.Background(), cfg, Options{}, nil)
	assert.ErrorContains(t, err, "CACHE_DSN")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "warn", "json").Info("hidden")
	assert.Empty(t, buf.String())
	NewLogger(&buf, "debug", "json").Debug("shown", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
