package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher event")
		return ""
	}
}

func TestWatcherInitialScanAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	existing := write(t, dir, "old.pdf", []byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{dir},
		InitialScan: true,
		Debounce:    20 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, existing, recv(t, events))

	// Ignored extension, then a supported one.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.exe"), []byte("x"), 0o644))
	fresh := filepath.Join(dir, "new.docx")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	assert.Equal(t, fresh, recv(t, events))

	cancel()
	for range events {
	}
}

func TestWatcherRequiresRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{})
	assert.Error(t, err)
}
