package cache

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/entity"
)

const fpA = entity.Fingerprint("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
const fpB = entity.Fingerprint("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// storeContract runs the behaviour every Store implementation must share.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Lookup(ctx, fpA)
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("insert then lookup", func(t *testing.T) {
		s := newStore(t)
		art := entity.NewArtifact(constants.FormatMarkdown, "# Title")
		art.Add(constants.FormatJSON, `{"a":1}`)
		require.NoError(t, s.Insert(ctx, fpA, art, "docling"))

		got, err := s.Lookup(ctx, fpA)
		require.NoError(t, err)
		assert.Equal(t, fpA, got.Fingerprint)
		assert.Equal(t, "docling", got.BackendID)
		assert.True(t, art.Equal(got.Artifact))
		assert.Equal(t, "# Title", got.Artifact.PrimaryContent())
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("non utf-8 payload round trips", func(t *testing.T) {
		s := newStore(t)
		art := entity.NewArtifact(constants.FormatText, "caf\xe9 latin1")
		require.NoError(t, s.Insert(ctx, fpA, art, "docling"))

		got, err := s.Lookup(ctx, fpA)
		require.NoError(t, err)
		assert.Equal(t, "caf\xe9 latin1", got.Artifact.PrimaryContent())
		assert.True(t, art.Equal(got.Artifact))
		require.NoError(t, s.Insert(ctx, fpA, art, "docling"))
	})

	t.Run("insert is idempotent", func(t *testing.T) {
		s := newStore(t)
		art := entity.NewArtifact(constants.FormatMarkdown, "same")
		require.NoError(t, s.Insert(ctx, fpA, art, "docling"))
		require.NoError(t, s.Insert(ctx, fpA, entity.NewArtifact(constants.FormatMarkdown, "same"), "docling"))

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, st.Entries)
	})

	t.Run("conflicting insert keeps first writer", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, fpA, entity.NewArtifact(constants.FormatMarkdown, "first"), "docling"))
		err := s.Insert(ctx, fpA, entity.NewArtifact(constants.FormatMarkdown, "second"), "docling")
		assert.ErrorIs(t, err, ErrCacheCorruption)

		got, err := s.Lookup(ctx, fpA)
		require.NoError(t, err)
		assert.Equal(t, "first", got.Artifact.PrimaryContent())
	})

	t.Run("prune", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, fpA, entity.NewArtifact(constants.FormatMarkdown, "a"), "docling"))
		require.NoError(t, s.Insert(ctx, fpB, entity.NewArtifact(constants.FormatMarkdown, "b"), "docling"))

		n, err := s.Prune(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		n, err = s.Prune(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = s.Lookup(ctx, fpA)
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("concurrent inserts of equal content", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Insert(ctx, fpA, entity.NewArtifact(constants.FormatMarkdown, "x"), "docling")
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, st.Entries)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return openSQLite(t) })
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, fpA, entity.NewArtifact(constants.FormatMarkdown, "# kept"), "docling-serve"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Lookup(ctx, fpA)
	require.NoError(t, err)
	assert.Equal(t, "# kept", got.Artifact.PrimaryContent())
	assert.Equal(t, "docling-serve", got.BackendID)
}

func TestSQLiteStoreCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	require.NoError(t, s.Insert(ctx, fpA, entity.NewArtifact(constants.FormatMarkdown, "# ok"), "docling"))

	_, err := s.db.ExecContext(ctx, "UPDATE cache_entries SET payload = ? WHERE fingerprint = ?", []byte("{not json"), fpA.String())
	require.NoError(t, err)

	_, err = s.Lookup(ctx, fpA)
	assert.ErrorIs(t, err, ErrMiss)

	// The corrupt row was discarded, so a fresh parse can be stored.
	require.NoError(t, s.Insert(ctx, fpA, entity.NewArtifact(constants.FormatMarkdown, "# reparsed"), "docling"))
	got, err := s.Lookup(ctx, fpA)
	require.NoError(t, err)
	assert.Equal(t, "# reparsed", got.Artifact.PrimaryContent())
}

func TestMemoryStoreCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Insert(ctx, fpA, entity.NewArtifact(constants.FormatMarkdown, "# ok"), "docling"))

	s.mu.Lock()
	e := s.entries[fpA]
	e.payload = append([]byte(nil), e.payload...)
	e.payload[len(e.payload)-2] ^= 0xff
	s.entries[fpA] = e
	s.mu.Unlock()

	_, err := s.Lookup(ctx, fpA)
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, s.Len())
}
