package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/cache"
	"github.com/joseph-ayodele/docparse/internal/entity"
)

func TestPruneOnce(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	require.NoError(t, store.Insert(ctx, "fp-1", entity.NewArtifact(constants.FormatMarkdown, "# one"), "docling"))

	n, err := PruneOnce(ctx, store, time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "fresh entries survive")

	time.Sleep(5 * time.Millisecond)
	n, err = PruneOnce(ctx, store, time.Millisecond, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, store.Len())

	_, err = PruneOnce(ctx, store, 0, nil)
	assert.Error(t, err)
}

func TestStartPruneJob(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	c, err := StartPruneJob(ctx, store, "@every 1h", time.Hour, nil)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
	<-c.Stop().Done()

	_, err = StartPruneJob(ctx, store, "every now and then", time.Hour, nil)
	assert.Error(t, err)
}
