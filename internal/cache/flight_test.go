package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/entity"
)

func TestFlightSingleCallPerFingerprint(t *testing.T) {
	var f Flight[*entity.Artifact]
	var calls atomic.Int32
	release := make(chan struct{})

	fn := func() (*entity.Artifact, error) {
		calls.Add(1)
		<-release
		return entity.NewArtifact(constants.FormatMarkdown, "# shared"), nil
	}

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*entity.Artifact, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, _, err := f.Do(context.Background(), fpA, fn)
			assert.NoError(t, err)
			results[i] = a
		}(i)
	}

	// Let every caller join before the leader finishes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, a := range results {
		require.NotNil(t, a)
		assert.Equal(t, "# shared", a.PrimaryContent())
	}
}

func TestFlightDistinctFingerprintsRunIndependently(t *testing.T) {
	var f Flight[*entity.Artifact]
	var calls atomic.Int32
	fn := func() (*entity.Artifact, error) {
		calls.Add(1)
		return entity.NewArtifact(constants.FormatText, "x"), nil
	}
	_, _, err := f.Do(context.Background(), fpA, fn)
	require.NoError(t, err)
	_, _, err = f.Do(context.Background(), fpB, fn)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestFlightWaiterHonoursOwnContext(t *testing.T) {
	var f Flight[*entity.Artifact]
	release := make(chan struct{})
	defer close(release)

	go func() {
		_, _, _ = f.Do(context.Background(), fpA, func() (*entity.Artifact, error) {
			<-release
			return entity.NewArtifact(constants.FormatText, "late"), nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := f.Do(ctx, fpA, func() (*entity.Artifact, error) {
		t.Error("waiter must not start its own call")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
