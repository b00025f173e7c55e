package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_Sequence(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, int64(0), clock.Current())

	assert.Equal(t, int64(1), clock.Next())
	assert.Equal(t, int64(2), clock.Next())
	assert.Equal(t, int64(2), clock.Current())

	clock.Reset()
	assert.Equal(t, int64(0), clock.Current())
	assert.Equal(t, int64(1), clock.Next(), "first value after reset")
}

func TestDeterministicClock_ConcurrentNextIsGapFree(t *testing.T) {
	clock := NewDeterministicClock()
	const workers, calls = 16, 200

	var wg sync.WaitGroup
	results := make([][]int64, workers)
	for i := range workers {
		results[i] = make([]int64, calls)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range calls {
				results[i][j] = clock.Next()
			}
		}()
	}
	wg.Wait()

	seen := make(map[int64]bool, workers*calls)
	for _, vals := range results {
		for _, v := range vals {
			require.False(t, seen[v], "duplicate value %d", v)
			seen[v] = true
		}
	}
	for v := int64(1); v <= workers*calls; v++ {
		assert.True(t, seen[v], "missing value %d", v)
	}
}
