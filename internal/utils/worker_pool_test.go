package utils

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsAllTasks(t *testing.T) {
	pool := NewWorkerPool(3)
	assert.Equal(t, 3, pool.Size())

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()
	pool.Shutdown()

	assert.Equal(t, int32(20), count.Load())
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(0)
	assert.Equal(t, 1, pool.Size())

	pool.Shutdown()
	pool.Shutdown()

	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolClosed)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 3, "a": 1, "b": 2}))
	assert.Empty(t, SortedKeys(map[int]bool{}))
}

func TestSliceToSet(t *testing.T) {
	set := SliceToSet([]string{"a", "b", "a"})
	assert.Len(t, set, 2)
	assert.Contains(t, set, "a")
}
