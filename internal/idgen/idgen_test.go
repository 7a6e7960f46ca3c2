package idgen

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratorStartsAtOne(t *testing.T) {
	var g Generator
	require.Equal(t, uint64(1), g.Next())
	require.Equal(t, uint64(2), g.Next())
}

func TestGeneratorConcurrentUnique(t *testing.T) {
	var g Generator
	const workers = 16
	const perWorker = 1000

	ids := make([][]uint64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids[w] = make([]uint64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				ids[w] = append(ids[w], g.Next())
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[uint64]bool, workers*perWorker)
	for _, batch := range ids {
		for _, id := range batch {
			require.Greater(t, id, uint64(0))
			require.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
	}
	require.Len(t, seen, workers*perWorker)
}
