package dex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetGoroutineIDStableWithinGoroutine(t *testing.T) {
	a := getGoroutineID()
	b := getGoroutineID()
	require.Equal(t, a, b)
	require.NotZero(t, a)
}

func TestGetGoroutineIDDistinctAcrossGoroutines(t *testing.T) {
	const n = 8
	ids := make([]uint64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			ids[i] = getGoroutineID()
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, id := range ids {
		require.False(t, seen[id], "goroutine ids must be unique per goroutine")
		seen[id] = true
	}
}
