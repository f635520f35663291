package reactor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatcherRoundRobin(t *testing.T) {
	d := newDispatcher(3)

	got := []int{d.next(0), d.next(0), d.next(0), d.next(0)}
	require.Equal(t, []int{0, 1, 2, 0}, got)
}

func TestDispatcherPerAcceptingWorkerCounters(t *testing.T) {
	d := newDispatcher(2)

	// Each accepting worker advances its own counter, not a shared one —
	// SPEC_FULL.md §4.6's explicit requirement.
	require.Equal(t, 0, d.next(0))
	require.Equal(t, 0, d.next(1))
	require.Equal(t, 1, d.next(0))
	require.Equal(t, 1, d.next(1))
}

func TestDispatcherZeroWorkersAlwaysZero(t *testing.T) {
	d := newDispatcher(0)
	require.Equal(t, 0, d.next(0))
	require.Equal(t, 0, d.next(5))
}

func TestDispatcherOutOfRangeAcceptingFallsBackToZero(t *testing.T) {
	d := newDispatcher(2)
	require.Equal(t, 0, d.next(-1))
	require.Equal(t, 1, d.next(99))
}

func TestDispatcherConcurrentUse(t *testing.T) {
	const workers = 4
	const perGoroutine = 500
	d := newDispatcher(workers)

	counts := make([]int, workers)
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(workers)
	for accepting := 0; accepting < workers; accepting++ {
		go func(accepting int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				target := d.next(accepting)
				mu.Lock()
				counts[target]++
				mu.Unlock()
			}
		}(accepting)
	}
	wg.Wait()

	total := 0
	for _, c := range counts {
		total += c
	}
	require.Equal(t, workers*perGoroutine, total)
}
