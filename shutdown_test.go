package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestWorkers(t *testing.T, n int) []*Worker {
	t.Helper()
	opts := resolveServerOptions(nil)
	workers := make([]*Worker, n)
	for i := range workers {
		w, err := newWorker(i, opts, nil, nil)
		require.NoError(t, err)
		workers[i] = w
	}
	for _, w := range workers {
		w.SetRoster(workers)
	}
	return workers
}

func TestShutdownControllerGracefulExit(t *testing.T) {
	workers := newTestWorkers(t, 3)
	sc := newShutdownController(workers)
	sc.run()

	for _, w := range workers {
		require.Eventually(t, func() bool {
			return w.State().Load() == StateRunning || w.State().Load() == StateSleeping
		}, time.Second, time.Millisecond)
	}

	err := sc.Shutdown(context.Background())
	require.NoError(t, err)

	for _, w := range workers {
		require.Equal(t, StateTerminated, w.State().Load())
	}
}

func TestShutdownControllerIdempotent(t *testing.T) {
	workers := newTestWorkers(t, 1)
	sc := newShutdownController(workers)
	sc.run()

	require.NoError(t, sc.Shutdown(context.Background()))
	require.NoError(t, sc.Shutdown(context.Background()))
}

func TestShutdownControllerRespectsContextDeadline(t *testing.T) {
	// A worker that never observes quit (never started via run()) means
	// Shutdown must return ctx.Err() rather than block forever.
	workers := newTestWorkers(t, 1)
	sc := newShutdownController(workers)
	// Deliberately do not call sc.run(): the worker's loop never starts,
	// so c.done never closes and the context deadline must win.

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := sc.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_ = workers[0].poller.Close()
	_ = workers[0].wake.close()
}
