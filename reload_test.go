package reactor

import (
	"context"
	"plugin"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testReloadHandler names a plugin path that never exists on disk, so
// Reload's swap step always fails with a real plugin.Open error — this
// exercises the failure-propagation path without requiring a compiled
// .so fixture.
type testReloadHandler struct {
	path string
}

func (h testReloadHandler) PluginPath() string { return h.path }
func (h testReloadHandler) OnReload(p *plugin.Plugin) error { return nil }

func TestReloadControllerPropagatesOpenFailure(t *testing.T) {
	workers := newTestWorkers(t, 2)
	sc := newShutdownController(workers)
	sc.run()
	defer func() { _ = sc.Shutdown(context.Background()) }()

	rc := newReloadController(workers, testReloadHandler{path: "/nonexistent/reactor-plugin.so"})
	err := rc.Reload()
	require.ErrorIs(t, err, ErrReload)
}

func TestReloadControllerNilHandlerIsNoop(t *testing.T) {
	workers := newTestWorkers(t, 2)
	sc := newShutdownController(workers)
	sc.run()
	defer func() { _ = sc.Shutdown(context.Background()) }()

	rc := newReloadController(workers, nil)
	err := rc.Reload()
	require.NoError(t, err)
}

func TestReloadControllerBarrierReleasesEveryWorker(t *testing.T) {
	workers := newTestWorkers(t, 4)
	sc := newShutdownController(workers)
	sc.run()
	defer func() { _ = sc.Shutdown(context.Background()) }()

	rc := newReloadController(workers, nil)
	done := make(chan error, 1)
	go func() { done <- rc.Reload() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Reload did not complete — a worker is stuck on the barrier")
	}
}
