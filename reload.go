package reactor

import (
	"plugin"
	"sync"
)

// ReloadHandler is supplied by the application; it names the compiled
// plugin to swap in and receives the freshly opened *plugin.Plugin once
// every worker has quiesced, so it can look up fresh symbols (matching
// the original's module->load(ctx, params, is_reload) callback run after
// dlopen/dlsym).
type ReloadHandler interface {
	// PluginPath returns the path of the .so to open for this reload.
	PluginPath() string
	// OnReload runs once, after every worker has quiesced and the new
	// plugin has been opened, before any worker resumes serving.
	OnReload(p *plugin.Plugin) error
}

// reloadController coordinates a live code swap across every worker,
// grounded on original_source/src/80s/80s_common.c's s80_reload plus
// 80s.c's run() barrier: a stop byte fans out to every worker (here,
// Worker.RequestReload rather than a mailbox message, per the mailbox/
// control-signal split documented in DESIGN.md), a readiness counter
// tracks how many workers have quiesced, and the last worker to arrive
// performs the actual plugin.Open swap before releasing everyone.
//
// Go's plugin package cannot close or re-open the same .so path within
// one process (unlike dlclose/dlopen), so unlike the original, a reload
// here requires each generation to be built to a distinct path (e.g. a
// version-suffixed filename) — documented as an Open Question resolution
// in DESIGN.md, not a limitation of this controller.
type reloadController struct {
	workers []*Worker
	handler ReloadHandler

	mu      sync.Mutex
	ready   int
	barrier chan struct{}
	swapErr error

	current *plugin.Plugin
}

func newReloadController(workers []*Worker, handler ReloadHandler) *reloadController {
	return &reloadController{workers: workers, handler: handler}
}

// Reload requests every worker quiesce, swaps in the plugin named by
// handler.PluginPath, runs OnReload once, then releases every worker.
// Returns ErrReload if either step failed (the underlying plugin.Open/
// OnReload error is logged, not returned, since only one worker ever
// performs the swap), matching the original's abort-on-reload-failure
// behavior — the caller is expected to treat a non-nil return as fatal.
func (c *reloadController) Reload() error {
	c.mu.Lock()
	c.ready = 0
	c.swapErr = nil
	c.barrier = make(chan struct{})
	barrier := c.barrier
	c.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(c.workers))
	for _, w := range c.workers {
		w.RequestReload(func() {
			defer wg.Done()
			c.arrive(barrier)
		})
	}
	wg.Wait()

	c.mu.Lock()
	err := c.swapErr
	c.mu.Unlock()
	if err != nil {
		return ErrReload
	}
	return nil
}

// arrive is run on each worker's own goroutine once it has processed its
// reload signal. The last arrival performs the swap and releases the
// barrier; everyone else just waits on it.
func (c *reloadController) arrive(barrier chan struct{}) {
	c.mu.Lock()
	c.ready++
	last := c.ready == len(c.workers)
	c.mu.Unlock()

	if last {
		c.swap()
		close(barrier)
		return
	}
	<-barrier
}

func (c *reloadController) swap() {
	if c.handler == nil {
		return
	}
	p, err := plugin.Open(c.handler.PluginPath())
	if err != nil {
		logError(getGlobalLogger(), "reload", "plugin.Open failed", 0, err)
		c.mu.Lock()
		c.swapErr = err
		c.mu.Unlock()
		return
	}
	if err := c.handler.OnReload(p); err != nil {
		logError(getGlobalLogger(), "reload", "OnReload failed", 0, err)
		c.mu.Lock()
		c.swapErr = err
		c.mu.Unlock()
		return
	}
	c.current = p
}
