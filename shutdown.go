package reactor

import (
	"context"
	"sync"
)

// shutdownController fans a quit signal out to every worker and waits for
// all of their reactor goroutines to exit, grounded on the teacher's
// Loop.Shutdown/shutdownImpl (sync.Once-guarded, blocks on a done channel
// rather than polling) generalized from one loop to a worker pool, and on
// original_source/src/80s/80s_common.c's s80_quit (a quit byte fanned out
// to every worker's mailbox pipe) — reimplemented here as a direct
// Worker.RequestQuit call per the mailbox/control-signal split recorded
// in DESIGN.md, rather than a mailbox message.
type shutdownController struct {
	workers []*Worker

	once sync.Once
	err  error
	done chan struct{}
}

func newShutdownController(workers []*Worker) *shutdownController {
	return &shutdownController{workers: workers, done: make(chan struct{})}
}

// run launches every worker's reactor loop on its own goroutine and
// returns the WaitGroup tracking them, used by Shutdown to know when all
// have exited.
func (c *shutdownController) run() *sync.WaitGroup {
	var wg sync.WaitGroup
	wg.Add(len(c.workers))
	for _, w := range c.workers {
		go w.Run(&wg)
	}
	go func() {
		wg.Wait()
		close(c.done)
	}()
	return &wg
}

// Shutdown requests every worker quit and blocks until they have all
// exited or ctx expires, whichever comes first. Idempotent: a second call
// observes the same result as the first.
func (c *shutdownController) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		for _, w := range c.workers {
			w.RequestQuit()
		}
		select {
		case <-c.done:
		case <-ctx.Done():
			c.err = ctx.Err()
		}
	})
	return c.err
}
