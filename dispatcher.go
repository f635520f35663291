package reactor

import "sync/atomic"

// dispatcher assigns each freshly accepted connection to a target worker
// index, round-robin. Grounded on original_source/src/80s/80s_common.c's
// resolve_mail S80_MB_ACCEPT branch, where the accepting worker keeps its
// own "accepts" counter and increments it modulo the worker count — a
// counter per accepting worker, not one shared atomic, since only the
// worker(s) actually polling a listening socket ever advance it.
type dispatcher struct {
	workers  int
	counters []atomic.Uint32
}

// newDispatcher builds a dispatcher for workers worker indices, one
// independent counter per potential accepting worker so concurrent
// accept loops (multiple listening sockets on different workers) never
// contend on the same cache line.
func newDispatcher(workers int) *dispatcher {
	return &dispatcher{
		workers:  workers,
		counters: make([]atomic.Uint32, workers),
	}
}

// next returns the next target worker index for the given accepting
// worker's round-robin sequence.
func (d *dispatcher) next(accepting int) int {
	if d.workers <= 0 {
		return 0
	}
	if accepting < 0 || accepting >= len(d.counters) {
		accepting = 0
	}
	n := d.counters[accepting].Add(1) - 1
	return int(n % uint32(d.workers))
}
