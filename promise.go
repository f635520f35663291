package reactor

import (
	"log"
	"sync"
)

// Result is the value carried by a settled [Promise]. For an AsyncFD read
// promise it is a [ReadResult]; for an AsyncFD write promise it is a bool
// (true once every byte was accepted, false on failure or close); for a
// rejected promise it is always an error.
type Result = any

// PromiseState is the lifecycle state of a [Promise]. A promise starts
// Pending and transitions exactly once to either Resolved or Rejected.
type PromiseState int

const (
	Pending PromiseState = iota
	Resolved
	Rejected
)

// Fulfilled is an alias for Resolved, kept for readability at call sites
// that check "did this resolve successfully".
const Fulfilled = Resolved

// Promise is a read-only view of a future result delivered by an
// [AsyncFD] read or write request. Unlike a full Promise/A+ implementation,
// there is no Then/Catch chaining here — observers read settlement through
// ToChannel or by polling State/Result.
type Promise interface {
	State() PromiseState
	Result() Result
	ToChannel() <-chan Result
}

// promise is the concrete, single-shot Promise implementation. It is
// deliberately minimal: one subscriber list, one mutex, one settlement.
type promise struct {
	result      Result
	subscribers []chan Result
	state       PromiseState
	mu          sync.Mutex
}

var _ Promise = (*promise)(nil)

func newPromise() *promise {
	return &promise{}
}

func (p *promise) State() PromiseState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *promise) Result() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// ToChannel returns a buffered, single-value channel that receives the
// result when the promise settles. If already settled, the channel is
// pre-filled and closed.
func (p *promise) ToChannel() <-chan Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Result, 1)
	if p.state != Pending {
		ch <- p.result
		close(ch)
		return ch
	}
	p.subscribers = append(p.subscribers, ch)
	return ch
}

// Resolve settles the promise successfully. A no-op if already settled.
func (p *promise) Resolve(val Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Pending {
		return
	}
	p.state = Fulfilled
	p.result = val
	p.fanOut()
}

// Reject settles the promise with an error. A no-op if already settled.
func (p *promise) Reject(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Pending {
		return
	}
	p.state = Rejected
	p.result = err
	p.fanOut()
}

// fanOut notifies every subscriber channel. Must be called with p.mu held.
func (p *promise) fanOut() {
	for _, ch := range p.subscribers {
		select {
		case ch <- p.result:
		default:
			log.Printf("reactor: dropped promise result, subscriber channel full")
		}
		close(ch)
	}
	p.subscribers = nil
}
