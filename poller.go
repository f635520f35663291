// Package reactor implements a multi-worker, epoll/kqueue/IOCP reactor
// server runtime: a fixed pool of OS-thread workers, each running its own
// event-loop backend, mailbox, and set of asynchronous file descriptors.
//
// # Event-loop backend
//
// Every worker owns exactly one poller instance, implemented per platform:
//   - Linux: epoll (poller_linux.go)
//   - Darwin/BSD: kqueue (poller_darwin.go)
//   - Windows: IOCP (poller_windows.go)
//
// All three expose the same register/modify/deregister/wait surface so the
// worker reactor (worker.go) never branches on platform.
package reactor

import "errors"

// IOEvents is a bitset of I/O readiness conditions reported by a poller.
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
	EventHangup
)

// FDKind tags what a registered fd actually is, so the worker reactor can
// apply the right framing and so the backend can pick the right
// registration mode (e.g. on epoll, edge-triggered for sockets and
// level-triggered for pipes; on kqueue, EV_CLEAR for pipes and EV_ONESHOT
// for socket writability).
type FDKind int

const (
	FDKindStreamSocket FDKind = iota
	FDKindKTLSSocket
	FDKindServerSocket
	FDKindPipe
	FDKindOther
)

// IOCallback is invoked by a poller when a registered fd becomes ready.
type IOCallback func(IOEvents)

// Sentinel errors returned by every platform's poller implementation.
var (
	ErrFDOutOfRange        = errors.New("reactor: fd out of range")
	ErrFDAlreadyRegistered = errors.New("reactor: fd already registered")
	ErrFDNotRegistered     = errors.New("reactor: fd not registered")
	ErrPollerClosed        = errors.New("reactor: poller closed")
)
