//go:build linux

package reactor

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// maxFDs bounds the direct-indexed fd table. 65536 comfortably exceeds the
// default RLIMIT_NOFILE on every Linux distribution this runtime targets.
const maxFDs = 65536

// fdInfo stores per-fd registration state: the kind tag reported alongside
// every event (see FDKind) and the callback to run.
type fdInfo struct {
	callback IOCallback
	events   IOEvents
	kind     FDKind
	active   bool
}

// poller is the epoll-backed event-loop backend. One poller belongs to
// exactly one worker; it is never shared across OS threads.
//
// Registration uses a direct array rather than a map for O(1) lookup
// without hashing, and RWMutex access so wait's dispatch loop can proceed
// without blocking concurrent registrations on other fds.
type poller struct { // betteralign:ignore
	_        [64]byte
	epfd     int32
	_        [60]byte
	version  atomic.Uint64
	_        [56]byte
	eventBuf [256]unix.EpollEvent
	fds      [maxFDs]fdInfo
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	p := &poller{epfd: int32(epfd)}
	return p, nil
}

func (p *poller) Close() error {
	p.closed.Store(true)
	if p.epfd > 0 {
		return unix.Close(int(p.epfd))
	}
	return nil
}

// register adds fd to the epoll set. Stream sockets and KTLS sockets are
// registered edge-triggered (EPOLLET); pipes are level-triggered so a
// partially-drained pipe keeps signaling readable.
func (p *poller) register(fd int, kind FDKind, events IOEvents, cb IOCallback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, kind: kind, active: true}
	p.version.Add(1)
	p.fdMu.Unlock()

	ev := &unix.EpollEvent{Events: eventsToEpoll(events, kind), Fd: int32(fd)}
	if err := unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

func (p *poller) deregister(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	p.version.Add(1)
	p.fdMu.Unlock()
	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *poller) modify(fd int, events IOEvents) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	kind := p.fds[fd].kind
	p.fds[fd].events = events
	p.version.Add(1)
	p.fdMu.Unlock()

	ev := &unix.EpollEvent{Events: eventsToEpoll(events, kind), Fd: int32(fd)}
	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_MOD, fd, ev)
}

// setKind atomically retags a registered fd's kind without touching its
// epoll registration, used by the KTLS upgrade path (see codec.go).
func (p *poller) setKind(fd int, kind FDKind) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	defer p.fdMu.Unlock()
	if !p.fds[fd].active {
		return ErrFDNotRegistered
	}
	p.fds[fd].kind = kind
	return nil
}

// wait polls for I/O events and dispatches callbacks inline, returning the
// number of ready fds.
func (p *poller) wait(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}

	v := p.version.Load()

	n, err := unix.EpollWait(int(p.epfd), p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	if p.version.Load() != v {
		// Registrations changed mid-wait; the returned event slots may
		// reference fds that moved, so discard this batch rather than
		// risk delivering a callback to the wrong registration.
		return 0, nil
	}

	p.dispatchEvents(n)
	return n, nil
}

func (p *poller) dispatchEvents(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd < 0 || fd >= maxFDs {
			continue
		}
		p.fdMu.RLock()
		info := p.fds[fd]
		p.fdMu.RUnlock()
		if info.active && info.callback != nil {
			info.callback(epollToEvents(p.eventBuf[i].Events))
		}
	}
}

// newWake creates the wake primitive for this poller. On Linux it is a
// plain eventfd, independent of the epoll instance until registered.
func (p *poller) newWake() (*wakeFD, error) {
	return newWakeFD()
}

// registerWake arms the wake primitive with this poller so wakeFD.signal
// interrupts a blocked wait promptly; the worker's main loop (not this
// callback) is responsible for draining the mailbox on every wakeup, so
// the callback here only drains the eventfd itself.
func (p *poller) registerWake(wk *wakeFD) error {
	return p.register(wk.readFD(), FDKindPipe, EventRead, func(IOEvents) { wk.drain() })
}

func eventsToEpoll(events IOEvents, kind FDKind) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	if kind == FDKindStreamSocket || kind == FDKindKTLSSocket {
		e |= unix.EPOLLET
	}
	return e
}

func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
