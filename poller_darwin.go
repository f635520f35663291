//go:build darwin

package reactor

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// MaxFDLimit bounds dynamic growth of the fd table; generous enough for any
// ulimit -n a production host would realistically raise to.
const MaxFDLimit = 100000000

const initialFDCap = 4096

type fdInfo struct {
	callback IOCallback
	events   IOEvents
	kind     FDKind
	active   bool
}

// poller is the kqueue-backed event-loop backend for one worker.
//
// Unlike epoll's fixed-size direct array, kqueue hosts grow their fd table
// on demand via a dynamic slice, since Darwin/BSD fd numbers are not as
// tightly bounded in practice.
type poller struct { // betteralign:ignore
	_        [64]byte
	kq       int32
	_        [60]byte
	eventBuf [256]unix.Kevent_t
	fds      []fdInfo
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

func newPoller() (*poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &poller{kq: int32(kq), fds: make([]fdInfo, initialFDCap)}, nil
}

func (p *poller) Close() error {
	p.closed.Store(true)
	if p.kq > 0 {
		return unix.Close(int(p.kq))
	}
	return nil
}

func (p *poller) grow(fd int) {
	if fd < len(p.fds) {
		return
	}
	newSize := fd*2 + 1
	if newSize > MaxFDLimit {
		newSize = MaxFDLimit + 1
	}
	newFds := make([]fdInfo, newSize)
	copy(newFds, p.fds)
	p.fds = newFds
}

// register adds fd to the kqueue set. Pipes register EV_CLEAR (edge
// triggered, so a hung-up pipe that has been fully drained stops
// signaling), stream/KTLS sockets register level-triggered reads and
// EV_ONESHOT writes — a write-readiness event is consumed once and must be
// re-armed by the caller after draining its write-promise queue, matching
// the original server's kqueue write-retry behavior.
func (p *poller) register(fd int, kind FDKind, events IOEvents, cb IOCallback) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= MaxFDLimit {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	p.grow(fd)
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, kind: kind, active: true}
	p.fdMu.Unlock()

	kevents := p.eventsToKevents(fd, kind, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevents) > 0 {
		if _, err := unix.Kevent(int(p.kq), kevents, nil, nil); err != nil {
			p.fdMu.Lock()
			p.fds[fd] = fdInfo{}
			p.fdMu.Unlock()
			return err
		}
	}
	return nil
}

// deregister removes fd from monitoring.
//
// Dispatch copies the callback under RLock then runs it outside the lock,
// so a deregister racing an in-flight dispatch can still let that one
// callback invocation run after deregister returns. Callers must not close
// an fd until they know its callback isn't running (e.g. by deregistering
// from the same worker goroutine that also dispatches).
func (p *poller) deregister(fd int) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	kind := p.fds[fd].kind
	events := p.fds[fd].events
	p.fds[fd] = fdInfo{}
	p.fdMu.Unlock()

	kevents := p.eventsToKevents(fd, kind, events, unix.EV_DELETE)
	if len(kevents) > 0 {
		_, _ = unix.Kevent(int(p.kq), kevents, nil, nil)
	}
	return nil
}

func (p *poller) modify(fd int, events IOEvents) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	kind := p.fds[fd].kind
	oldEvents := p.fds[fd].events
	p.fds[fd].events = events
	p.fdMu.Unlock()

	if oldEvents&^events != 0 {
		del := p.eventsToKevents(fd, kind, oldEvents&^events, unix.EV_DELETE)
		if len(del) > 0 {
			_, _ = unix.Kevent(int(p.kq), del, nil, nil)
		}
	}
	if events&^oldEvents != 0 {
		add := p.eventsToKevents(fd, kind, events&^oldEvents, unix.EV_ADD|unix.EV_ENABLE)
		if len(add) > 0 {
			if _, err := unix.Kevent(int(p.kq), add, nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *poller) setKind(fd int, kind FDKind) error {
	p.fdMu.Lock()
	defer p.fdMu.Unlock()
	if fd < 0 || fd >= len(p.fds) || !p.fds[fd].active {
		return ErrFDNotRegistered
	}
	p.fds[fd].kind = kind
	return nil
}

func (p *poller) wait(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}

	n, err := unix.Kevent(int(p.kq), nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	p.dispatchEvents(n)
	return n, nil
}

func (p *poller) dispatchEvents(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		if fd < 0 {
			continue
		}
		p.fdMu.RLock()
		var info fdInfo
		if fd < len(p.fds) {
			info = p.fds[fd]
		}
		p.fdMu.RUnlock()
		if info.active && info.callback != nil {
			info.callback(keventToEvents(&p.eventBuf[i]))
		}
	}
}

// newWake creates the wake primitive for this poller. On Darwin it is a
// plain eventfd-equivalent pipe, independent of the kqueue instance until
// registered.
func (p *poller) newWake() (*wakeFD, error) {
	return newWakeFD()
}

// registerWake arms the wake primitive with this poller so wakeFD.signal
// interrupts a blocked wait promptly; the worker's main loop (not this
// callback) is responsible for draining the mailbox on every wakeup, so
// the callback here only drains the pipe itself.
func (p *poller) registerWake(wk *wakeFD) error {
	return p.register(wk.readFD(), FDKindPipe, EventRead, func(IOEvents) { wk.drain() })
}

func (p *poller) eventsToKevents(fd int, kind FDKind, events IOEvents, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if events&EventRead != 0 {
		f := flags
		if kind == FDKindPipe {
			f |= unix.EV_CLEAR
		}
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: f})
	}
	if events&EventWrite != 0 {
		f := flags
		if kind == FDKindStreamSocket || kind == FDKindKTLSSocket {
			f |= unix.EV_ONESHOT
		}
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: f})
	}
	return out
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
