//go:build windows

package reactor

import (
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

func unsafePointerOf(ov *windows.Overlapped) unsafe.Pointer {
	return unsafe.Pointer(ov)
}

// MaxFDLimit bounds dynamic growth of the handle table.
const MaxFDLimit = 100000000

const initialFDCap = 4096

type fdInfo struct {
	callback IOCallback
	events   IOEvents
	kind     FDKind
	active   bool
}

// opOverlapped is the completion key context IOCP hands back on every
// GetQueuedCompletionStatus call: the proactor model here preposts one
// overlapped recv (and, on backpressure, one overlapped send) per
// registered handle, and uses the completion itself as the "readable" or
// "writable" event — there is no separate readiness notification the way
// epoll/kqueue give one.
type opOverlapped struct {
	windows.Overlapped
	fd    int
	write bool
}

// poller is the IOCP-backed event-loop backend for one worker.
type poller struct { // betteralign:ignore
	_      [64]byte
	iocp   windows.Handle
	_      [56]byte
	fds    []fdInfo
	fdMu   sync.RWMutex
	closed atomic.Bool
}

func newPoller() (*poller, error) {
	iocp, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	return &poller{iocp: iocp, fds: make([]fdInfo, initialFDCap)}, nil
}

func (p *poller) Close() error {
	p.closed.Store(true)
	if p.iocp != 0 {
		_ = windows.CloseHandle(p.iocp)
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

// register associates handle fd with the completion port. The actual
// overlapped recv/send operations are submitted by the worker reactor
// (worker.go) after registration; IOCP has no separate "arm for read"
// step the way epoll/kqueue do.
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

	if _, err := windows.CreateIoCompletionPort(windows.Handle(fd), p.iocp, 0, 0); err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

// deregister stops dispatching callbacks for fd. Windows has no API to
// detach a handle from a completion port short of closing it; any
// in-flight overlapped op still completes and is silently dropped once the
// fd is marked inactive.
func (p *poller) deregister(fd int) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	p.fdMu.Unlock()
	return nil
}

func (p *poller) modify(fd int, events IOEvents) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	p.fdMu.Lock()
	defer p.fdMu.Unlock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		return ErrFDNotRegistered
	}
	p.fds[fd].events = events
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

// newWake creates the wake primitive for this poller. IOCP has no fd to
// register a wake pipe against, so the wakeFD instead holds this poller's
// own completion port handle and posts directly to it (see
// wakefd_windows.go).
func (p *poller) newWake() (*wakeFD, error) {
	return newWakeFDForPort(p.iocp)
}

// registerWake is a no-op on Windows: a nil-overlapped completion posted
// by wakeFD.signal already unblocks wait with no fd to arm, and the
// worker's main loop drains the mailbox unconditionally on every wakeup
// regardless of what unblocked it (see Worker.Run).
func (p *poller) registerWake(wk *wakeFD) error {
	return nil
}

// wait blocks for one completion and dispatches it as a synthetic readable
// or writable event, per the opOverlapped that completed.
func (p *poller) wait(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}

	var timeout uint32 = windows.INFINITE
	if timeoutMs >= 0 {
		timeout = uint32(timeoutMs)
	}

	var bytes uint32
	var key uintptr
	var ov *windows.Overlapped

	err := windows.GetQueuedCompletionStatus(p.iocp, &bytes, &key, &ov, timeout)
	if err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			if errno == windows.WAIT_TIMEOUT {
				return 0, nil
			}
			if errno == windows.ERROR_ABANDONED_WAIT_0 || errno == windows.ERROR_INVALID_HANDLE {
				return 0, ErrPollerClosed
			}
		}
		return 0, err
	}

	if ov == nil {
		// A wakeup posted via wakeFD.signal (PostQueuedCompletionStatus
		// with a nil overlapped) rather than an I/O completion.
		return 0, nil
	}

	op := (*opOverlapped)(unsafePointerOf(ov))
	p.fdMu.RLock()
	var info fdInfo
	if op.fd >= 0 && op.fd < len(p.fds) {
		info = p.fds[op.fd]
	}
	p.fdMu.RUnlock()

	if info.active && info.callback != nil {
		recordCompletionBytes(op.fd, bytes, op.write)
		if op.write {
			info.callback(EventWrite)
		} else {
			info.callback(EventRead)
		}
	}
	return 1, nil
}
