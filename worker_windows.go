//go:build windows

package reactor

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// opState keeps an overlapped recv/send buffer alive for the duration of
// a pending IOCP operation — the Go garbage collector must never move or
// collect it while the kernel holds a pointer into it. Kept in a
// package-level side table rather than as a Worker field so the
// cross-platform Worker struct in worker.go stays free of
// platform-specific members.
type opState struct {
	op     opOverlapped
	buf    []byte
	wsabuf windows.WSABuf
}

var winIO = struct {
	mu   sync.Mutex
	recv map[int]*opState
	send map[int]*opState
}{
	recv: make(map[int]*opState),
	send: make(map[int]*opState),
}

// recordCompletionBytes is called by poller.wait (poller_windows.go)
// with the byte count GetQueuedCompletionStatus reported, since the
// IOCallback signature carries only IOEvents and not a byte count — the
// only place that number is available is the completion dequeue itself.
func recordCompletionBytes(fd int, n uint32, write bool) {
	winIO.mu.Lock()
	defer winIO.mu.Unlock()
	if write {
		if st := winIO.send[fd]; st != nil {
			st.buf = st.buf[:n]
		}
		return
	}
	if st := winIO.recv[fd]; st != nil {
		st.buf = st.buf[:n]
	}
}

// postRecv submits one overlapped WSARecv for fd, sized to size bytes.
// The completion (dispatched by poller.wait as an EventRead) is what
// drives Worker.onReadable on this backend — there is no separate
// "readable" notification to react to the way epoll/kqueue give one.
func postRecv(fd int, size int) error {
	st := &opState{buf: make([]byte, size)}
	st.op.fd = fd
	st.op.write = false
	st.wsabuf = windows.WSABuf{Len: uint32(len(st.buf)), Buf: &st.buf[0]}

	winIO.mu.Lock()
	winIO.recv[fd] = st
	winIO.mu.Unlock()

	var n, flags uint32
	return windows.WSARecv(windows.Handle(fd), &st.wsabuf, 1, &n, &flags, &st.op.Overlapped, nil)
}

func postSend(fd int, p []byte) error {
	st := &opState{buf: p}
	st.op.fd = fd
	st.op.write = true
	st.wsabuf = windows.WSABuf{Len: uint32(len(p)), Buf: &p[0]}

	winIO.mu.Lock()
	winIO.send[fd] = st
	winIO.mu.Unlock()

	var n uint32
	return windows.WSASend(windows.Handle(fd), &st.wsabuf, 1, &n, 0, &st.op.Overlapped, nil)
}

// takeRecvBuffer returns and clears the buffer posted for fd's most recent
// completed recv, called once from the dispatch callback before the next
// recv is re-posted.
func takeRecvBuffer(fd int) []byte {
	winIO.mu.Lock()
	st := winIO.recv[fd]
	delete(winIO.recv, fd)
	winIO.mu.Unlock()
	if st == nil {
		return nil
	}
	return st.buf
}

func clearSendState(fd int) {
	winIO.mu.Lock()
	delete(winIO.send, fd)
	winIO.mu.Unlock()
}

// rawRead is not used on the IOCP backend: reads arrive as completions of
// a previously posted WSARecv (see postRecv/takeRecvBuffer), not via a
// synchronous syscall after a readiness notification. It exists only to
// satisfy callers shared with the reactor backends and always reports
// would-block.
func rawRead(fd int, buf []byte) (int, error) {
	return 0, windows.WSAEWOULDBLOCK
}

// rawWrite posts an overlapped send and reports it as accepted-in-full;
// actual completion (and any failure) arrives later via the poller.
func rawWrite(fd int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := postSend(fd, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func rawClose(fd int) error {
	winIO.mu.Lock()
	delete(winIO.recv, fd)
	delete(winIO.send, fd)
	winIO.mu.Unlock()
	return windows.Closesocket(windows.Handle(fd))
}

func rawAccept(listenFD int) (int, FDKind, error) {
	nfd, _, err := windows.Accept(windows.Handle(listenFD))
	if err != nil {
		return -1, FDKindOther, err
	}
	return int(nfd), FDKindStreamSocket, nil
}

func isWouldBlock(err error) bool {
	return err == windows.WSAEWOULDBLOCK
}

// listenTCP creates a non-blocking, listening TCP socket, the Winsock
// equivalent of worker_unix.go's listenTCP (socket/SO_REUSEADDR/bind/
// listen), then flips on FIONBIO since WSASocket doesn't take a
// nonblocking flag the way Linux's SOCK_NONBLOCK does.
func listenTCP(host string, port int, v6 bool) (int, error) {
	family := windows.AF_INET
	if v6 {
		family = windows.AF_INET6
	}
	fd, err := windows.Socket(family, windows.SOCK_STREAM, windows.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err := windows.SetsockoptInt(fd, windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
		_ = windows.Closesocket(fd)
		return -1, err
	}

	var sa windows.Sockaddr
	if v6 {
		addr := &windows.SockaddrInet6{Port: port}
		copy(addr.Addr[:], parseIP16(host))
		sa = addr
	} else {
		addr := &windows.SockaddrInet4{Port: port}
		copy(addr.Addr[:], parseIP4(host))
		sa = addr
	}
	if err := windows.Bind(fd, sa); err != nil {
		_ = windows.Closesocket(fd)
		return -1, err
	}
	if err := windows.Listen(fd, 20000); err != nil {
		_ = windows.Closesocket(fd)
		return -1, err
	}

	var nonBlocking uint32 = 1
	var bytesReturned uint32
	if err := windows.WSAIoctl(fd, windows.FIONBIO, (*byte)(unsafePointerOfU32(&nonBlocking)), 4, nil, 0, &bytesReturned, nil, 0); err != nil {
		_ = windows.Closesocket(fd)
		return -1, err
	}
	return int(fd), nil
}

func unsafePointerOfU32(v *uint32) *byte {
	return (*byte)(unsafe.Pointer(v))
}

// afterAdopt submits the first overlapped recv for a newly adopted
// connection; without this, IOCP never delivers a first completion since
// there is no separate "arm for read" step on this backend.
func (w *Worker) afterAdopt(c *AsyncFD) {
	if err := postRecv(c.FD(), w.readBufSize); err != nil {
		logWarn(w.logger, "worker", "post initial recv failed", w.id, err)
	}
}

// onReadable consumes the buffer an overlapped recv just completed into,
// feeds it to c, and re-posts the next recv unless the connection
// observed EOF (a zero-length completion).
func (w *Worker) onReadable(c *AsyncFD) {
	data := takeRecvBuffer(c.FD())
	if len(data) == 0 {
		w.closeConn(c.FD())
		return
	}
	c.OnData(data)
	if err := postRecv(c.FD(), w.readBufSize); err != nil {
		logWarn(w.logger, "worker", "re-post recv failed", w.id, err)
		w.closeConn(c.FD())
	}
}
