package reactor

// ReadResult is what a read promise settles with: the bytes satisfying
// the request, or Error=true if the fd closed before the request could
// be satisfied (Data is empty in that case).
type ReadResult struct {
	Data  []byte
	Error bool
}

type readKind int

const (
	readKindAny readKind = iota
	readKindN
	readKindUntil
)

type readRequest struct {
	pr       *promise
	kind     readKind
	n        int
	scanner  *KMPScanner
	delimLen int
}

type writeRequest struct {
	pr     *promise
	length int
	sent   int
}

// Conn is the minimal raw I/O surface an AsyncFD needs from its owning
// worker: a non-blocking write attempt, a request to be notified when the
// fd becomes writable again, and OS-level teardown. Read completions are
// pushed into the AsyncFD by the worker via OnData, not pulled through
// this interface.
type Conn interface {
	WriteFD(fd int, p []byte) (int, error)
	ArmWritable(fd int) error
	CloseFD(fd int) error
}

// AsyncFD is the per-connection read/write state machine: one byte
// buffer and an ordered promise queue per direction, touched only by its
// owning worker's goroutine. Grounded on the original implementation's
// afd (modern/afd.hpp/afd.cpp): read_command/back_buffer become
// readRequest/writeRequest, kmp_state becomes the scanOffset carried
// across OnData calls, and dynstr becomes DynBuffer.
type AsyncFD struct {
	fd       int
	kind     FDKind
	workerID int
	conn     Conn

	closed    bool
	hasError  bool
	buffering bool

	readBuf      DynBuffer
	scanOffset   int
	readQueue    []*readRequest
	onEmptyQueue func()

	writeBuf   DynBuffer
	writeQueue []*writeRequest
}

// NewAsyncFD wraps fd (already accepted/connected and registered with the
// owning worker's poller) in a read/write state machine. Buffering starts
// enabled, matching the original's default.
func NewAsyncFD(fd int, kind FDKind, workerID int, conn Conn) *AsyncFD {
	return &AsyncFD{fd: fd, kind: kind, workerID: workerID, conn: conn, buffering: true}
}

func (a *AsyncFD) FD() int           { return a.fd }
func (a *AsyncFD) Kind() FDKind      { return a.kind }
func (a *AsyncFD) WorkerID() int     { return a.workerID }
func (a *AsyncFD) IsClosed() bool    { return a.closed }
func (a *AsyncFD) IsError() bool     { return a.hasError }
func (a *AsyncFD) SetKind(k FDKind)  { a.kind = k }
func (a *AsyncFD) SetBuffering(b bool) { a.buffering = b }

// MarkError flags the fd as having failed for a reason other than a
// clean EOF, for IsError() to report; called by the worker before
// HandleClose when the backend reports a real errno.
func (a *AsyncFD) MarkError() { a.hasError = true }

// SetOnEmptyQueue installs a hook invoked once, synchronously, whenever
// OnData observes an empty read queue — the mechanism that lets a
// handler install the very first read before any bytes are discarded.
func (a *AsyncFD) SetOnEmptyQueue(cb func()) { a.onEmptyQueue = cb }

// ReadAny returns a promise that resolves with whatever bytes are
// available the next time the buffer is non-empty.
func (a *AsyncFD) ReadAny() Promise {
	return a.enqueueRead(&readRequest{kind: readKindAny})
}

// ReadN returns a promise that resolves once at least n bytes have
// accumulated, with exactly the first n.
func (a *AsyncFD) ReadN(n int) Promise {
	return a.enqueueRead(&readRequest{kind: readKindN, n: n})
}

// ReadUntil returns a promise that resolves with everything up to (but
// not including) the first occurrence of delim, which is itself
// discarded from the stream. A delimiter split across chunk boundaries
// is matched exactly once via the carried scanOffset.
func (a *AsyncFD) ReadUntil(delim []byte) Promise {
	return a.enqueueRead(&readRequest{kind: readKindUntil, scanner: NewKMPScanner(delim), delimLen: len(delim)})
}

func (a *AsyncFD) enqueueRead(req *readRequest) Promise {
	p := newPromise()
	req.pr = p
	if a.closed {
		p.Resolve(ReadResult{Error: true})
		return p
	}
	// Enqueuing does not itself drive the state machine; draining
	// happens on the next OnData call.
	a.readQueue = append(a.readQueue, req)
	return p
}

// OnData feeds one inbound chunk (possibly zero-length, signaling "check
// the queue" without new bytes) through the read state machine.
func (a *AsyncFD) OnData(chunk []byte) {
	if a.closed {
		return
	}

	if len(a.readQueue) == 0 && a.onEmptyQueue != nil {
		a.onEmptyQueue()
	}

	if len(chunk) == 0 && a.readBuf.Len() == 0 {
		return
	}
	if len(chunk) > 0 {
		a.readBuf.Write(chunk)
	}

readLoop:
	for a.readBuf.Len() > 0 && len(a.readQueue) > 0 {
		req := a.readQueue[0]
		window := a.readBuf.Bytes()

		switch req.kind {
		case readKindAny:
			data := append([]byte(nil), window...)
			a.readBuf.Discard(len(window))
			a.readQueue = a.readQueue[1:]
			req.pr.Resolve(ReadResult{Data: data})
			break readLoop

		case readKindN:
			if len(window) < req.n {
				break readLoop
			}
			data := append([]byte(nil), window[:req.n]...)
			a.readBuf.Discard(req.n)
			a.readQueue = a.readQueue[1:]
			req.pr.Resolve(ReadResult{Data: data})

		case readKindUntil:
			res := req.scanner.Scan(window, a.scanOffset)
			if res.Length == req.delimLen {
				data := append([]byte(nil), window[:res.Offset]...)
				a.readBuf.Discard(res.Offset + req.delimLen)
				a.scanOffset = 0
				a.readQueue = a.readQueue[1:]
				req.pr.Resolve(ReadResult{Data: data})
			} else {
				a.scanOffset = res.Offset
				break readLoop
			}
		}
	}

	if a.readBuf.Len() == 0 || (!a.buffering && len(a.readQueue) == 0) {
		a.readBuf.Reset()
		a.scanOffset = 0
	}
}

// Write appends data to the write buffer and returns a promise that
// resolves to true once the backend has acknowledged every byte of this
// call, or false on fd failure/close. If no other write is already
// outstanding, an immediate non-blocking flush attempt is made.
func (a *AsyncFD) Write(data []byte) Promise {
	p := newPromise()
	if a.closed {
		p.Resolve(false)
		return p
	}
	a.writeBuf.Write(data)
	req := &writeRequest{pr: p, length: len(data)}
	a.writeQueue = append(a.writeQueue, req)
	if len(a.writeQueue) == 1 {
		a.attemptWrite()
	}
	return p
}

// OnWritable is invoked by the owning worker after the backend reports
// the fd writable (a one-shot event on edge-triggered backends), giving
// the buffered write queue a chance to keep flushing.
func (a *AsyncFD) OnWritable() {
	if a.closed {
		return
	}
	a.attemptWrite()
}

// attemptWrite offers the entire unsent window to the backend in one
// non-blocking write, resolves promises against however many bytes were
// actually accepted, and keeps looping while the backend keeps accepting
// the full amount offered and more remains.
func (a *AsyncFD) attemptWrite() {
	for {
		unsent := a.writeBuf.Bytes()
		if len(unsent) == 0 {
			return
		}
		n, err := a.conn.WriteFD(a.fd, unsent)
		if err != nil || n < 0 {
			a.failAllWrites()
			return
		}
		if n == 0 {
			_ = a.conn.ArmWritable(a.fd)
			return
		}

		full := n == len(unsent)
		a.writeBuf.Discard(n)
		a.resolveWrites(n)

		if len(a.writeQueue) == 0 {
			a.writeBuf.Reset()
			return
		}
		if !full {
			_ = a.conn.ArmWritable(a.fd)
			return
		}
	}
}

// resolveWrites walks the write-promise queue head, settling every
// promise whose cumulative sent bytes now reach its length, in FIFO
// order, consuming n bytes of backend-reported progress as it goes.
func (a *AsyncFD) resolveWrites(n int) {
	for n > 0 && len(a.writeQueue) > 0 {
		req := a.writeQueue[0]
		remaining := req.length - req.sent
		if n >= remaining {
			n -= remaining
			req.sent = req.length
			a.writeQueue = a.writeQueue[1:]
			req.pr.Resolve(true)
		} else {
			req.sent += n
			n = 0
		}
	}
}

func (a *AsyncFD) failAllWrites() {
	for _, req := range a.writeQueue {
		req.pr.Resolve(false)
	}
	a.writeQueue = nil
	a.writeBuf.Reset()
}

// Close tears down the OS-level fd via Conn.CloseFD, then runs the same
// internal teardown HandleClose runs when the backend itself detects
// EOF/hangup. Idempotent.
func (a *AsyncFD) Close() error {
	if a.closed {
		return nil
	}
	err := a.conn.CloseFD(a.fd)
	a.HandleClose()
	return err
}

// HandleClose resolves every outstanding read promise with Error=true
// and every outstanding write promise with false, then frees the
// buffers. It does not touch the OS fd — callers that detected EOF/
// hangup on the backend have already decided to deregister/close it
// themselves. Idempotent, so Close can always call it safely.
func (a *AsyncFD) HandleClose() {
	if a.closed {
		return
	}
	a.closed = true
	for _, req := range a.readQueue {
		req.pr.Resolve(ReadResult{Error: true})
	}
	a.readQueue = nil
	for _, req := range a.writeQueue {
		req.pr.Resolve(false)
	}
	a.writeQueue = nil
	a.readBuf.Reset()
	a.writeBuf.Reset()
	a.scanOffset = 0
}
