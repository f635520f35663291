package reactor

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// pollTimeoutMs bounds how long a single poller.wait call may block, so a
// worker re-checks its quit/reload flags periodically even on a backend
// whose wakeFD registration is itself lost or starved. wakeFD.signal still
// interrupts wait immediately in the common case; this is only the floor.
const pollTimeoutMs = 250

// Handler receives lifecycle callbacks from the worker that owns a
// connection. OnAccept runs once, on whichever worker the connection was
// dispatched to, before that worker's poller ever reports it readable.
type Handler interface {
	OnAccept(conn *AsyncFD)
}

// UserMessageHandler is an optional extension a Handler may also
// implement to receive MailUser deliveries posted via Mailbox.PostUser.
type UserMessageHandler interface {
	OnUserMessage(senderWorkerID int, payload any)
}

// Worker is one reactor thread: its own poller, mailbox, and set of
// AsyncFDs, touched only from the goroutine running Worker.Run — except
// for the mailbox itself and the quit/reloading flags, which are the
// cross-worker surface other workers, the dispatcher, and the reload/
// shutdown controllers reach through.
//
// Grounded on original_source/src/80s/serve.epoll.c's serve(): one thread
// per worker, a self-pipe for control signals, a server-socket-owning
// worker (id 0) that also reaps SIGCHLD, and a round-robin "accepts"
// counter handing freshly accepted connections to their target worker via
// mailbox when the target isn't the accepting worker itself.
type Worker struct {
	id      int
	poller  *poller
	mailbox *Mailbox
	wake    *wakeFD

	state     *FastState
	quit      atomic.Bool
	reloading atomic.Bool
	onReload  func()

	handler     Handler
	readBufSize int
	logger      Logger
	metrics     *Metrics

	connsMu sync.Mutex
	conns   map[int]*AsyncFD

	listenFD   int
	dispatcher *dispatcher
	roster     []*Worker

	sigChan <-chan struct{}

	wg *sync.WaitGroup
}

func newWorker(id int, opts *serverOptions, handler Handler, metrics *Metrics) (*Worker, error) {
	p, err := newPoller()
	if err != nil {
		return nil, WrapError("reactor: create poller", err)
	}
	wk, err := p.newWake()
	if err != nil {
		_ = p.Close()
		return nil, WrapError("reactor: create wake fd", err)
	}

	w := &Worker{
		id:          id,
		poller:      p,
		wake:        wk,
		state:       NewFastState(),
		handler:     handler,
		readBufSize: opts.readBufSize,
		logger:      opts.logger,
		metrics:     metrics,
		conns:       make(map[int]*AsyncFD),
		listenFD:    -1,
	}
	w.mailbox = NewMailbox(wk)

	if err := p.registerWake(wk); err != nil {
		_ = p.Close()
		_ = wk.close()
		return nil, WrapError("reactor: register wake fd", err)
	}
	return w, nil
}

// SetRoster gives a worker the full worker set, so it can hand off
// accepted connections to a peer's mailbox. Called once by the server
// constructor before any worker starts running.
func (w *Worker) SetRoster(roster []*Worker) { w.roster = roster }

// SetDispatcher installs the round-robin accept assignment strategy.
func (w *Worker) SetDispatcher(d *dispatcher) { w.dispatcher = d }

// ListenOn registers fd as the listening socket this worker polls for
// incoming connections; only worker 0 is expected to own one.
func (w *Worker) ListenOn(fd int) error {
	w.listenFD = fd
	return w.poller.register(fd, FDKindServerSocket, EventRead, w.onListenReadable)
}

// ListenForSignals installs the channel worker 0 polls for SIGCHLD
// notifications (see reaper.go), read once per wakeup.
func (w *Worker) ListenForSignals(ch <-chan struct{}) { w.sigChan = ch }

// RequestQuit sets the quit flag and wakes the worker immediately rather
// than waiting out a poll timeout, matching S80_SIGNAL_QUIT.
func (w *Worker) RequestQuit() {
	w.quit.Store(true)
	_ = w.wake.signal()
}

// RequestReload arms the worker to run onReload from inside its own
// goroutine on the next wakeup, then clears the reloading flag, matching
// S80_SIGNAL_STOP's pre_refresh_context/refresh_context dance without
// tearing the worker's own loop down.
func (w *Worker) RequestReload(onReload func()) {
	w.onReload = onReload
	w.reloading.Store(true)
	_ = w.wake.signal()
}

// State exposes the worker's lifecycle state for controllers polling
// quiesce progress.
func (w *Worker) State() *FastState { return w.state }

// ID reports the worker's index in the roster.
func (w *Worker) ID() int { return w.id }

// Run is the worker's main loop. It blocks until the quit flag is set or
// the poller reports it closed, and must be launched on its own goroutine,
// which it pins to one OS thread for its lifetime.
// wg, if non-nil, is marked done exactly once on return.
func (w *Worker) Run(wg *sync.WaitGroup) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	w.wg = wg
	if !w.state.TryTransition(StateAwake, StateRunning) {
		if wg != nil {
			wg.Done()
		}
		return
	}

	logInfo(w.logger, "worker", "started", w.id)
	defer func() {
		w.state.Store(StateTerminating)
		w.drainAllConns()
		_ = w.poller.Close()
		_ = w.wake.close()
		w.state.Store(StateTerminated)
		logInfo(w.logger, "worker", "stopped", w.id)
		if w.wg != nil {
			w.wg.Done()
		}
	}()

	for {
		if w.quit.Load() {
			return
		}

		w.state.Store(StateSleeping)
		_, err := w.poller.wait(pollTimeoutMs)
		w.state.Store(StateRunning)

		if err != nil {
			if err == ErrPollerClosed {
				return
			}
			logError(w.logger, "worker", "poller wait failed", w.id, err)
			continue
		}

		w.onMailboxWake(0)

		if w.quit.Load() {
			return
		}
		if w.reloading.Load() {
			w.runReload()
		}
	}
}

func (w *Worker) runReload() {
	fn := w.onReload
	w.onReload = nil
	w.reloading.Store(false)
	if fn != nil {
		logInfo(w.logger, "worker", "quiescing for reload", w.id)
		fn()
	}
}

func (w *Worker) drainAllConns() {
	w.connsMu.Lock()
	conns := make([]*AsyncFD, 0, len(w.conns))
	for _, c := range w.conns {
		conns = append(conns, c)
	}
	w.conns = make(map[int]*AsyncFD)
	w.connsMu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// onMailboxWake drains every queued mailbox message and dispatches each
// by kind. Run calls this once per loop iteration after every poller.wait
// return, regardless of what unblocked it. A registered wake fd callback
// (where one exists; see poller.registerWake) only has to interrupt the
// blocking wait, not fan out to the mailbox itself, since IOCP's
// nil-overlapped wakeups have no fd to hang a callback off of.
func (w *Worker) onMailboxWake(events IOEvents) {
	if w.sigChan != nil {
		select {
		case <-w.sigChan:
			reapChildren(w.logger, w.id)
		default:
		}
	}

	msgs := w.mailbox.Drain()
	if w.metrics != nil {
		w.metrics.Queue.UpdateMailbox(len(msgs))
	}
	for _, msg := range msgs {
		w.handleMail(msg)
	}
}

func (w *Worker) handleMail(msg mailMessage) {
	switch msg.kind {
	case MailAccept:
		w.adoptConn(msg.receiverFD, msg.fk)
	case MailClose:
		w.closeConn(msg.receiverFD)
	case MailRead:
		if fd, ok := w.lookupConn(msg.receiverFD); ok {
			if data, ok := msg.payload.([]byte); ok {
				fd.OnData(data)
			}
		}
	case MailWrite:
		if fd, ok := w.lookupConn(msg.receiverFD); ok {
			fd.OnWritable()
		}
	case MailUser:
		if h, ok := w.handler.(UserMessageHandler); ok {
			h.OnUserMessage(msg.senderWorkerID, msg.payload)
		}
	}
}

// onListenReadable drains every pending connection on the listening
// socket in one pass (level-triggered accept is always safe to drain
// greedily), handing each to the dispatcher's chosen target worker.
func (w *Worker) onListenReadable(events IOEvents) {
	for {
		fd, kind, err := rawAccept(w.listenFD)
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			logWarn(w.logger, "worker", "accept failed", w.id, err)
			return
		}

		target := 0
		if w.dispatcher != nil {
			target = w.dispatcher.next(w.id)
		}

		if target == w.id || target >= len(w.roster) {
			w.adoptConn(fd, kind)
			continue
		}
		w.roster[target].mailbox.PostAccept(w.id, fd, kind)
	}
}

func (w *Worker) adoptConn(fd int, kind FDKind) {
	c := NewAsyncFD(fd, kind, w.id, w)

	w.connsMu.Lock()
	w.conns[fd] = c
	w.connsMu.Unlock()

	if err := w.poller.register(fd, kind, EventRead, func(events IOEvents) { w.onConnEvent(c, events) }); err != nil {
		logError(w.logger, "worker", "register accepted fd", w.id, err)
		w.connsMu.Lock()
		delete(w.conns, fd)
		w.connsMu.Unlock()
		c.HandleClose()
		_ = rawClose(fd)
		return
	}

	w.afterAdopt(c)

	if w.handler != nil {
		w.handler.OnAccept(c)
	}
}

func (w *Worker) lookupConn(fd int) (*AsyncFD, bool) {
	w.connsMu.Lock()
	c, ok := w.conns[fd]
	w.connsMu.Unlock()
	return c, ok
}

func (w *Worker) closeConn(fd int) {
	w.connsMu.Lock()
	c, ok := w.conns[fd]
	delete(w.conns, fd)
	w.connsMu.Unlock()
	if ok {
		_ = c.Close()
	}
}

// onConnEvent handles one poller-reported readiness event for a
// worker-owned connection, matching serve.epoll.c's per-fd branch: writes
// first, then a read pass appropriate to the backend (see onReadable,
// implemented per platform), then, on hangup/error, teardown of the
// connection if the read pass has not already closed it.
func (w *Worker) onConnEvent(c *AsyncFD, events IOEvents) {
	if events&EventWrite != 0 {
		_ = w.poller.modify(c.FD(), EventRead)
		c.OnWritable()
	}

	if events&EventRead != 0 {
		start := time.Now()
		w.onReadable(c)
		if w.metrics != nil {
			w.metrics.Latency.Record(time.Since(start))
		}
	}

	if !c.IsClosed() && events&(EventError|EventHangup) != 0 {
		c.MarkError()
		w.closeConn(c.FD())
	}
}

// WriteFD, ArmWritable, and CloseFD implement the Conn interface AsyncFD
// uses for its raw I/O, routing through the worker so the same fd table
// lock discipline and poller registration apply to writes as to reads.
func (w *Worker) WriteFD(fd int, p []byte) (int, error) { return rawWrite(fd, p) }

func (w *Worker) ArmWritable(fd int) error { return w.poller.modify(fd, EventRead|EventWrite) }

func (w *Worker) CloseFD(fd int) error {
	_ = w.poller.deregister(fd)
	return rawClose(fd)
}
