package reactor

import (
	"context"
	"runtime"
	"sync"
)

// Server is the top-level reactor runtime: a fixed pool of workers, a
// listening socket owned by worker 0, and the dispatcher/reload/shutdown
// controllers wired around them. Grounded on original_source/src/main.c's
// startup sequence (parse args, create socket, spawn one thread per
// worker) and the teacher's top-level constructor/run/shutdown shape.
type Server struct {
	opts    *serverOptions
	workers []*Worker
	roster  []*Worker

	dispatcher *dispatcher
	shutdown   *shutdownController
	reload     *reloadController

	listenFD int

	mu      sync.Mutex
	metrics *Metrics
	serving bool
}

// New constructs a Server from the given options, resolving workers <= 0
// to runtime.NumCPU() (resolveServerOptions intentionally leaves that
// default to the constructor, since it is a property of the machine the
// server runs on, not a pure option-merge concern).
func New(handler Handler, opts ...ServerOption) (*Server, error) {
	cfg := resolveServerOptions(opts)
	if cfg.workers <= 0 {
		cfg.workers = runtime.NumCPU()
	}

	var metrics *Metrics
	if cfg.metricsEnabled {
		metrics = &Metrics{}
	}

	workers := make([]*Worker, cfg.workers)
	for i := range workers {
		w, err := newWorker(i, cfg, handler, metrics)
		if err != nil {
			for _, started := range workers[:i] {
				if started != nil {
					_ = started.poller.Close()
					_ = started.wake.close()
				}
			}
			return nil, WrapError("reactor: create worker", err)
		}
		workers[i] = w
	}
	for _, w := range workers {
		w.SetRoster(workers)
	}

	d := newDispatcher(cfg.workers)
	for _, w := range workers {
		w.SetDispatcher(d)
	}

	s := &Server{
		opts:       cfg,
		workers:    workers,
		roster:     workers,
		dispatcher: d,
		shutdown:   newShutdownController(workers),
		listenFD:   -1,
		metrics:    metrics,
	}
	return s, nil
}

// SetReloadHandler installs the reload handler used by Reload. Optional —
// a Server with no reload handler simply can't be reloaded.
func (s *Server) SetReloadHandler(h ReloadHandler) {
	s.reload = newReloadController(s.workers, h)
}

// Listen binds and starts listening on TCP host:port (an empty host means
// every interface), registering the socket with worker 0, which alone ever
// accepts. Unix-domain listening sockets are not supported here.
func (s *Server) Listen(host string, port int, v6 bool) error {
	fd, err := listenTCP(host, port, v6)
	if err != nil {
		return WrapError("reactor: listen", err)
	}
	if err := s.workers[0].ListenOn(fd); err != nil {
		_ = rawClose(fd)
		return WrapError("reactor: register listener", err)
	}
	s.listenFD = fd
	return nil
}

// Serve starts every worker's reactor loop and blocks until ctx is
// canceled, then runs a graceful shutdown (quit every worker, wait for
// their loops to exit) before returning. Worker 0 additionally drains
// SIGCHLD notifications for the lifetime of the call.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.serving {
		s.mu.Unlock()
		return ErrStartup
	}
	s.serving = true
	s.mu.Unlock()

	sigCh, stopSig := newSigchldChannel()
	defer stopSig()
	s.workers[0].ListenForSignals(sigCh)

	s.shutdown.run()

	<-ctx.Done()
	return s.shutdown.Shutdown(context.Background())
}

// Reload performs a live code swap across every worker. See
// reloadController for the quiesce/swap/release protocol.
func (s *Server) Reload() error {
	if s.reload == nil {
		return WrapError("reactor: reload", ErrReload)
	}
	if err := s.reload.Reload(); err != nil {
		return WrapError("reactor: reload", err)
	}
	return nil
}

// Shutdown requests every worker stop and waits for them to exit or ctx
// to expire. Safe to call more than once. If Serve was never invoked, no
// worker loop is running, so Shutdown returns only when ctx expires, with
// ctx's error.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.shutdown.Shutdown(ctx)
}

// Metrics returns the live server-wide metrics that every worker records
// into (not a copy), or nil if WithMetrics(true) was never set.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Workers reports the number of worker reactors this server runs, mostly
// useful for tests asserting on dispatcher fairness.
func (s *Server) Workers() int {
	return len(s.workers)
}
