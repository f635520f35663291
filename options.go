// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

// serverOptions holds configuration resolved once at server construction.
type serverOptions struct {
	workers           int
	readBufSize       int
	acceptPrepostMult int
	metricsEnabled    bool
	logger            Logger
}

// ServerOption configures a Server instance.
type ServerOption interface {
	apply(*serverOptions)
}

type serverOptionFunc func(*serverOptions)

func (f serverOptionFunc) apply(o *serverOptions) { f(o) }

// WithWorkers sets the number of worker reactors (OS threads). Defaults to
// runtime.NumCPU() if unset or <= 0.
func WithWorkers(n int) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.workers = n })
}

// WithReadBufSize sets the stack read buffer each worker uses per readable
// callback. Defaults to 64KiB.
func WithReadBufSize(n int) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.readBufSize = n })
}

// WithAcceptPrepost stores a per-worker multiplier for overlapped accept
// pre-posting on the IOCP backend. Defaults to 4. No backend reads it:
// every backend, IOCP included, accepts synchronously from worker 0's
// listener callback, with no overlapped accepts pre-posted or sharded
// across workers.
func WithAcceptPrepost(n int) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.acceptPrepostMult = n })
}

// WithMetrics enables latency/queue-depth metrics collection.
func WithMetrics(enabled bool) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.metricsEnabled = enabled })
}

// WithLogger sets the structured logger used by every worker. Defaults to
// the global logger set via SetStructuredLogger, or a no-op logger.
func WithLogger(l Logger) ServerOption {
	return serverOptionFunc(func(o *serverOptions) { o.logger = l })
}

func resolveServerOptions(opts []ServerOption) *serverOptions {
	cfg := &serverOptions{
		readBufSize:       64 * 1024,
		acceptPrepostMult: 4,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = getGlobalLogger()
	}
	return cfg
}
