// Package-level structured logging.
//
// Design Decision: a package-level global logger is appropriate here because
// logging is an infrastructure cross-cutting concern shared by every worker,
// the dispatcher, and the reload/shutdown controllers — there is no
// per-component logging configuration surface worth adding.
package reactor

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

var globalLogger struct {
	sync.RWMutex
	logger Logger
}

// SetStructuredLogger installs the process-wide logger used by every
// worker, the dispatcher, and the reload/shutdown controllers.
func SetStructuredLogger(logger Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

func getGlobalLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return globalLogger.logger
	}
	return NewNoOpLogger()
}

// LogLevel is the severity of a log entry.
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// LogEntry is a structured log record emitted by the reactor runtime.
type LogEntry struct {
	Level     LogLevel
	Category  string // "worker", "mailbox", "dispatcher", "reload", "shutdown", "asyncfd"
	WorkerID  int
	FD        int
	Context   map[string]any
	Message   string
	Err       error
	Timestamp time.Time
}

// Logger is the structured logging interface implemented by every sink
// this module ships (DefaultLogger, WriterLogger, NoOpLogger,
// LogifaceAdapter) and by anything a caller wires in with
// SetStructuredLogger/WithLogger.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level LogLevel) bool
}

// DefaultLogger writes pretty-printed entries to an *os.File, gated by a
// minimum level.
type DefaultLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	Out   *os.File
}

func NewDefaultLogger(level LogLevel) *DefaultLogger {
	l := &DefaultLogger{Out: os.Stdout}
	l.level.Store(int32(level))
	return l
}

func (l *DefaultLogger) SetLevel(level LogLevel) { l.level.Store(int32(level)) }

func (l *DefaultLogger) IsEnabled(level LogLevel) bool {
	return int32(level) >= l.level.Load()
}

func (l *DefaultLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	fmt.Fprintf(l.Out, "%s [%s] %s: %s", entry.Timestamp.Format(time.RFC3339Nano), entry.Level, entry.Category, entry.Message)
	if entry.WorkerID != 0 {
		fmt.Fprintf(l.Out, " worker=%d", entry.WorkerID)
	}
	if entry.FD != 0 {
		fmt.Fprintf(l.Out, " fd=%d", entry.FD)
	}
	for k, v := range entry.Context {
		fmt.Fprintf(l.Out, " %s=%v", k, v)
	}
	if entry.Err != nil {
		fmt.Fprintf(l.Out, " err=%q", entry.Err.Error())
	}
	fmt.Fprintln(l.Out)
}

// NoOpLogger discards everything; it is the default when no logger has
// been configured.
type NoOpLogger struct{}

func NewNoOpLogger() *NoOpLogger                { return &NoOpLogger{} }
func (l *NoOpLogger) Log(LogEntry)              {}
func (l *NoOpLogger) IsEnabled(level LogLevel) bool { return false }

// WriterLogger writes text-formatted entries to an arbitrary io.Writer.
type WriterLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	out   io.Writer
}

func NewWriterLogger(level LogLevel, out io.Writer) *WriterLogger {
	l := &WriterLogger{out: out}
	l.level.Store(int32(level))
	return l
}

func (l *WriterLogger) SetLevel(level LogLevel)   { l.level.Store(int32(level)) }
func (l *WriterLogger) IsEnabled(level LogLevel) bool { return int32(level) >= l.level.Load() }

func (l *WriterLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[%s] %s: %s", entry.Level, entry.Category, entry.Message)
	if entry.Err != nil {
		fmt.Fprintf(l.out, ": %v", entry.Err)
	}
	fmt.Fprintln(l.out)
}

// LogifaceAdapter wraps a github.com/joeycumines/logiface logger (backed
// here by github.com/joeycumines/stumpy's JSON event writer) so it can be
// installed as the reactor runtime's Logger. Repeated log lines sharing a
// category (a peer resetting thousands of connections a second) are
// throttled with github.com/joeycumines/go-catrate after the level check
// and before any field is added to the logiface Builder or the entry is
// written.
type LogifaceAdapter struct {
	logger  *logiface.Logger[*stumpy.Event]
	limiter *catrate.Limiter
}

// NewLogifaceAdapter builds a LogifaceAdapter writing newline-delimited
// JSON to w. categoryRateLimits, if non-empty, caps how often the same
// Category may log within each window (duration -> max count).
func NewLogifaceAdapter(w io.Writer, categoryRateLimits map[time.Duration]int) *LogifaceAdapter {
	a := &LogifaceAdapter{
		logger: stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(w))),
	}
	if len(categoryRateLimits) > 0 {
		a.limiter = catrate.NewLimiter(categoryRateLimits)
	}
	return a
}

// IsEnabled always reports true: logiface gates per-call via Builder.Enabled,
// checked inside Log, so a separate precheck here would just build and
// discard a pooled Builder for no benefit.
func (a *LogifaceAdapter) IsEnabled(level LogLevel) bool {
	return true
}

func (a *LogifaceAdapter) builder(level LogLevel) *logiface.Builder[*stumpy.Event] {
	switch level {
	case LevelDebug:
		return a.logger.Debug()
	case LevelInfo:
		return a.logger.Info()
	case LevelWarn:
		return a.logger.Warning()
	default:
		return a.logger.Err()
	}
}

func (a *LogifaceAdapter) Log(entry LogEntry) {
	b := a.builder(entry.Level)
	if b == nil || !b.Enabled() {
		return
	}
	if a.limiter != nil {
		if _, ok := a.limiter.Allow(entry.Category); !ok {
			return
		}
	}
	b = b.Str("category", entry.Category)
	if entry.WorkerID != 0 {
		b = b.Int("worker", entry.WorkerID)
	}
	if entry.FD != 0 {
		b = b.Int("fd", entry.FD)
	}
	for k, v := range entry.Context {
		b = b.Str(k, fmt.Sprint(v))
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

// --- package-level convenience helpers, used by worker.go,
// worker_windows.go, reaper.go and reload.go ---

func logDebug(l Logger, category, message string, workerID int) {
	l.Log(LogEntry{Level: LevelDebug, Category: category, Message: message, WorkerID: workerID, Timestamp: time.Now()})
}

func logInfo(l Logger, category, message string, workerID int) {
	l.Log(LogEntry{Level: LevelInfo, Category: category, Message: message, WorkerID: workerID, Timestamp: time.Now()})
}

func logWarn(l Logger, category, message string, workerID int, err error) {
	l.Log(LogEntry{Level: LevelWarn, Category: category, Message: message, WorkerID: workerID, Err: err, Timestamp: time.Now()})
}

func logError(l Logger, category, message string, workerID int, err error) {
	l.Log(LogEntry{Level: LevelError, Category: category, Message: message, WorkerID: workerID, Err: err, Timestamp: time.Now()})
}
