//go:build linux || darwin

package reactor

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// newSigchldChannel installs a SIGCHLD handler and returns a channel that
// receives a notification each time one (or more) arrive, coalesced the
// way os/signal already coalesces rapid repeats. Only worker 0 is wired
// to drain it (see Worker.ListenForSignals), matching
// original_source/src/80s/serve.epoll.c's single signalfd owned by the
// worker that also owns the listening socket.
func newSigchldChannel() (chan struct{}, func()) {
	raw := make(chan os.Signal, 8)
	signal.Notify(raw, syscall.SIGCHLD)

	ch := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-raw:
				select {
				case ch <- struct{}{}:
				default:
				}
			case <-done:
				return
			}
		}
	}()

	stop := func() {
		signal.Stop(raw)
		close(done)
	}
	return ch, stop
}

// reapChildren non-blockingly reaps every already-exited child process,
// grounded on s80_popen's fork/exec bookkeeping: the original reads a
// signalfd's siginfo in a loop and calls waitpid(-1, NULL, WNOHANG) once
// per SIGCHLD byte observed. unix.Wait4 here plays the same role, looped
// until no more zombies remain so a coalesced batch of exits is fully
// drained from one wakeup.
func reapChildren(logger Logger, workerID int) {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if pid <= 0 || err != nil {
			if err != nil && err != unix.ECHILD {
				logWarn(logger, "reaper", "wait4 failed", workerID, err)
			}
			return
		}
		logDebug(logger, "reaper", "reaped child process", workerID)
	}
}
