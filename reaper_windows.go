//go:build windows

package reactor

// newSigchldChannel is a no-op on Windows: there is no SIGCHLD, and
// worker processes are not forked via fork/exec the way s80_popen does on
// POSIX. The returned channel is never signaled.
func newSigchldChannel() (chan struct{}, func()) {
	return make(chan struct{}), func() {}
}

func reapChildren(logger Logger, workerID int) {}
