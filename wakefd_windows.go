//go:build windows

package reactor

import "golang.org/x/sys/windows"

// wakeFD on Windows has no OS file descriptor at all: the IOCP backend
// wakes a blocked GetQueuedCompletionStatus by posting a NULL completion
// directly to the completion port, so signal needs the port handle rather
// than a pipe end. The mailbox holds a *wakeFD per worker purely to carry
// that handle and keep the cross-platform call shape identical.
type wakeFD struct {
	port windows.Handle
}

func newWakeFDForPort(port windows.Handle) (*wakeFD, error) {
	return &wakeFD{port: port}, nil
}

func newWakeFD() (*wakeFD, error) {
	return &wakeFD{port: windows.InvalidHandle}, nil
}

func (w *wakeFD) readFD() int { return -1 }

func (w *wakeFD) signal() error {
	return windows.PostQueuedCompletionStatus(w.port, 0, 0, nil)
}

func (w *wakeFD) drain() {}

func (w *wakeFD) close() error { return nil }
