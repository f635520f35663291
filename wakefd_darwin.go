//go:build darwin

package reactor

import "syscall"

// wakeFD is a per-worker wake-up primitive backing the mailbox's
// signaled/unsignaled dedup flag (see mailbox.go). kqueue has no eventfd
// equivalent, so Darwin falls back to a self-pipe, registered with
// EV_CLEAR per the edge-triggered convention the rest of the kqueue
// backend uses for pipes.
type wakeFD struct {
	r, w int
}

func newWakeFD() (*wakeFD, error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return nil, err
	}
	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])
	if err := syscall.SetNonblock(fds[0], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return nil, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return nil, err
	}
	return &wakeFD{r: fds[0], w: fds[1]}, nil
}

func (w *wakeFD) readFD() int { return w.r }

func (w *wakeFD) signal() error {
	var b [1]byte
	_, err := syscall.Write(w.w, b[:])
	if err == syscall.EAGAIN {
		return nil
	}
	return err
}

func (w *wakeFD) drain() {
	var buf [64]byte
	for {
		_, err := syscall.Read(w.r, buf[:])
		if err != nil {
			return
		}
	}
}

func (w *wakeFD) close() error {
	_ = syscall.Close(w.w)
	return syscall.Close(w.r)
}
