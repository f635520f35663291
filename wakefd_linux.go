//go:build linux

package reactor

import "golang.org/x/sys/unix"

// wakeFD is a per-worker wake-up primitive backing the mailbox's
// signaled/unsignaled dedup flag (see mailbox.go). On Linux it is a single
// eventfd shared as both read and write end.
type wakeFD struct {
	fd int
}

func newWakeFD() (*wakeFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &wakeFD{fd: fd}, nil
}

func (w *wakeFD) readFD() int { return w.fd }

// signal writes one wakeup token. Called with the mailbox lock released.
func (w *wakeFD) signal() error {
	var buf [8]byte
	buf[7] = 1
	_, err := unix.Write(w.fd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// drain consumes any pending wakeup tokens.
func (w *wakeFD) drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(w.fd, buf[:])
		if err != nil {
			return
		}
	}
}

func (w *wakeFD) close() error {
	return unix.Close(w.fd)
}
