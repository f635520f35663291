//go:build linux || darwin

package reactor

import "golang.org/x/sys/unix"

func rawRead(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err == unix.EAGAIN {
		return 0, err
	}
	return n, err
}

func rawWrite(fd int, p []byte) (int, error) {
	n, err := unix.Write(fd, p)
	if err == unix.EAGAIN {
		return 0, nil
	}
	return n, err
}

func rawClose(fd int) error {
	return unix.Close(fd)
}

// rawAccept accepts one pending connection off listenFD, setting
// non-blocking + close-on-exec atomically via accept4, matching
// s80_enable_async applied immediately after accept() in
// serve.epoll.c/serve.kqueue.c.
func rawAccept(listenFD int) (int, FDKind, error) {
	nfd, _, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, FDKindOther, err
	}
	return nfd, FDKindStreamSocket, nil
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// listenTCP creates a non-blocking, listening TCP socket bound to
// host:port, grounded on original_source/src/main.c's socket/setsockopt
// SO_REUSEADDR/bind/listen sequence.
func listenTCP(host string, port int, v6 bool) (int, error) {
	family := unix.AF_INET
	if v6 {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	var sa unix.Sockaddr
	if v6 {
		addr := unix.SockaddrInet6{Port: port}
		copy(addr.Addr[:], parseIP16(host))
		sa = &addr
	} else {
		addr := unix.SockaddrInet4{Port: port}
		copy(addr.Addr[:], parseIP4(host))
		sa = &addr
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 20000); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// afterAdopt is a no-op on the reactor backends: epoll/kqueue already
// report readability directly, there is nothing to pre-arm the way IOCP
// requires an initial overlapped recv.
func (w *Worker) afterAdopt(c *AsyncFD) {}

// onReadable drains c's fd with repeated non-blocking reads until a read
// comes back shorter than the buffer or the kernel reports would-block,
// matching serve.epoll.c's read-then-check-readlen loop per readable
// notification.
func (w *Worker) onReadable(c *AsyncFD) {
	buf := make([]byte, w.readBufSize)
	for {
		n, err := rawRead(c.FD(), buf)
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			c.MarkError()
			w.closeConn(c.FD())
			return
		}
		if n == 0 {
			w.closeConn(c.FD())
			return
		}
		c.OnData(buf[:n])
		if n < len(buf) {
			return
		}
	}
}
