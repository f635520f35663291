package main

import (
	"strings"
	"sync"
	"testing"
	"time"

	reactor "github.com/kayserve/reactor"
)

// fakeConn is a deterministic stand-in for a worker's raw fd I/O, used to
// drive an AsyncFD without an OS socket. Guarded by a mutex since the
// handler's serve loop and the test goroutine touch it concurrently.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func (c *fakeConn) WriteFD(fd int, p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (c *fakeConn) ArmWritable(fd int) error { return nil }

func (c *fakeConn) CloseFD(fd int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeConn) firstWrite() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[0]
}

func TestEchoHandlerRespondsToRequest(t *testing.T) {
	conn := &fakeConn{}
	a := reactor.NewAsyncFD(3, reactor.FDKindStreamSocket, 0, conn)

	h := newEchoHandler("test-node")
	h.OnAccept(a)
	// OnAccept's serve goroutine must register its ReadUntil before data
	// arrives, or the bytes sit unprocessed in AsyncFD's buffer.
	time.Sleep(10 * time.Millisecond)

	a.OnData([]byte("GET / HTTP/1.1\r\n\r\n"))

	deadline := time.Now().Add(time.Second)
	for conn.writeCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if conn.writeCount() == 0 {
		t.Fatalf("handler never wrote a response")
	}

	resp := string(conn.firstWrite())
	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK") {
		t.Fatalf("response = %q, want an HTTP/1.1 200 OK prefix", resp)
	}
	if !strings.Contains(resp, "test-node") {
		t.Fatalf("response = %q, want it to mention the node name", resp)
	}
}

func TestBuildHandlerFallsBackWithoutEntrypoint(t *testing.T) {
	h := buildHandler("node-a", "")
	if _, ok := h.(*echoHandler); !ok {
		t.Fatalf("buildHandler with empty entrypoint = %T, want *echoHandler", h)
	}
}

func TestBuildHandlerFallsBackOnLoadFailure(t *testing.T) {
	h := buildHandler("node-a", "/nonexistent/reactor-plugin.so")
	if _, ok := h.(*echoHandler); !ok {
		t.Fatalf("buildHandler with a bad plugin path = %T, want a fallback *echoHandler", h)
	}
}
