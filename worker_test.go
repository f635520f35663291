package reactor

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkerAcceptsAndEchoesData(t *testing.T) {
	w, err := newWorker(0, resolveServerOptions(nil), echoTestHandler{}, nil)
	require.NoError(t, err)

	port := freeTCPPort(t)
	fd, err := listenTCP("127.0.0.1", port, false)
	require.NoError(t, err)
	require.NoError(t, w.ListenOn(fd))

	var wg sync.WaitGroup
	wg.Add(1)
	go w.Run(&wg)
	defer func() {
		w.RequestQuit()
		wg.Wait()
	}()
	time.Sleep(20 * time.Millisecond)

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	_, err = readFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
}

// recordingHandler records every accepted connection's fd so tests can
// assert on which worker ended up owning it.
type recordingHandler struct {
	mu    sync.Mutex
	accds []int
}

func (h *recordingHandler) OnAccept(conn *AsyncFD) {
	h.mu.Lock()
	h.accds = append(h.accds, conn.FD())
	h.mu.Unlock()
	conn.SetOnEmptyQueue(func() {})
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.accds)
}

func TestWorkerDispatcherHandsOffToPeer(t *testing.T) {
	opts := resolveServerOptions(nil)
	h0, h1 := &recordingHandler{}, &recordingHandler{}

	w0, err := newWorker(0, opts, h0, nil)
	require.NoError(t, err)
	w1, err := newWorker(1, opts, h1, nil)
	require.NoError(t, err)

	roster := []*Worker{w0, w1}
	w0.SetRoster(roster)
	w1.SetRoster(roster)
	d := newDispatcher(2)
	w0.SetDispatcher(d)
	w1.SetDispatcher(d)

	port := freeTCPPort(t)
	fd, err := listenTCP("127.0.0.1", port, false)
	require.NoError(t, err)
	require.NoError(t, w0.ListenOn(fd))

	var wg sync.WaitGroup
	wg.Add(2)
	go w0.Run(&wg)
	go w1.Run(&wg)
	defer func() {
		w0.RequestQuit()
		w1.RequestQuit()
		wg.Wait()
	}()
	time.Sleep(20 * time.Millisecond)

	const dials = 4
	conns := make([]net.Conn, 0, dials)
	for i := 0; i < dials; i++ {
		c, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		require.NoError(t, err)
		conns = append(conns, c)
	}
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()

	require.Eventually(t, func() bool {
		return h0.count()+h1.count() == dials
	}, time.Second, 5*time.Millisecond)

	// Worker 0 accepts every connection (it alone owns the listener) but
	// round-robin must have hand off half of them to worker 1's mailbox.
	require.Greater(t, h1.count(), 0)
}

type userMsgHandler struct {
	handler Handler
	mu      sync.Mutex
	got     []any
}

func (h *userMsgHandler) OnAccept(conn *AsyncFD) { h.handler.OnAccept(conn) }

func (h *userMsgHandler) OnUserMessage(senderWorkerID int, payload any) {
	h.mu.Lock()
	h.got = append(h.got, payload)
	h.mu.Unlock()
}

func TestWorkerDeliversUserMailToHandler(t *testing.T) {
	h := &userMsgHandler{handler: echoTestHandler{}}
	w, err := newWorker(0, resolveServerOptions(nil), h, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go w.Run(&wg)
	defer func() {
		w.RequestQuit()
		wg.Wait()
	}()
	time.Sleep(20 * time.Millisecond)

	w.mailbox.PostUser(7, "payload-value")

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.got) == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, "payload-value", h.got[0])
}

func TestWorkerRunTwiceIsNoop(t *testing.T) {
	w, err := newWorker(0, resolveServerOptions(nil), nil, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go w.Run(&wg)
	time.Sleep(10 * time.Millisecond)
	// A second concurrent Run call must not double-transition the state
	// machine — TryTransition(StateAwake, StateRunning) only ever
	// succeeds once.
	go w.Run(&wg)

	w.RequestQuit()
	wg.Wait()
}
