package reactor

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"
)

// echoTestHandler bounces every chunk it receives straight back to the
// peer, driving enough read/write activity for the metrics assertions
// below without needing any real protocol.
type echoTestHandler struct{}

func (echoTestHandler) OnAccept(conn *AsyncFD) {
	go func() {
		for {
			v := <-conn.ReadAny().ToChannel()
			res, ok := v.(ReadResult)
			if !ok || res.Error {
				return
			}
			if ok2, _ := (<-conn.Write(res.Data).ToChannel()).(bool); !ok2 {
				return
			}
		}
	}()
}

// freeTCPPort grabs an ephemeral port by briefly listening on it,
// matching the teacher's own "listen on :0, read back the port, close,
// reuse the number" idiom (see eventloop/poller_test.go).
func freeTCPPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freeTCPPort: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func startEchoServer(t *testing.T, metricsEnabled bool) (*Server, int, func()) {
	t.Helper()
	srv, err := New(echoTestHandler{}, WithWorkers(1), WithMetrics(metricsEnabled))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	port := freeTCPPort(t)
	if err := srv.Listen("127.0.0.1", port, false); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	stop := func() {
		cancel()
		<-done
	}
	return srv, port, stop
}

func roundTrip(t *testing.T, port int, payload []byte) {
	t.Helper()
	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, len(payload))
	if _, err := readFull(conn, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
}

// TestMetricsAccuracyLatency exercises the echo server with repeated
// round trips and checks the resulting latency percentiles are
// populated and internally consistent.
func TestMetricsAccuracyLatency(t *testing.T) {
	srv, port, stop := startEchoServer(t, true)
	defer stop()

	for i := 0; i < 200; i++ {
		roundTrip(t, port, []byte("ping"))
	}

	metrics := srv.Metrics()
	if metrics == nil {
		t.Fatal("metrics should not be nil when WithMetrics(true)")
	}
	metrics.Latency.Sample()

	if metrics.Latency.P99 == 0 {
		t.Error("P99 latency should be non-zero after 200 round trips")
	}
	if metrics.Latency.Max < metrics.Latency.P99 {
		t.Errorf("Max latency %v should be >= P99 latency %v", metrics.Latency.Max, metrics.Latency.P99)
	}
}

// TestMetricsQueueDepthTracking checks that queue-depth metrics are
// non-negative and that the mailbox high-water mark never decreases while
// traffic flows through a single-worker server.
func TestMetricsQueueDepthTracking(t *testing.T) {
	srv, port, stop := startEchoServer(t, true)
	defer stop()

	baseline := srv.Metrics()
	if baseline == nil {
		t.Fatal("metrics should not be nil")
	}
	if baseline.Queue.MailboxCurrent < 0 {
		t.Error("queue depths should be non-negative")
	}

	for i := 0; i < 50; i++ {
		roundTrip(t, port, []byte("x"))
	}

	final := srv.Metrics()
	if final.Queue.MailboxMax < baseline.Queue.MailboxMax {
		t.Errorf("MailboxMax decreased from %d to %d", baseline.Queue.MailboxMax, final.Queue.MailboxMax)
	}
}

// TestMetricsDisabled verifies Metrics() reports nil when WithMetrics was
// never set, matching the documented default.
func TestMetricsDisabled(t *testing.T) {
	srv, err := New(echoTestHandler{}, WithWorkers(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if srv.Metrics() != nil {
		t.Error("metrics should be nil when WithMetrics was never called")
	}
}

// BenchmarkMetricsCollection measures the overhead a full round trip
// incurs with metrics enabled.
func BenchmarkMetricsCollection(b *testing.B) {
	srv, err := New(echoTestHandler{}, WithWorkers(1), WithMetrics(true))
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	port := 19000
	if err := srv.Listen("127.0.0.1", port, false); err != nil {
		b.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()
	time.Sleep(20 * time.Millisecond)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			b.Fatalf("Dial: %v", err)
		}
		_, _ = conn.Write([]byte("x"))
		buf := make([]byte, 1)
		_, _ = readFull(conn, buf)
		_ = conn.Close()
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

