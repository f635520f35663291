package reactor

import "testing"

func TestDynBufferWriteBytes(t *testing.T) {
	var b DynBuffer
	b.Write([]byte("hello"))
	b.Write([]byte(" world"))
	if got := string(b.Bytes()); got != "hello world" {
		t.Fatalf("Bytes() = %q, want %q", got, "hello world")
	}
	if b.Len() != 11 {
		t.Fatalf("Len() = %d, want 11", b.Len())
	}
}

func TestDynBufferDiscard(t *testing.T) {
	var b DynBuffer
	b.Write([]byte("hello world"))
	b.Discard(6)
	if got := string(b.Bytes()); got != "world" {
		t.Fatalf("Bytes() = %q, want %q", got, "world")
	}
	if b.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", b.Len())
	}

	b.Discard(5)
	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}
	if got := string(b.Bytes()); got != "" {
		t.Fatalf("Bytes() = %q, want empty", got)
	}
}

func TestDynBufferDiscardThenWriteReusesSpace(t *testing.T) {
	var b DynBuffer
	b.Write([]byte("0123456789"))
	b.Discard(8)
	b.Write([]byte("AB"))
	if got := string(b.Bytes()); got != "89AB" {
		t.Fatalf("Bytes() = %q, want %q", got, "89AB")
	}
}

func TestDynBufferDiscardOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic discarding more than Len()")
		}
	}()
	var b DynBuffer
	b.Write([]byte("hi"))
	b.Discard(3)
}

func TestDynBufferReset(t *testing.T) {
	var b DynBuffer
	b.Write([]byte("data"))
	b.Reset()
	if b.Len() != 0 || len(b.Bytes()) != 0 {
		t.Fatalf("buffer not empty after Reset: len=%d bytes=%q", b.Len(), b.Bytes())
	}
	// capacity should be retained; writing again must not panic or lose data
	b.Write([]byte("more"))
	if got := string(b.Bytes()); got != "more" {
		t.Fatalf("Bytes() = %q, want %q", got, "more")
	}
}

func TestDynBufferManySmallAppends(t *testing.T) {
	var b DynBuffer
	for i := 0; i < 1000; i++ {
		b.Write([]byte{byte(i % 256)})
	}
	if b.Len() != 1000 {
		t.Fatalf("Len() = %d, want 1000", b.Len())
	}
	for i, c := range b.Bytes() {
		if c != byte(i%256) {
			t.Fatalf("byte %d = %d, want %d", i, c, i%256)
		}
	}
}
