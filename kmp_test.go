package reactor

import "testing"

func TestKMPScannerCompleteMatch(t *testing.T) {
	s := NewKMPScanner([]byte("\r\n"))
	res := s.Scan([]byte("GET / HTTP/1.1\r\nHost: x\r\n"), 0)
	if res.Length != 2 {
		t.Fatalf("Length = %d, want 2", res.Length)
	}
	if res.Offset != 14 {
		t.Fatalf("Offset = %d, want 14", res.Offset)
	}
}

func TestKMPScannerSingleByte(t *testing.T) {
	s := NewKMPScanner([]byte("\n"))
	res := s.Scan([]byte("abc\ndef"), 0)
	if res.Offset != 3 || res.Length != 1 {
		t.Fatalf("got %+v, want {3 1}", res)
	}

	res = s.Scan([]byte("abcdef"), 0)
	if res.Length != 0 || res.Offset != 6 {
		t.Fatalf("got %+v, want {6 0}", res)
	}
}

func TestKMPScannerPartialMatchAtTail(t *testing.T) {
	s := NewKMPScanner([]byte("\r\n"))
	res := s.Scan([]byte("abc\r"), 0)
	if res.Length != 1 {
		t.Fatalf("Length = %d, want 1 (partial \\r matched)", res.Length)
	}
	if res.Offset != 3 {
		t.Fatalf("Offset = %d, want 3", res.Offset)
	}
}

// TestKMPScannerResumeAcrossChunks exercises the exact pattern asyncfd's
// read_until uses: a delimiter split across two chunks, where the second
// Scan call's offset is computed by subtracting the carried partial-match
// length from the new buffer length.
func TestKMPScannerResumeAcrossChunks(t *testing.T) {
	s := NewKMPScanner([]byte("\r\n"))

	chunk1 := []byte("abc\r")
	res1 := s.Scan(chunk1, 0)
	if res1.Length != 1 {
		t.Fatalf("first scan Length = %d, want 1", res1.Length)
	}

	buf := append(chunk1, "\ndef"...)
	nextOffset := len(chunk1) - res1.Length
	res2 := s.Scan(buf, nextOffset)
	if res2.Length != 2 {
		t.Fatalf("second scan Length = %d, want 2", res2.Length)
	}
	if res2.Offset != 3 {
		t.Fatalf("second scan Offset = %d, want 3", res2.Offset)
	}
}

func TestKMPScannerNoMatch(t *testing.T) {
	s := NewKMPScanner([]byte("xyz"))
	res := s.Scan([]byte("abcdefabc"), 0)
	if res.Length != 0 {
		t.Fatalf("Length = %d, want 0", res.Length)
	}
	if res.Offset != 9 {
		t.Fatalf("Offset = %d, want 9", res.Offset)
	}
}

func TestKMPScannerEmptyInputs(t *testing.T) {
	s := NewKMPScanner([]byte("x"))
	res := s.Scan(nil, 0)
	if res.Offset != 0 || res.Length != 0 {
		t.Fatalf("got %+v, want {0 0}", res)
	}
}

func TestKMPScannerOverlappingPattern(t *testing.T) {
	// "aaab" against a haystack with a run of a's exercises the failure
	// table's handling of a self-overlapping pattern prefix.
	s := NewKMPScanner([]byte("aaab"))
	res := s.Scan([]byte("aaaaaab"), 0)
	if res.Length != 4 {
		t.Fatalf("Length = %d, want 4", res.Length)
	}
	if res.Offset != 3 {
		t.Fatalf("Offset = %d, want 3", res.Offset)
	}
}
