package reactor

import "bytes"

// KMPResult is the outcome of one scan call. A Length equal to the
// pattern length means a complete match at Offset. A shorter Length means
// a prefix of the pattern matched at the very end of the haystack,
// starting at Offset; the caller resumes on the next, longer buffer by
// passing Offset back in as the scan offset, so the partial match is
// re-examined together with the new bytes (see AsyncFD.OnData's
// readKindUntil handling).
type KMPResult struct {
	Offset int
	Length int
}

// KMPScanner performs incremental Knuth-Morris-Pratt substring search
// across a byte buffer that grows chunk by chunk. The failure table is
// computed once per pattern and reused across every Scan call.
type KMPScanner struct {
	pattern []byte
	table   []int
}

// NewKMPScanner precomputes the KMP failure table for pattern. pattern
// must not be empty; callers with a possibly-empty delimiter should check
// before constructing a scanner (Scan itself also handles it safely).
func NewKMPScanner(pattern []byte) *KMPScanner {
	s := &KMPScanner{pattern: pattern}
	if len(pattern) > 1 {
		s.table = buildFailureTable(pattern)
	}
	return s
}

func buildFailureTable(pattern []byte) []int {
	table := make([]int, len(pattern)+1)
	table[0] = -1
	j := 0
	i := 1
	for i < len(pattern) {
		if pattern[i] == pattern[j] {
			table[i] = table[j]
		} else {
			table[i] = j
			for j >= 0 && pattern[i] != pattern[j] {
				j = table[j]
			}
		}
		i++
		j++
	}
	table[i] = j
	return table
}

// Scan searches haystack[offset:] for the scanner's pattern. It returns a
// complete match (Length == len(pattern)) at the earliest occurrence at or
// after offset, or the longest pattern prefix that matches at the tail of
// haystack (Length < len(pattern)), or a zero-length result at
// len(haystack) if nothing matched at all.
//
// offset must be <= len(haystack); the caller computes it by subtracting
// the previously carried partial-match length from the new scan position,
// so a delimiter split across chunk boundaries is detected exactly once
// without rescanning already-confirmed bytes.
func (s *KMPScanner) Scan(haystack []byte, offset int) KMPResult {
	if len(haystack) == 0 || len(s.pattern) == 0 {
		return KMPResult{Offset: len(haystack), Length: 0}
	}

	if len(s.pattern) == 1 {
		if idx := bytes.IndexByte(haystack[offset:], s.pattern[0]); idx >= 0 {
			return KMPResult{Offset: offset + idx, Length: 1}
		}
		return KMPResult{Offset: len(haystack), Length: 0}
	}

	j := offset
	k := 0
	for j < len(haystack) {
		if s.pattern[k] == haystack[j] {
			j++
			k++
			if k == len(s.pattern) {
				return KMPResult{Offset: j - k, Length: k}
			}
		} else {
			k = s.table[k]
			if k < 0 {
				j++
				k++
			}
		}
	}

	return KMPResult{Offset: j - k, Length: k}
}
