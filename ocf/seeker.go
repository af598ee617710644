package ocf

import (
	"io"
)

// Seeker locates a fixed byte pattern inside a byte sequence delivered across
// multiple, independently sized buffers. It is a Knuth-Morris-Pratt automaton
// whose only cross-call state is the length of the longest pattern prefix
// matched so far, so a pattern straddling two buffers is still found and
// self-overlapping patterns (such as 1,1,1,2 against a run of ones) are
// handled without rescanning.
//
// A Seeker is not safe for concurrent use; each scan owns its own instance.
type Seeker struct {
	pattern []byte
	table   []int
	matched int
}

// NewSeeker builds a Seeker for the given pattern, precomputing the KMP
// failure table.
func NewSeeker(pattern []byte) *Seeker {
	table := make([]int, len(pattern))
	k := 0
	for i := 1; i < len(pattern); i++ {
		for k > 0 && pattern[k] != pattern[i] {
			k = table[k-1]
		}
		if pattern[k] == pattern[i] {
			k++
		}
		table[i] = k
	}
	return &Seeker{pattern: pattern, table: table}
}

// Find scans the first n bytes of buf for the pattern, resuming from any
// partial match left by a previous call. It returns the index of the last
// byte of the first full match and resets the automaton, or -1 when the
// pattern is not completed within buf, in which case the in-progress state is
// retained for the next call.
func (s *Seeker) Find(buf []byte, n int) int {
	for i := 0; i < n; i++ {
		c := buf[i]
		for s.matched > 0 && s.pattern[s.matched] != c {
			s.matched = s.table[s.matched-1]
		}
		if s.pattern[s.matched] == c {
			s.matched++
		}
		if s.matched == len(s.pattern) {
			s.matched = 0
			return i
		}
	}
	return -1
}

// seekScanBufSize is the chunk size used by AdvancePastNextSyncMarker.
const seekScanBufSize = 8192

// AdvancePastNextSyncMarker reads r forward until it has consumed the next
// occurrence of marker and returns the number of bytes consumed, up to and
// including the marker's last byte. Bytes read past the marker for buffering
// are seeked back, so the byte immediately after the marker is the next one
// readable from r.
//
// When the stream ends without a match the total number of bytes consumed is
// returned with a nil error; callers detect the miss by comparing the count
// to the known stream length.
func AdvancePastNextSyncMarker(r io.ReadSeeker, marker []byte) (int64, error) {
	s := NewSeeker(marker)
	buf := make([]byte, seekScanBufSize)
	var consumed int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if i := s.Find(buf, n); i >= 0 {
				consumed += int64(i + 1)
				if over := n - (i + 1); over > 0 {
					if _, err := r.Seek(-int64(over), io.SeekCurrent); err != nil {
						return consumed, err
					}
				}
				return consumed, nil
			}
			consumed += int64(n)
		}
		if err == io.EOF {
			return consumed, nil
		}
		if err != nil {
			return consumed, err
		}
	}
}
