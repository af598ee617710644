package ocf

import (
	"bufio"
	"io"
)

// CountingReader wraps a buffered reader and counts bytes consumed.
//
// Block framing is varint-based, so the reader exposes ReadByte in addition
// to Read; both count against the same total. The count gives the exact
// stream offset of the next unread byte relative to where counting began,
// which callers combine with a base file offset to obtain block start
// positions.
type CountingReader struct {
	r *bufio.Reader
	n int64
}

// NewCountingReader returns a CountingReader over r. If r is not already
// buffered it is wrapped in a bufio.Reader.
func NewCountingReader(r io.Reader) *CountingReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &CountingReader{r: br}
}

// Read implements io.Reader.
func (cr *CountingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// ReadByte implements io.ByteReader.
func (cr *CountingReader) ReadByte() (byte, error) {
	b, err := cr.r.ReadByte()
	if err == nil {
		cr.n++
	}
	return b, err
}

// BytesRead returns the number of bytes consumed since construction.
func (cr *CountingReader) BytesRead() int64 {
	return cr.n
}
