package avrosource

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/tidewater/avrosource/ocf"
)

// fileHeader is a parsed header together with its byte length; the length is
// the start offset of the file's first block.
type fileHeader struct {
	hdr *ocf.Header
	len int64
}

// HeaderCache memoizes parsed file headers so that the many bundle Readers
// produced by splitting one file parse its header once. Entries are keyed by
// path, size, and modification time; a rewritten file misses and is reparsed.
//
// A HeaderCache is safe for concurrent use. Every Source derived from one
// original by splitting shares the original's cache.
type HeaderCache struct {
	group singleflight.Group

	mu sync.RWMutex
	m  map[string]fileHeader
}

// NewHeaderCache creates an empty HeaderCache.
func NewHeaderCache() *HeaderCache {
	return &HeaderCache{m: make(map[string]fileHeader)}
}

// get returns the header for the open file f, parsing it from offset 0 on the
// first call. Concurrent calls for the same file are deduplicated. The file's
// read position afterwards is unspecified; callers must seek.
func (c *HeaderCache) get(path string, f *os.File) (*ocf.Header, int64, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("avrosource: stat %s: %w", path, err)
	}
	key := fmt.Sprintf("%s:%d:%d", path, info.Size(), info.ModTime().UnixNano())

	c.mu.RLock()
	fh, ok := c.m[key]
	c.mu.RUnlock()
	if ok {
		return fh.hdr, fh.len, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("avrosource: seek %s: %w", path, err)
		}
		hdr, n, err := ocf.ReadHeader(f)
		if err != nil {
			return nil, fmt.Errorf("avrosource: reading header of %s: %w", path, err)
		}
		fh := fileHeader{hdr: hdr, len: n}
		c.mu.Lock()
		c.m[key] = fh
		c.mu.Unlock()
		return fh, nil
	})
	if err != nil {
		return nil, 0, err
	}
	fh = v.(fileHeader)
	return fh.hdr, fh.len, nil
}
