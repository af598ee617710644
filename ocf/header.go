package ocf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

// SyncSize is the length of the per-file synchronization marker.
const SyncSize = 16

// Well-known metadata keys.
const (
	MetaKeySchema = "avro.schema"
	MetaKeyCodec  = "avro.codec"
)

// magic identifies a container file: "Obj" followed by the format version.
var magic = [4]byte{'O', 'b', 'j', 1}

// maxMetaEntryBytes bounds a single metadata key or value. Corrupt length
// prefixes must not drive allocation.
const maxMetaEntryBytes = 1 << 26

// Sentinel errors for header parsing.
var (
	// ErrBadMagic is returned when a file does not begin with the container
	// magic bytes and version.
	ErrBadMagic = errors.New("ocf: bad magic")

	// ErrInvalidHeader is returned when the header metadata map is malformed.
	ErrInvalidHeader = errors.New("ocf: invalid header")
)

// Header is the parsed container file header: the metadata map and the
// 16-byte sync marker that terminates every block in the file.
type Header struct {
	Meta map[string][]byte
	Sync [SyncSize]byte
}

// Schema returns the embedded writer schema, or "" when absent.
func (h *Header) Schema() string {
	return string(h.Meta[MetaKeySchema])
}

// Codec returns the codec name recorded in the header. An absent entry means
// the null codec.
func (h *Header) Codec() string {
	if c, ok := h.Meta[MetaKeyCodec]; ok {
		return string(c)
	}
	return CodecNull
}

// ReadHeader parses a container file header from r and returns it together
// with the header's exact byte length. The byte immediately after the header
// is always the start of the first block.
func ReadHeader(r io.Reader) (*Header, int64, error) {
	cr := NewCountingReader(r)

	var m [4]byte
	if _, err := io.ReadFull(cr, m[:]); err != nil {
		return nil, cr.BytesRead(), fmt.Errorf("%w: %w", ErrBadMagic, err)
	}
	if m != magic {
		return nil, cr.BytesRead(), ErrBadMagic
	}

	meta, err := readMetaMap(cr)
	if err != nil {
		return nil, cr.BytesRead(), err
	}

	h := &Header{Meta: meta}
	if _, err := io.ReadFull(cr, h.Sync[:]); err != nil {
		return nil, cr.BytesRead(), fmt.Errorf("%w: reading sync marker: %w", ErrInvalidHeader, err)
	}
	return h, cr.BytesRead(), nil
}

// readMetaMap decodes the header metadata map: a series of blocks, each a
// varint pair count (negative counts are followed by a byte size and indicate
// the absolute count), terminated by a zero count.
func readMetaMap(cr *CountingReader) (map[string][]byte, error) {
	meta := make(map[string][]byte)
	for {
		count, err := binary.ReadVarint(cr)
		if err != nil {
			return nil, fmt.Errorf("%w: reading metadata count: %w", ErrInvalidHeader, err)
		}
		if count == 0 {
			return meta, nil
		}
		if count < 0 {
			// Negative count carries the block's byte size, which readers
			// that decode pair by pair do not need.
			if _, err := binary.ReadVarint(cr); err != nil {
				return nil, fmt.Errorf("%w: reading metadata block size: %w", ErrInvalidHeader, err)
			}
			count = -count
		}
		for i := int64(0); i < count; i++ {
			key, err := readMetaBytes(cr)
			if err != nil {
				return nil, err
			}
			val, err := readMetaBytes(cr)
			if err != nil {
				return nil, err
			}
			meta[string(key)] = val
		}
	}
}

func readMetaBytes(cr *CountingReader) ([]byte, error) {
	n, err := binary.ReadVarint(cr)
	if err != nil {
		return nil, fmt.Errorf("%w: reading metadata length: %w", ErrInvalidHeader, err)
	}
	if n < 0 || n > maxMetaEntryBytes {
		return nil, fmt.Errorf("%w: metadata entry length %d", ErrInvalidHeader, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(cr, b); err != nil {
		return nil, fmt.Errorf("%w: reading metadata entry: %w", ErrInvalidHeader, err)
	}
	return b, nil
}

// MarshalBinary encodes the header. Metadata keys are written in sorted order
// so encoding is deterministic.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf, magic[:]...)

	if len(h.Meta) > 0 {
		keys := make([]string, 0, len(h.Meta))
		for k := range h.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf = binary.AppendVarint(buf, int64(len(keys)))
		for _, k := range keys {
			buf = binary.AppendVarint(buf, int64(len(k)))
			buf = append(buf, k...)
			buf = binary.AppendVarint(buf, int64(len(h.Meta[k])))
			buf = append(buf, h.Meta[k]...)
		}
	}
	buf = binary.AppendVarint(buf, 0)
	buf = append(buf, h.Sync[:]...)
	return buf, nil
}
