package ocf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxBlockBytes bounds a single block's declared payload length.
const maxBlockBytes = 1 << 30

// Sentinel errors for block framing.
var (
	// ErrTruncatedBlock is returned when a block's declared payload length
	// exceeds the bytes remaining in the file.
	ErrTruncatedBlock = errors.New("ocf: truncated block")

	// ErrInvalidBlock is returned when a block's declared record count or
	// payload length is out of range.
	ErrInvalidBlock = errors.New("ocf: invalid block")

	// ErrSyncMismatch is returned when the marker terminating a block does
	// not equal the file's sync marker.
	ErrSyncMismatch = errors.New("ocf: sync marker mismatch")
)

// Block is one framed unit of the container body: a declared record count and
// the payload bytes holding that many serialized records back to back,
// optionally codec-compressed. The trailing sync marker is not part of the
// block; ReadBlock consumes and verifies it, MarshalBinary appends it.
type Block struct {
	// Count is the declared number of records in the payload.
	Count int64

	// Data is the payload exactly as stored, compressed when the file's
	// codec is not null.
	Data []byte
}

// ReadBlock decodes the next block from cr and verifies its trailing sync
// marker against sync.
//
// A clean io.EOF on the first byte means the previous block was the file's
// last and is returned as is; any other short read is a format error wrapping
// ErrTruncatedBlock.
func ReadBlock(cr *CountingReader, sync [SyncSize]byte) (*Block, error) {
	count, err := binary.ReadVarint(cr)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: reading record count: %w", ErrTruncatedBlock, err)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: record count %d", ErrInvalidBlock, count)
	}

	size, err := binary.ReadVarint(cr)
	if err != nil {
		return nil, fmt.Errorf("%w: reading payload length: %w", ErrTruncatedBlock, err)
	}
	if size < 0 || size > maxBlockBytes {
		return nil, fmt.Errorf("%w: payload length %d", ErrInvalidBlock, size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(cr, data); err != nil {
		return nil, fmt.Errorf("%w: payload declares %d bytes: %w", ErrTruncatedBlock, size, err)
	}

	var s [SyncSize]byte
	if _, err := io.ReadFull(cr, s[:]); err != nil {
		return nil, fmt.Errorf("%w: reading sync marker: %w", ErrTruncatedBlock, err)
	}
	if s != sync {
		return nil, ErrSyncMismatch
	}
	return &Block{Count: count, Data: data}, nil
}

// MarshalBinary encodes the block framing followed by the given sync marker.
// Decoding a block and re-encoding it with the file's marker reproduces the
// original bytes exactly.
func (b *Block) MarshalBinary(sync [SyncSize]byte) ([]byte, error) {
	if b.Count < 0 {
		return nil, fmt.Errorf("%w: record count %d", ErrInvalidBlock, b.Count)
	}
	buf := make([]byte, 0, len(b.Data)+2*binary.MaxVarintLen64+SyncSize)
	buf = binary.AppendVarint(buf, b.Count)
	buf = binary.AppendVarint(buf, int64(len(b.Data)))
	buf = append(buf, b.Data...)
	buf = append(buf, sync[:]...)
	return buf, nil
}
