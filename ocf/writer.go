package ocf

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hamba/avro/v2"
)

// DefaultBlockSize is the buffered payload size at which Append flushes the
// current block.
const DefaultBlockSize = 64_000

// ErrWriterClosed is returned by Append and Sync after Close.
var ErrWriterClosed = errors.New("ocf: writer closed")

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCodec selects the compression codec recorded in the header and applied
// to every block. Default: the null codec.
func WithCodec(name string) WriterOption {
	return func(w *Writer) {
		w.codecName = name
	}
}

// WithBlockSize sets the buffered payload size that triggers an automatic
// block flush. Values < 1 leave the default in place.
func WithBlockSize(n int) WriterOption {
	return func(w *Writer) {
		if n >= 1 {
			w.blockSize = n
		}
	}
}

// WithSyncMarker overrides the randomly generated sync marker. Intended for
// tests that need reproducible files.
func WithSyncMarker(sync [SyncSize]byte) WriterOption {
	return func(w *Writer) {
		w.sync = sync
		w.syncSet = true
	}
}

// WithMeta records an additional header metadata entry. Keys prefixed "avro."
// are reserved; the schema and codec entries are always written.
func WithMeta(key string, value []byte) WriterOption {
	return func(w *Writer) {
		w.meta[key] = value
	}
}

// Writer produces a container file: header first, then blocks of appended
// records separated by the sync marker. Records are buffered and framed into
// a block when the buffer reaches the block size, on Sync, and on Close.
//
// Writer is not safe for concurrent use.
type Writer struct {
	w         io.Writer
	schema    avro.Schema
	codec     Codec
	codecName string
	sync      [SyncSize]byte
	syncSet   bool
	meta      map[string][]byte
	blockSize int

	buf    bytes.Buffer
	enc    *avro.Encoder
	count  int64
	closed bool
}

// NewWriter creates a Writer over w for records of the given schema and
// writes the file header immediately.
func NewWriter(w io.Writer, schemaJSON string, opts ...WriterOption) (*Writer, error) {
	schema, err := avro.Parse(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("ocf: parsing schema: %w", err)
	}

	fw := &Writer{
		w:         w,
		schema:    schema,
		codecName: CodecNull,
		meta:      make(map[string][]byte),
		blockSize: DefaultBlockSize,
	}
	for _, opt := range opts {
		opt(fw)
	}

	fw.codec, err = CodecByName(fw.codecName)
	if err != nil {
		return nil, err
	}
	if !fw.syncSet {
		if _, err := rand.Read(fw.sync[:]); err != nil {
			return nil, fmt.Errorf("ocf: generating sync marker: %w", err)
		}
	}

	fw.meta[MetaKeySchema] = []byte(strings.TrimSpace(schemaJSON))
	fw.meta[MetaKeyCodec] = []byte(fw.codecName)

	hdr := &Header{Meta: fw.meta, Sync: fw.sync}
	b, err := hdr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, fmt.Errorf("ocf: writing header: %w", err)
	}

	fw.enc = avro.NewEncoderForSchema(schema, &fw.buf)
	return fw, nil
}

// SyncMarker returns the file's sync marker.
func (fw *Writer) SyncMarker() [SyncSize]byte {
	return fw.sync
}

// Append serializes one record into the current block.
func (fw *Writer) Append(v any) error {
	if fw.closed {
		return ErrWriterClosed
	}
	if err := fw.enc.Encode(v); err != nil {
		return fmt.Errorf("ocf: encoding record: %w", err)
	}
	fw.count++
	if fw.buf.Len() >= fw.blockSize {
		return fw.Sync()
	}
	return nil
}

// Sync flushes buffered records as one block terminated by the sync marker,
// forcing a block boundary at the current position. It is a no-op when no
// records are buffered.
func (fw *Writer) Sync() error {
	if fw.closed {
		return ErrWriterClosed
	}
	if fw.count == 0 {
		return nil
	}

	data, err := fw.codec.Compress(fw.buf.Bytes())
	if err != nil {
		return fmt.Errorf("ocf: compressing block: %w", err)
	}
	blk := &Block{Count: fw.count, Data: data}
	b, err := blk.MarshalBinary(fw.sync)
	if err != nil {
		return err
	}
	if _, err := fw.w.Write(b); err != nil {
		return fmt.Errorf("ocf: writing block: %w", err)
	}

	fw.buf.Reset()
	fw.count = 0
	return nil
}

// Close flushes any buffered records. It does not close the underlying
// writer.
func (fw *Writer) Close() error {
	if fw.closed {
		return nil
	}
	if err := fw.Sync(); err != nil {
		return err
	}
	fw.closed = true
	return nil
}
