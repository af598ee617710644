package ocf

import (
	"bytes"
	"compress/bzip2"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Codec names recorded in the file header under "avro.codec".
const (
	CodecNull    = "null"
	CodecDeflate = "deflate"
	CodecSnappy  = "snappy"
	CodecZstd    = "zstandard"
	CodecBzip2   = "bzip2"
	CodecXZ      = "xz"

	// CodecLZ4 is a nonstandard extension codec using the LZ4 frame format.
	// Files written with it are not readable by implementations that support
	// only the codecs named by the format specification.
	CodecLZ4 = "lz4"
)

// Sentinel errors for codec selection and use.
var (
	// ErrUnknownCodec is returned when a header names a codec that is not
	// registered.
	ErrUnknownCodec = errors.New("ocf: unknown codec")

	// ErrDecompression is returned when a block payload fails to decompress.
	ErrDecompression = errors.New("ocf: decompression failed")

	// ErrCompressionUnsupported is returned by codecs that can only read.
	ErrCompressionUnsupported = errors.New("ocf: compression not supported")
)

// Codec compresses and decompresses block payloads. Implementations must be
// safe for concurrent use; one Codec instance serves every Reader of a file.
type Codec interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

var (
	codecMu  sync.RWMutex
	codecs   = map[string]Codec{}
	initOnce sync.Once
)

func registerBuiltins() {
	builtins := []Codec{
		nullCodec{},
		deflateCodec{},
		snappyCodec{},
		newZstdCodec(),
		bzip2Codec{},
		xzCodec{},
		lz4Codec{},
	}
	for _, c := range builtins {
		codecs[c.Name()] = c
	}
}

// RegisterCodec makes a codec available by its name, replacing any existing
// registration. It allows callers to supply nonstandard codecs for files
// produced by other ecosystems.
func RegisterCodec(c Codec) {
	initOnce.Do(registerBuiltins)
	codecMu.Lock()
	defer codecMu.Unlock()
	codecs[c.Name()] = c
}

// CodecByName returns the registered codec for name. An empty name selects
// the null codec.
func CodecByName(name string) (Codec, error) {
	initOnce.Do(registerBuiltins)
	if name == "" {
		name = CodecNull
	}
	codecMu.RLock()
	defer codecMu.RUnlock()
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// nullCodec stores payloads verbatim.
type nullCodec struct{}

func (nullCodec) Name() string { return CodecNull }

func (nullCodec) Compress(data []byte) ([]byte, error) { return data, nil }

func (nullCodec) Decompress(data []byte) ([]byte, error) { return data, nil }

// deflateCodec frames payloads as a raw DEFLATE stream (no zlib wrapper).
type deflateCodec struct{}

func (deflateCodec) Name() string { return CodecDeflate }

func (deflateCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (deflateCodec) Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: deflate: %w", ErrDecompression, err)
	}
	return out, nil
}

// snappyCodec frames payloads as a raw snappy block followed by a big-endian
// CRC-32 (IEEE) of the uncompressed data.
type snappyCodec struct{}

func (snappyCodec) Name() string { return CodecSnappy }

func (snappyCodec) Compress(data []byte) ([]byte, error) {
	out := snappy.Encode(nil, data)
	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], crc32.ChecksumIEEE(data))
	return append(out, crc[:]...), nil
}

func (snappyCodec) Decompress(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: snappy payload too short", ErrDecompression)
	}
	out, err := snappy.Decode(nil, data[:len(data)-4])
	if err != nil {
		return nil, fmt.Errorf("%w: snappy: %w", ErrDecompression, err)
	}
	want := binary.BigEndian.Uint32(data[len(data)-4:])
	if got := crc32.ChecksumIEEE(out); got != want {
		return nil, fmt.Errorf("%w: snappy crc mismatch: got %08x want %08x", ErrDecompression, got, want)
	}
	return out, nil
}

// zstdCodec shares one encoder and one decoder; both are safe for concurrent
// EncodeAll/DecodeAll use.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() *zstdCodec {
	enc, _ := zstd.NewWriter(nil)
	dec, _ := zstd.NewReader(nil)
	return &zstdCodec{enc: enc, dec: dec}
}

func (*zstdCodec) Name() string { return CodecZstd }

func (c *zstdCodec) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, nil), nil
}

func (c *zstdCodec) Decompress(data []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %w", ErrDecompression, err)
	}
	return out, nil
}

// bzip2Codec is read-only: the standard library has no bzip2 compressor.
type bzip2Codec struct{}

func (bzip2Codec) Name() string { return CodecBzip2 }

func (bzip2Codec) Compress([]byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: bzip2", ErrCompressionUnsupported)
}

func (bzip2Codec) Decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: bzip2: %w", ErrDecompression, err)
	}
	return out, nil
}

// xzCodec frames payloads as an xz stream.
type xzCodec struct{}

func (xzCodec) Name() string { return CodecXZ }

func (xzCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (xzCodec) Decompress(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: xz: %w", ErrDecompression, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: xz: %w", ErrDecompression, err)
	}
	return out, nil
}

// lz4Codec frames payloads in the LZ4 frame format.
type lz4Codec struct{}

func (lz4Codec) Name() string { return CodecLZ4 }

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %w", ErrDecompression, err)
	}
	return out, nil
}
