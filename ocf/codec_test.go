package ocf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrips(t *testing.T) {
	payload := append(bytes.Repeat([]byte("avrosource codec round trip "), 100), 0, 1, 2, 3)

	for _, name := range []string{CodecNull, CodecDeflate, CodecSnappy, CodecZstd, CodecXZ, CodecLZ4} {
		t.Run(name, func(t *testing.T) {
			c, err := CodecByName(name)
			require.NoError(t, err)
			assert.Equal(t, name, c.Name())

			comp, err := c.Compress(payload)
			require.NoError(t, err)
			got, err := c.Decompress(comp)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestCodecByNameEmptyIsNull(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, CodecNull, c.Name())
}

func TestCodecByNameUnknown(t *testing.T) {
	_, err := CodecByName("brotli")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestBzip2CodecIsReadOnly(t *testing.T) {
	c, err := CodecByName(CodecBzip2)
	require.NoError(t, err)

	_, err = c.Compress([]byte("data"))
	assert.ErrorIs(t, err, ErrCompressionUnsupported)
}

// bzip2Fixture is `bzip2 -9` output for bzip2FixtureText, checked in because
// the codec has no write side to produce it.
var bzip2Fixture = []byte{
	66, 90, 104, 57, 49, 65, 89, 38, 83, 89, 28, 203, 21, 16, 0, 0,
	15, 89, 128, 0, 16, 64, 0, 127, 240, 63, 255, 255, 240, 32, 0, 72,
	138, 26, 104, 6, 67, 35, 201, 6, 135, 164, 200, 41, 54, 166, 67, 76,
	154, 109, 76, 134, 129, 160, 61, 75, 218, 82, 30, 36, 70, 234, 22, 98,
	188, 124, 206, 166, 55, 77, 68, 148, 22, 245, 131, 159, 186, 4, 24, 17,
	64, 31, 179, 71, 232, 38, 19, 210, 90, 130, 212, 208, 250, 129, 173, 30,
	224, 240, 52, 200, 158, 39, 96, 174, 207, 197, 220, 145, 78, 20, 36, 7,
	50, 197, 68, 0,
}

const bzip2FixtureText = "bzip2 read path fixture: the quick brown fox jumps over the lazy dog 0123456789\n"

func TestBzip2CodecDecompress(t *testing.T) {
	c, err := CodecByName(CodecBzip2)
	require.NoError(t, err)

	got, err := c.Decompress(bzip2Fixture)
	require.NoError(t, err)
	assert.Equal(t, []byte(bzip2FixtureText), got)

	corrupt := append([]byte(nil), bzip2Fixture...)
	corrupt[20] ^= 0xFF
	_, err = c.Decompress(corrupt)
	assert.ErrorIs(t, err, ErrDecompression)
}

func TestSnappyCodecRejectsBadCRC(t *testing.T) {
	c, err := CodecByName(CodecSnappy)
	require.NoError(t, err)

	comp, err := c.Compress([]byte("some snappy data"))
	require.NoError(t, err)
	comp[len(comp)-1] ^= 0xFF
	_, err = c.Decompress(comp)
	assert.ErrorIs(t, err, ErrDecompression)
}

type xorCodec struct{}

func (xorCodec) Name() string { return "xor" }

func (xorCodec) Compress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ 0x55
	}
	return out, nil
}

func (xorCodec) Decompress(data []byte) ([]byte, error) {
	return xorCodec{}.Compress(data)
}

func TestRegisterCodec(t *testing.T) {
	RegisterCodec(xorCodec{})

	c, err := CodecByName("xor")
	require.NoError(t, err)
	comp, err := c.Compress([]byte("abc"))
	require.NoError(t, err)
	got, err := c.Decompress(comp)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}
