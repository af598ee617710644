package ocf

import (
	"bytes"
	"io"
	"testing"

	"github.com/hamba/avro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readBackLongs parses a complete container file and decodes every record as
// an Avro long.
func readBackLongs(t *testing.T, file []byte) []int64 {
	t.Helper()

	r := bytes.NewReader(file)
	hdr, _, err := ReadHeader(r)
	require.NoError(t, err)

	codec, err := CodecByName(hdr.Codec())
	require.NoError(t, err)
	schema, err := avro.Parse(hdr.Schema())
	require.NoError(t, err)

	var out []int64
	cr := NewCountingReader(r)
	for {
		blk, err := ReadBlock(cr, hdr.Sync)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)

		payload, err := codec.Decompress(blk.Data)
		require.NoError(t, err)
		dec := avro.NewDecoderForSchema(schema, bytes.NewReader(payload))
		for i := int64(0); i < blk.Count; i++ {
			var v int64
			require.NoError(t, dec.Decode(&v))
			out = append(out, v)
		}
	}
}

func TestWriterProducesReadableFile(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, `"long"`, WithSyncMarker(testSync))
	require.NoError(t, err)

	want := make([]int64, 0, 100)
	for i := int64(0); i < 100; i++ {
		require.NoError(t, w.Append(i))
		want = append(want, i)
	}
	require.NoError(t, w.Close())

	assert.Equal(t, testSync, w.SyncMarker())
	assert.Equal(t, want, readBackLongs(t, buf.Bytes()))
}

func TestWriterSyncForcesBlockBoundaries(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, `"long"`, WithSyncMarker(testSync))
	require.NoError(t, err)

	for i := int64(0); i < 20; i++ {
		require.NoError(t, w.Append(i))
		if (i+1)%5 == 0 {
			require.NoError(t, w.Sync())
		}
	}
	require.NoError(t, w.Close())

	// 20 records synced every 5 records give 4 blocks of 5.
	r := bytes.NewReader(buf.Bytes())
	hdr, _, err := ReadHeader(r)
	require.NoError(t, err)

	cr := NewCountingReader(r)
	var blocks int
	for {
		blk, err := ReadBlock(cr, hdr.Sync)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, int64(5), blk.Count)
		blocks++
	}
	assert.Equal(t, 4, blocks)
}

func TestWriterCompressedBlocks(t *testing.T) {
	for _, codec := range []string{CodecDeflate, CodecSnappy, CodecZstd, CodecXZ, CodecLZ4} {
		t.Run(codec, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, `"long"`, WithCodec(codec))
			require.NoError(t, err)

			want := make([]int64, 0, 1000)
			for i := int64(0); i < 1000; i++ {
				require.NoError(t, w.Append(i*i))
				want = append(want, i*i)
			}
			require.NoError(t, w.Close())
			assert.Equal(t, want, readBackLongs(t, buf.Bytes()))
		})
	}
}

func TestWriterBlockSizeFlush(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, `"long"`, WithBlockSize(16))
	require.NoError(t, err)

	for i := int64(0); i < 100; i++ {
		require.NoError(t, w.Append(i))
	}
	require.NoError(t, w.Close())

	r := bytes.NewReader(buf.Bytes())
	hdr, _, err := ReadHeader(r)
	require.NoError(t, err)

	cr := NewCountingReader(r)
	var blocks int
	var total int64
	for {
		blk, err := ReadBlock(cr, hdr.Sync)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		blocks++
		total += blk.Count
	}
	assert.Equal(t, int64(100), total)
	assert.Greater(t, blocks, 1)
}

func TestWriterRecordsMeta(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, `"long"`, WithMeta("user.origin", []byte("unit test")))
	require.NoError(t, err)
	require.NoError(t, w.Append(int64(1)))
	require.NoError(t, w.Close())

	hdr, _, err := ReadHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []byte("unit test"), hdr.Meta["user.origin"])
	assert.Equal(t, CodecNull, hdr.Codec())
	assert.Equal(t, `"long"`, hdr.Schema())
}

func TestWriterRejectsUnknownCodec(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewWriter(&buf, `"long"`, WithCodec("brotli"))
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestWriterAfterClose(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, `"long"`)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Append(int64(1)), ErrWriterClosed)
	assert.ErrorIs(t, w.Sync(), ErrWriterClosed)
}
