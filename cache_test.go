package avrosource

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewater/avrosource/ocf"
)

func TestHeaderCacheReusesParse(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "cached.avro", fixedRecordSchema,
		makeFixedRecords(10), syncDefault, 0, ocf.CodecNull)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	c := NewHeaderCache()
	h1, n1, err := c.get(path, f)
	require.NoError(t, err)
	require.Positive(t, n1)

	h2, n2, err := c.get(path, f)
	require.NoError(t, err)
	assert.Same(t, h1, h2, "second lookup should hit the cache")
	assert.Equal(t, n1, n2)
}

func TestHeaderCacheConcurrentSingleParse(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "flight.avro", fixedRecordSchema,
		makeFixedRecords(10), syncDefault, 0, ocf.CodecNull)

	c := NewHeaderCache()
	headers := make([]*ocf.Header, 8)

	var wg sync.WaitGroup
	for i := range headers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := os.Open(path)
			assert.NoError(t, err)
			defer f.Close()
			h, _, err := c.get(path, f)
			assert.NoError(t, err)
			headers[i] = h
		}()
	}
	wg.Wait()

	for i := 1; i < len(headers); i++ {
		assert.Same(t, headers[0], headers[i])
	}
}

func TestHeaderCacheSharedByBundles(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "shared.avro", fixedRecordSchema,
		makeFixedRecords(200), syncRegular, 20, ocf.CodecNull)

	src := FromPattern(path).WithType(fixedRecord{})
	bundles, err := src.SplitIntoBundles(512)
	require.NoError(t, err)
	require.Greater(t, len(bundles), 1)

	for _, b := range bundles {
		assert.Same(t, src.headers, b.headers)
	}
}

func TestHeaderCacheMissesOnRewrite(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "rewrite.avro", fixedRecordSchema,
		makeFixedRecords(10), syncDefault, 0, ocf.CodecNull)

	c := NewHeaderCache()

	f1, err := os.Open(path)
	require.NoError(t, err)
	h1, _, err := c.get(path, f1)
	require.NoError(t, err)
	require.NoError(t, f1.Close())

	// Rewrite with a different record count so the size changes.
	writeTestFile(t, dir, "rewrite.avro", fixedRecordSchema,
		makeFixedRecords(20), syncDefault, 0, ocf.CodecNull)

	f2, err := os.Open(path)
	require.NoError(t, err)
	defer f2.Close()
	h2, _, err := c.get(path, f2)
	require.NoError(t, err)
	assert.NotSame(t, h1, h2, "rewritten file should be reparsed")
}
