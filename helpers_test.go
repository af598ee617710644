package avrosource

import (
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tidewater/avrosource/ocf"
)

// fixedRecord encodes to exactly 16 bytes: one length byte plus a 15-byte
// value, so record and block offsets in split tests are easy to reason about.
type fixedRecord struct {
	Value []byte `avro:"value"`
}

const fixedRecordSchema = `{
	"type": "record",
	"name": "FixedRecord",
	"fields": [{"name": "value", "type": "bytes"}]
}`

func newFixedRecord(i int) fixedRecord {
	v := make([]byte, 15)
	binary.LittleEndian.PutUint32(v, uint32(i))
	return fixedRecord{Value: v}
}

func (r fixedRecord) index() int {
	return int(binary.LittleEndian.Uint32(r.Value))
}

func makeFixedRecords(n int) []any {
	recs := make([]any, n)
	for i := range recs {
		recs[i] = newFixedRecord(i)
	}
	return recs
}

// bird is the variable-size record type used in read tests.
type bird struct {
	Number   int64  `avro:"number"`
	Species  string `avro:"species"`
	Quality  string `avro:"quality"`
	Quantity int64  `avro:"quantity"`
}

const birdSchema = `{
	"type": "record",
	"name": "Bird",
	"fields": [
		{"name": "number", "type": "long"},
		{"name": "species", "type": "string"},
		{"name": "quality", "type": "string"},
		{"name": "quantity", "type": "long"}
	]
}`

func makeRandomBirds(t *testing.T, n int) []any {
	t.Helper()
	qualities := []string{"miserable", "forlorn", "fidgety", "squirrelly", "fanciful", "chipper", "lazy"}
	species := []string{"pigeons", "owls", "gulls", "hawks", "robins", "jays"}
	rng := rand.New(rand.NewSource(0))

	recs := make([]any, n)
	for i := range recs {
		recs[i] = bird{
			Number:   int64(i),
			Species:  species[rng.Intn(len(species))],
			Quality:  qualities[rng.Intn(len(qualities))],
			Quantity: rng.Int63(),
		}
	}
	return recs
}

// syncBehavior controls where writeTestFile places block boundaries.
type syncBehavior int

const (
	syncDefault syncBehavior = iota // size-based blocks only
	syncRegular                     // block boundary every interval records
	syncRandom                      // block boundary at random intervals up to interval
)

// writeTestFile writes records to name under dir and returns the full path.
func writeTestFile(t *testing.T, dir, name, schema string, recs []any, behavior syncBehavior, interval int, codec string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := ocf.NewWriter(f, schema, ocf.WithCodec(codec))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(0))
	written := 0
	next := interval
	if behavior == syncRandom {
		next = 1 + rng.Intn(interval)
	}
	for _, rec := range recs {
		require.NoError(t, w.Append(rec))
		written++
		if behavior != syncDefault && written == next {
			require.NoError(t, w.Sync())
			written = 0
			if behavior == syncRandom {
				next = 1 + rng.Intn(interval)
			}
		}
	}
	require.NoError(t, w.Close())
	return path
}

// drain reads the remaining records of r, calling Start first when needed.
func drain(t *testing.T, r *Reader) []any {
	t.Helper()

	var out []any
	var ok bool
	var err error
	if r.started {
		ok, err = r.Advance()
	} else {
		ok, err = r.Start()
	}
	for {
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, r.Current())
		ok, err = r.Advance()
	}
}

// readSource reads a Source to completion.
func readSource(t *testing.T, src *Source) []any {
	t.Helper()
	recs, err := ReadAll(src)
	require.NoError(t, err)
	return recs
}
