package avrosource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"os"
	"reflect"
	"sync"

	"github.com/hamba/avro/v2"

	"github.com/tidewater/avrosource/ocf"
)

// rangeTracker is the single owned state block shared between a Reader's
// scanning context and a concurrent SplitAtFraction caller. Every transition
// is an atomic read-check-write under the mutex: claiming a block checks the
// effective end, and committing a split checks the last claimed block, so no
// interleaving can strand or duplicate a block.
type rangeTracker struct {
	mu          sync.Mutex
	start       int64
	end         int64 // effective end; shrinks on successful splits
	lastClaimed int64 // start offset of the last claimed block, or -1
	done        bool
}

func newRangeTracker(start, end int64) *rangeTracker {
	return &rangeTracker{start: start, end: end, lastClaimed: -1}
}

// tryClaimBlock records blockStart as the current position if it is still
// inside the effective range. A false return is terminal: the range was
// exhausted or a split removed the rest.
func (t *rangeTracker) tryClaimBlock(blockStart int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || blockStart >= t.end {
		t.done = true
		return false
	}
	t.lastClaimed = blockStart
	return true
}

// markDone ends the range, rejecting any further split.
func (t *rangeTracker) markDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
}

// trySplit computes the byte offset for fraction against a consistent
// snapshot of the range and, if it falls strictly between the current
// position and the effective end, commits it as the new effective end.
// It returns the candidate and the previous effective end.
func (t *rangeTracker) trySplit(fraction float64) (candidate, oldEnd int64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return 0, 0, false
	}
	candidate = t.start + int64(math.Ceil(fraction*float64(t.end-t.start)))
	cur := t.lastClaimed
	if cur < t.start {
		cur = t.start
	}
	if candidate <= cur || candidate >= t.end {
		return 0, 0, false
	}
	oldEnd = t.end
	t.end = candidate
	return candidate, oldEnd, true
}

// progress returns a consistent snapshot for fraction-consumed reporting.
func (t *rangeTracker) progress() (cur, start, end int64, done bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur = t.lastClaimed
	if cur < t.start {
		cur = t.start
	}
	return cur, t.start, t.end, t.done
}

// fileReader scans one file range block by block. Exactly one goroutine
// advances it; splitAtFraction may be called from another.
type fileReader struct {
	src    *Source
	f      *os.File
	hdr    *ocf.Header
	codec  ocf.Codec
	schema avro.Schema
	elem   reflect.Type // non-nil: decode into values of this type

	cr      *ocf.CountingReader
	base    int64 // file offset where cr began counting
	tracker *rangeTracker

	remaining int64 // records left in the current block
	dec       *avro.Decoder
	current   any
	log       *slog.Logger
}

// openFileReader opens src's file, reads the header (cached), resolves the
// decoder binding, and positions the stream at the first block boundary at or
// after src.start.
func openFileReader(src *Source) (*fileReader, error) {
	f, err := os.Open(src.path)
	if err != nil {
		return nil, fmt.Errorf("avrosource: open %s: %w", src.path, err)
	}

	fr, err := newFileReader(src, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return fr, nil
}

func newFileReader(src *Source, f *os.File) (*fileReader, error) {
	hdr, headerLen, err := src.headers.get(src.path, f)
	if err != nil {
		return nil, err
	}

	codec, err := ocf.CodecByName(hdr.Codec())
	if err != nil {
		return nil, fmt.Errorf("avrosource: %s: %w", src.path, err)
	}

	schema, elem, err := resolveBinding(src.binding, hdr)
	if err != nil {
		return nil, fmt.Errorf("avrosource: %s: %w", src.path, err)
	}

	end, err := src.resolveEnd()
	if err != nil {
		return nil, err
	}

	// Position at the first block boundary at or after start. The header
	// boundary is always a block start; for a nonzero start the scan begins
	// one marker length back, so a marker ending at start-1 (a block starting
	// exactly at start) is still seen.
	var base int64
	if src.start == 0 {
		if _, err := f.Seek(headerLen, io.SeekStart); err != nil {
			return nil, fmt.Errorf("avrosource: seek %s: %w", src.path, err)
		}
		base = headerLen
	} else {
		pos := src.start - ocf.SyncSize
		if pos < 0 {
			pos = 0
		}
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return nil, fmt.Errorf("avrosource: seek %s: %w", src.path, err)
		}
		n, err := ocf.AdvancePastNextSyncMarker(f, hdr.Sync[:])
		if err != nil {
			return nil, fmt.Errorf("avrosource: scanning for block boundary in %s: %w", src.path, err)
		}
		// No marker before EOF leaves base at the file size, which fails the
		// first block claim: a zero-record read, not an error.
		base = pos + n
	}

	src.logger.Debug("opened reader",
		slog.String("source", src.String()),
		slog.Int64("first_block_offset", base))

	return &fileReader{
		src:     src,
		f:       f,
		hdr:     hdr,
		codec:   codec,
		schema:  schema,
		elem:    elem,
		cr:      ocf.NewCountingReader(f),
		base:    base,
		tracker: newRangeTracker(src.start, end),
		log:     src.logger,
	}, nil
}

// resolveBinding turns the Source's decoder configuration into the one
// concrete schema (and optional target type) used for every record.
func resolveBinding(b binding, hdr *ocf.Header) (avro.Schema, reflect.Type, error) {
	switch b.kind {
	case bindSchema:
		return b.schema, nil, nil
	case bindSchemaJSON:
		schema, err := avro.Parse(b.schemaJSON)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
		}
		return schema, nil, nil
	case bindType, bindWriterSchema:
		schema, err := avro.Parse(hdr.Schema())
		if err != nil {
			return nil, nil, fmt.Errorf("%w: embedded writer schema: %w", ErrInvalidSchema, err)
		}
		return schema, b.elem, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown binding", ErrInvalidSchema)
	}
}

// nextBlock claims and decodes the framing of the next block. It returns
// false with no error when the range is exhausted, whether by a split, by
// reaching the effective end, or by a clean end of file.
func (fr *fileReader) nextBlock() (bool, error) {
	blockStart := fr.base + fr.cr.BytesRead()
	if !fr.tracker.tryClaimBlock(blockStart) {
		fr.log.Debug("stopping before block",
			slog.String("source", fr.src.String()),
			slog.Int64("block_offset", blockStart))
		return false, nil
	}

	blk, err := ocf.ReadBlock(fr.cr, fr.hdr.Sync)
	if err != nil {
		fr.tracker.markDone()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("avrosource: reading block at %d in %s: %w", blockStart, fr.src.path, err)
	}

	payload, err := fr.codec.Decompress(blk.Data)
	if err != nil {
		fr.tracker.markDone()
		return false, fmt.Errorf("avrosource: block at %d in %s: %w", blockStart, fr.src.path, err)
	}

	fr.remaining = blk.Count
	fr.dec = avro.NewDecoderForSchema(fr.schema, bytes.NewReader(payload))
	return true, nil
}

func (fr *fileReader) advance() (bool, error) {
	if fr.f == nil {
		return false, ErrReaderClosed
	}
	for fr.remaining == 0 {
		ok, err := fr.nextBlock()
		if !ok || err != nil {
			return false, err
		}
	}

	var v any
	if fr.elem != nil {
		p := reflect.New(fr.elem)
		if err := fr.dec.Decode(p.Interface()); err != nil {
			return false, fmt.Errorf("avrosource: decoding record in %s: %w", fr.src.path, err)
		}
		v = p.Elem().Interface()
	} else {
		if err := fr.dec.Decode(&v); err != nil {
			return false, fmt.Errorf("avrosource: decoding record in %s: %w", fr.src.path, err)
		}
	}
	fr.current = v
	fr.remaining--
	return true, nil
}

func (fr *fileReader) fractionConsumed() float64 {
	cur, start, end, done := fr.tracker.progress()
	if done || end <= start {
		return 1
	}
	f := float64(cur-start) / float64(end-start)
	return min(max(f, 0), 1)
}

// splitAtFraction shrinks the effective end to the byte offset for fraction
// and returns a Source for the freed suffix, or nil when the split is
// rejected. A rejected split has no side effect.
func (fr *fileReader) splitAtFraction(fraction float64) *Source {
	candidate, oldEnd, ok := fr.tracker.trySplit(fraction)
	if !ok {
		fr.log.Debug("split rejected",
			slog.String("source", fr.src.String()),
			slog.Float64("fraction", fraction))
		return nil
	}

	residual := fr.src.clone()
	residual.pattern = ""
	residual.start = candidate
	residual.end = oldEnd

	fr.log.Debug("split accepted",
		slog.String("source", fr.src.String()),
		slog.Float64("fraction", fraction),
		slog.Int64("split_offset", candidate))
	return residual
}

func (fr *fileReader) close() error {
	if fr.f == nil {
		return nil
	}
	err := fr.f.Close()
	fr.f = nil
	return err
}

// Reader is a sequential cursor over one Source. A single goroutine drives
// Start, Advance, Current, and Close; FractionConsumed and SplitAtFraction
// may be called concurrently from a control goroutine.
type Reader struct {
	files []*Source
	multi bool // pattern mode: per-file readers concatenated, splits rejected
	log   *slog.Logger

	// mu guards fr and fileIdx, which the scanning goroutine rewrites on
	// multi-file rollover while a control goroutine may be reading them.
	// Progress within one file is guarded by the fileReader's rangeTracker.
	mu      sync.Mutex
	fileIdx int
	fr      *fileReader

	current any
	started bool
	closed  bool
}

// file returns a consistent (fr, fileIdx) snapshot.
func (r *Reader) file() (*fileReader, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fr, r.fileIdx
}

// Open creates a Reader over the Source's range. For a pattern Source the
// matching files are read in sorted order as one concatenated stream.
func (s *Source) Open() (*Reader, error) {
	files, err := s.expand()
	if err != nil {
		return nil, err
	}

	r := &Reader{files: files, multi: s.pattern != "", log: s.logger}
	if !r.multi {
		fr, err := openFileReader(files[0])
		if err != nil {
			return nil, err
		}
		r.fr = fr
	}
	return r, nil
}

// Start positions the Reader at the first record and reports whether one
// exists. It must be called once, before Advance.
func (r *Reader) Start() (bool, error) {
	if r.closed {
		return false, ErrReaderClosed
	}
	if r.started {
		return false, errors.New("avrosource: Start called twice")
	}
	r.started = true
	return r.advance()
}

// Advance moves to the next record and reports whether one exists.
func (r *Reader) Advance() (bool, error) {
	if r.closed {
		return false, ErrReaderClosed
	}
	if !r.started {
		return false, errors.New("avrosource: Advance called before Start")
	}
	return r.advance()
}

func (r *Reader) advance() (bool, error) {
	for {
		fr, idx := r.file()
		if fr == nil {
			if idx >= len(r.files) {
				return false, nil
			}
			opened, err := openFileReader(r.files[idx])
			if err != nil {
				return false, err
			}
			r.mu.Lock()
			r.fr = opened
			r.mu.Unlock()
			fr = opened
		}

		ok, err := fr.advance()
		if err != nil {
			return false, err
		}
		if ok {
			r.current = fr.current
			return true, nil
		}

		// Single-file readers keep fr so a late SplitAtFraction still sees
		// consistent (terminal) tracker state.
		if !r.multi {
			return false, nil
		}
		if err := fr.close(); err != nil {
			return false, err
		}
		r.mu.Lock()
		r.fr = nil
		r.fileIdx++
		r.mu.Unlock()
	}
}

// Current returns the record produced by the last successful Start or
// Advance.
func (r *Reader) Current() any {
	return r.current
}

// FractionConsumed reports progress through the Source's byte range in
// [0, 1]. For pattern Sources the fraction is averaged over the file count.
func (r *Reader) FractionConsumed() float64 {
	fr, idx := r.file()
	if r.multi {
		f := float64(idx)
		if fr != nil {
			f += fr.fractionConsumed()
		}
		return min(f/float64(len(r.files)), 1)
	}
	if fr == nil {
		return 0
	}
	return fr.fractionConsumed()
}

// SplitAtFraction truncates the Reader's remaining range at the given
// fraction of its byte range and returns a Source for the suffix, to be read
// independently. It returns nil when the split is rejected: the fraction
// falls at or before the current position, at or past the effective end, the
// read already finished, or the Reader is a multi-file pattern reader.
// A rejected split leaves the Reader exactly as it was.
//
// The residual's start is a raw byte offset; it is aligned forward to the
// next block boundary when the residual is opened.
func (r *Reader) SplitAtFraction(fraction float64) *Source {
	if r.multi {
		return nil
	}
	fr, _ := r.file()
	if fr == nil {
		return nil
	}
	return fr.splitAtFraction(fraction)
}

// Records iterates the remaining records. It calls Start (or Advance, if
// started) and stops at the first error, yielding it.
func (r *Reader) Records() iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		var (
			ok  bool
			err error
		)
		if r.started {
			ok, err = r.Advance()
		} else {
			ok, err = r.Start()
		}
		for {
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(r.current, nil) {
				return
			}
			ok, err = r.Advance()
		}
	}
}

// Close releases the Reader's file handle. The Reader cannot be reused.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	fr, _ := r.file()
	if fr != nil {
		return fr.close()
	}
	return nil
}

// ReadAll opens src and reads it to completion, returning every record in
// order.
func ReadAll(src *Source) ([]any, error) {
	r, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []any
	for rec, err := range r.Records() {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
