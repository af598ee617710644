package avrosource

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"

	"github.com/hamba/avro/v2"
)

// DefaultMinBundleSize is the minimum bundle size applied when none is
// configured.
const DefaultMinBundleSize = 1

// bindingKind enumerates the closed set of decoder configurations. The kind
// is resolved into one concrete decode capability when a Reader is opened;
// there is no per-record branching afterwards.
type bindingKind int

const (
	bindWriterSchema bindingKind = iota // decode with the file's embedded schema
	bindSchema                          // decode with a parsed reader schema
	bindSchemaJSON                      // parse a JSON schema at open time
	bindType                            // decode into values of a Go type
)

type binding struct {
	kind       bindingKind
	schema     avro.Schema
	schemaJSON string
	elem       reflect.Type
}

// Source is an immutable descriptor of a byte range of a container file, or
// of a file pattern expanding to one whole-file range per match. Multiple
// Sources derived from one file by any sequence of static and dynamic splits
// describe disjoint ranges whose union is the whole file.
//
// Configuration methods are whole-value transforms: they return a new Source
// and never mutate the receiver, so a Source can be shared freely once
// constructed.
type Source struct {
	pattern string // non-empty in pattern mode
	path    string
	start   int64
	end     int64 // -1 until resolved against the file size

	minBundleSize int64
	binding       binding
	logger        *slog.Logger
	headers       *HeaderCache
}

// FromPattern creates a Source over every file matching pattern. The pattern
// uses filepath.Glob syntax; a literal path matches itself. Matching files
// are read as a deterministically ordered concatenation of independent
// containers.
func FromPattern(pattern string) *Source {
	return &Source{
		pattern:       pattern,
		end:           -1,
		minBundleSize: DefaultMinBundleSize,
		logger:        slog.New(slog.DiscardHandler),
		headers:       NewHeaderCache(),
	}
}

func (s *Source) clone() *Source {
	c := *s
	return &c
}

// WithSchema returns a copy of the Source that decodes records with the given
// reader schema into generic Go values.
func (s *Source) WithSchema(schema avro.Schema) *Source {
	c := s.clone()
	c.binding = binding{kind: bindSchema, schema: schema}
	return c
}

// WithSchemaJSON returns a copy of the Source that parses the given JSON
// schema at open time and decodes records with it into generic Go values.
func (s *Source) WithSchemaJSON(schemaJSON string) *Source {
	c := s.clone()
	c.binding = binding{kind: bindSchemaJSON, schemaJSON: schemaJSON}
	return c
}

// WithType returns a copy of the Source that decodes records into fresh
// values of prototype's type, using the file's embedded writer schema.
// Current() then returns values assignable to that type.
func (s *Source) WithType(prototype any) *Source {
	c := s.clone()
	c.binding = binding{kind: bindType, elem: reflect.TypeOf(prototype)}
	return c
}

// WithMinBundleSize returns a copy of the Source whose static splits are at
// least n bytes. Binding a minimum does not re-scan the file.
func (s *Source) WithMinBundleSize(n int64) *Source {
	c := s.clone()
	if n < DefaultMinBundleSize {
		n = DefaultMinBundleSize
	}
	c.minBundleSize = n
	return c
}

// WithLogger returns a copy of the Source using the given logger. The default
// discards all output.
func (s *Source) WithLogger(logger *slog.Logger) *Source {
	c := s.clone()
	c.logger = logger
	return c
}

// WithHeaderCache returns a copy of the Source using the given header cache.
// Sources derived by splitting already share the original's cache; this is
// for sharing across independently constructed Sources.
func (s *Source) WithHeaderCache(hc *HeaderCache) *Source {
	c := s.clone()
	c.headers = hc
	return c
}

// Pattern returns the file pattern, or "" for a single-file Source.
func (s *Source) Pattern() string { return s.pattern }

// Path returns the file path for a single-file Source, or "" in pattern mode.
func (s *Source) Path() string { return s.path }

// Start returns the range's inclusive start offset.
func (s *Source) Start() int64 { return s.start }

// End returns the range's exclusive end offset, or -1 when the range extends
// to end of file and has not been resolved yet.
func (s *Source) End() int64 { return s.end }

// MinBundleSize returns the configured minimum bundle size in bytes.
func (s *Source) MinBundleSize() int64 { return s.minBundleSize }

// String describes the Source for logs and test failures.
func (s *Source) String() string {
	if s.pattern != "" {
		return fmt.Sprintf("avrosource(%s)", s.pattern)
	}
	return fmt.Sprintf("avrosource(%s[%d:%d))", s.path, s.start, s.end)
}

// expand resolves a pattern-mode Source into one whole-file Source per match,
// in sorted path order. A single-file Source expands to itself.
func (s *Source) expand() ([]*Source, error) {
	if s.pattern == "" {
		return []*Source{s}, nil
	}
	paths, err := filepath.Glob(s.pattern)
	if err != nil {
		return nil, fmt.Errorf("avrosource: bad pattern %q: %w", s.pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoMatch, s.pattern)
	}
	sort.Strings(paths)

	files := make([]*Source, 0, len(paths))
	for _, p := range paths {
		c := s.clone()
		c.pattern = ""
		c.path = p
		c.start = 0
		c.end = -1
		files = append(files, c)
	}
	return files, nil
}

// resolveEnd returns the concrete exclusive end offset, consulting the file
// size when the range is unbounded.
func (s *Source) resolveEnd() (int64, error) {
	if s.end >= 0 {
		return s.end, nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, fmt.Errorf("avrosource: stat %s: %w", s.path, err)
	}
	return info.Size(), nil
}

// SplitIntoBundles partitions the Source into contiguous byte-range bundles
// of at least max(desiredBundleSize, MinBundleSize) bytes each; only the
// final bundle of a file may be shorter. A file smaller than the effective
// bundle size yields a single bundle covering its whole range. In pattern
// mode, bundles are produced per file and concatenated in file order.
//
// Bundle boundaries are raw byte offsets: alignment to block boundaries is
// deferred to Reader open, because block starts are unknown without scanning.
func (s *Source) SplitIntoBundles(desiredBundleSize int64) ([]*Source, error) {
	files, err := s.expand()
	if err != nil {
		return nil, err
	}

	step := desiredBundleSize
	if step < s.minBundleSize {
		step = s.minBundleSize
	}
	if step < 1 {
		step = 1
	}

	var bundles []*Source
	for _, f := range files {
		end, err := f.resolveEnd()
		if err != nil {
			return nil, err
		}
		if end-f.start <= step {
			c := f.clone()
			c.end = end
			bundles = append(bundles, c)
			continue
		}
		for off := f.start; off < end; off += step {
			c := f.clone()
			c.start = off
			c.end = min(off+step, end)
			bundles = append(bundles, c)
		}
	}

	s.logger.Debug("split into bundles",
		slog.String("source", s.String()),
		slog.Int64("desired_bundle_size", desiredBundleSize),
		slog.Int("bundles", len(bundles)))
	return bundles, nil
}
