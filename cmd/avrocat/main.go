// Command avrocat dumps the records of Avro container files as JSON, reading
// split bundles in parallel, and can generate container files for testing.
//
// Dump a file pattern, eight bundles at a time:
//
//	avrocat -pattern 'data/*.avro' -workers 8 -bundle-size 4194304
//
// Generate a 100k-record file compressed with zstandard:
//
//	avrocat -gen -out out.avro -count 100000 -codec zstandard
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/tidewater/avrosource"
	"github.com/tidewater/avrosource/ocf"
)

type config struct {
	pattern    string
	bundleSize int64
	workers    int
	verbose    bool

	gen          bool
	out          string
	count        int
	codec        string
	syncInterval int
}

const genSchema = `{
	"type": "record",
	"name": "Event",
	"fields": [
		{"name": "id", "type": "long"},
		{"name": "name", "type": "string"},
		{"name": "value", "type": "double"}
	]
}`

type event struct {
	ID    int64   `avro:"id" json:"id"`
	Name  string  `avro:"name" json:"name"`
	Value float64 `avro:"value" json:"value"`
}

func main() {
	cfg := parseFlags()

	if cfg.gen {
		if err := generate(cfg); err != nil {
			log.Fatalf("generate: %v", err)
		}
		return
	}
	if err := dump(cfg, os.Stdout); err != nil {
		log.Fatalf("dump: %v", err)
	}
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.pattern, "pattern", "", "file pattern to read")
	flag.Int64Var(&cfg.bundleSize, "bundle-size", 16<<20, "desired bundle size in bytes")
	flag.IntVar(&cfg.workers, "workers", 4, "bundles read concurrently")
	flag.BoolVar(&cfg.verbose, "v", false, "debug logging to stderr")
	flag.BoolVar(&cfg.gen, "gen", false, "generate a test file instead of reading")
	flag.StringVar(&cfg.out, "out", "", "output path for -gen")
	flag.IntVar(&cfg.count, "count", 10000, "records to generate")
	flag.StringVar(&cfg.codec, "codec", ocf.CodecNull, "codec for -gen")
	flag.IntVar(&cfg.syncInterval, "sync-interval", 0, "force a block boundary every N generated records (0 = size-based)")
	flag.Parse()

	if cfg.gen && cfg.out == "" {
		log.Fatal("-gen requires -out")
	}
	if !cfg.gen && cfg.pattern == "" {
		log.Fatal("-pattern is required")
	}
	return cfg
}

func generate(cfg config) error {
	f, err := os.Create(cfg.out)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := ocf.NewWriter(f, genSchema, ocf.WithCodec(cfg.codec))
	if err != nil {
		return err
	}
	for i := 0; i < cfg.count; i++ {
		ev := event{ID: int64(i), Name: fmt.Sprintf("event-%d", i), Value: float64(i) / 3}
		if err := w.Append(ev); err != nil {
			return err
		}
		if cfg.syncInterval > 0 && (i+1)%cfg.syncInterval == 0 {
			if err := w.Sync(); err != nil {
				return err
			}
		}
	}
	return w.Close()
}

type bundleResult struct {
	idx  int
	recs []any
}

// dump reads all bundles concurrently and streams their records to out as
// JSON lines, in bundle order. A bundle's records are emitted as soon as it
// and every bundle before it have completed, so output starts before the
// whole input has been read.
func dump(cfg config, out io.Writer) error {
	src := avrosource.FromPattern(cfg.pattern)
	if cfg.verbose {
		src = src.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	bundles, err := src.SplitIntoBundles(cfg.bundleSize)
	if err != nil {
		return err
	}

	// Buffered to the bundle count so workers never block on a slow consumer
	// and an early return cannot strand them.
	results := make(chan bundleResult, len(bundles))
	var g errgroup.Group
	g.SetLimit(cfg.workers)
	done := make(chan error, 1)
	go func() {
		for i, b := range bundles {
			g.Go(func() error {
				recs, err := avrosource.ReadAll(b)
				if err != nil {
					return fmt.Errorf("%s: %w", b, err)
				}
				results <- bundleResult{idx: i, recs: recs}
				return nil
			})
		}
		err := g.Wait()
		close(results)
		done <- err
	}()

	enc := json.NewEncoder(out)
	pending := make(map[int][]any)
	next, total := 0, 0
	for res := range results {
		pending[res.idx] = res.recs
		for {
			recs, ok := pending[next]
			if !ok {
				break
			}
			for _, rec := range recs {
				if err := enc.Encode(rec); err != nil {
					return err
				}
				total++
			}
			delete(pending, next)
			next++
		}
	}
	if err := <-done; err != nil {
		return err
	}
	log.Printf("read %d records from %d bundles", total, len(bundles))
	return nil
}
