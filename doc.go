// Package avrosource provides a splittable, block-structured file source for
// parallel batch processing of Avro object container files.
//
// A [Source] describes an immutable byte range of a container file (or a file
// pattern covering several files). Ranges can be partitioned up front with
// [Source.SplitIntoBundles] so many workers read one file concurrently, and an
// already-executing read can shed its unread suffix at runtime through
// [Reader.SplitAtFraction] (dynamic work rebalancing). The set of records
// produced by reading every Source derived from a file, however it was split,
// is always exactly the file's records: blocks are atomic, a bundle owns every
// block that starts inside its range, and boundary alignment is resolved
// against actual sync markers when a range is opened.
//
// # Reading
//
//	src := avrosource.FromPattern("logs/*.avro").WithType(Event{})
//	r, err := src.Open()
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	for ok, err := r.Start(); ok; ok, err = r.Advance() {
//	    if err != nil {
//	        return err
//	    }
//	    handle(r.Current().(Event))
//	}
//
// # Splitting
//
// Static splitting partitions the byte range before execution:
//
//	bundles, err := src.SplitIntoBundles(64 << 20)
//
// Dynamic splitting truncates a running Reader and returns a new Source for
// the freed suffix, safe to call concurrently with the read loop:
//
//	if residual := r.SplitAtFraction(0.5); residual != nil {
//	    assign(residual) // read independently, possibly elsewhere
//	}
//
// The low-level container format (header and block framing, sync-marker
// search, compression codecs, writing) lives in the ocf subpackage. Record
// (de)serialization is delegated to hamba/avro; a Source is bound to a decoder
// with WithSchema, WithSchemaJSON, or WithType, or falls back to the file's
// embedded writer schema.
package avrosource
