// Package ocf implements the Avro Object Container File format: a
// self-describing binary container holding a header (magic bytes, metadata
// map, 16-byte sync marker) followed by a sequence of length-framed blocks of
// serialized records, each terminated by the file's sync marker.
//
// The package provides bit-exact header and block framing ([ReadHeader],
// [ReadBlock]), a streaming sync-marker search automaton ([Seeker],
// [AdvancePastNextSyncMarker]) that resumes correctly across buffer
// boundaries, a pluggable compression codec registry ([RegisterCodec],
// [CodecByName]), and a block-buffering [Writer].
//
// Record (de)serialization is out of scope; blocks carry opaque payload
// bytes. The avrosource package layers record decoding and parallel,
// dynamically splittable reading on top of this package.
package ocf
