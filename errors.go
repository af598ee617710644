package avrosource

import (
	"errors"

	"github.com/tidewater/avrosource/ocf"
)

// Errors re-exported from ocf.
var (
	// ErrBadMagic is returned when a file does not begin with the container
	// magic bytes.
	ErrBadMagic = ocf.ErrBadMagic

	// ErrInvalidHeader is returned when the file header is malformed.
	ErrInvalidHeader = ocf.ErrInvalidHeader

	// ErrUnknownCodec is returned when the header names an unregistered codec.
	ErrUnknownCodec = ocf.ErrUnknownCodec

	// ErrTruncatedBlock is returned when a block declares more bytes than the
	// file holds.
	ErrTruncatedBlock = ocf.ErrTruncatedBlock

	// ErrSyncMismatch is returned when a block terminator does not match the
	// file's sync marker.
	ErrSyncMismatch = ocf.ErrSyncMismatch

	// ErrDecompression is returned when a block payload fails to decompress.
	ErrDecompression = ocf.ErrDecompression
)

// Errors specific to the avrosource package.
var (
	// ErrNoMatch is returned when a file pattern matches no files.
	ErrNoMatch = errors.New("avrosource: pattern matched no files")

	// ErrInvalidSchema is returned when a bound schema cannot be parsed.
	ErrInvalidSchema = errors.New("avrosource: invalid schema")

	// ErrReaderClosed is returned by Start and Advance after Close.
	ErrReaderClosed = errors.New("avrosource: reader closed")
)
