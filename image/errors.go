package image

import "errors"

// Sentinel errors corresponding to the error kinds of the engine: invalid
// argument/state (a precondition failed), out of memory, I/O (a host
// read/write/seek failed or was short), not found (no version handler
// matched the on-disk tag), and invalid (header magic, bitmap checksum,
// or trailer literal failed). Host-services errors that do not match one
// of these are forwarded verbatim, unwrapped.
var (
	ErrInvalidArgument = errors.New("pcimg: invalid argument")
	ErrInvalidState    = errors.New("pcimg: invalid state")
	ErrOutOfMemory     = errors.New("pcimg: out of memory")
	ErrIO              = errors.New("pcimg: i/o error")
	ErrNotFound        = errors.New("pcimg: version not found")
	ErrInvalid         = errors.New("pcimg: invalid image")
)
