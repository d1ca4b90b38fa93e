// Package hostio defines the narrow capability set the image engine uses
// for every side effect: open, close, seek, read, write, allocate, free and
// file-size. The engine never calls the operating system directly; it goes
// through a Services value supplied at Open time, so the same engine code
// runs against a POSIX file, an injected mock, or (eventually) a kernel-side
// host.
package hostio

import "errors"

// Whence mirrors io.Seeker's three reference points without pulling callers
// into os or io package semantics they do not need.
type Whence int

const (
	SeekAbs Whence = iota
	SeekRel
	SeekEnd
)

// Mode is the open mode requested of a host.
type Mode int

const (
	ModeNone Mode = iota
	ModeReadOnly
	ModeReadWrite
	ModeWriteOnly
	ModeReadWriteCreate
)

// Handle identifies an open file/device to the host. It is opaque to the
// engine; only a Services implementation interprets it.
type Handle interface{}

// ErrShortIO reports that a Read or Write transferred fewer bytes than
// requested. The Services implementations here do not return it
// themselves; callers (the overlay) return it after checking the count.
var ErrShortIO = errors.New("hostio: short read or write")

// Services is the capability set required by the image engine. Every
// allocation made through Allocate must be released through Free on every
// code path, including failure paths, per the engine's ownership model.
type Services interface {
	Open(path string, mode Mode) (Handle, error)
	Close(h Handle) error
	Seek(h Handle, offset int64, whence Whence) (newPos int64, err error)
	Read(h Handle, buf []byte) (n int, err error)
	Write(h Handle, buf []byte) (n int, err error)
	Allocate(size int) ([]byte, error)
	Free(buf []byte)
	FileSize(h Handle) (int64, error)
}
