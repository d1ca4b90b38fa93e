package hostio

import (
	"fmt"
	"os"
	"sync"

	"github.com/pkg/xattr"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	times "gopkg.in/djherbis/times.v1"
)

// provenanceXattr is the extended attribute name used to record where a
// base image's source device path came from, for CLI diagnostics.
const provenanceXattr = "user.pcimg.provenance"

// posixHandle wraps an *os.File with the small amount of bookkeeping
// Seek/Read/Write and the golang.org/x/sys/unix-based FileSize need.
type posixHandle struct {
	f    *os.File
	fd   int
	path string
}

// POSIX is the Services implementation backed by ordinary files. Seek
// moves the file's own cursor, and Read/Write operate on that cursor
// (stateful, not positioned pread/pwrite), so a single handle must not be
// used from more than one goroutine at a time; golang.org/x/sys/unix is
// used only for Fstat-based sizing.
type POSIX struct {
	Log *logrus.Logger

	pool sync.Pool
}

// NewPOSIX builds a POSIX host-services implementation. A nil logger
// disables logging (a discarded logrus.Logger is installed).
func NewPOSIX(log *logrus.Logger) *POSIX {
	if log == nil {
		log = logrus.New()
		log.SetOutput(discardWriter{})
	}
	return &POSIX{Log: log}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func toOSFlags(mode Mode) int {
	switch mode {
	case ModeReadOnly:
		return os.O_RDONLY
	case ModeWriteOnly:
		return os.O_WRONLY
	case ModeReadWrite:
		return os.O_RDWR
	case ModeReadWriteCreate:
		return os.O_RDWR | os.O_CREATE
	default:
		return os.O_RDONLY
	}
}

func (p *POSIX) Open(path string, mode Mode) (Handle, error) {
	f, err := os.OpenFile(path, toOSFlags(mode), 0o644)
	if err != nil {
		return nil, err
	}
	p.Log.WithFields(logrus.Fields{"path": path, "mode": mode}).Debug("hostio: opened")
	return &posixHandle{f: f, fd: int(f.Fd()), path: path}, nil
}

func (p *POSIX) Close(h Handle) error {
	ph, ok := h.(*posixHandle)
	if !ok || ph == nil {
		return fmt.Errorf("hostio: invalid handle")
	}
	return ph.f.Close()
}

func (p *POSIX) Seek(h Handle, offset int64, whence Whence) (int64, error) {
	ph, ok := h.(*posixHandle)
	if !ok || ph == nil {
		return 0, fmt.Errorf("hostio: invalid handle")
	}
	var w int
	switch whence {
	case SeekAbs:
		w = 0
	case SeekRel:
		w = 1
	case SeekEnd:
		w = 2
	default:
		return 0, fmt.Errorf("hostio: invalid whence %d", whence)
	}
	return ph.f.Seek(offset, w)
}

func (p *POSIX) Read(h Handle, buf []byte) (int, error) {
	ph, ok := h.(*posixHandle)
	if !ok || ph == nil {
		return 0, fmt.Errorf("hostio: invalid handle")
	}
	n, err := ph.f.Read(buf)
	return n, err
}

func (p *POSIX) Write(h Handle, buf []byte) (int, error) {
	ph, ok := h.(*posixHandle)
	if !ok || ph == nil {
		return 0, fmt.Errorf("hostio: invalid handle")
	}
	n, err := ph.f.Write(buf)
	return n, err
}

// Allocate returns a zeroed buffer, reusing a pooled slice when the one
// the pool hands back has at least size bytes of capacity and falling
// back to a fresh make otherwise.
func (p *POSIX) Allocate(size int) ([]byte, error) {
	if v := p.pool.Get(); v != nil {
		if b, ok := v.([]byte); ok && cap(b) >= size {
			b = b[:size]
			for i := range b {
				b[i] = 0
			}
			return b, nil
		}
	}
	return make([]byte, size), nil
}

func (p *POSIX) Free(buf []byte) {
	//nolint:staticcheck // intentionally pooling arbitrary-length buffers
	p.pool.Put(buf[:0])
}

func (p *POSIX) FileSize(h Handle) (int64, error) {
	ph, ok := h.(*posixHandle)
	if !ok || ph == nil {
		return 0, fmt.Errorf("hostio: invalid handle")
	}
	var st unix.Stat_t
	if err := unix.Fstat(ph.fd, &st); err != nil {
		return 0, err
	}
	return st.Size, nil
}

// StoreProvenance records the originating device path as an extended
// attribute on the base file, best-effort: failures are logged, not
// propagated, since provenance is a diagnostic convenience, not part of
// the engine's correctness contract.
func (p *POSIX) StoreProvenance(h Handle, devicePath string) {
	ph, ok := h.(*posixHandle)
	if !ok || ph == nil {
		return
	}
	if err := xattr.Set(ph.path, provenanceXattr, []byte(devicePath)); err != nil {
		p.Log.WithError(err).WithField("path", ph.path).Debug("hostio: provenance xattr unsupported")
	}
}

// Provenance reads back the extended attribute written by StoreProvenance
// and the file's creation time when the platform exposes one (via
// djherbis/times), both surfaced through Context.Provenance() for CLI
// reporting.
func (p *POSIX) Provenance(h Handle) (device string, birth string) {
	ph, ok := h.(*posixHandle)
	if !ok || ph == nil {
		return "", ""
	}
	if b, err := xattr.Get(ph.path, provenanceXattr); err == nil {
		device = string(b)
	}
	if t, err := times.Stat(ph.path); err == nil && t.HasBirthTime() {
		birth = t.BirthTime().Format("2006-01-02T15:04:05Z07:00")
	}
	return device, birth
}
