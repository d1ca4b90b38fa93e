// Package image implements the image context and public API: the handle
// callers open, verify, read/write/sync through, and close. It owns
// version dispatch (v1/v2) and orchestrates the host-services and overlay
// collaborators on the caller's behalf.
package image

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/partclone/pcimg/hostio"
	"github.com/partclone/pcimg/overlay"
)

// stateFlags is the context's lifecycle bitmask, named exactly per the
// state flags this engine is specified against.
type stateFlags uint32

const (
	flagOpen stateFlags = 1 << iota
	flagOverlayOpen
	flagVerified
	flagHeadValid
	flagVersionInit
	flagHasOverlayHandle
	flagHasOverlayPath
	flagHasBasePath
	flagHasScratch
	flagOverlayVerified
	flagTolerant
	flagReadOnly
)

// Context is the image handle: host-services vtable, base-file handle,
// owned path copies, optional overlay, cursor, cached header, version
// dispatch pointer and its state, scratch block, and the state-flag word.
type Context struct {
	host hostio.Services

	baseHandle hostio.Handle
	basePath   string

	overlayPath string
	overlay     *overlay.Overlay

	mode   hostio.Mode
	cursor uint64

	header Header
	ops    versionOps

	scratch []byte
	flags   stateFlags

	// sessionID correlates this context's log lines across its lifetime;
	// it never touches the on-disk format.
	sessionID uuid.UUID
}

// provenanceProvider is implemented by host-services backends (hostio.POSIX)
// that can report where a base file came from. Context type-asserts its
// host against this rather than widening hostio.Services, since most
// backends (hostio.Mock) have nothing to report.
type provenanceProvider interface {
	Provenance(h hostio.Handle) (device string, birth string)
}

// Provenance reports the originating device path and birth time recorded
// for the base file, when the host-services backend supports it. Both
// return values are empty on a backend without provenance support (e.g.
// hostio.Mock) or when nothing was ever stored.
func (c *Context) Provenance() (device string, birth string) {
	pp, ok := c.host.(provenanceProvider)
	if !ok {
		return "", ""
	}
	return pp.Provenance(c.baseHandle)
}

// SessionID returns the UUID generated for this context at Open, used to
// correlate its log lines across a long-running CLI invocation.
func (c *Context) SessionID() uuid.UUID {
	return c.sessionID
}

// tellSentinel is returned by Tell when the context is not read-ready.
const tellSentinel = math.MaxUint64

func (c *Context) readReady() bool {
	const want = flagOpen | flagVerified | flagHeadValid | flagVersionInit
	return c.flags&want == want
}

func (c *Context) writeReady() bool {
	if !c.readReady() {
		return false
	}
	if c.flags&flagReadOnly != 0 {
		return false
	}
	const want = flagHasOverlayHandle | flagOverlayVerified
	return c.flags&want == want
}

// Open allocates a context, copies path, and opens the base file
// read-only. The overlay path, if given, is only remembered; it is opened
// (or deferred) during Verify/write-block per the version handler.
func Open(host hostio.Services, path string, overlayPath string, mode hostio.Mode) (*Context, error) {
	if host == nil {
		return nil, fmt.Errorf("image: nil host services: %w", ErrInvalidArgument)
	}
	h, err := host.Open(path, hostio.ModeReadOnly)
	if err != nil {
		return nil, err
	}
	ctx := &Context{
		host:        host,
		baseHandle:  h,
		basePath:    path,
		overlayPath: overlayPath,
		mode:        mode,
		flags:       flagOpen | flagHasBasePath,
		sessionID:   uuid.New(),
	}
	if overlayPath != "" {
		ctx.flags |= flagHasOverlayPath
	}
	return ctx, nil
}

// Tolerant sets the TOLERANT flag. The current engine does not change
// behavior based on it; it is recorded for a future policy, per spec.
func (c *Context) Tolerant() error {
	if c.flags&flagOpen == 0 {
		return fmt.Errorf("image: tolerant before open: %w", ErrInvalidState)
	}
	c.flags |= flagTolerant
	return nil
}

// Verify reads the header, matches a version handler, runs its init and
// verify, and allocates the zero-filled scratch block.
func (c *Context) Verify() error {
	if c.flags&flagOpen == 0 {
		return fmt.Errorf("image: verify before open: %w", ErrInvalidState)
	}

	prefix := make([]byte, MagicLen+4)
	if _, err := c.host.Seek(c.baseHandle, 0, hostio.SeekAbs); err != nil {
		return err
	}
	n, err := c.host.Read(c.baseHandle, prefix)
	if err != nil {
		return err
	}
	if n != len(prefix) {
		return fmt.Errorf("image: short header read: %w", ErrIO)
	}

	var tag [4]byte
	copy(tag[:], prefix[MagicLen:MagicLen+4])
	ops, err := lookupVersion(tag)
	if err != nil {
		return err
	}
	c.ops = ops

	if err := ops.Init(c); err != nil {
		return err
	}
	if err := ops.Verify(c); err != nil {
		return err
	}

	scratch, err := c.host.Allocate(int(c.header.BlockSize))
	if err != nil {
		return fmt.Errorf("image: allocating scratch block: %w", ErrOutOfMemory)
	}
	c.scratch = scratch
	c.flags |= flagVerified | flagHeadValid | flagHasScratch
	return nil
}

// BlockSize returns the image's block size, or -1 if not yet verified.
func (c *Context) BlockSize() int64 {
	if c.flags&flagVerified == 0 {
		return -1
	}
	return int64(c.header.BlockSize)
}

// BlockCount returns the image's total logical block count, or -1 if not
// yet verified.
func (c *Context) BlockCount() int64 {
	if c.flags&flagVerified == 0 {
		return -1
	}
	return int64(c.header.TotalBlocks)
}

// Seek moves the cursor to logical block b, which must be <= BlockCount
// (BlockCount itself is a valid, EOF cursor position).
func (c *Context) Seek(b uint64) error {
	if !c.readReady() {
		return fmt.Errorf("image: seek on unready context: %w", ErrInvalidState)
	}
	if b > c.header.TotalBlocks {
		return fmt.Errorf("image: seek %d beyond %d blocks: %w", b, c.header.TotalBlocks, ErrInvalidArgument)
	}
	if err := c.ops.Seek(c, b); err != nil {
		return err
	}
	c.cursor = b
	return nil
}

// Tell returns the current cursor, or the all-ones sentinel if the
// context is not read-ready.
func (c *Context) Tell() uint64 {
	if !c.readReady() {
		return tellSentinel
	}
	return c.cursor
}

// ReadBlocks reads n blocks starting at the cursor into buf, which must be
// at least n*BlockSize bytes. The cursor advances after each successful
// sub-read and stops at the first error, so a partial failure leaves the
// cursor pointing at the failing block.
func (c *Context) ReadBlocks(buf []byte, n uint64) error {
	if !c.readReady() {
		return fmt.Errorf("image: read on unready context: %w", ErrInvalidState)
	}
	bs := c.header.BlockSize
	for i := uint64(0); i < n; i++ {
		dst := buf[i*bs : (i+1)*bs]
		if err := c.ops.ReadBlock(c, dst); err != nil {
			return err
		}
		c.cursor++
	}
	return nil
}

// errBlockUsedNotReady is returned (with false) by BlockUsed when the
// context is not read-ready; there is no valid bool for "error" so callers
// must check the returned error too.
var errBlockUsedNotReady = fmt.Errorf("image: block-used on unready context: %w", ErrInvalidState)

// BlockUsed reports whether the cursor block is captured in the base
// image or present in the overlay.
func (c *Context) BlockUsed() (bool, error) {
	if !c.readReady() {
		return false, errBlockUsedNotReady
	}
	return c.ops.BlockUsed(c)
}

// WriteBlocks writes n blocks from buf starting at the cursor. The cursor
// advances after each successful sub-write and stops at the first error.
func (c *Context) WriteBlocks(buf []byte, n uint64) error {
	if !c.readReady() {
		return fmt.Errorf("image: write on unready context: %w", ErrInvalidState)
	}
	if c.flags&flagReadOnly != 0 {
		return fmt.Errorf("image: write on read-only context: %w", ErrInvalidState)
	}
	bs := c.header.BlockSize
	for i := uint64(0); i < n; i++ {
		src := buf[i*bs : (i+1)*bs]
		if err := c.ops.WriteBlock(c, src); err != nil {
			return err
		}
		c.cursor++
	}
	return nil
}

// Sync flushes the overlay. Requires write-readiness.
func (c *Context) Sync() error {
	if !c.writeReady() {
		return fmt.Errorf("image: sync on non-write-ready context: %w", ErrInvalidState)
	}
	return c.ops.Sync(c)
}

// Close releases everything the context owns, regardless of which stage
// failed: syncs and closes the overlay if open, closes the base file if
// open, frees the scratch block, and runs the version handler's finish.
// Close is best-effort and always "succeeds" once the context itself is
// non-nil and has not already been closed.
func (c *Context) Close() error {
	if c.flags == 0 {
		return fmt.Errorf("image: double close: %w", ErrInvalidState)
	}

	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.flags&flagOverlayOpen != 0 && c.overlay != nil {
		note(c.overlay.Sync())
	}
	if c.flags&flagOpen != 0 && c.baseHandle != nil {
		note(c.host.Close(c.baseHandle))
	}
	if c.flags&flagHasScratch != 0 && c.scratch != nil {
		c.host.Free(c.scratch)
		c.scratch = nil
	}
	if c.ops != nil {
		note(c.ops.Finish(c))
	}

	c.flags = 0
	return firstErr
}

// Probe opens, verifies, and closes path, returning whatever Verify
// returned -- a read-only check that a path is a well-formed image of
// this type.
func Probe(host hostio.Services, path string) error {
	ctx, err := Open(host, path, "", hostio.ModeReadOnly)
	if err != nil {
		return err
	}
	verr := ctx.Verify()
	_ = ctx.Close()
	return verr
}
