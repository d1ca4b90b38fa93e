package image

import (
	"fmt"

	"github.com/partclone/pcimg/bitmap"
	"github.com/partclone/pcimg/hostio"
	"github.com/partclone/pcimg/overlay"
)

// versionOps is the per-format operation set spec §4.4 calls for: a sum
// type / vtable keyed by on-disk version tag, realized here as an
// interface with two concrete implementations (v1Handler, v2Handler)
// rather than raw function pointers.
type versionOps interface {
	Init(ctx *Context) error
	Verify(ctx *Context) error
	Seek(ctx *Context, b uint64) error
	ReadBlock(ctx *Context, buf []byte) error
	BlockUsed(ctx *Context) (bool, error)
	WriteBlock(ctx *Context, buf []byte) error
	Sync(ctx *Context) error
	Finish(ctx *Context) error
}

// base holds the state and operations shared verbatim by v1 and v2:
// everything except Verify (spec §4.4: "v2 handler shares init, seek,
// read-block, block-used, write-block, sync, finish with v1; only verify
// differs").
type base struct {
	bitmap            *bitmap.Bitmap
	blockSize         uint64
	headerSize        uint64
	checksumSize      uint64
	blocksPerChecksum uint64
	nvbcount          uint64 // running preceding-captured-block count, set by Seek
}

// rblock2offset computes the byte offset in the base file of the i-th
// captured block (zero-based), accounting for v2's interleaved checksum
// groups; for v1 (blocksPerChecksum=1, checksumSize=0, see v1Handler.Verify)
// it reduces to a simple stride of blockSize. A zero blocksPerChecksum (a malformed-but-parseable
// header) is treated as no interleaved checksum at all rather than
// dividing by zero, matching the original's own guard around this term.
func (b *base) rblock2offset(i uint64) uint64 {
	if b.blocksPerChecksum == 0 {
		return b.headerSize + i*b.blockSize
	}
	return b.headerSize + i*b.blockSize + (i/b.blocksPerChecksum)*b.checksumSize
}

func (b *base) Init(ctx *Context) error {
	ctx.flags |= flagVersionInit

	if ctx.overlayPath != "" && ctx.mode != hostio.ModeReadOnly {
		ov, err := overlay.Init(ctx.overlayPath, ctx.host, 0, 0)
		if err == nil {
			ctx.overlay = ov
			ctx.flags |= flagOverlayOpen | flagHasOverlayHandle
		}
		// overlay-open failures are swallowed: an overlay may be created
		// lazily on first write.
	} else if ctx.mode == hostio.ModeReadOnly {
		ctx.flags |= flagReadOnly
	}
	return nil
}

func (b *base) Seek(ctx *Context, blk uint64) error {
	b.nvbcount = b.bitmap.CapturedInPrefix(blk)
	if ctx.overlay != nil {
		if err := ctx.overlay.Seek(blk); err != nil {
			return err
		}
	}
	return nil
}

func (b *base) ReadBlock(ctx *Context, buf []byte) error {
	if ctx.overlay != nil {
		err := ctx.overlay.ReadBlock(buf)
		if err == nil {
			return nil
		}
		if err != overlay.ErrBlockNotPresent {
			return fmt.Errorf("image: overlay read: %w", err)
		}
	}

	if b.bitmap.IsCaptured(ctx.cursor) {
		offset := b.rblock2offset(b.nvbcount)
		if _, err := ctx.host.Seek(ctx.baseHandle, int64(offset), hostio.SeekAbs); err != nil {
			return err
		}
		n, err := ctx.host.Read(ctx.baseHandle, buf)
		if err != nil {
			return err
		}
		if uint64(n) != ctx.header.BlockSize {
			return fmt.Errorf("image: short base read at block %d: %w", ctx.cursor, ErrIO)
		}
		b.nvbcount++
		return nil
	}

	copy(buf, ctx.scratch)
	return nil
}

func (b *base) BlockUsed(ctx *Context) (bool, error) {
	if ctx.overlay != nil && ctx.overlay.BlockUsed() {
		return true, nil
	}
	return b.bitmap.IsCaptured(ctx.cursor), nil
}

func (b *base) WriteBlock(ctx *Context, buf []byte) error {
	if !ctx.writeReady() {
		if ctx.overlayPath == "" {
			ctx.overlayPath = ctx.basePath + ".cf"
		}
		ov, err := overlay.Create(ctx.overlayPath, ctx.host, ctx.header.BlockSize, ctx.header.TotalBlocks)
		if err != nil {
			return err
		}
		ctx.overlay = ov
		ctx.flags |= flagHasOverlayHandle | flagOverlayVerified | flagOverlayOpen | flagHasOverlayPath
	}
	if err := ctx.overlay.Seek(ctx.cursor); err != nil {
		return err
	}
	return ctx.overlay.WriteBlock(buf)
}

func (b *base) Sync(ctx *Context) error {
	if ctx.overlay == nil {
		return fmt.Errorf("image: sync with no overlay: %w", ErrInvalidState)
	}
	return ctx.overlay.Sync()
}

func (b *base) Finish(ctx *Context) error {
	b.bitmap = nil
	if ctx.overlay != nil {
		err := ctx.overlay.Finish()
		ctx.overlay = nil
		return err
	}
	return nil
}
