package image

import (
	"bytes"
	"fmt"

	"github.com/partclone/pcimg/bitmap"
	"github.com/partclone/pcimg/crc"
	"github.com/partclone/pcimg/hostio"
)

// v1Handler implements the v1 on-disk format. It shares every operation
// except Verify with v2Handler, via the embedded base.
type v1Handler struct {
	base
}

func (h *v1Handler) Verify(ctx *Context) error {
	raw := make([]byte, v1HeaderSize)
	if _, err := ctx.host.Seek(ctx.baseHandle, 0, hostio.SeekAbs); err != nil {
		return err
	}
	n, err := ctx.host.Read(ctx.baseHandle, raw)
	if err != nil {
		return err
	}
	if n != v1HeaderSize {
		return fmt.Errorf("image: short v1 header read: %w", ErrIO)
	}
	rh, err := decodeV1Header(raw)
	if err != nil {
		return fmt.Errorf("image: %v: %w", err, ErrInvalid)
	}
	if !bytes.Equal(rh.magic[:], imageMagic[:]) {
		return fmt.Errorf("image: bad v1 magic: %w", ErrInvalid)
	}

	hdr := Header{
		BlockSize:         uint64(rh.blockSize),
		TotalBlocks:       rh.totalBlocks,
		DeviceSize:        rh.deviceSize,
		ChecksumSize:      crc.Size,
		BlocksPerChecksum: 1,
		Version:           rh.version,
	}
	hdr.HeaderSize = uint64(v1HeaderSize) + hdr.TotalBlocks + v1TrailerLen

	bm, err := bitmap.LoadUnpacked(hostReader{ctx.host, ctx.baseHandle}, hdr.TotalBlocks)
	if err != nil {
		return fmt.Errorf("image: short v1 bitmap read: %v: %w", err, ErrInvalid)
	}

	trailer := make([]byte, v1TrailerLen)
	tn, err := ctx.host.Read(ctx.baseHandle, trailer)
	if err != nil {
		return fmt.Errorf("image: reading v1 trailer: %v: %w", err, ErrInvalid)
	}
	if tn != v1TrailerLen || !bytes.Equal(trailer, v1MagicTrailer[:]) {
		return fmt.Errorf("image: bad v1 trailer: %w", ErrInvalid)
	}

	if hdr.DeviceSize != hdr.BlockSize*hdr.TotalBlocks {
		hdr.DeviceSize = hdr.BlockSize * hdr.TotalBlocks
	}

	if err := bm.BuildPrefixSums(bitmap.DefaultFactor); err != nil {
		return err
	}

	h.bitmap = bm
	h.blockSize = hdr.BlockSize
	h.headerSize = hdr.HeaderSize
	// The v1 data region carries no inter-block checksums (§6.1's layout
	// diagram: "data: used_blocks * block_size, no inter-block
	// checksums"), so rblock2offset's stride must not add CRC_SIZE per
	// block here even though hdr.ChecksumSize reports CRC_SIZE as the
	// logical per-group checksum size (§3's data model). Using CRC_SIZE
	// in the stride would put a gap between consecutive captured blocks
	// that the format's own worked example (§8 scenario 1: contiguous
	// A*16 || C*16 with no gap) does not have.
	h.checksumSize = 0
	h.blocksPerChecksum = hdr.BlocksPerChecksum
	ctx.header = hdr

	if ctx.overlay != nil {
		if err := ctx.overlay.Verify(); err != nil {
			return fmt.Errorf("image: overlay verify: %w", err)
		}
		ctx.flags |= flagOverlayVerified
	}
	return nil
}
