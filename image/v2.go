package image

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/partclone/pcimg/bitmap"
	"github.com/partclone/pcimg/crc"
	"github.com/partclone/pcimg/hostio"
)

// v2Handler implements the v2 on-disk format. Only Verify differs from
// v1Handler; every other operation comes from the embedded base.
type v2Handler struct {
	base
}

func (h *v2Handler) Verify(ctx *Context) error {
	raw := make([]byte, v2HeaderSize)
	if _, err := ctx.host.Seek(ctx.baseHandle, 0, hostio.SeekAbs); err != nil {
		return err
	}
	n, err := ctx.host.Read(ctx.baseHandle, raw)
	if err != nil {
		return err
	}
	if n != v2HeaderSize {
		return fmt.Errorf("image: short v2 header read: %w", ErrIO)
	}
	rh, err := decodeV2Header(raw)
	if err != nil {
		return fmt.Errorf("image: %v: %w", err, ErrInvalid)
	}
	if !bytes.Equal(rh.magic[:], imageMagic[:]) {
		return fmt.Errorf("image: bad v2 magic: %w", ErrInvalid)
	}

	hdr := Header{
		BlockSize:         uint64(rh.blockSize),
		TotalBlocks:       rh.totalBlocks,
		DeviceSize:        rh.deviceSize,
		ChecksumSize:      uint64(rh.checksumSize),
		BlocksPerChecksum: uint64(rh.blocksPerChecksum),
		Version:           rh.version,
	}
	bitmapSize := (hdr.TotalBlocks + 7) / 8
	hdr.HeaderSize = uint64(v2HeaderSize) + bitmapSize + crc.Size

	packedAndChecksum := make([]byte, bitmapSize+crc.Size)
	pn, err := ctx.host.Read(ctx.baseHandle, packedAndChecksum)
	if err != nil {
		return err
	}
	if uint64(pn) != bitmapSize+crc.Size {
		return fmt.Errorf("image: short v2 bitmap read: %w", ErrInvalid)
	}
	packed := packedAndChecksum[:bitmapSize]
	storedCRC := binary.LittleEndian.Uint32(packedAndChecksum[bitmapSize:])
	if actual := crc.V2Sum(packed); actual != storedCRC {
		return fmt.Errorf("image: v2 bitmap checksum mismatch (stored %x, computed %x): %w", storedCRC, actual, ErrInvalid)
	}

	bm, err := bitmap.LoadPacked(bytes.NewReader(packed), hdr.TotalBlocks)
	if err != nil {
		return fmt.Errorf("image: expanding v2 bitmap: %w", err)
	}
	if err := bm.BuildPrefixSums(bitmap.DefaultFactor); err != nil {
		return err
	}

	h.bitmap = bm
	h.blockSize = hdr.BlockSize
	h.headerSize = hdr.HeaderSize
	h.checksumSize = hdr.ChecksumSize
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
