package image

import (
	"encoding/binary"
	"fmt"
)

// MagicLen is the length of the fixed image-magic byte string that opens
// both the v1 and v2 on-disk headers.
const MagicLen = 16

// v1TrailerLen is the length of the literal 8-byte trailer that follows
// a v1 image's one-byte-per-block bitmap.
const v1TrailerLen = 8

var imageMagic = [MagicLen]byte{'p', 'a', 'r', 't', 'c', 'l', 'o', 'n', 'e', '-', 'i', 'm', 'a', 'g', 'e', 0}

var v1MagicTrailer = [v1TrailerLen]byte{'B', 'i', 'T', 'm', 'A', 'g', 'I', 'c'}

var tagV1 = [4]byte{'0', '0', '0', '1'}
var tagV2 = [4]byte{'0', '0', '0', '2'}

const v1HeaderSize = MagicLen + 4 + 4 + 8 + 8 + 8 // magic+version+blockSize+deviceSize+totalBlocks+usedBlocks
const v2HeaderSize = v1HeaderSize + 4 + 4          // + checksumSize + blocksPerChecksum

// rawV1Header is the v1 on-disk header, decoded field by field the way
// the teacher decodes its superblock: fixed byte offsets, little-endian.
type rawV1Header struct {
	magic       [MagicLen]byte
	version     [4]byte
	blockSize   uint32
	deviceSize  uint64
	totalBlocks uint64
	usedBlocks  uint64
}

func decodeV1Header(b []byte) (*rawV1Header, error) {
	if len(b) != v1HeaderSize {
		return nil, fmt.Errorf("image: v1 header is %d bytes, want %d", len(b), v1HeaderSize)
	}
	h := &rawV1Header{}
	copy(h.magic[:], b[0:MagicLen])
	copy(h.version[:], b[MagicLen:MagicLen+4])
	off := MagicLen + 4
	h.blockSize = binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	h.deviceSize = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	h.totalBlocks = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	h.usedBlocks = binary.LittleEndian.Uint64(b[off : off+8])
	return h, nil
}

// rawV2Header is the v2 on-disk header: everything v1 has, plus an
// explicit checksum size and checksum-group stride.
type rawV2Header struct {
	magic             [MagicLen]byte
	version           [4]byte
	blockSize         uint32
	deviceSize        uint64
	totalBlocks       uint64
	usedBlocks        uint64
	checksumSize      uint32
	blocksPerChecksum uint32
}

func decodeV2Header(b []byte) (*rawV2Header, error) {
	if len(b) != v2HeaderSize {
		return nil, fmt.Errorf("image: v2 header is %d bytes, want %d", len(b), v2HeaderSize)
	}
	h := &rawV2Header{}
	copy(h.magic[:], b[0:MagicLen])
	copy(h.version[:], b[MagicLen:MagicLen+4])
	off := MagicLen + 4
	h.blockSize = binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	h.deviceSize = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	h.totalBlocks = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	h.usedBlocks = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	h.checksumSize = binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	h.blocksPerChecksum = binary.LittleEndian.Uint32(b[off : off+4])
	return h, nil
}

// Header is the logical, post-reconciliation image header every version
// handler's Verify produces, regardless of which on-disk layout it came
// from.
type Header struct {
	BlockSize         uint64
	TotalBlocks       uint64
	DeviceSize        uint64
	ChecksumSize      uint64
	BlocksPerChecksum uint64
	HeaderSize        uint64
	Version           [4]byte
}
