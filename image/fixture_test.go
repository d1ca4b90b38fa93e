package image

import (
	"bytes"
	"encoding/binary"

	"github.com/partclone/pcimg/crc"
)

type v1Fixture struct {
	blockSize   uint32
	totalBlocks uint64
	bitmapBytes []byte // one byte per block, 1 = captured
	blocks      [][]byte
}

func buildV1Image(f v1Fixture) []byte {
	var buf bytes.Buffer
	buf.Write(imageMagic[:])
	buf.Write(tagV1[:])
	writeU32(&buf, f.blockSize)
	writeU64(&buf, uint64(f.blockSize)*f.totalBlocks)
	writeU64(&buf, f.totalBlocks)
	writeU64(&buf, uint64(len(f.blocks)))
	buf.Write(f.bitmapBytes)
	buf.Write(v1MagicTrailer[:])
	for _, b := range f.blocks {
		buf.Write(b)
	}
	return buf.Bytes()
}

type v2Fixture struct {
	blockSize         uint32
	totalBlocks       uint64
	packedBitmap      []byte
	blocksPerChecksum uint32
	checksumSize      uint32
	groups            [][]byte // each group: blocksPerChecksum*blockSize data + checksumSize checksum bytes
}

func buildV2Image(f v2Fixture) []byte {
	var buf bytes.Buffer
	buf.Write(imageMagic[:])
	buf.Write(tagV2[:])
	writeU32(&buf, f.blockSize)
	writeU64(&buf, uint64(f.blockSize)*f.totalBlocks)
	writeU64(&buf, f.totalBlocks)
	writeU64(&buf, uint64(len(f.groups))*uint64(f.blocksPerChecksum))
	writeU32(&buf, f.checksumSize)
	writeU32(&buf, f.blocksPerChecksum)
	buf.Write(f.packedBitmap)
	writeU32(&buf, crc.V2Sum(f.packedBitmap))
	for _, g := range f.groups {
		buf.Write(g)
	}
	return buf.Bytes()
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func repeatByte(c byte, n int) []byte {
	return bytes.Repeat([]byte{c}, n)
}
