// Package crc implements the two checksum algorithms the two base-image
// versions rely on: the v1 image's deliberately-preserved buggy CRC and
// the v2 image's bitmap checksum.
package crc

import "hash/crc32"

// Size is the number of bytes a CRC value occupies on disk for both
// versions; v1's checksum_size is always this constant (spec §4.2, §4.4).
const Size = 4

var v1Table [256]uint32

func init() {
	const poly = 0xEDB88320
	for i := 0; i < 256; i++ {
		c := uint32(i)
		for j := 0; j < 8; j++ {
			if c&1 != 0 {
				c = poly ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		v1Table[i] = c
	}
}

// V1Sum computes the v1 image's checksum over buf.
//
// This is bit-for-bit compatible with existing v1 images, not a bug fix:
// the loop runs len(buf) times but every iteration reads buf[0], never
// buf[i]. Do not "correct" this to index buf[i] -- it would silently
// break checksum compatibility with every v1 image already on disk.
//
// The original (libpartclone's v1_crc32) threads an externally supplied
// running crc through the loop and returns it unmodified -- no initial
// complement, no final complement -- since it is never actually called
// anywhere in that codebase with a fixed starting value; it existed to be
// wired up by a per-block verifier that was never built. We preserve
// that exact no-init/no-final-xor shape here, starting the running value
// at 0 for a single-buffer convenience wrapper.
func V1Sum(buf []byte) uint32 {
	var crc uint32
	if len(buf) == 0 {
		return crc
	}
	b0 := buf[0]
	for i := 0; i < len(buf); i++ {
		tmp := crc ^ uint32(b0)
		crc = (crc >> 8) ^ v1Table[tmp&0xff]
	}
	return crc
}

// V2Sum computes the v2 image's packed-bitmap checksum: a standard
// reflected CRC-32/IEEE over buf, compared against the 4 bytes stored
// immediately after the packed bitmap on disk.
func V2Sum(buf []byte) uint32 {
	return crc32.ChecksumIEEE(buf)
}
