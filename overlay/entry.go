package overlay

import "encoding/binary"

// entrySize is the fixed width of one index record: an 8-byte logical
// block number followed by an 8-byte data offset, mirroring the
// teacher's fixed-plus-no-variable-part record style (cf. ext4's
// directoryEntryFromBytes, adapted here to a constant-width record since
// the overlay index carries no variable-length payload).
const entrySize = 16

type indexEntry struct {
	block  uint64
	offset uint64
}

func entryFromBytes(b []byte) indexEntry {
	return indexEntry{
		block:  binary.LittleEndian.Uint64(b[0:8]),
		offset: binary.LittleEndian.Uint64(b[8:16]),
	}
}

func (e indexEntry) toBytes() []byte {
	b := make([]byte, entrySize)
	binary.LittleEndian.PutUint64(b[0:8], e.block)
	binary.LittleEndian.PutUint64(b[8:16], e.offset)
	return b
}
