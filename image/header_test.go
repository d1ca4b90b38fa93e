package image

import (
	"testing"

	"github.com/go-test/deep"
)

func TestDecodeV1HeaderFieldByField(t *testing.T) {
	// every raw header field is unexported, which deep skips by default
	deep.CompareUnexportedFields = true
	defer func() { deep.CompareUnexportedFields = false }()

	img := buildV1Image(v1Fixture{
		blockSize:   16,
		totalBlocks: 4,
		bitmapBytes: []byte{1, 0, 1, 0},
		blocks:      [][]byte{repeatByte('A', 16), repeatByte('C', 16)},
	})

	got, err := decodeV1Header(img[:v1HeaderSize])
	if err != nil {
		t.Fatalf("decodeV1Header: %v", err)
	}
	want := &rawV1Header{
		magic:       imageMagic,
		version:     tagV1,
		blockSize:   16,
		deviceSize:  64,
		totalBlocks: 4,
		usedBlocks:  2,
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Fatalf("decodeV1Header mismatch: %v", diff)
	}
}

func TestDecodeV2HeaderFieldByField(t *testing.T) {
	deep.CompareUnexportedFields = true
	defer func() { deep.CompareUnexportedFields = false }()

	img := buildV2Image(v2Fixture{
		blockSize:         16,
		totalBlocks:       4,
		packedBitmap:      []byte{0x05},
		blocksPerChecksum: 1,
		checksumSize:      4,
		groups: [][]byte{
			append(repeatByte('X', 16), 0, 0, 0, 0),
			append(repeatByte('Y', 16), 0, 0, 0, 0),
		},
	})

	got, err := decodeV2Header(img[:v2HeaderSize])
	if err != nil {
		t.Fatalf("decodeV2Header: %v", err)
	}
	want := &rawV2Header{
		magic:             imageMagic,
		version:           tagV2,
		blockSize:         16,
		deviceSize:        64,
		totalBlocks:       4,
		usedBlocks:        2,
		checksumSize:      4,
		blocksPerChecksum: 1,
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Fatalf("decodeV2Header mismatch: %v", diff)
	}
}

func TestDecodeV1HeaderRejectsWrongLength(t *testing.T) {
	if _, err := decodeV1Header(make([]byte, v1HeaderSize-1)); err == nil {
		t.Fatalf("expected error decoding short v1 header")
	}
}
