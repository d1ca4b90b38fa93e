package overlay

import (
	"bytes"
	"testing"

	"github.com/partclone/pcimg/hostio"
)

func TestCreateWriteReadRoundTrip(t *testing.T) {
	host := hostio.NewMock()
	ov, err := Create("cf", host, 16, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := ov.Seek(1); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	want := bytes.Repeat([]byte{'Z'}, 16)
	if err := ov.WriteBlock(want); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if !ov.BlockUsed() {
		t.Fatalf("BlockUsed should be true right after write")
	}

	got := make([]byte, 16)
	if err := ov.ReadBlock(got); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadBlock = %q, want %q", got, want)
	}

	if err := ov.Seek(0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if ov.BlockUsed() {
		t.Fatalf("block 0 should not be used")
	}
	if err := ov.ReadBlock(make([]byte, 16)); err != ErrBlockNotPresent {
		t.Fatalf("ReadBlock(0) = %v, want ErrBlockNotPresent", err)
	}
}

func TestOverwriteInPlace(t *testing.T) {
	host := hostio.NewMock()
	ov, _ := Create("cf", host, 16, 4)
	ov.Seek(2)
	ov.WriteBlock(bytes.Repeat([]byte{'X'}, 16))
	ov.WriteBlock(bytes.Repeat([]byte{'Y'}, 16))

	got := make([]byte, 16)
	ov.Seek(2)
	if err := ov.ReadBlock(got); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(got, bytes.Repeat([]byte{'Y'}, 16)) {
		t.Fatalf("ReadBlock after overwrite = %q, want all-Y", got)
	}
}

func TestSyncThenReopenSurvivesIndex(t *testing.T) {
	host := hostio.NewMock()
	ov, err := Create("cf", host, 16, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ov.Seek(3)
	ov.WriteBlock(bytes.Repeat([]byte{'Q'}, 16))
	if err := ov.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := ov.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	ov2, err := Init("cf", host, 16, 4)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	ov2.Seek(3)
	if !ov2.BlockUsed() {
		t.Fatalf("reopened overlay lost its index")
	}
	got := make([]byte, 16)
	if err := ov2.ReadBlock(got); err != nil {
		t.Fatalf("ReadBlock after reopen: %v", err)
	}
	if !bytes.Equal(got, bytes.Repeat([]byte{'Q'}, 16)) {
		t.Fatalf("ReadBlock after reopen = %q, want all-Q", got)
	}
}

func TestWriteAfterReopenAppendsCleanly(t *testing.T) {
	host := hostio.NewMock()
	ov, _ := Create("cf", host, 16, 4)
	ov.Seek(0)
	ov.WriteBlock(bytes.Repeat([]byte{'A'}, 16))
	ov.Sync()
	ov.Finish()

	ov2, err := Init("cf", host, 16, 4)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	ov2.Seek(1)
	ov2.WriteBlock(bytes.Repeat([]byte{'B'}, 16))
	if err := ov2.Sync(); err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	ov2.Finish()

	ov3, err := Init("cf", host, 16, 4)
	if err != nil {
		t.Fatalf("third Init: %v", err)
	}
	ov3.Seek(0)
	got0 := make([]byte, 16)
	if err := ov3.ReadBlock(got0); err != nil || !bytes.Equal(got0, bytes.Repeat([]byte{'A'}, 16)) {
		t.Fatalf("block 0 lost after second session: got %q err %v", got0, err)
	}
	ov3.Seek(1)
	got1 := make([]byte, 16)
	if err := ov3.ReadBlock(got1); err != nil || !bytes.Equal(got1, bytes.Repeat([]byte{'B'}, 16)) {
		t.Fatalf("block 1 lost after second session: got %q err %v", got1, err)
	}
}
