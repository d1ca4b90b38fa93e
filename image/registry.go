package image

import "github.com/partclone/pcimg/hostio"

// Image is the operation set a registered image format exposes to a
// higher-level multi-format dispatcher (out of scope to implement here,
// per spec). *Context satisfies this structurally.
type Image interface {
	Tolerant() error
	Verify() error
	BlockSize() int64
	BlockCount() int64
	Seek(b uint64) error
	Tell() uint64
	ReadBlocks(buf []byte, n uint64) error
	BlockUsed() (bool, error)
	WriteBlocks(buf []byte, n uint64) error
	Sync() error
	Close() error
}

var _ Image = (*Context)(nil)

// Format is the registry entry a higher-level image-dispatch registry
// uses to discover and drive this engine without importing package image
// directly: a name, a probe function, and an open function.
type Format struct {
	Name  string
	Probe func(host hostio.Services, path string) error
	Open  func(host hostio.Services, path, overlayPath string, mode hostio.Mode) (Image, error)
}

// Descriptor is the exported registry descriptor for this image format.
// It is the module's second and last piece of package-level state,
// immutable pure data, alongside versionTable.
var Descriptor = Format{
	Name:  "partclone image",
	Probe: Probe,
	Open: func(host hostio.Services, path, overlayPath string, mode hostio.Mode) (Image, error) {
		return Open(host, path, overlayPath, mode)
	},
}
