package image

import "github.com/partclone/pcimg/hostio"

// hostReader adapts a hostio.Services handle to io.Reader so the bitmap
// package's io.ReadFull-based loaders can read through it without the
// bitmap package needing to know about hostio at all.
type hostReader struct {
	host hostio.Services
	h    hostio.Handle
}

func (r hostReader) Read(p []byte) (int, error) {
	return r.host.Read(r.h, p)
}
