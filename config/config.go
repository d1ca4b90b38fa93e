// Package config is the small, validated settings struct shared by
// cmd/pcimgprobe's flag parsing and any other caller that wants to open an
// image.Context without building its own hostio.Mode/path bookkeeping.
package config

import (
	"fmt"

	"github.com/partclone/pcimg/hostio"
	"github.com/partclone/pcimg/internal/logging"
)

// Config is the fully-resolved set of knobs needed to open an image: the
// base path, an optional overlay path, the open mode, tolerant-mode
// request, and logging verbosity. It carries no hidden defaults beyond
// what Validate fills in, so a caller building one programmatically (not
// through the CLI) gets the same behavior.
type Config struct {
	BasePath    string
	OverlayPath string
	ReadWrite   bool
	Tolerant    bool
	LogLevel    logging.Level
}

// Validate checks the minimal invariant a Config must satisfy before Open
// is attempted: a base path is required. The overlay path is optional and
// is not checked against ReadWrite; a read-only open does not open the
// overlay file.
func (c Config) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("config: base path is required")
	}
	return nil
}

// Mode translates ReadWrite into the hostio.Mode Open expects.
func (c Config) Mode() hostio.Mode {
	if c.ReadWrite {
		return hostio.ModeReadWrite
	}
	return hostio.ModeReadOnly
}
