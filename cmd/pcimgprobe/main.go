// Command pcimgprobe is a thin CLI over the image package's public API:
// probe a path, dump a single block, or cat an entire image to stdout.
// It exists to exercise Open/Verify/Seek/ReadBlocks/Close end to end
// outside of a test binary, not to replace a real partclone CLI.
package main

import (
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/partclone/pcimg/config"
	"github.com/partclone/pcimg/hostio"
	"github.com/partclone/pcimg/image"
	"github.com/partclone/pcimg/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	sub := os.Args[1]
	args := os.Args[2:]

	var err error
	switch sub {
	case "probe":
		err = runProbe(args)
	case "dump":
		err = runDump(args)
	case "cat":
		err = runCat(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "pcimgprobe:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pcimgprobe <probe|dump|cat> [flags] <path>")
}

func commonFlags(fs *flag.FlagSet) (*bool, *string, *bool) {
	verbose := fs.Bool("verbose", false, "enable debug logging")
	overlay := fs.String("overlay", "", "overlay (change-file) path")
	tolerant := fs.Bool("tolerant", false, "open in tolerant mode")
	return verbose, overlay, tolerant
}

func runProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	verbose, _, _ := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("probe requires exactly one path argument")
	}
	path := fs.Arg(0)

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	log := logging.New(level, os.Stderr)

	host := hostio.NewPOSIX(log)
	if err := image.Probe(host, path); err != nil {
		return err
	}
	fmt.Println("ok:", path)
	return nil
}

func runDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	verbose, overlay, tolerant := commonFlags(fs)
	block := fs.Uint64("block", 0, "logical block number to dump")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("dump requires exactly one path argument")
	}
	path := fs.Arg(0)

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	log := logging.New(level, os.Stderr)

	cfg := config.Config{BasePath: path, OverlayPath: *overlay, Tolerant: *tolerant, LogLevel: level}
	if err := cfg.Validate(); err != nil {
		return err
	}

	host := hostio.NewPOSIX(log)
	ctx, err := image.Open(host, cfg.BasePath, cfg.OverlayPath, cfg.Mode())
	if err != nil {
		return err
	}
	defer ctx.Close()

	if cfg.Tolerant {
		if err := ctx.Tolerant(); err != nil {
			return err
		}
	}
	if err := ctx.Verify(); err != nil {
		return err
	}

	logging.WithSession(log, ctx.SessionID()).WithField("block", *block).Debug("dumping block")

	if err := ctx.Seek(*block); err != nil {
		return err
	}
	buf := make([]byte, ctx.BlockSize())
	if err := ctx.ReadBlocks(buf, 1); err != nil {
		return err
	}
	_, err = os.Stdout.Write(buf)
	return err
}

func runCat(args []string) error {
	fs := flag.NewFlagSet("cat", flag.ExitOnError)
	verbose, overlay, tolerant := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("cat requires exactly one path argument")
	}
	path := fs.Arg(0)

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	log := logging.New(level, os.Stderr)

	cfg := config.Config{BasePath: path, OverlayPath: *overlay, Tolerant: *tolerant, LogLevel: level}
	if err := cfg.Validate(); err != nil {
		return err
	}

	host := hostio.NewPOSIX(log)
	ctx, err := image.Open(host, cfg.BasePath, cfg.OverlayPath, cfg.Mode())
	if err != nil {
		return err
	}
	defer ctx.Close()

	if cfg.Tolerant {
		if err := ctx.Tolerant(); err != nil {
			return err
		}
	}
	if err := ctx.Verify(); err != nil {
		return err
	}

	entry := logging.WithSession(log, ctx.SessionID())
	total := uint64(ctx.BlockCount())
	bs := ctx.BlockSize()
	buf := make([]byte, bs)

	if err := ctx.Seek(0); err != nil {
		return err
	}
	var written uint64
	for written < total {
		if err := ctx.ReadBlocks(buf, 1); err != nil {
			entry.WithError(err).WithField("block", written).Error("read failed")
			return err
		}
		if _, err := writeAll(os.Stdout, buf); err != nil {
			return err
		}
		written++
	}
	entry.WithField("blocks", written).Debug("cat complete")
	return nil
}

func writeAll(w io.Writer, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
