// Package logging builds the structured logrus.Logger shared by the
// hostio POSIX backend and cmd/pcimgprobe. It stays out of the image
// package's per-block read/write path entirely -- call sites log, the
// engine's core does not.
package logging

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Level mirrors the small set of verbosities a CLI flag exposes; it
// avoids handing callers the full logrus.Level range.
type Level int

const (
	LevelQuiet Level = iota
	LevelInfo
	LevelDebug
)

// New builds a logrus.Logger writing to w (os.Stderr when nil) at the
// given verbosity, with a text formatter matching the teacher's
// informational-tracing style rather than JSON (this is a CLI, not a
// service emitting logs for a collector).
func New(level Level, w io.Writer) *logrus.Logger {
	if w == nil {
		w = os.Stderr
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	switch level {
	case LevelQuiet:
		log.SetLevel(logrus.WarnLevel)
	case LevelDebug:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// WithSession returns an entry tagged with a session UUID, the way
// cmd/pcimgprobe correlates every line belonging to one probe/dump/cat
// invocation against an image.Context's own SessionID.
func WithSession(log *logrus.Logger, session uuid.UUID) *logrus.Entry {
	return log.WithField("session", session.String())
}
