// Package logging provides the structured logger threaded through the
// Archiver, Unarchiver, and DecoderDriver. It is a thin wrapper over
// logrus so call sites can attach block/frame/stride fields without
// importing logrus directly everywhere.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger used throughout volcine.
type Logger = logrus.Entry

// New returns a root Logger tagged with component.
func New(component string) *Logger {
	base := logrus.New()
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("VOLCINE_DEBUG") != "" {
		base.SetLevel(logrus.DebugLevel)
	}
	return base.WithField("component", component)
}

// Discard returns a Logger that writes nowhere, for tests and library
// callers that don't want volcine's diagnostics on stderr.
func Discard() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return base.WithField("component", "discard")
}

func init() {
	if os.Getenv("VOLCINE_DEBUG") != "" {
		logrus.SetLevel(logrus.DebugLevel)
	}
}
