package logging

import (
	"io"
	"os"
)

// newSyncWriter returns the destination for log output. Kept as a seam so
// tests can swap it out without touching the encoder configuration.
func newSyncWriter() io.Writer {
	return os.Stderr
}
