// Package applog wires process-wide logging through a rotating, file-locked
// writer so multiple goroutines (and, per spec, multiple handlers on the same
// host) never interleave partial lines in the application log.
package applog

import (
	"io"
	"log"
	"os"

	"github.com/jrick/logrotate"
)

// New opens (creating if needed) a rotating log file at path and returns a
// *log.Logger writing to both it and stdout. The returned closer must be
// closed on shutdown to flush the rotator.
func New(path string) (*log.Logger, io.Closer, error) {
	rotator, err := logrotate.New(path)
	if err != nil {
		return nil, nil, err
	}

	mw := io.MultiWriter(os.Stdout, rotator)
	logger := log.New(mw, "", log.LstdFlags|log.Lmicroseconds)
	return logger, rotator, nil
}
