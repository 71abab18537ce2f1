//go:build unix

// Package shutdown lists the signals that stop the homepage binaries.
package shutdown

import (
	"os"

	"golang.org/x/sys/unix"
)

// Signals returns the signals that trigger a graceful shutdown.
func Signals() []os.Signal {
	return []os.Signal{os.Interrupt, unix.SIGTERM, unix.SIGHUP}
}
