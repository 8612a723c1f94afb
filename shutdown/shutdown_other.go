//go:build !windows

// Package shutdown wires process-termination signals, split per
// platform because SIGTERM does not exist on Windows.
package shutdown

import (
	"os"
	"os/signal"
	"syscall"
)

func Notify(ch chan os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
}
