//go:build linux || darwin

package main

import (
	"os/signal"
	"syscall"
)

// ignoreSIGPIPE matches the original runtime's startup sequence, which
// ignores SIGPIPE so a write to a peer that has already closed its end
// surfaces as an EPIPE return value instead of killing the process.
func ignoreSIGPIPE() {
	signal.Ignore(syscall.SIGPIPE)
}
