// Package logging provides the small injectable logging seam used across
// the driver and client packages. It mirrors sarama's package-level
// Logger interface: a thin seam for diagnostics, never for control flow.
package logging

import (
	"log"
	"os"
)

// Logger is the interface used for driver and client diagnostics. Errors
// that affect control flow are returned, never inferred from log output;
// this interface exists purely for operational visibility.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Nop discards everything written to it. It is the default Logger so
// that embedding code is never forced to configure logging before use.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Std adapts the standard library logger, with Debugf gated behind a
// verbosity flag so routine sweeps don't flood stderr.
type Std struct {
	*log.Logger
	Verbose bool
}

// NewStd returns a Logger that writes to stderr with a "[aeron] " prefix.
func NewStd(verbose bool) *Std {
	return &Std{Logger: log.New(os.Stderr, "[aeron] ", log.LstdFlags|log.Lmicroseconds), Verbose: verbose}
}

func (s *Std) Printf(format string, args ...interface{}) {
	s.Logger.Printf(format, args...)
}

func (s *Std) Debugf(format string, args ...interface{}) {
	if s.Verbose {
		s.Logger.Printf(format, args...)
	}
}
