package aeron

import "github.com/TisonKun/aeron/driver"

// Context is the embedded driver's configuration, re-exported from
// package driver so callers of this package never need to import it
// directly (mirrors sarama.Config living at the package a caller
// actually imports).
type Context = driver.Context

// NewContext returns a Context with the defaults package driver ships.
func NewContext() *Context { return driver.NewContext() }
