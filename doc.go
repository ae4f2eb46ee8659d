// Package aeron is a thin, embedded-driver client surface over package
// driver's IPC conductor: an in-process Aeron core for applications that
// want the log-buffer/publication/subscription protocol without a
// separate media-driver process. Everything it does is a synchronous
// wrapper around a driver.Conductor running its duty cycle on its own
// goroutine; commands cross that boundary through the same deferred
// callback queue the conductor uses for its other cross-agent work,
// rather than through a lock, since the conductor's own state is
// documented as single-goroutine-only.
package aeron
