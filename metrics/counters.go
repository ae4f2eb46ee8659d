// Package metrics exposes the driver's system counters described in
// spec.md §4.N "System counters" through a go-metrics registry, the way
// the teacher's consumer/producer expose theirs: named getOrRegister
// lookups against a *metrics.Registry rather than hand-rolled atomics.
package metrics

import gometrics "github.com/rcrowley/go-metrics"

// Counter names, one per spec.md §4.N row. Kept as constants so driver
// code and tests refer to the same label.
const (
	NameErrors               = "driver-errors"
	NameUnblockedPublications = "unblocked-publications"
	NameUnblockedCommands     = "unblocked-commands"
	NameFreeFails             = "free-fails"
	NameClientTimeouts        = "client-timeouts"
	NameClientKeepalives      = "client-keepalives"
)

// SystemCounters bundles the fixed set of driver-wide counters. They
// are plain go-metrics Counters, safe for concurrent Inc from any duty
// cycle or client-facing goroutine.
type SystemCounters struct {
	registry gometrics.Registry

	Errors                gometrics.Counter
	UnblockedPublications gometrics.Counter
	UnblockedCommands     gometrics.Counter
	FreeFails             gometrics.Counter
	ClientTimeouts        gometrics.Counter
	ClientKeepalives      gometrics.Counter
}

// NewSystemCounters registers every driver counter against registry. A
// nil registry is replaced with a fresh, unshared one so callers that
// don't care about metrics export still get working counters.
func NewSystemCounters(registry gometrics.Registry) *SystemCounters {
	if registry == nil {
		registry = gometrics.NewRegistry()
	}
	return &SystemCounters{
		registry:              registry,
		Errors:                getOrRegisterCounter(NameErrors, registry),
		UnblockedPublications: getOrRegisterCounter(NameUnblockedPublications, registry),
		UnblockedCommands:     getOrRegisterCounter(NameUnblockedCommands, registry),
		FreeFails:             getOrRegisterCounter(NameFreeFails, registry),
		ClientTimeouts:        getOrRegisterCounter(NameClientTimeouts, registry),
		ClientKeepalives:      getOrRegisterCounter(NameClientKeepalives, registry),
	}
}

// Registry exposes the underlying go-metrics registry so a process
// embedding the driver can wire it into its own reporter (graphite,
// log, expvar — whatever the host chooses).
func (s *SystemCounters) Registry() gometrics.Registry { return s.registry }

func getOrRegisterCounter(name string, r gometrics.Registry) gometrics.Counter {
	return r.GetOrRegister(name, gometrics.NewCounter).(gometrics.Counter)
}
