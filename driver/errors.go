package driver

import (
	"errors"
	"fmt"
)

// Sentinel errors, mirroring the teacher's var ErrXxx = errors.New(...)
// taxonomy (sarama errors.go) rather than typed error structs for the
// cases that carry no extra context.
var (
	ErrClosedConductor          = errors.New("aeron: conductor is closed")
	ErrDuplicateSessionID       = errors.New("aeron: session id already in use")
	ErrClashingSubscription     = errors.New("aeron: clashing reliable/rejoin subscription")
	ErrUnknownPublication       = errors.New("aeron: unknown publication")
	ErrUnknownSubscription      = errors.New("aeron: unknown subscription")
	ErrUnknownClient            = errors.New("aeron: unknown client")
	ErrENOSPC                   = errors.New("aeron: insufficient free disk space for log file")
	ErrENOMEM                   = errors.New("aeron: allocation failure")
	ErrNegativeRefCount         = errors.New("aeron: publication refcount would go negative")
)

// PublicationBackPressured is returned by IPCPublication.Offer/Claim
// when the producer has reached its publisher limit. It is a sentinel
// return value, not an error: spec.md §7 classifies back-pressure as
// "Flow-control recoverable" and requires it never be logged or
// allocated on the hot claim path, mirroring the
// logbuffer.Tripped/logbuffer.Failed int64 sentinels rather than
// wrapping them in an error.
const (
	PublicationBackPressured int64 = -1
	PublicationClosed        int64 = -2
	PublicationAdminAction   int64 = -3
)

// ConductorError wraps a sentinel error with the command that
// triggered it, the way sarama.ConsumerError wraps a topic/partition
// pair around an underlying cause.
type ConductorError struct {
	Op            string
	CorrelationID int64
	Err           error
}

func (e *ConductorError) Error() string {
	return fmt.Sprintf("aeron: %s (correlationID=%d): %v", e.Op, e.CorrelationID, e.Err)
}

func (e *ConductorError) Unwrap() error { return e.Err }
