package logbuffer

import "errors"

// Storage-layer failures, surfaced synchronously to the command that
// triggered log creation (spec.md §7 "Storage").
var (
	ErrInsufficientDiskSpace = errors.New("aeron: insufficient disk space for log buffer (ENOSPC)")
	ErrAllocationFailed      = errors.New("aeron: log buffer allocation failed (ENOMEM)")
	ErrInvalidTermLength     = errors.New("aeron: term length must be a power of two in [64KiB, 1GiB]")
	ErrInvalidPageSize       = errors.New("aeron: page size must be a power of two")
)
