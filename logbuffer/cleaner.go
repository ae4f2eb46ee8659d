package logbuffer

// MaxCleanBytesPerCall bounds how much of a dirty predecessor term the
// conductor zeroes in one incremental step, so cleaning never competes
// with the hot claim path for more than a slice of a duty cycle
// (spec.md §4.L "Cleaning": "driven incrementally, never ahead of the
// slowest subscriber").
const MaxCleanBytesPerCall = 4 * 1024 * 1024

// Cleaner incrementally zeroes a term partition's previous contents
// before the producer is allowed to wrap back into it. It tracks how
// far it has cleaned so repeated calls make forward progress without
// re-zeroing already-clean bytes.
type Cleaner struct {
	cleanPosition int64
}

// Clean zeros termBuffer from the cleaner's current position up to
// limitPosition (exclusive), bounded by MaxCleanBytesPerCall per call.
// limitPosition must never exceed the slowest subscriber's consumed
// position for the term being cleaned — the caller (the conductor, via
// IPCPublication.UpdatePublisherLimit) is responsible for that bound.
//
// Every byte of a frame except its first 8 (which hold frame_length and
// version/flags/type) is zeroed first; those first 8 bytes are zeroed
// last, via an ordered store, so a concurrent reader scanning this term
// can never observe a non-zero, stale length followed by zeroed body
// (spec.md §4.L "Cleaning").
func (c *Cleaner) Clean(termBuffer *Buffer, limitPosition int64) {
	if c.cleanPosition >= limitPosition {
		return
	}

	remaining := limitPosition - c.cleanPosition
	if remaining > MaxCleanBytesPerCall {
		remaining = MaxCleanBytesPerCall
	}

	from := int32(c.cleanPosition)
	to := from + int32(remaining)
	capacity := termBuffer.Capacity()
	if to > capacity {
		to = capacity
	}

	if from < to {
		bodyFrom := from + 8
		if bodyFrom < to {
			termBuffer.ZeroOrdered(bodyFrom, to-bodyFrom)
		}
		termBuffer.PutInt64Ordered(from, 0)
	}

	c.cleanPosition += int64(to - from)
}

// Reset rewinds the cleaner, used when a term partition is about to be
// reused for a new rotation and its dirty region starts over at 0.
func (c *Cleaner) Reset() { c.cleanPosition = 0 }

// Position reports how far cleaning has progressed.
func (c *Cleaner) Position() int64 { return c.cleanPosition }
