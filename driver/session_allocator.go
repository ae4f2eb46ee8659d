package driver

// sessionKey identifies an active IPC session the allocator must avoid
// colliding with, per spec.md §4.C "Session id allocation":
// "(session_id, stream_id, canonical_channel)".
type sessionKey struct {
	sessionID        int32
	streamID         int32
	canonicalChannel string
}

// SessionIDAllocator hands out session ids for IPC publications,
// skipping a reserved range and never repeating a tuple already in use
// (spec.md §4.C, §6 "publication_reserved_session_id_{low,high}").
type SessionIDAllocator struct {
	next     int32
	lowRes   int32
	highRes  int32
	inUse    map[sessionKey]bool
}

func NewSessionIDAllocator(lowRes, highRes int32) *SessionIDAllocator {
	return &SessionIDAllocator{
		next:    highRes + 1,
		lowRes:  lowRes,
		highRes: highRes,
		inUse:   make(map[sessionKey]bool),
	}
}

// Allocate returns a fresh session id not already active for
// (streamID, canonicalChannel), skipping the reserved range.
func (a *SessionIDAllocator) Allocate(streamID int32, canonicalChannel string) int32 {
	for {
		candidate := a.next
		a.next++

		if candidate >= a.lowRes && candidate <= a.highRes {
			continue
		}
		key := sessionKey{candidate, streamID, canonicalChannel}
		if a.inUse[key] {
			continue
		}
		a.inUse[key] = true
		return candidate
	}
}

// AllocateExplicit reserves a client-requested session id, failing if
// that exact tuple is already active (spec.md §4.C: "If a client
// requests an explicit session id already active, the command fails").
func (a *SessionIDAllocator) AllocateExplicit(sessionID, streamID int32, canonicalChannel string) error {
	key := sessionKey{sessionID, streamID, canonicalChannel}
	if a.inUse[key] {
		return ErrDuplicateSessionID
	}
	a.inUse[key] = true
	return nil
}

// Release frees a (sessionID, streamID, canonicalChannel) tuple once
// its publication reaches end-of-life.
func (a *SessionIDAllocator) Release(sessionID, streamID int32, canonicalChannel string) {
	delete(a.inUse, sessionKey{sessionID, streamID, canonicalChannel})
}
