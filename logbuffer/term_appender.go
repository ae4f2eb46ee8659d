package logbuffer

import "github.com/TisonKun/aeron/util"

// Sentinel results named after the aeron-go reference's Appender
// constants (other_examples welly87-aeron-go term/appender.go:
// AppenderTripped / AppenderFailed): Tripped marks a claim that caused a
// rotation, Failed one that lost a race with another writer. rawClaim
// handles both cases by retrying in its own loop, so Claim and the
// Append methods do not return them to their callers.
const (
	Tripped int64 = -1
	Failed  int64 = -2
)

// ReservedValueSupplier computes the user-defined reserved header value
// for a frame about to be published.
type ReservedValueSupplier func(termBuffer *Buffer, termOffset, length int32) int64

// DefaultReservedValueSupplier always returns zero.
var DefaultReservedValueSupplier ReservedValueSupplier = func(*Buffer, int32, int32) int64 { return 0 }

// Appender is the single producer-side writer of one log's term
// partitions. A shared (non-exclusive) Appender is safe for concurrent
// use by multiple producer clients of the same session; an exclusive
// Appender assumes it is the only writer and skips the CAS on the
// common (non-rotating) path, per spec.md §4.L.
type Appender struct {
	logBuffers    *LogBuffers
	sessionID     int32
	streamID      int32
	initialTermID int32
	termLength    int32
	exclusive     bool
}

// NewAppender constructs an Appender over logBuffers. exclusive selects
// the single-writer fast path.
func NewAppender(logBuffers *LogBuffers, exclusive bool) *Appender {
	meta := logBuffers.Meta()
	hdr := meta.DefaultFrameHeader()
	return &Appender{
		logBuffers:    logBuffers,
		sessionID:     int32(leUint32(hdr[SessionIDFieldOffset:])),
		streamID:      int32(leUint32(hdr[StreamIDFieldOffset:])),
		initialTermID: meta.InitialTermID(),
		termLength:    logBuffers.TermLength(),
		exclusive:     exclusive,
	}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// rawClaim reserves alignedLength bytes in the active partition,
// rotating terms as needed. It returns the partition index, term id and
// term offset the claim landed at, with result equal to that same
// offset. When a claim crosses the term boundary (this caller pads and
// rotates) or loses to another writer, it retries in the new active
// partition, so it never returns Tripped or Failed.
func (a *Appender) rawClaim(alignedLength int32) (partitionIndex int32, termID int32, termOffset int32, result int64) {
	meta := a.logBuffers.Meta()

	for {
		activeTermCount := meta.ActiveTermCount()
		partitionIndex = IndexByTermCount(activeTermCount)
		termID = a.initialTermID + int32(activeTermCount)
		termBuffer := a.logBuffers.TermBuffer(partitionIndex)

		var claimedOffset int64
		var tripped bool
		var ok bool

		if a.exclusive {
			// Single writer: no concurrent claimant can have already
			// pinned the tail at termLength, so a plain fetch-add is
			// safe and the overflow check happens once, afterwards.
			rawTail := meta.GetAndAddTailCounter(partitionIndex, int64(alignedLength))
			oldOffset := RawTailTermOffset(rawTail)
			if oldOffset+int64(alignedLength) > int64(a.termLength) {
				if oldOffset < int64(a.termLength) {
					a.writePadding(termBuffer, int32(oldOffset), a.termLength-int32(oldOffset), termID)
				}
				a.rotate(meta, partitionIndex, termID)
				result = Tripped
				continue
			}
			claimedOffset, ok = oldOffset, true
		} else {
			claimedOffset, tripped, ok = a.casClaimOnce(meta, termBuffer, partitionIndex, termID, alignedLength)
			if !ok {
				if tripped {
					result = Tripped
				} else {
					result = Failed
				}
				continue
			}
		}

		return partitionIndex, termID, int32(claimedOffset), claimedOffset
	}
}

// casClaimOnce performs a single CAS attempt at the packed tail,
// required because multiple producer clients can share one session
// (spec.md §4.L: "shared publications MUST CAS"). The caller whose CAS
// pins the tail exactly at termLength becomes solely responsible for
// writing the padding frame and rotating; every other claimant —
// whether it loses the race or finds the partition already spent —
// reports back to the caller so the outer loop retries without
// duplicating the rotation.
func (a *Appender) casClaimOnce(meta *LogMetadata, termBuffer *Buffer, partitionIndex, termID, alignedLength int32) (offset int64, tripped bool, ok bool) {
	old := meta.TailCounter(partitionIndex)
	oldOffset := RawTailTermOffset(old)

	if oldOffset >= int64(a.termLength) {
		return 0, false, false // partition already spent; someone else is rotating
	}

	newOffset := oldOffset + int64(alignedLength)
	if newOffset > int64(a.termLength) {
		newRaw := PackTail(termID, a.termLength)
		if !meta.CompareAndSetTailCounter(partitionIndex, old, newRaw) {
			return 0, false, false
		}
		if oldOffset < int64(a.termLength) {
			a.writePadding(termBuffer, int32(oldOffset), a.termLength-int32(oldOffset), termID)
		}
		a.rotate(meta, partitionIndex, termID)
		return 0, true, false
	}

	newRaw := PackTail(termID, int32(newOffset))
	if !meta.CompareAndSetTailCounter(partitionIndex, old, newRaw) {
		return 0, false, false
	}
	return oldOffset, false, true
}

func (a *Appender) writePadding(termBuffer *Buffer, offset, length, termID int32) {
	termBuffer.PutByte(offset+VersionFieldOffset, CurrentVersion)
	termBuffer.PutByte(offset+FlagsFieldOffset, FlagUnfragmented)
	termBuffer.PutUint16(offset+TypeFieldOffset, FrameTypePad)
	termBuffer.PutInt32(offset+TermOffsetFieldOffset, offset)
	termBuffer.PutInt32(offset+SessionIDFieldOffset, a.sessionID)
	termBuffer.PutInt32(offset+StreamIDFieldOffset, a.streamID)
	termBuffer.PutInt32(offset+TermIDFieldOffset, termID)
	termBuffer.PutInt32Ordered(offset+FrameLengthFieldOffset, -length)
}

func (a *Appender) rotate(meta *LogMetadata, partitionIndex, termID int32) {
	nextIndex := util.FastMod3(uint64(partitionIndex + 1))
	prepareIndex := util.FastMod3(uint64(partitionIndex + 2))

	meta.SetTailCounterOrdered(nextIndex, PackTail(termID+1, 0))
	meta.SetTailCounterOrdered(prepareIndex, PackTail(termID+2, 0))
	meta.SetActiveTermCountOrdered(meta.ActiveTermCount() + 1)
}

func (a *Appender) headerWrite(termBuffer *Buffer, offset, frameLength, termID int32) {
	termBuffer.PutInt32Ordered(offset+FrameLengthFieldOffset, 0) // not-yet-committed sentinel
	termBuffer.PutByte(offset+VersionFieldOffset, CurrentVersion)
	termBuffer.PutByte(offset+FlagsFieldOffset, FlagUnfragmented)
	termBuffer.PutUint16(offset+TypeFieldOffset, FrameTypeData)
	termBuffer.PutInt32(offset+TermOffsetFieldOffset, offset)
	termBuffer.PutInt32(offset+SessionIDFieldOffset, a.sessionID)
	termBuffer.PutInt32(offset+StreamIDFieldOffset, a.streamID)
	termBuffer.PutInt32(offset+TermIDFieldOffset, termID)
}

// Claim reserves length bytes for a zero-copy write and wraps claim
// over the reserved region. The caller must Commit (or Abort) before
// the data becomes visible to subscribers. Returns the stream position
// just past the claimed frame (the producer position once it is
// committed); rotation and lost races are retried inside rawClaim.
func (a *Appender) Claim(length int32, claim *BufferClaim) int64 {
	frameLength := length + HeaderLength
	alignedLength := util.AlignInt32(frameLength, FrameAlignment)

	partitionIndex, termID, termOffset, result := a.rawClaim(alignedLength)
	if result == Tripped || result == Failed {
		return result
	}

	termBuffer := a.logBuffers.TermBuffer(partitionIndex)
	a.headerWrite(termBuffer, termOffset, frameLength, termID)
	claim.Wrap(termBuffer, termOffset, frameLength)

	return ComputePosition(termID, termOffset+alignedLength, PositionBitsToShift(a.termLength), a.initialTermID)
}

// AppendUnfragmentedMessage copies src into a single frame.
func (a *Appender) AppendUnfragmentedMessage(src []byte, reservedValueSupplier ReservedValueSupplier) int64 {
	if reservedValueSupplier == nil {
		reservedValueSupplier = DefaultReservedValueSupplier
	}

	frameLength := int32(len(src)) + HeaderLength
	alignedLength := util.AlignInt32(frameLength, FrameAlignment)

	partitionIndex, termID, termOffset, result := a.rawClaim(alignedLength)
	if result == Tripped || result == Failed {
		return result
	}

	termBuffer := a.logBuffers.TermBuffer(partitionIndex)
	a.headerWrite(termBuffer, termOffset, frameLength, termID)
	termBuffer.PutBytes(termOffset+HeaderLength, src)
	termBuffer.PutInt64(termOffset+ReservedValueFieldOffset, reservedValueSupplier(termBuffer, termOffset, frameLength))
	termBuffer.PutInt32Ordered(termOffset+FrameLengthFieldOffset, frameLength)

	return ComputePosition(termID, termOffset+alignedLength, PositionBitsToShift(a.termLength), a.initialTermID)
}

// AppendFragmentedMessage splits src into maxPayloadLength chunks when
// it doesn't fit a single MTU-sized frame, marking the first fragment
// BEGIN and the last END (spec.md §3 "Frame": "Message fragments larger
// than MTU are split").
func (a *Appender) AppendFragmentedMessage(src []byte, maxPayloadLength int32, reservedValueSupplier ReservedValueSupplier) int64 {
	if reservedValueSupplier == nil {
		reservedValueSupplier = DefaultReservedValueSupplier
	}

	length := int32(len(src))
	numMaxPayloads := length / maxPayloadLength
	remainingPayload := length % maxPayloadLength
	var lastFrameLength int32
	if remainingPayload > 0 {
		lastFrameLength = util.AlignInt32(remainingPayload+HeaderLength, FrameAlignment)
	}
	requiredLength := numMaxPayloads*util.AlignInt32(maxPayloadLength+HeaderLength, FrameAlignment) + lastFrameLength

	partitionIndex, termID, termOffset, result := a.rawClaim(requiredLength)
	if result == Tripped || result == Failed {
		return result
	}

	termBuffer := a.logBuffers.TermBuffer(partitionIndex)
	flags := FlagBegin
	remaining := length
	offset := termOffset
	var srcOffset int32

	for remaining > 0 {
		bytesToWrite := remaining
		if bytesToWrite > maxPayloadLength {
			bytesToWrite = maxPayloadLength
		}
		frameLength := bytesToWrite + HeaderLength
		alignedLength := util.AlignInt32(frameLength, FrameAlignment)

		a.headerWrite(termBuffer, offset, frameLength, termID)
		termBuffer.PutBytes(offset+HeaderLength, src[srcOffset:srcOffset+bytesToWrite])

		remaining -= bytesToWrite
		if remaining == 0 {
			flags |= FlagEnd
		}
		termBuffer.PutByte(offset+FlagsFieldOffset, flags)
		termBuffer.PutInt64(offset+ReservedValueFieldOffset, reservedValueSupplier(termBuffer, offset, frameLength))
		termBuffer.PutInt32Ordered(offset+FrameLengthFieldOffset, frameLength)

		flags = 0
		srcOffset += bytesToWrite
		offset += alignedLength
	}

	return ComputePosition(termID, termOffset+requiredLength, PositionBitsToShift(a.termLength), a.initialTermID)
}
