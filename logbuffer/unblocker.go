package logbuffer

// Unblock implements the mechanism described in spec.md §4.L
// "Unblocker": when a producer dies after claiming a slot but before
// committing it, the slot holds a permanent frame_length==0. The
// conductor calls Unblock once it has independently decided (by
// comparing producerPosition/consumerPosition across
// publication_unblock_timeout_ns, spec.md §4.P "Blocked-producer
// detection") that the producer is stuck; Unblock itself is stateless
// and just performs the write.
//
// consumerPosition is where the stalled subscriber is stuck;
// producerPosition is the highest position already claimed by the
// producer (so the gap between them is exactly the never-committed
// slot, since producer claims never span a partition boundary). Unblock
// writes a single padding frame covering that gap so readers can skip
// past it, and reports whether it did anything.
func Unblock(logBuffers *LogBuffers, consumerPosition, producerPosition int64, initialTermID int32, positionBitsToShift uint8) bool {
	if producerPosition <= consumerPosition {
		return false
	}

	partitionIndex := IndexByPosition(consumerPosition, positionBitsToShift)
	termBuffer := logBuffers.TermBuffer(partitionIndex)
	termOffset := ComputeTermOffsetFromPosition(consumerPosition, positionBitsToShift)

	if termBuffer.GetInt32Volatile(termOffset+FrameLengthFieldOffset) != 0 {
		return false // already committed (or already padded) by the time we got here
	}

	termID := ComputeTermIDFromPosition(consumerPosition, positionBitsToShift, initialTermID)
	gap := int32(producerPosition - consumerPosition)
	if termOffset+gap > logBuffers.TermLength() {
		gap = logBuffers.TermLength() - termOffset
	}
	if gap <= 0 {
		return false
	}

	meta := logBuffers.Meta()
	hdr := meta.DefaultFrameHeader()

	termBuffer.PutByte(termOffset+VersionFieldOffset, CurrentVersion)
	termBuffer.PutByte(termOffset+FlagsFieldOffset, FlagUnfragmented)
	termBuffer.PutUint16(termOffset+TypeFieldOffset, FrameTypePad)
	termBuffer.PutInt32(termOffset+TermOffsetFieldOffset, termOffset)
	termBuffer.PutInt32(termOffset+SessionIDFieldOffset, int32(leUint32(hdr[SessionIDFieldOffset:])))
	termBuffer.PutInt32(termOffset+StreamIDFieldOffset, int32(leUint32(hdr[StreamIDFieldOffset:])))
	termBuffer.PutInt32(termOffset+TermIDFieldOffset, termID)
	termBuffer.PutInt32Ordered(termOffset+FrameLengthFieldOffset, -gap)

	return true
}
