package logbuffer

import "testing"

// TestUnblockPadsOverNeverCommittedClaim covers spec.md §8 scenario S4:
// a producer claims 128 bytes and crashes before committing; Unblock
// writes a padding frame over the slot so a reader can advance past it.
func TestUnblockPadsOverNeverCommittedClaim(t *testing.T) {
	lb := WrapHeap(5, 20, 0, 64*1024, 1408, 4096)
	appender := NewAppender(lb, true)

	var claim BufferClaim
	pos := appender.Claim(128, &claim)
	if pos < 0 {
		t.Fatalf("claim failed: %d", pos)
	}
	// Producer "crashes": never calls claim.Commit().

	shift := PositionBitsToShift(64 * 1024)
	consumerPosition := int64(0)
	producerPosition := pos

	ok := Unblock(lb, consumerPosition, producerPosition, 0, shift)
	if !ok {
		t.Fatalf("Unblock reported no progress")
	}

	var header Header
	header.SetInitialTermID(0)
	header.SetPositionBitsToShift(int32(shift))

	offset, n := Read(lb.TermBuffer(0), 0, func(*Buffer, int32, int32, *Header) {}, 10, &header)
	if n != 0 {
		t.Fatalf("padding frame must not be delivered as a fragment, got %d", n)
	}
	if int64(offset) != producerPosition {
		t.Fatalf("reader did not advance past the padded slot: offset=%d want=%d", offset, producerPosition)
	}

	// A second Unblock call on an already-padded slot is a no-op.
	if Unblock(lb, consumerPosition, producerPosition, 0, shift) {
		t.Fatalf("Unblock should not re-pad an already-committed/padded slot")
	}
}

func TestUnblockNoOpWhenNotActuallyStuck(t *testing.T) {
	lb := WrapHeap(5, 20, 0, 64*1024, 1408, 4096)
	appender := NewAppender(lb, true)

	pos := appender.AppendUnfragmentedMessage([]byte("hello"), nil)
	if pos < 0 {
		t.Fatalf("offer failed: %d", pos)
	}

	shift := PositionBitsToShift(64 * 1024)
	if Unblock(lb, 0, pos, 0, shift) {
		t.Fatalf("Unblock should not act on a frame that was already committed")
	}
}
