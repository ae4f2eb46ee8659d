package logbuffer

import (
	"bytes"
	"testing"
)

// TestOfferPollRoundTrip exercises spec.md §8 scenario S1: three
// 100-byte messages offered in order are observed by a poller attached
// from the start, in order, with no reordering or duplicates, and the
// subscriber position lands on 3 * align(100+32, 32) = 480.
func TestOfferPollRoundTrip(t *testing.T) {
	lb := WrapHeap(1, 10, 0, 64*1024, 1408, 4096)
	appender := NewAppender(lb, true)

	msgs := [][]byte{
		bytes.Repeat([]byte{1}, 100),
		bytes.Repeat([]byte{2}, 100),
		bytes.Repeat([]byte{3}, 100),
	}

	var lastPos int64
	for _, m := range msgs {
		pos := appender.AppendUnfragmentedMessage(m, nil)
		if pos < 0 {
			t.Fatalf("offer failed unexpectedly: %d", pos)
		}
		lastPos = pos
	}

	wantPos := int64(3 * 160)
	if lastPos != wantPos {
		t.Fatalf("final position = %d, want %d", lastPos, wantPos)
	}

	var header Header
	header.SetInitialTermID(0)
	header.SetPositionBitsToShift(int32(PositionBitsToShift(64 * 1024)))

	var delivered [][]byte
	offset, n := Read(lb.TermBuffer(0), 0, func(buf *Buffer, off, length int32, h *Header) {
		delivered = append(delivered, buf.GetBytesCopy(off, length))
	}, 10, &header)

	if n != 3 {
		t.Fatalf("fragments read = %d, want 3", n)
	}
	if int64(offset) != wantPos {
		t.Fatalf("reader offset = %d, want %d", offset, wantPos)
	}
	for i, m := range msgs {
		if !bytes.Equal(delivered[i], m) {
			t.Fatalf("fragment %d mismatch", i)
		}
	}
}

// TestPartitionRotationWritesPadding covers spec.md §8 scenario S3:
// offering until the producer crosses a term boundary observes
// active_term_count advance and a padding frame at the tail of the
// completed term.
func TestPartitionRotationWritesPadding(t *testing.T) {
	const termLength = 64 * 1024
	lb := WrapHeap(1, 10, 0, termLength, 1408, 4096)
	appender := NewAppender(lb, true)

	msg := bytes.Repeat([]byte{7}, 1000)
	alignedFrameSize := alignUp32(int32(len(msg)) + HeaderLength)
	perTerm := termLength / int(alignedFrameSize)

	for i := 0; i < perTerm+2; i++ {
		pos := appender.AppendUnfragmentedMessage(msg, nil)
		if pos < 0 {
			t.Fatalf("unexpected claim failure at iteration %d: %d", i, pos)
		}
	}

	if got := lb.Meta().ActiveTermCount(); got < 1 {
		t.Fatalf("active_term_count = %d, want >= 1 after crossing a term boundary", got)
	}

	// The original partition 0 must contain exactly one negative-length
	// (padding) frame covering the unused remainder of the term.
	termBuf := lb.TermBuffer(0)
	offset := int32(0)
	foundPadding := false
	for offset < termLength {
		frameLength := termBuf.GetInt32Volatile(offset)
		if frameLength == 0 {
			break
		}
		if frameLength < 0 {
			foundPadding = true
			if offset+(-frameLength) != termLength {
				t.Fatalf("padding frame at %d does not reach end of term: length=%d, end=%d", offset, -frameLength, offset+(-frameLength))
			}
			break
		}
		offset += alignUp32(frameLength)
	}
	if !foundPadding {
		t.Fatalf("expected a padding frame in partition 0 after rotation")
	}
}

func alignUp32(v int32) int32 {
	return (v + 31) &^ 31
}

// TestClaimCommitMakesFrameVisible exercises the two-phase Claim/Commit
// API: an uncommitted claim (frame_length == 0) must be invisible to a
// reader, and becomes visible only after Commit.
func TestClaimCommitMakesFrameVisible(t *testing.T) {
	lb := WrapHeap(2, 11, 0, 64*1024, 1408, 4096)
	appender := NewAppender(lb, true)

	var claim BufferClaim
	pos := appender.Claim(64, &claim)
	if pos < 0 {
		t.Fatalf("claim failed: %d", pos)
	}

	var header Header
	_, n := Read(lb.TermBuffer(0), 0, func(*Buffer, int32, int32, *Header) {}, 10, &header)
	if n != 0 {
		t.Fatalf("uncommitted claim must be invisible, got %d fragments", n)
	}

	copy(claim.Buffer().Bytes()[claim.Offset():claim.Offset()+claim.Length()], bytes.Repeat([]byte{9}, int(claim.Length())))
	claim.Commit()

	_, n = Read(lb.TermBuffer(0), 0, func(*Buffer, int32, int32, *Header) {}, 10, &header)
	if n != 1 {
		t.Fatalf("committed claim must be visible, got %d fragments", n)
	}
}

// TestSharedAppenderCASUnderContention exercises the multi-writer path:
// several goroutines sharing one Appender must not corrupt the term —
// every committed frame is delivered exactly once in no particular
// cross-writer order, and the tail ends up exactly at the sum of
// aligned lengths.
func TestSharedAppenderCASUnderContention(t *testing.T) {
	lb := WrapHeap(3, 12, 0, 64*1024, 1408, 4096)
	appender := NewAppender(lb, false)

	const writers = 8
	const perWriter = 20
	done := make(chan int64, writers)
	for w := 0; w < writers; w++ {
		go func() {
			var count int64
			for i := 0; i < perWriter; i++ {
				pos := appender.AppendUnfragmentedMessage([]byte("x"), nil)
				for pos == Tripped || pos == Failed {
					pos = appender.AppendUnfragmentedMessage([]byte("x"), nil)
				}
				count++
			}
			done <- count
		}()
	}

	var total int64
	for w := 0; w < writers; w++ {
		total += <-done
	}
	if total != writers*perWriter {
		t.Fatalf("expected %d successful offers, counted %d", writers*perWriter, total)
	}

	var header Header
	_, n := Read(lb.TermBuffer(0), 0, func(*Buffer, int32, int32, *Header) {}, writers*perWriter+1, &header)
	if n != writers*perWriter {
		t.Fatalf("fragments visible = %d, want %d", n, writers*perWriter)
	}

	wantTail := int64(writers * perWriter * alignUp32(HeaderLength+1))
	if tail := RawTailTermOffset(lb.Meta().TailCounter(0)); tail != wantTail {
		t.Fatalf("tail offset = %d, want %d", tail, wantTail)
	}
}
