package logbuffer

import "testing"

func TestPositionRoundTrip(t *testing.T) {
	const termLength = 64 * 1024
	shift := PositionBitsToShift(termLength)
	const initialTermID = 7

	cases := []struct {
		termID, termOffset int32
	}{
		{7, 0},
		{7, 128},
		{8, 0},
		{9, termLength - 32},
	}

	for _, c := range cases {
		pos := ComputePosition(c.termID, c.termOffset, shift, initialTermID)
		gotTermID := ComputeTermIDFromPosition(pos, shift, initialTermID)
		gotOffset := ComputeTermOffsetFromPosition(pos, shift)
		if gotTermID != c.termID || gotOffset != c.termOffset {
			t.Fatalf("round trip mismatch for termID=%d offset=%d: got termID=%d offset=%d (pos=%d)",
				c.termID, c.termOffset, gotTermID, gotOffset, pos)
		}
	}
}

func TestIndexByTermCountRotatesThroughAllPartitions(t *testing.T) {
	seen := map[int32]bool{}
	for i := int64(0); i < 6; i++ {
		seen[IndexByTermCount(i)] = true
	}
	if len(seen) != PartitionCount {
		t.Fatalf("expected all %d partitions to be visited, got %v", PartitionCount, seen)
	}
	if IndexByTermCount(0) != IndexByTermCount(3) {
		t.Fatalf("expected period-3 rotation: index(0)=%d index(3)=%d", IndexByTermCount(0), IndexByTermCount(3))
	}
}

func TestPackTailRoundTrip(t *testing.T) {
	raw := PackTail(42, 1024)
	if got := TermIDFromRawTail(raw); got != 42 {
		t.Fatalf("TermIDFromRawTail = %d, want 42", got)
	}
	if got := RawTailTermOffset(raw); got != 1024 {
		t.Fatalf("RawTailTermOffset = %d, want 1024", got)
	}
}
