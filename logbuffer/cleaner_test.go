package logbuffer

import "testing"

func TestCleanerZeroesIncrementallyAndLeavesLengthSentinelLast(t *testing.T) {
	buf := Wrap(make([]byte, 256))
	for i := range buf.data {
		buf.data[i] = 0xFF
	}

	var c Cleaner
	c.Clean(buf, 128)

	if c.Position() != 128 {
		t.Fatalf("clean position = %d, want 128", c.Position())
	}
	for i := int32(0); i < 128; i++ {
		if buf.GetByte(i) != 0 {
			t.Fatalf("byte %d not zeroed", i)
		}
	}
	for i := int32(128); i < 256; i++ {
		if buf.GetByte(i) != 0xFF {
			t.Fatalf("byte %d zeroed prematurely", i)
		}
	}

	c.Clean(buf, 256)
	if c.Position() != 256 {
		t.Fatalf("clean position = %d, want 256", c.Position())
	}
	for i := int32(128); i < 256; i++ {
		if buf.GetByte(i) != 0 {
			t.Fatalf("byte %d not zeroed on second pass", i)
		}
	}
}

func TestCleanerBoundedByMaxBytesPerCall(t *testing.T) {
	buf := Wrap(make([]byte, MaxCleanBytesPerCall*2))
	var c Cleaner
	c.Clean(buf, int64(len(buf.data)))
	if c.Position() != MaxCleanBytesPerCall {
		t.Fatalf("single Clean call advanced past MaxCleanBytesPerCall: %d", c.Position())
	}
}
