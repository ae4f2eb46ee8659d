package logbuffer

// BufferClaim is a zero-copy handle onto a reserved frame slot returned
// by Appender.Claim: the caller writes the message body directly into
// the claimed region, then must call Commit (or Abort to turn it into a
// padding/tombstone frame) before any subscriber can observe it.
// Grounded on the aeron-go reference's logbuffer.Claim /
// Appender.Claim pairing (other_examples welly87-aeron-go
// term-appender.go).
type BufferClaim struct {
	buffer      *Buffer
	frameOffset int32
	frameLength int32
}

// Wrap repositions the claim over a freshly written, not-yet-committed
// frame.
func (c *BufferClaim) Wrap(buffer *Buffer, offset, frameLength int32) {
	c.buffer = buffer
	c.frameOffset = offset
	c.frameLength = frameLength
}

// Buffer returns the term buffer the claim was made against.
func (c *BufferClaim) Buffer() *Buffer { return c.buffer }

// Offset returns the offset of the message payload (past the header).
func (c *BufferClaim) Offset() int32 { return c.frameOffset + HeaderLength }

// Length returns the capacity of the payload region.
func (c *BufferClaim) Length() int32 { return c.frameLength - HeaderLength }

// SetReservedValue sets the user-supplied 8-byte reserved field.
func (c *BufferClaim) SetReservedValue(v int64) {
	c.buffer.PutInt64(c.frameOffset+ReservedValueFieldOffset, v)
}

// Commit publishes the frame by ordered-storing its real, positive
// length last. Until this happens the slot's frame_length stays 0 and
// is invisible to readers (spec.md §4.L step 4).
func (c *BufferClaim) Commit() {
	c.buffer.PutInt32Ordered(c.frameOffset+FrameLengthFieldOffset, c.frameLength)
}

// Abort turns the claimed slot into a padding frame instead of
// publishing it, so that subscribers skip over it without ever seeing
// application data. Used when the caller decides not to send after
// claiming (e.g. validation failure discovered after Claim).
func (c *BufferClaim) Abort() {
	c.buffer.PutUint16(c.frameOffset+TypeFieldOffset, FrameTypePad)
	c.buffer.PutInt32Ordered(c.frameOffset+FrameLengthFieldOffset, -c.frameLength)
}
