package logbuffer

// Frame header layout, little-endian, per spec §6. Every write into a
// term partition is prefixed with this fixed header; the wire format is
// shared between the IPC log files and (out of scope here) the UDP
// sender/receiver framing.
const (
	FrameLengthFieldOffset    = 0
	VersionFieldOffset        = 4
	FlagsFieldOffset          = 5
	TypeFieldOffset           = 6
	TermOffsetFieldOffset     = 8
	SessionIDFieldOffset      = 12
	StreamIDFieldOffset       = 16
	TermIDFieldOffset         = 20
	ReservedValueFieldOffset  = 24

	// HeaderLength is the fixed, 32-byte aligned frame header size.
	HeaderLength = 32

	// FrameAlignment is the byte boundary every frame (header + body) is
	// padded out to.
	FrameAlignment = 32

	CurrentVersion = byte(0)
)

// Flag bits within the header's flags byte.
const (
	FlagBegin        byte = 0x80
	FlagEnd          byte = 0x40
	FlagUnfragmented byte = FlagBegin | FlagEnd
)

// Frame types.
const (
	FrameTypePad  uint16 = 0x00
	FrameTypeData uint16 = 0x01
)

// Header is a lightweight cursor over a term buffer used by the consumer
// scan path (Image.Poll / term.Read) to hand fragment metadata to
// application handlers without copying the frame.
type Header struct {
	buffer              *Buffer
	offset              int32
	initialTermID       int32
	positionBitsToShift uint8
}

// Wrap repositions the header over buffer at offset, ready to be handed
// to a FragmentHandler.
func (h *Header) Wrap(buffer *Buffer, offset int32) {
	h.buffer = buffer
	h.offset = offset
}

func (h *Header) SetInitialTermID(id int32)        { h.initialTermID = id }
func (h *Header) SetPositionBitsToShift(shift int32) { h.positionBitsToShift = uint8(shift) }

func (h *Header) Offset() int32 { return h.offset }

func (h *Header) FrameLength() int32 {
	return h.buffer.GetInt32(h.offset + FrameLengthFieldOffset)
}

func (h *Header) Version() byte {
	return h.buffer.GetByte(h.offset + VersionFieldOffset)
}

func (h *Header) Flags() byte {
	return h.buffer.GetByte(h.offset + FlagsFieldOffset)
}

func (h *Header) Type() uint16 {
	return h.buffer.GetUint16(h.offset + TypeFieldOffset)
}

func (h *Header) TermOffset() int32 {
	return h.buffer.GetInt32(h.offset + TermOffsetFieldOffset)
}

func (h *Header) SessionID() int32 {
	return h.buffer.GetInt32(h.offset + SessionIDFieldOffset)
}

func (h *Header) StreamID() int32 {
	return h.buffer.GetInt32(h.offset + StreamIDFieldOffset)
}

func (h *Header) TermID() int32 {
	return h.buffer.GetInt32(h.offset + TermIDFieldOffset)
}

func (h *Header) ReservedValue() int64 {
	return h.buffer.GetInt64(h.offset + ReservedValueFieldOffset)
}

// IsBegin and IsEnd report whether this fragment carries the BEGIN or
// END flag, i.e. whether it starts or completes a message (used by
// FragmentAssembler).
func (h *Header) IsBegin() bool { return h.Flags()&FlagBegin != 0 }
func (h *Header) IsEnd() bool   { return h.Flags()&FlagEnd != 0 }
