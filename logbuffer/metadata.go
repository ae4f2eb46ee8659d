package logbuffer

// Layout of the fixed-size metadata region colocated with the term
// partitions (spec.md §3 "Log Metadata"). Field offsets are chosen to
// keep the hot fields (per-partition tails, active term count) within
// the first cache lines and to isolate end_of_stream_position /
// is_connected, which are written by a different party than the tails,
// onto their own cache line, mirroring the "cache-line isolated"
// treatment spec.md gives the position counters.
const (
	tailCounterOffset0     = 0
	tailCounterStride      = 8
	tailCountersLength     = tailCounterStride * PartitionCount // 24

	activeTermCountOffset = 64 // own cache line

	initialTermIDOffset = 128
	mtuLengthOffset      = initialTermIDOffset + 8
	termLengthOffset     = initialTermIDOffset + 16
	pageSizeOffset       = initialTermIDOffset + 24
	correlationIDOffset  = initialTermIDOffset + 32

	isConnectedOffset          = 192 // own cache line
	activeTransportCountOffset = isConnectedOffset + 8
	endOfStreamPositionOffset  = isConnectedOffset + 16

	defaultFrameHeaderOffset = 256
	defaultFrameHeaderLength = HeaderLength

	// LogMetaDataLength is the total size reserved for the metadata
	// region, rounded up to a typical page size so it can be mapped on
	// its own page independent of the term buffers.
	LogMetaDataLength = 4096
)

// LogMetadata is a typed view over the metadata region of a mapped log
// file.
type LogMetadata struct {
	buf *Buffer
}

// NewLogMetadata wraps buf (which must be at least LogMetaDataLength
// bytes) as a LogMetadata view.
func NewLogMetadata(buf *Buffer) *LogMetadata { return &LogMetadata{buf: buf} }

func (m *LogMetadata) Buffer() *Buffer { return m.buf }

// TailCounter returns the raw packed (term_id:term_offset) tail for the
// given partition with acquire semantics.
func (m *LogMetadata) TailCounter(partitionIndex int32) int64 {
	return m.buf.GetInt64Volatile(tailCounterOffset0 + partitionIndex*tailCounterStride)
}

func (m *LogMetadata) SetTailCounterOrdered(partitionIndex int32, rawTail int64) {
	m.buf.PutInt64Ordered(tailCounterOffset0+partitionIndex*tailCounterStride, rawTail)
}

func (m *LogMetadata) CompareAndSetTailCounter(partitionIndex int32, old, new int64) bool {
	return m.buf.CompareAndSwapInt64(tailCounterOffset0+partitionIndex*tailCounterStride, old, new)
}

func (m *LogMetadata) GetAndAddTailCounter(partitionIndex int32, delta int64) int64 {
	return m.buf.GetAndAddInt64(tailCounterOffset0+partitionIndex*tailCounterStride, delta)
}

// ActiveTermCount is the number of rotations observed since the log was
// created; active_partition = active_term_count mod 3.
func (m *LogMetadata) ActiveTermCount() int64 {
	return m.buf.GetInt64Volatile(activeTermCountOffset)
}

func (m *LogMetadata) SetActiveTermCountOrdered(count int64) {
	m.buf.PutInt64Ordered(activeTermCountOffset, count)
}

func (m *LogMetadata) CompareAndSetActiveTermCount(old, new int64) bool {
	return m.buf.CompareAndSwapInt64(activeTermCountOffset, old, new)
}

func (m *LogMetadata) InitialTermID() int32 {
	return m.buf.GetInt32(int32(initialTermIDOffset))
}

func (m *LogMetadata) SetInitialTermID(id int32) {
	m.buf.PutInt32(int32(initialTermIDOffset), id)
}

func (m *LogMetadata) MTULength() int32 { return m.buf.GetInt32(int32(mtuLengthOffset)) }
func (m *LogMetadata) SetMTULength(v int32) { m.buf.PutInt32(int32(mtuLengthOffset), v) }

func (m *LogMetadata) TermLength() int32 { return m.buf.GetInt32(int32(termLengthOffset)) }
func (m *LogMetadata) SetTermLength(v int32) { m.buf.PutInt32(int32(termLengthOffset), v) }

func (m *LogMetadata) PageSize() int32 { return m.buf.GetInt32(int32(pageSizeOffset)) }
func (m *LogMetadata) SetPageSize(v int32) { m.buf.PutInt32(int32(pageSizeOffset), v) }

func (m *LogMetadata) CorrelationID() int64 { return m.buf.GetInt64(int32(correlationIDOffset)) }
func (m *LogMetadata) SetCorrelationID(v int64) { m.buf.PutInt64(int32(correlationIDOffset), v) }

func (m *LogMetadata) IsConnected() bool {
	return m.buf.GetInt32Volatile(isConnectedOffset) != 0
}

func (m *LogMetadata) SetConnectedOrdered(connected bool) {
	v := int32(0)
	if connected {
		v = 1
	}
	m.buf.PutInt32Ordered(isConnectedOffset, v)
}

func (m *LogMetadata) ActiveTransportCount() int32 {
	return m.buf.GetInt32Volatile(int32(activeTransportCountOffset))
}

func (m *LogMetadata) SetActiveTransportCountOrdered(v int32) {
	m.buf.PutInt32Ordered(int32(activeTransportCountOffset), v)
}

// EndOfStreamPosition is +infinity (EndOfStreamPositionInfinite) until the publication
// producing this stream has been fully decref'd, per spec.md §3
// Lifecycle.
func (m *LogMetadata) EndOfStreamPosition() int64 {
	return m.buf.GetInt64Volatile(int32(endOfStreamPositionOffset))
}

func (m *LogMetadata) SetEndOfStreamPositionOrdered(v int64) {
	m.buf.PutInt64Ordered(int32(endOfStreamPositionOffset), v)
}

// DefaultFrameHeader returns the template header new appenders copy
// session/stream ids from.
func (m *LogMetadata) DefaultFrameHeader() []byte {
	return m.buf.GetBytesCopy(defaultFrameHeaderOffset, defaultFrameHeaderLength)
}

func (m *LogMetadata) SetDefaultFrameHeader(sessionID, streamID, initialTermID int32) {
	m.buf.PutByte(defaultFrameHeaderOffset+VersionFieldOffset, CurrentVersion)
	m.buf.PutInt32(defaultFrameHeaderOffset+SessionIDFieldOffset, sessionID)
	m.buf.PutInt32(defaultFrameHeaderOffset+StreamIDFieldOffset, streamID)
	m.buf.PutInt32(defaultFrameHeaderOffset+TermIDFieldOffset, initialTermID)
}

// InitDefaults sets up a freshly created log's metadata region: empty
// tails starting at term id initialTermID+activeTermCount,
// activeTermCount rotations (normally zero), +infinity end of stream,
// default header template.
func (m *LogMetadata) InitDefaults(sessionID, streamID, initialTermID, termLength, mtuLength, pageSize int32, activeTermCount int64) {
	m.SetInitialTermID(initialTermID)
	m.SetTermLength(termLength)
	m.SetMTULength(mtuLength)
	m.SetPageSize(pageSize)
	m.SetActiveTermCountOrdered(activeTermCount)
	for i := int32(0); i < PartitionCount; i++ {
		termID := initialTermID + int32(activeTermCount) + i
		m.SetTailCounterOrdered(IndexByTerm(initialTermID, termID), PackTail(termID, 0))
	}
	m.SetEndOfStreamPositionOrdered(int64(1)<<62) // +infinity sentinel
	m.SetConnectedOrdered(false)
	m.SetDefaultFrameHeader(sessionID, streamID, initialTermID)
}

// EndOfStreamPositionInfinite is the sentinel value meaning "stream not
// yet ended", used instead of math.MaxInt64 so arithmetic against it
// (e.g. min() with a real position) cannot overflow.
const EndOfStreamPositionInfinite = int64(1) << 62
