package logbuffer

import (
	"fmt"

	"github.com/TisonKun/aeron/util"
)

// MinTermLength and MaxTermLength bound the power-of-two term length
// per spec.md §3.
const (
	MinTermLength = 64 * 1024
	MaxTermLength = 1 << 30
)

// LogBuffers owns the three term partitions plus the metadata region of
// one log, whether backed by a memory-mapped file (IPC publications,
// spec.md §6 log file path) or, for tests, a plain heap allocation.
type LogBuffers struct {
	mapped      *MappedFile
	termBuffers [PartitionCount]*Buffer
	metaBuffer  *Buffer
	meta        *LogMetadata
	termLength  int32
}

func validateTermLength(termLength int32) error {
	if termLength < MinTermLength || termLength > MaxTermLength || !util.IsPowerOfTwo(termLength) {
		return ErrInvalidTermLength
	}
	return nil
}

func validatePageSize(pageSize int32) error {
	if !util.IsPowerOfTwo(pageSize) {
		return ErrInvalidPageSize
	}
	return nil
}

// CreateLogBuffers creates a new log file at path sized for termLength
// partitions plus metadata, and initialises its metadata for session
// sessionID/stream streamID starting at initialTermID. activeTermCount
// is normally 0; a non-zero value is used by replay creation (spec.md
// §9 open question) to pre-seed the rotation count without a later
// clobbering reassignment.
func CreateLogBuffers(path string, sessionID, streamID, initialTermID, termLength, mtuLength, pageSize int32, activeTermCount int64) (*LogBuffers, error) {
	if err := validateTermLength(termLength); err != nil {
		return nil, err
	}
	if err := validatePageSize(pageSize); err != nil {
		return nil, err
	}

	totalLength := int64(termLength)*PartitionCount + LogMetaDataLength
	mf, err := CreateFile(path, totalLength)
	if err != nil {
		return nil, err
	}

	lb := wrapMapped(mf, termLength)
	lb.meta.InitDefaults(sessionID, streamID, initialTermID, termLength, mtuLength, pageSize, activeTermCount)
	return lb, nil
}

// MapLogBuffers opens an existing log file, inferring the term length
// from its metadata.
func MapLogBuffers(path string) (*LogBuffers, error) {
	mf, err := OpenFile(path)
	if err != nil {
		return nil, err
	}

	// Peek the term length from the tail of the file layout: metadata
	// sits after the three term buffers, so we must read it once with a
	// provisional slice before we know the real term length.
	probe := mf.Buffer()
	if int64(probe.Capacity()) < LogMetaDataLength {
		mf.Close()
		return nil, fmt.Errorf("aeron: %s too small to contain log metadata", path)
	}
	metaBuf := mf.Slice(int64(probe.Capacity())-LogMetaDataLength, LogMetaDataLength)
	termLength := NewLogMetadata(metaBuf).TermLength()

	return wrapMapped(mf, termLength), nil
}

func wrapMapped(mf *MappedFile, termLength int32) *LogBuffers {
	lb := &LogBuffers{mapped: mf, termLength: termLength}
	for i := int32(0); i < PartitionCount; i++ {
		lb.termBuffers[i] = mf.Slice(int64(i)*int64(termLength), int64(termLength))
	}
	lb.metaBuffer = mf.Slice(int64(PartitionCount)*int64(termLength), LogMetaDataLength)
	lb.meta = NewLogMetadata(lb.metaBuffer)
	return lb
}

// WrapHeap constructs LogBuffers over plain heap-allocated buffers, used
// by unit tests that want to exercise the claim/scan/clean protocols
// without touching the filesystem.
func WrapHeap(sessionID, streamID, initialTermID, termLength, mtuLength, pageSize int32) *LogBuffers {
	lb := &LogBuffers{termLength: termLength}
	for i := int32(0); i < PartitionCount; i++ {
		lb.termBuffers[i] = Wrap(make([]byte, termLength))
	}
	lb.metaBuffer = Wrap(make([]byte, LogMetaDataLength))
	lb.meta = NewLogMetadata(lb.metaBuffer)
	lb.meta.InitDefaults(sessionID, streamID, initialTermID, termLength, mtuLength, pageSize, 0)
	return lb
}

func (lb *LogBuffers) TermBuffer(partitionIndex int32) *Buffer { return lb.termBuffers[partitionIndex] }
func (lb *LogBuffers) Meta() *LogMetadata                       { return lb.meta }
func (lb *LogBuffers) TermLength() int32                        { return lb.termLength }

func (lb *LogBuffers) Close() error {
	if lb.mapped != nil {
		return lb.mapped.Close()
	}
	return nil
}
