// Package ringbuffer implements the many-producer/single-consumer byte
// ring buffer Aeron clients use to send commands to the driver and the
// driver uses to send events back (spec.md §4.Q "Client command/event
// rings"). It generalises the claimed-sequence/publish-barrier shape of
// the corpus's Disruptor-style ring buffer (other_examples
// arcentrix-arcentra pkg/ringbuffer/disruptor_ringbuffer.go) from a
// typed single-producer structure to a raw-byte, CAS-claimed
// multi-producer one, since the client/driver command protocol is a
// byte-framed IPC boundary rather than an in-process typed channel. It
// reuses logbuffer.Buffer for its volatile/ordered/CAS field access
// instead of re-deriving that plumbing, since the claim/publish
// discipline here is the same one logbuffer.Appender already has to
// get right.
package ringbuffer

import (
	"errors"
	"sync/atomic"

	"github.com/TisonKun/aeron/logbuffer"
	"github.com/TisonKun/aeron/util"
)

// ErrInsufficientCapacity is returned by Write when the ring has no
// room for the message; callers back off and retry (this mirrors the
// claim/retry shape of logbuffer.Appender rather than blocking).
var ErrInsufficientCapacity = errors.New("aeron: ring buffer insufficient capacity")

const (
	alignment        = 8
	headerLength     = 8
	lengthOffset     = 0
	msgTypeOffset    = 4
	paddingMsgTypeID = -1
)

// Handler receives one delivered message: its type ID and payload.
type Handler func(msgTypeID int32, payload []byte)

// ManyToOne is a lock-free MPSC ring buffer over a fixed-size buffer.
// Producers CAS-claim a region (mirroring the corpus's
// atomic.AddInt64-claim-then-publish shape, upgraded to CAS because
// here there are many producers, not one), write the frame, then
// publish it with an ordered store of the length field. The single
// consumer scans from its own head, stopping at the first unpublished
// (zero-length) slot — the same convention logbuffer.Read uses for
// term frames.
type ManyToOne struct {
	buffer   *logbuffer.Buffer
	capacity int32
	mask     int32

	head int64 // consumer read position, owned by the single consumer
	tail int64 // next claim position, CAS'd by producers
}

// NewManyToOne wraps buffer, whose length must be a power of two.
func NewManyToOne(buffer *logbuffer.Buffer) *ManyToOne {
	capacity := buffer.Capacity()
	if !util.IsPowerOfTwo(capacity) {
		panic("aeron: ring buffer capacity must be a power of two")
	}
	return &ManyToOne{
		buffer:   buffer,
		capacity: capacity,
		mask:     capacity - 1,
	}
}

// Write claims space for a message of msgTypeID carrying payload,
// copies it in and publishes it. It returns ErrInsufficientCapacity
// without blocking if the ring is full.
func (r *ManyToOne) Write(msgTypeID int32, payload []byte) error {
	recordLength := headerLength + int32(len(payload))
	alignedLength := util.AlignInt32(recordLength, alignment)

	for {
		tail := atomic.LoadInt64(&r.tail)
		head := atomic.LoadInt64(&r.head)
		available := r.capacity - int32(tail-head)

		index := int32(tail) & r.mask
		toEndOfBuffer := r.capacity - index

		var required int32
		if alignedLength > toEndOfBuffer {
			// The record (or even just its header) would wrap past the
			// end of the buffer; claim enough to also cover a padding
			// frame filling the remainder of this lap.
			required = alignedLength + toEndOfBuffer
		} else {
			required = alignedLength
		}

		if required > available {
			return ErrInsufficientCapacity
		}

		if !atomic.CompareAndSwapInt64(&r.tail, tail, tail+int64(required)) {
			continue
		}

		if alignedLength > toEndOfBuffer {
			r.writePadding(index, toEndOfBuffer)
			index = 0
		}

		r.writeRecord(index, msgTypeID, recordLength, payload)
		return nil
	}
}

func (r *ManyToOne) writePadding(index, length int32) {
	r.buffer.PutInt32(index+msgTypeOffset, paddingMsgTypeID)
	r.buffer.PutInt32Ordered(index+lengthOffset, -length)
}

func (r *ManyToOne) writeRecord(index, msgTypeID, recordLength int32, payload []byte) {
	r.buffer.PutBytes(index+headerLength, payload)
	r.buffer.PutInt32(index+msgTypeOffset, msgTypeID)
	r.buffer.PutInt32Ordered(index+lengthOffset, recordLength)
}

// Read drains up to messageLimit published messages, invoking handler
// for each, and returns how many were delivered. It stops at the first
// slot that isn't yet published (length == 0).
func (r *ManyToOne) Read(handler Handler, messageLimit int) int {
	head := atomic.LoadInt64(&r.head)
	index := int32(head) & r.mask
	bytesRead := int32(0)
	messagesRead := 0

	capacityLeft := r.capacity - index
	for messagesRead < messageLimit && bytesRead < capacityLeft {
		recordIndex := index + bytesRead
		length := r.buffer.GetInt32Volatile(recordIndex + lengthOffset)
		if length == 0 {
			break
		}

		alignedLength := util.AlignInt32(absInt32(length), alignment)
		bytesRead += alignedLength

		msgTypeID := r.buffer.GetInt32(recordIndex + msgTypeOffset)
		if msgTypeID != paddingMsgTypeID {
			payload := r.buffer.GetBytesCopy(recordIndex+headerLength, length-headerLength)
			handler(msgTypeID, payload)
			messagesRead++
		}
	}

	if bytesRead != 0 {
		r.buffer.ZeroOrdered(index, bytesRead)
		atomic.StoreInt64(&r.head, head+int64(bytesRead))
	}

	return messagesRead
}

// ConsumerPosition returns the single consumer's current read position.
func (r *ManyToOne) ConsumerPosition() int64 { return atomic.LoadInt64(&r.head) }

// ProducerPosition returns the highest position claimed by any producer
// so far, published or not.
func (r *ManyToOne) ProducerPosition() int64 { return atomic.LoadInt64(&r.tail) }

// Unblock clears a stuck claim at the consumer's current position: a
// producer CAS'd the tail forward, reserving space, then died before
// publishing the length field, which would otherwise wedge Read behind
// a permanent zero-length slot forever. It writes a padding record
// spanning the claimed-but-never-published region so Read can skip
// past it, and reports whether it did anything.
func (r *ManyToOne) Unblock() bool {
	head := atomic.LoadInt64(&r.head)
	tail := atomic.LoadInt64(&r.tail)
	if tail <= head {
		return false
	}

	index := int32(head) & r.mask
	if r.buffer.GetInt32Volatile(index+lengthOffset) != 0 {
		return false
	}

	length := int32(tail - head)
	if length > r.capacity-index {
		length = r.capacity - index
	}
	r.writePadding(index, length)
	return true
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
