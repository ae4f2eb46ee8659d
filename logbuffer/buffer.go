package logbuffer

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// Buffer wraps a byte slice (plain heap memory or a memory-mapped
// region) with the volatile/ordered/CAS accessors the log-buffer
// protocol's single-writer claim discipline depends on. It is the Go
// analogue of the aeron-go reference's atomic.Buffer (see
// other_examples welly87-aeron-go term/appender.go and
// hftex-aeron-go aeron/image.go, both of which operate purely through
// such a buffer rather than touching the mapped memory directly).
type Buffer struct {
	data []byte
}

// Wrap constructs a Buffer view over data without copying it.
func Wrap(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Capacity returns the buffer length in bytes.
func (b *Buffer) Capacity() int32 { return int32(len(b.data)) }

// Bytes exposes the raw backing slice. Callers must not retain slices
// across a Close of the owning mapped file.
func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) slice(offset, length int32) []byte {
	return b.data[offset : offset+length]
}

func (b *Buffer) ptrAt(offset int32) unsafe.Pointer {
	return unsafe.Pointer(&b.data[offset])
}

// Plain (non-atomic) little-endian accessors, used for fields only ever
// touched by the single owning thread (e.g. header fields other than
// frame_length, which is written once before publication).

func (b *Buffer) GetByte(offset int32) byte { return b.data[offset] }
func (b *Buffer) PutByte(offset int32, v byte) { b.data[offset] = v }

func (b *Buffer) GetUint16(offset int32) uint16 {
	return binary.LittleEndian.Uint16(b.slice(offset, 2))
}

func (b *Buffer) PutUint16(offset int32, v uint16) {
	binary.LittleEndian.PutUint16(b.slice(offset, 2), v)
}

func (b *Buffer) GetInt32(offset int32) int32 {
	return int32(binary.LittleEndian.Uint32(b.slice(offset, 4)))
}

func (b *Buffer) PutInt32(offset int32, v int32) {
	binary.LittleEndian.PutUint32(b.slice(offset, 4), uint32(v))
}

func (b *Buffer) GetInt64(offset int32) int64 {
	return int64(binary.LittleEndian.Uint64(b.slice(offset, 8)))
}

func (b *Buffer) PutInt64(offset int32, v int64) {
	binary.LittleEndian.PutUint64(b.slice(offset, 8), uint64(v))
}

func (b *Buffer) PutBytes(offset int32, src []byte) {
	copy(b.slice(offset, int32(len(src))), src)
}

func (b *Buffer) GetBytesCopy(offset, length int32) []byte {
	dst := make([]byte, length)
	copy(dst, b.slice(offset, length))
	return dst
}

// Volatile / ordered accessors. Go's sync/atomic operations are
// sequentially consistent, a strictly stronger guarantee than the
// acquire/release pairing spec.md §5 asks for, so they're used directly
// in place of hand-rolled fences.

func (b *Buffer) GetInt32Volatile(offset int32) int32 {
	return atomic.LoadInt32((*int32)(b.ptrAt(offset)))
}

func (b *Buffer) PutInt32Ordered(offset int32, v int32) {
	atomic.StoreInt32((*int32)(b.ptrAt(offset)), v)
}

func (b *Buffer) GetInt64Volatile(offset int32) int64 {
	return atomic.LoadInt64((*int64)(b.ptrAt(offset)))
}

func (b *Buffer) PutInt64Ordered(offset int32, v int64) {
	atomic.StoreInt64((*int64)(b.ptrAt(offset)), v)
}

func (b *Buffer) CompareAndSwapInt64(offset int32, old, new int64) bool {
	return atomic.CompareAndSwapInt64((*int64)(b.ptrAt(offset)), old, new)
}

// GetAndAddInt64 performs an atomic fetch-and-add, returning the
// pre-increment value (used by the exclusive/single-writer claim path).
func (b *Buffer) GetAndAddInt64(offset int32, delta int64) int64 {
	return atomic.AddInt64((*int64)(b.ptrAt(offset)), delta) - delta
}

func (b *Buffer) GetAndAddInt32(offset int32, delta int32) int32 {
	return atomic.AddInt32((*int32)(b.ptrAt(offset)), delta) - delta
}

// ZeroOrdered clears length bytes starting at offset using 8-byte
// ordered stores, matching the cleaning discipline in spec.md §4.L.
// length must be a multiple of 8.
func (b *Buffer) ZeroOrdered(offset, length int32) {
	for i := int32(0); i < length; i += 8 {
		b.PutInt64Ordered(offset+i, 0)
	}
}
