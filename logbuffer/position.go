package logbuffer

import "github.com/TisonKun/aeron/util"

// PartitionCount is the fixed number of term partitions rotated
// round-robin by every log buffer (spec.md §3 "Term Partition").
const PartitionCount = 3

// PositionBitsToShift converts a power-of-two term length into the
// shift amount used to split a 64-bit stream position into
// (term count, term offset).
func PositionBitsToShift(termLength int32) uint8 {
	return util.NumberOfTrailingZeroes(termLength)
}

// ComputeTermIDFromPosition derives the term id owning position.
func ComputeTermIDFromPosition(position int64, positionBitsToShift uint8, initialTermID int32) int32 {
	return initialTermID + int32(position>>positionBitsToShift)
}

// ComputeTermOffsetFromPosition derives the offset within the active
// term for position.
func ComputeTermOffsetFromPosition(position int64, positionBitsToShift uint8) int32 {
	termLength := int64(1) << positionBitsToShift
	return int32(position & (termLength - 1))
}

// ComputePosition reconstructs the absolute stream position from a
// (termID, termOffset) pair.
func ComputePosition(termID, termOffset int32, positionBitsToShift uint8, initialTermID int32) int64 {
	termCount := int64(termID - initialTermID)
	return (termCount << positionBitsToShift) + int64(termOffset)
}

// IndexByTerm returns the partition index a term id maps to.
func IndexByTerm(initialTermID, termID int32) int32 {
	return util.FastMod3(uint64(termID - initialTermID))
}

// IndexByTermCount returns the partition index for a given rotation
// count (active_term_count in spec.md §3).
func IndexByTermCount(termCount int64) int32 {
	return util.FastMod3(uint64(termCount))
}

// IndexByPosition returns the partition index owning a stream position.
func IndexByPosition(position int64, positionBitsToShift uint8) int32 {
	return util.FastMod3(uint64(position >> positionBitsToShift))
}

// PackTail packs a (termID, termOffset) pair into the 64-bit raw tail
// value stored per-partition in the log metadata (spec.md §3 "Log
// Metadata": "per-partition tail (64-bit packed term_id:term_offset)").
func PackTail(termID, termOffset int32) int64 {
	return int64(uint64(uint32(termID))<<32 | uint64(uint32(termOffset)))
}

// TermIDFromRawTail extracts the term id packed into a raw tail value.
func TermIDFromRawTail(rawTail int64) int32 {
	return int32(rawTail >> 32)
}

// RawTailTermOffset extracts the term offset packed into a raw tail
// value as an unclamped int64. Once a partition has been tripped this
// can legitimately exceed the term length; callers that need a valid
// in-bounds offset clamp it themselves against the term length.
func RawTailTermOffset(rawTail int64) int64 {
	return rawTail & 0xFFFFFFFF
}
