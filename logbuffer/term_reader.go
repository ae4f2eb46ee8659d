package logbuffer

import "github.com/TisonKun/aeron/util"

// FragmentHandler receives one delivered fragment: the term buffer, the
// offset of the payload (past the header), its length, and a Header
// cursor for inspecting the frame's metadata.
type FragmentHandler func(buffer *Buffer, offset, length int32, header *Header)

// Poll actions for ControlledRead, grounded on the aeron-go reference's
// ControlledPollAction table (other_examples hftex-aeron-go
// aeron-image.go).
const (
	ActionAbort = iota + 1
	ActionBreak
	ActionCommit
	ActionContinue
)

// ControlledFragmentHandler is like FragmentHandler but returns an
// action controlling whether/how far the subscriber position advances.
type ControlledFragmentHandler func(buffer *Buffer, offset, length int32, header *Header) int

// Read scans termBuffer starting at termOffset, delivering up to
// fragmentLimit fragments to handler. It returns the new term offset to
// resume scanning from. Three cases per frame, per spec.md §4.L
// "Consumer scan":
//   - frame_length == 0: not yet committed; stop.
//   - frame_length > 0: deliver [header, body], advance by aligned length.
//   - frame_length < 0: padding; skip its aligned length without
//     delivering it (rotation padding reaches the end of the term).
func Read(termBuffer *Buffer, termOffset int32, handler FragmentHandler, fragmentLimit int, header *Header) (newOffset int32, fragmentsRead int) {
	capacity := termBuffer.Capacity()
	offset := termOffset

	for fragmentsRead < fragmentLimit && offset < capacity {
		frameLength := termBuffer.GetInt32Volatile(offset + FrameLengthFieldOffset)
		if frameLength == 0 {
			break
		}

		frameOffset := offset
		alignedLength := util.AlignInt32(absInt32(frameLength), FrameAlignment)
		offset += alignedLength

		if frameLength < 0 {
			continue // padding/tombstone: skip silently, no fragment delivered
		}

		fragmentsRead++
		header.Wrap(termBuffer, frameOffset)
		handler(termBuffer, frameOffset+HeaderLength, frameLength-HeaderLength, header)
	}

	return offset, fragmentsRead
}

// ControlledRead is Read's variant for handlers that want to abort,
// break or force an early commit mid-batch (spec.md §4.I is additive
// here; the plain Poll uses Read).
func ControlledRead(termBuffer *Buffer, termOffset int32, handler ControlledFragmentHandler, fragmentLimit int, header *Header) (newOffset int32, fragmentsRead int) {
	capacity := termBuffer.Capacity()
	offset := termOffset
	resumeOffset := termOffset

	for fragmentsRead < fragmentLimit && offset < capacity {
		frameLength := termBuffer.GetInt32Volatile(offset + FrameLengthFieldOffset)
		if frameLength == 0 {
			break
		}

		frameOffset := offset
		alignedLength := util.AlignInt32(absInt32(frameLength), FrameAlignment)
		offset += alignedLength

		if frameLength < 0 {
			resumeOffset = offset
			continue
		}

		header.Wrap(termBuffer, frameOffset)
		action := handler(termBuffer, frameOffset+HeaderLength, frameLength-HeaderLength, header)

		switch action {
		case ActionAbort:
			return resumeOffset, fragmentsRead
		case ActionBreak:
			fragmentsRead++
			return offset, fragmentsRead
		case ActionCommit:
			fragmentsRead++
			resumeOffset = offset
		default: // ActionContinue: same bookkeeping here since Read always
			// returns its final offset as the commit point; COMMIT only
			// differs from CONTINUE when a caller flushes position
			// mid-batch, which this single-pass scan doesn't do.
			fragmentsRead++
			resumeOffset = offset
		}
	}

	return resumeOffset, fragmentsRead
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
