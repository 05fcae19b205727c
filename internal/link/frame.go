package link

import "fmt"

const (
	// DefaultMaxSegmentLen is the default maximum size of a data segment in bytes
	DefaultMaxSegmentLen = 70

	// StartSentinel marks the start of a record
	StartSentinel = "$st@"

	// EndSentinel marks the end of a record
	EndSentinel = "$ed@"
)

const (
	FrameStart FrameKind = iota
	FrameData
	FrameEnd
)

// FrameKind is the kind of frame: start sentinel, data segment or end sentinel
type FrameKind uint8

func (k FrameKind) String() string {
	switch k {
	case FrameStart:
		return "start"
	case FrameData:
		return "data"
	case FrameEnd:
		return "end"
	default:
		return fmt.Sprintf("FrameKind(%d)", uint8(k))
	}
}

// Frame is a single payload handed to the radio
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// StartFrame returns a new start-of-record sentinel frame
func StartFrame() Frame {
	return Frame{Kind: FrameStart, Payload: []byte(StartSentinel)}
}

// EndFrame returns a new end-of-record sentinel frame
func EndFrame() Frame {
	return Frame{Kind: FrameEnd, Payload: []byte(EndSentinel)}
}

// Chunk splits the record into consecutive segments of at most maxSegmentLen
// bytes, framed by the start and end sentinels:
//
//	[start, segment 1, ..., segment N, end]
//
// An empty record yields [start, end]. Segments share memory with the record.
func Chunk(record []byte, maxSegmentLen int) ([]Frame, error) {
	if maxSegmentLen <= 0 {
		return nil, NewConfigError(fmt.Sprintf("link: %d given", maxSegmentLen), ErrInvalidSegmentLength)
	}

	numSegments := (len(record) + maxSegmentLen - 1) / maxSegmentLen

	frames := make([]Frame, 0, numSegments+2) // Preallocate with sentinels
	frames = append(frames, StartFrame())

	for i := 0; i < len(record); i += maxSegmentLen {
		end := min(i+maxSegmentLen, len(record))
		frames = append(frames, Frame{Kind: FrameData, Payload: record[i:end:end]})
	}

	frames = append(frames, EndFrame())
	return frames, nil
}
