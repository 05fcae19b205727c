package link

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloads(frames []Frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = string(f.Payload)
	}
	return out
}

func TestChunk_Example(t *testing.T) {
	record := []byte("{'lat': 1.0, 'mode': 'GUIDED'}")

	frames, err := Chunk(record, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{
		StartSentinel,
		"{'lat': 1.",
		"0, 'mode':",
		" 'GUIDED'}",
		EndSentinel,
	}, payloads(frames))

	assert.Equal(t, FrameStart, frames[0].Kind)
	assert.Equal(t, FrameData, frames[1].Kind)
	assert.Equal(t, FrameEnd, frames[len(frames)-1].Kind)
}

func TestChunk_RoundTrip(t *testing.T) {
	records := []string{
		"x",
		"{'lat': -35.363261, 'lng': 149.16523, 'altr': 10.0, 'alt': 594.02, 'mode': 'GUIDED', 'arm': True}",
		strings.Repeat("abcdefghij", 7),
		strings.Repeat("0123456789", 7) + "!",
	}

	for _, record := range records {
		for _, size := range []int{1, 3, 10, 69, 70, 71, 1000} {
			frames, err := Chunk([]byte(record), size)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(frames), 2)

			assert.Equal(t, FrameStart, frames[0].Kind)
			assert.Equal(t, FrameEnd, frames[len(frames)-1].Kind)

			var buf bytes.Buffer
			for _, f := range frames[1 : len(frames)-1] {
				assert.Equal(t, FrameData, f.Kind)
				assert.LessOrEqual(t, len(f.Payload), size)
				assert.NotEmpty(t, f.Payload)
				buf.Write(f.Payload)
			}
			assert.Equal(t, record, buf.String(), "size %d", size)

			expectedSegments := (len(record) + size - 1) / size
			assert.Len(t, frames, expectedSegments+2)
		}
	}
}

func TestChunk_EmptyRecord(t *testing.T) {
	for _, record := range [][]byte{nil, {}} {
		frames, err := Chunk(record, DefaultMaxSegmentLen)
		require.NoError(t, err)
		assert.Equal(t, []string{StartSentinel, EndSentinel}, payloads(frames))
	}
}

func TestChunk_InvalidSegmentLength(t *testing.T) {
	for _, size := range []int{0, -1} {
		frames, err := Chunk([]byte("data"), size)
		assert.Nil(t, frames)

		var configErr *ConfigError
		assert.True(t, errors.As(err, &configErr))
		assert.ErrorIs(t, err, ErrInvalidSegmentLength)
	}
}

func TestChunk_SegmentsDoNotGrowIntoRecord(t *testing.T) {
	record := []byte("0123456789")
	frames, err := Chunk(record, 4)
	require.NoError(t, err)

	first := frames[1].Payload
	_ = append(first, 'X')
	assert.Equal(t, "0123456789", string(record))
}

func TestFrameKind_String(t *testing.T) {
	assert.Equal(t, "start", FrameStart.String())
	assert.Equal(t, "data", FrameData.String())
	assert.Equal(t, "end", FrameEnd.String())
	assert.Equal(t, "FrameKind(9)", FrameKind(9).String())
}

func TestSentinels(t *testing.T) {
	assert.Equal(t, []byte{'$', 's', 't', '@'}, StartFrame().Payload)
	assert.Equal(t, []byte{'$', 'e', 'd', '@'}, EndFrame().Payload)
}
