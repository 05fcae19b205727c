package xbee

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/telemetry-uplink/internal/link"
)

func TestEncodeTransmitRequest(t *testing.T) {
	frame, err := EncodeTransmitRequest(0x01, link.Address(0x0013A200400A0127), []byte("TxData0A"))
	require.NoError(t, err)

	expected := []byte{
		0x7E, 0x00, 0x16, 0x10, 0x01,
		0x00, 0x13, 0xA2, 0x00, 0x40, 0x0A, 0x01, 0x27,
		0xFF, 0xFE, 0x00, 0x00,
		0x54, 0x78, 0x44, 0x61, 0x74, 0x61, 0x30, 0x41,
		0x13,
	}
	assert.Equal(t, expected, frame)
}

func TestEncodeTransmitRequest_EmptyPayload(t *testing.T) {
	frame, err := EncodeTransmitRequest(0x05, link.Address(0xFFFF), nil)
	require.NoError(t, err)

	assert.Len(t, frame, transmitOverhead+4)
	assert.Equal(t, []byte{0x00, transmitOverhead}, frame[1:3])
	assert.Equal(t, Checksum(frame[3:len(frame)-1]), frame[len(frame)-1])
}

func TestEncodeTransmitRequest_TooLarge(t *testing.T) {
	_, err := EncodeTransmitRequest(0x01, link.Address(1), make([]byte, MaxFrameData))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestChecksum(t *testing.T) {
	data := []byte{0x10, 0x01, 0x00, 0x13, 0xA2}

	sum := Checksum(data)
	for _, b := range data {
		sum += b
	}
	assert.Equal(t, byte(0xFF), sum, "frame data plus checksum adds up to 0xFF")
}

func TestReadFrame_TransmitStatus(t *testing.T) {
	// leading noise is skipped up to the start delimiter
	stream := []byte{0x00, 0x13, 0x7E, 0x00, 0x07, 0x8B, 0x01, 0xFF, 0xFE, 0x00, 0x00, 0x00, 0x76}

	data, err := ReadFrame(bufio.NewReader(bytes.NewReader(stream)))
	require.NoError(t, err)

	status, err := ParseTransmitStatus(data)
	require.NoError(t, err)
	assert.Equal(t, TransmitStatusFrame{FrameID: 1, Address16: Unknown16BitAddress, Delivery: DeliverySuccess}, status)
	assert.Equal(t, "success", status.Delivery.String())
}

func TestReadFrame_Checksum(t *testing.T) {
	stream := []byte{0x7E, 0x00, 0x07, 0x8B, 0x01, 0xFF, 0xFE, 0x00, 0x00, 0x00, 0x77}

	_, err := ReadFrame(bufio.NewReader(bytes.NewReader(stream)))
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestReadFrame_Truncated(t *testing.T) {
	_, err := ReadFrame(bufio.NewReader(bytes.NewReader([]byte{0x7E, 0x00, 0x07, 0x8B})))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ReadFrame(bufio.NewReader(bytes.NewReader(nil)))
	assert.ErrorIs(t, err, io.EOF)
}

func TestParseTransmitStatus_OtherFrame(t *testing.T) {
	_, err := ParseTransmitStatus([]byte{TransmitRequest, 0x01, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrNotTransmitStatus)

	_, err = ParseTransmitStatus([]byte{TransmitStatus, 0x01})
	assert.ErrorIs(t, err, ErrNotTransmitStatus)
}

func TestDeliveryStatus_String(t *testing.T) {
	assert.Equal(t, "address not found", DeliveryStatus(0x24).String())
	assert.Equal(t, "delivery status 0x42", DeliveryStatus(0x42).String())
}
