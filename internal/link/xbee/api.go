package xbee

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/roman-kulish/telemetry-uplink/internal/link"
)

// XBee API mode 1 frame layout:
//
//	0x7E | length (2, big-endian) | frame data | checksum
//
// Transmit Request (0x10) frame data:
//
//	0x10 | frame ID | dest64 (8) | dest16 (2) | radius | options | RF data
const (
	StartDelimiter   = 0x7E
	TransmitRequest  = 0x10
	TransmitStatus   = 0x8B
	transmitOverhead = 14 // frame type, frame ID, dest64, dest16, radius, options
	statusLength     = 7  // frame type, frame ID, dest16, retries, delivery, discovery

	// DeliverySuccess is the delivery status of an acknowledged transmission
	DeliverySuccess = 0x00

	// Unknown16BitAddress makes the module resolve the 16-bit address from dest64
	Unknown16BitAddress = 0xFFFE

	// MaxFrameData is the largest frame data length the 2-byte length field can carry
	MaxFrameData = 0xFFFF
)

var (
	// ErrPayloadTooLarge is returned when the RF data does not fit into a single transmission
	ErrPayloadTooLarge = errors.New("xbee: payload too large")

	// ErrChecksum is returned when a received frame fails the checksum
	ErrChecksum = errors.New("xbee: invalid frame checksum")

	// ErrNotTransmitStatus is returned when parsing a frame of another type as a transmit status
	ErrNotTransmitStatus = errors.New("xbee: not a transmit status frame")
)

// deliveryStatuses names the common Transmit Status delivery codes
var deliveryStatuses = map[byte]string{
	0x00: "success",
	0x01: "MAC ACK failure",
	0x02: "CCA failure",
	0x15: "invalid destination endpoint",
	0x21: "network ACK failure",
	0x22: "not joined to network",
	0x23: "self-addressed",
	0x24: "address not found",
	0x25: "route not found",
	0x74: "payload too large",
}

// DeliveryStatus is the outcome of a transmission as reported by the module
type DeliveryStatus byte

func (s DeliveryStatus) String() string {
	if name, ok := deliveryStatuses[byte(s)]; ok {
		return name
	}
	return fmt.Sprintf("delivery status 0x%02X", byte(s))
}

// TransmitStatusFrame is the module's report on a Transmit Request
type TransmitStatusFrame struct {
	FrameID   byte
	Address16 uint16
	Retries   byte
	Delivery  DeliveryStatus
	Discovery byte
}

// EncodeTransmitRequest builds a Transmit Request API frame for the 64-bit
// destination address. Frame ID 0 disables the transmit status response.
func EncodeTransmitRequest(frameID byte, dest link.Address, data []byte) ([]byte, error) {
	frameLen := transmitOverhead + len(data)
	if frameLen > MaxFrameData {
		return nil, ErrPayloadTooLarge
	}

	frame := make([]byte, 0, frameLen+4) // Delimiter, length and checksum
	frame = append(frame, StartDelimiter)
	frame = binary.BigEndian.AppendUint16(frame, uint16(frameLen))
	frame = append(frame, TransmitRequest, frameID)
	frame = append(frame, dest.Bytes()...)
	frame = binary.BigEndian.AppendUint16(frame, Unknown16BitAddress)
	frame = append(frame, 0, 0) // Broadcast radius, transmit options
	frame = append(frame, data...)
	frame = append(frame, Checksum(frame[3:]))

	return frame, nil
}

// Checksum returns 0xFF minus the lowest byte of the sum of the frame data
func Checksum(frameData []byte) byte {
	var sum byte
	for _, b := range frameData {
		sum += b
	}
	return 0xFF - sum
}

// ReadFrame reads the next API frame and returns its frame data. Bytes before
// the start delimiter are discarded.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == StartDelimiter {
			break
		}
	}

	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	frame := make([]byte, int(binary.BigEndian.Uint16(header[:]))+1) // Frame data and checksum
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}

	data, checksum := frame[:len(frame)-1], frame[len(frame)-1]
	if Checksum(data) != checksum {
		return nil, ErrChecksum
	}
	return data, nil
}

// ParseTransmitStatus decodes the frame data of a Transmit Status (0x8B) frame
func ParseTransmitStatus(frameData []byte) (TransmitStatusFrame, error) {
	if len(frameData) < statusLength || frameData[0] != TransmitStatus {
		return TransmitStatusFrame{}, ErrNotTransmitStatus
	}

	return TransmitStatusFrame{
		FrameID:   frameData[1],
		Address16: binary.BigEndian.Uint16(frameData[2:4]),
		Retries:   frameData[4],
		Delivery:  DeliveryStatus(frameData[5]),
		Discovery: frameData[6],
	}, nil
}
