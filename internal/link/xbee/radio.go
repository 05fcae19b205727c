package xbee

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/roman-kulish/telemetry-uplink/internal/link"
)

const (
	DefaultPort          = "/dev/ttyUSB0"
	DefaultBaudRate      = 9600
	DefaultMaxPayload    = 256
	DefaultStatusTimeout = 250 * time.Millisecond
)

var (
	// ErrNotOpen is returned when sending over a radio that is not open
	ErrNotOpen = errors.New("xbee: radio is not open")

	// ErrAlreadyOpen is returned by Open when the radio is already open
	ErrAlreadyOpen = errors.New("xbee: radio is already open")

	// ErrNotDelivered is returned when the module reports a failed delivery
	ErrNotDelivered = errors.New("xbee: frame not delivered")

	// ErrNoStatus is returned when the module does not report on a transmission in time
	ErrNoStatus = errors.New("xbee: no transmit status")
)

// Config is the serial configuration of a local XBee module in API mode 1
type Config struct {
	Port          string        // Serial device, e.g. /dev/ttyUSB0
	BaudRate      int           // Serial baud rate (default: 9600)
	MaxPayload    int           // Largest RF payload the module accepts (default: 256)
	StatusTimeout time.Duration // How long to wait for the transmit status, 0 does not wait
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("xbee.Config: port is required")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("xbee.Config: baud rate must be positive: %d", c.BaudRate)
	}
	if c.MaxPayload <= 0 || c.MaxPayload > MaxFrameData-transmitOverhead {
		return fmt.Errorf("xbee.Config: max payload must be between 1 and %d: %d given", MaxFrameData-transmitOverhead, c.MaxPayload)
	}
	if c.StatusTimeout < 0 {
		return fmt.Errorf("xbee.Config: status timeout must not be negative: %s", c.StatusTimeout)
	}
	return nil
}

// Opener opens the serial port of the module
type Opener func(c *Config) (io.ReadWriteCloser, error)

// OpenSerial opens the configured serial port, 8N1
func OpenSerial(c *Config) (io.ReadWriteCloser, error) {
	port, err := serial.Open(c.Port, &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// WithOpener replaces the function opening the serial port
func WithOpener(open Opener) func(r *Radio) {
	return func(r *Radio) {
		r.open = open
	}
}

// WithLogger sets the logger for the radio
func WithLogger(logger *slog.Logger) func(r *Radio) {
	return func(r *Radio) {
		r.logger = logger.With(slog.String("component", "xbee"))
	}
}

// Radio is a local XBee module sending Transmit Request frames to remote modules
type Radio struct {
	config *Config
	open   Opener
	logger *slog.Logger

	mu       sync.Mutex
	port     io.ReadWriteCloser
	frameID  byte
	pending  map[byte]chan DeliveryStatus
	readDone chan struct{}

	// writing is held for the duration of a port write, which may outlive
	// the SendFrame call that started it
	writing chan struct{}
}

// New creates a new XBee radio, the serial port is not opened until Open is called
func New(config *Config, options ...func(r *Radio)) (*Radio, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := Radio{
		config:  config,
		open:    OpenSerial,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		pending: make(map[byte]chan DeliveryStatus),
		writing: make(chan struct{}, 1),
	}

	for _, option := range options {
		option(&r)
	}

	return &r, nil
}

// Open opens the serial port. The module's responses are read in the
// background when the radio waits for transmit status.
func (r *Radio) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.port != nil {
		return ErrAlreadyOpen
	}

	port, err := r.open(r.config)
	if err != nil {
		return fmt.Errorf("xbee: opening %s at %d baud: %w", r.config.Port, r.config.BaudRate, err)
	}

	r.port = port
	if r.config.StatusTimeout > 0 {
		r.readDone = make(chan struct{})
		go r.readFrames(port, r.readDone)
	}
	return nil
}

func (r *Radio) Close() error {
	r.mu.Lock()
	port, readDone := r.port, r.readDone
	r.port, r.readDone = nil, nil
	r.mu.Unlock()

	if port == nil {
		return nil
	}

	err := port.Close()
	if readDone != nil {
		<-readDone
	}
	if err != nil {
		return fmt.Errorf("xbee: closing %s: %w", r.config.Port, err)
	}
	return nil
}

// SendFrame writes a single Transmit Request frame to the module. When a status
// timeout is configured, it also waits for the module's Transmit Status and
// fails unless the frame was delivered. The context bounds both the write and
// the wait.
func (r *Radio) SendFrame(ctx context.Context, peer link.Address, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(payload) > r.config.MaxPayload {
		return fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(payload), r.config.MaxPayload)
	}

	r.mu.Lock()
	port := r.port
	if port == nil {
		r.mu.Unlock()
		return ErrNotOpen
	}

	frameID := r.nextFrameID()

	var status chan DeliveryStatus
	if r.readDone != nil {
		status = make(chan DeliveryStatus, 1)
		r.pending[frameID] = status
	}
	r.mu.Unlock()

	if status != nil {
		defer r.forget(frameID, status)
	}

	frame, err := EncodeTransmitRequest(frameID, peer, payload)
	if err != nil {
		return err
	}

	if err = r.write(ctx, port, frame); err != nil {
		return err
	}

	if status == nil {
		return nil
	}
	return r.awaitStatus(ctx, frameID, status)
}

// write writes the frame unless ctx ends first. An abandoned write keeps the
// port busy until it returns, so frames never interleave.
func (r *Radio) write(ctx context.Context, port io.Writer, frame []byte) error {
	select {
	case r.writing <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("xbee: serial port busy: %w", ctx.Err())
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-r.writing }()

		_, err := port.Write(frame)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("xbee: writing frame: %w", err)
		}
		return nil

	case <-ctx.Done():
		return fmt.Errorf("xbee: writing frame: %w", ctx.Err())
	}
}

func (r *Radio) awaitStatus(ctx context.Context, frameID byte, status <-chan DeliveryStatus) error {
	timer := time.NewTimer(r.config.StatusTimeout)
	defer timer.Stop()

	select {
	case delivery := <-status:
		if delivery != DeliverySuccess {
			return fmt.Errorf("%w: frame %d: %s", ErrNotDelivered, frameID, delivery)
		}
		return nil

	case <-timer.C:
		return fmt.Errorf("%w for frame %d after %s", ErrNoStatus, frameID, r.config.StatusTimeout)

	case <-ctx.Done():
		return fmt.Errorf("xbee: waiting for transmit status of frame %d: %w", frameID, ctx.Err())
	}
}

func (r *Radio) forget(frameID byte, status chan DeliveryStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending[frameID] == status {
		delete(r.pending, frameID)
	}
}

// readFrames dispatches Transmit Status frames to the senders waiting for them
// until the port is closed
func (r *Radio) readFrames(port io.Reader, done chan struct{}) {
	defer close(done)

	reader := bufio.NewReader(port)
	for {
		data, err := ReadFrame(reader)
		if errors.Is(err, ErrChecksum) {
			r.logger.Debug("discarding corrupted frame")
			continue
		}
		if err != nil {
			r.logger.Debug("stopped reading from the module", slog.String("error", err.Error()))
			return
		}

		status, err := ParseTransmitStatus(data)
		if err != nil {
			continue // other frame types are of no interest
		}

		r.mu.Lock()
		waiting, ok := r.pending[status.FrameID]
		if ok {
			delete(r.pending, status.FrameID)
		}
		r.mu.Unlock()

		if ok {
			waiting <- status.Delivery // buffered, never blocks
		}
	}
}

// nextFrameID cycles through 1..255, 0 would disable the transmit status.
// Callers must hold the lock.
func (r *Radio) nextFrameID() byte {
	r.frameID++
	if r.frameID == 0 {
		r.frameID = 1
	}
	return r.frameID
}
