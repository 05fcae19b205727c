package link

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Stats counts the outcome of sending a sequence of frames
type Stats struct {
	Sent   int
	Failed int
}

// WithLogger sets the logger receiving transmission failures
func WithLogger(logger *slog.Logger) func(t *Transmitter) {
	return func(t *Transmitter) {
		t.logger = logger.With(slog.String("component", "transmitter"))
	}
}

// WithSendTimeout bounds every single frame send. Zero means no timeout.
func WithSendTimeout(timeout time.Duration) func(t *Transmitter) {
	return func(t *Transmitter) {
		t.sendTimeout = timeout
	}
}

// Transmitter sends frames to a single fixed peer. It never buffers, reorders
// or retries frames.
type Transmitter struct {
	radio       Radio
	peer        Address
	sendTimeout time.Duration
	logger      *slog.Logger
}

// NewTransmitter creates a new Transmitter with a discard logger
func NewTransmitter(radio Radio, peer Address, options ...func(t *Transmitter)) *Transmitter {
	t := Transmitter{
		radio:  radio,
		peer:   peer,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&t)
	}

	return &t
}

// Peer returns the address of the remote radio
func (t *Transmitter) Peer() Address {
	return t.peer
}

// Send transmits one frame. A failure is logged and returned, it is up to the
// caller to carry on.
func (t *Transmitter) Send(ctx context.Context, frame Frame) error {
	if t.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.sendTimeout)
		defer cancel()
	}

	if err := t.radio.SendFrame(ctx, t.peer, frame.Payload); err != nil {
		t.logger.Warn(fmt.Sprintf("%s not sent", frame.Kind),
			slog.String("context", "link"),
			slog.String("peer", t.peer.String()),
			slog.Int("size", len(frame.Payload)),
			slog.String("error", err.Error()))

		return fmt.Errorf("sending %s frame: %w", frame.Kind, err)
	}

	return nil
}

// SendAll transmits the frames in order. A failed frame does not stop the
// frames after it.
func (t *Transmitter) SendAll(ctx context.Context, frames []Frame) Stats {
	var stats Stats
	for _, frame := range frames {
		if err := t.Send(ctx, frame); err != nil {
			stats.Failed++
			continue
		}
		stats.Sent++
	}
	return stats
}
