package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/telemetry-uplink/internal/vehicle"
)

// WithLogger sets the logger receiving collection failures
func WithLogger(logger *slog.Logger) func(s *Sampler) {
	return func(s *Sampler) {
		s.logger = logger.With(slog.String("component", "sampler"))
	}
}

// WithReadTimeout bounds every single attribute read. A read that does not
// complete in time counts as a failure of that attribute only. Zero means
// no timeout.
func WithReadTimeout(timeout time.Duration) func(s *Sampler) {
	return func(s *Sampler) {
		s.readTimeout = timeout
	}
}

// WithClock sets the time source for sample timestamps
func WithClock(now func() time.Time) func(s *Sampler) {
	return func(s *Sampler) {
		s.now = now
	}
}

// Sampler collects the telemetry attributes from the vehicle, isolating the
// failure of every attribute from the others
type Sampler struct {
	source      vehicle.State
	readTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// NewSampler creates a new Sampler with a discard logger
func NewSampler(source vehicle.State, options ...func(s *Sampler)) *Sampler {
	s := Sampler{
		source: source,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Sample reads all attributes from the vehicle. It never fails: an attribute
// that cannot be read is left nil and a warning is logged.
func (s *Sampler) Sample(ctx context.Context) *Sample {
	sample := Sample{Timestamp: s.now()}

	if loc, ok := read(ctx, s, AttrLocation, s.source.GlobalRelativeFrame); ok {
		sample.Latitude = &loc.Latitude
		sample.Longitude = &loc.Longitude
		sample.AltitudeRelative = &loc.Altitude
	}
	if loc, ok := read(ctx, s, AttrLocation, s.source.GlobalFrame); ok {
		sample.Altitude = &loc.Altitude
	}
	if att, ok := read(ctx, s, AttrAttitude, s.source.Attitude); ok {
		sample.Roll = &att.Roll
		sample.Pitch = &att.Pitch
		sample.Yaw = &att.Yaw
	}
	if v, ok := read(ctx, s, AttrVelocity, s.source.Velocity); ok {
		sample.Velocity = &v
	}
	if v, ok := read(ctx, s, AttrHeading, s.source.Heading); ok {
		sample.Heading = &v
	}
	if v, ok := read(ctx, s, AttrGroundSpeed, s.source.GroundSpeed); ok {
		sample.GroundSpeed = &v
	}
	if v, ok := read(ctx, s, AttrAirSpeed, s.source.AirSpeed); ok {
		sample.AirSpeed = &v
	}
	if v, ok := read(ctx, s, AttrMode, s.source.Mode); ok {
		sample.Mode = &v
	}
	if v, ok := read(ctx, s, AttrArmed, s.source.Armed); ok {
		sample.Armed = &v
	}
	if v, ok := read(ctx, s, AttrEKF, s.source.EKFOk); ok {
		sample.EKFOk = &v
	}
	if v, ok := read(ctx, s, AttrStatus, s.source.SystemStatus); ok {
		sample.SystemStatus = &v
	}
	if v, ok := read(ctx, s, AttrGPS, s.source.GPS); ok {
		sample.GPS = &v
	}
	if v, ok := read(ctx, s, AttrBattery, s.source.BatteryVoltage); ok {
		sample.BatteryVoltage = &v
	}
	if v, ok := read(ctx, s, AttrRangeFinder, s.source.RangeFinder); ok {
		sample.RangeFinder = &v
	}

	return &sample
}

type result[T any] struct {
	value T
	err   error
}

// read calls a single accessor and reports whether it succeeded
func read[T any](ctx context.Context, s *Sampler, attribute string, accessor func(context.Context) (T, error)) (T, bool) {
	value, err := call(ctx, s.readTimeout, accessor)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("%s not found", attribute),
			slog.String("context", attribute),
			slog.String("error", err.Error()))

		var zero T
		return zero, false
	}

	return value, true
}

// call runs the accessor, giving up after timeout if it is positive. An
// abandoned accessor keeps running in the background until it returns.
func call[T any](ctx context.Context, timeout time.Duration, accessor func(context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("accessor panic: %v", r)
		}
	}()

	if timeout <= 0 {
		return accessor(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: fmt.Errorf("accessor panic: %v", r)}
			}
		}()

		v, err := accessor(ctx)
		done <- result[T]{v, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return value, fmt.Errorf("read timed out after %s: %w", timeout, ctx.Err())
	}
}
