package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/telemetry-uplink/internal/link"
	"github.com/roman-kulish/telemetry-uplink/internal/storage"
	"github.com/roman-kulish/telemetry-uplink/internal/telemetry"
)

// Sampler collects one telemetry sample per call
type Sampler interface {
	Sample(ctx context.Context) *telemetry.Sample
}

// Sender transmits frames in order to the peer radio
type Sender interface {
	SendAll(ctx context.Context, frames []link.Frame) link.Stats
}

// CycleResult is the outcome of a single pipeline cycle
type CycleResult struct {
	Timestamp  time.Time
	RecordSize int
	Frames     int
	Sent       int
	Failed     int
	Missing    []string
}

// WithLogger sets the pipeline logger
func WithLogger(logger *slog.Logger) func(*Pipeline) {
	return func(p *Pipeline) {
		p.logger = logger.With(slog.String("component", "pipeline"))
	}
}

// WithArchive stores every cycle in the session of the store
func WithArchive(store storage.Store, sessionID int64) func(*Pipeline) {
	return func(p *Pipeline) {
		p.store = store
		p.sessionID = sessionID
	}
}

// WithConsoleEcho prints every sample in a human-readable form
func WithConsoleEcho(w io.Writer) func(*Pipeline) {
	return func(p *Pipeline) {
		p.echo = w
	}
}

// Pipeline runs the transmission cycle: sample the vehicle, serialize the
// sample into a record, chunk the record into frames and send them. A cycle
// always completes, failures only shrink what gets delivered.
type Pipeline struct {
	sampler       Sampler
	sender        Sender
	maxSegmentLen int

	logger *slog.Logger
	echo   io.Writer

	store     storage.Store
	sessionID int64
}

// NewPipeline creates a new Pipeline with a discard logger
func NewPipeline(sampler Sampler, sender Sender, maxSegmentLen int, options ...func(*Pipeline)) (*Pipeline, error) {
	if maxSegmentLen <= 0 {
		return nil, link.NewConfigError(fmt.Sprintf("pipeline: max segment length %d", maxSegmentLen), link.ErrInvalidSegmentLength)
	}

	p := Pipeline{
		sampler:       sampler,
		sender:        sender,
		maxSegmentLen: maxSegmentLen,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&p)
	}

	return &p, nil
}

// RunCycle runs a single cycle. It is the scheduler job.
func (p *Pipeline) RunCycle(ctx context.Context) CycleResult {
	sample := p.sampler.Sample(ctx)
	record := telemetry.Encode(sample)

	result := CycleResult{
		Timestamp:  sample.Timestamp,
		RecordSize: len(record),
		Missing:    sample.Missing(),
	}

	if p.echo != nil {
		p.printSample(sample)
	}

	frames, err := link.Chunk(record, p.maxSegmentLen)
	if err != nil {
		p.logger.Error(fmt.Sprintf("chunking record: %s", err.Error()))
		return result
	}

	stats := p.sender.SendAll(ctx, frames)

	result.Frames = len(frames)
	result.Sent = stats.Sent
	result.Failed = stats.Failed

	p.logger.Info("cycle completed",
		slog.String("record", humanize.Bytes(uint64(result.RecordSize))),
		slog.Int("frames", result.Frames),
		slog.Int("sent", result.Sent),
		slog.Int("failed", result.Failed),
		slog.Int("missing", len(result.Missing)))

	if p.store != nil {
		p.archive(ctx, sample, result)
	}

	return result
}

// Run adapts RunCycle to the scheduler job signature
func (p *Pipeline) Run(ctx context.Context) {
	p.RunCycle(ctx)
}

func (p *Pipeline) archive(ctx context.Context, sample *telemetry.Sample, result CycleResult) {
	stats := storage.CycleStats{
		RecordSize: result.RecordSize,
		Frames:     result.Frames,
		Sent:       result.Sent,
		Failed:     result.Failed,
	}

	if _, err := p.store.StoreCycle(ctx, p.sessionID, sample, stats); err != nil {
		p.logger.Warn(fmt.Sprintf("storing cycle: %s", err.Error()), slog.Int64("sessionID", p.sessionID))
	}
}

func (p *Pipeline) printSample(s *telemetry.Sample) {
	var sb strings.Builder

	line := func(label string, v any) {
		fmt.Fprintf(&sb, "%s: %v\n", label, v)
	}

	if s.Latitude != nil && s.Longitude != nil {
		line("Location", fmt.Sprintf("%f, %f", *s.Latitude, *s.Longitude))
	}
	if s.AltitudeRelative != nil {
		line("Alt (rel)", *s.AltitudeRelative)
	}
	if s.Altitude != nil {
		line("Alt", *s.Altitude)
	}
	if s.Roll != nil {
		line("Attitude", fmt.Sprintf("roll=%f, pitch=%f, yaw=%f", *s.Roll, *s.Pitch, *s.Yaw))
	}
	if s.Velocity != nil {
		line("Velocity", *s.Velocity)
	}
	if s.GPS != nil {
		line("Sat", s.GPS.Satellites)
		line("Hdop", s.GPS.HDOP)
		line("Fix", s.GPS.FixType)
	}
	if s.Heading != nil {
		line("Head", *s.Heading)
	}
	if s.GroundSpeed != nil {
		line("GS", *s.GroundSpeed)
	}
	if s.AirSpeed != nil {
		line("AS", *s.AirSpeed)
	}
	if s.Mode != nil {
		line("Mode", *s.Mode)
	}
	if s.Armed != nil {
		line("Arm", *s.Armed)
	}
	if s.EKFOk != nil {
		line("EKF", *s.EKFOk)
	}
	if s.SystemStatus != nil {
		line("Status", *s.SystemStatus)
	}
	if s.RangeFinder != nil {
		line("Lidar", *s.RangeFinder)
	}
	if s.BatteryVoltage != nil {
		line("Volt", *s.BatteryVoltage)
	}
	sb.WriteString("\n")

	_, _ = io.WriteString(p.echo, sb.String())
}
