package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/telemetry-uplink/internal/link"
	"github.com/roman-kulish/telemetry-uplink/internal/link/mqtt"
	"github.com/roman-kulish/telemetry-uplink/internal/link/xbee"
	"github.com/roman-kulish/telemetry-uplink/internal/scheduler"
	"github.com/roman-kulish/telemetry-uplink/internal/storage"
	"github.com/roman-kulish/telemetry-uplink/internal/telemetry"
	"github.com/roman-kulish/telemetry-uplink/internal/vehicle"
)

const (
	storageDir = "data"
)

// Vehicle is a vehicle state source holding a connection
type Vehicle interface {
	vehicle.State
	io.Closer
}

type dependencies struct {
	newVehicle func(config *VehicleConfig, logger *slog.Logger) (Vehicle, error)
	newRadio   func(config *LinkConfig, logger *slog.Logger) (link.Radio, error)
	stdout     io.Writer
	now        func() time.Time
}

func defaultDependencies() *dependencies {
	return &dependencies{
		newVehicle: createVehicle,
		newRadio:   createRadio,
		stdout:     os.Stdout,
		now:        time.Now,
	}
}

// Run wires the uplink together and transmits until ctx is cancelled. The
// components are shut down in reverse order: scheduler, radio, archive and
// the vehicle connection last.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	return run(ctx, config, logger, defaultDependencies())
}

func run(ctx context.Context, config *Config, logger *slog.Logger, deps *dependencies) error {
	if err := config.Validate(); err != nil {
		return err
	}

	peer, err := config.Link.PeerAddress()
	if err != nil {
		return err
	}

	source, err := deps.newVehicle(&config.Vehicle, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to vehicle: %w", err)
	}
	defer closeAndLog(source, "vehicle", logger)

	waitForVehicle(ctx, source, config.Vehicle.WaitReady.Duration(), logger)

	var store storage.Store
	if config.Storage.Enabled {
		s, err := createStorage(&config.Storage, deps.now())
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer closeAndLog(s, "storage", logger)

		logger.Info("archiving cycles", slog.String("path", s.Path()))
		store = s
	}

	radio, err := deps.newRadio(&config.Link, logger)
	if err != nil {
		return fmt.Errorf("failed to create radio: %w", err)
	}
	if err = radio.Open(); err != nil {
		return fmt.Errorf("failed to open radio: %w", err)
	}
	defer closeAndLog(radio, "radio", logger)

	transmitter := link.NewTransmitter(radio, peer,
		link.WithLogger(logger),
		link.WithSendTimeout(config.Link.SendTimeout.Duration()))

	sampler := telemetry.NewSampler(source,
		telemetry.WithLogger(logger),
		telemetry.WithReadTimeout(config.Vehicle.ReadTimeout.Duration()))

	options := []func(*Pipeline){WithLogger(logger)}
	if config.Settings.Echo {
		options = append(options, WithConsoleEcho(deps.stdout))
	}
	if store != nil {
		sessionID, err := store.CreateSession(ctx, string(config.Link.Type), peer.String(), config)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		options = append(options, WithArchive(store, sessionID))
	}

	pipeline, err := NewPipeline(sampler, transmitter, config.Link.MaxSegmentLen, options...)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(config.Schedule.Interval.Duration(), pipeline.Run,
		scheduler.WithLogger(logger),
		scheduler.WithImmediateStart(config.Schedule.Immediate))
	if err != nil {
		return err
	}

	logger.Info("uplink started",
		slog.String("link", string(config.Link.Type)),
		slog.String("peer", peer.String()),
		slog.Int("maxSegmentLen", config.Link.MaxSegmentLen))

	started := deps.now()
	if err = sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	sched.Stop()

	logger.Info("uplink stopped",
		slog.Duration("uptime", deps.now().Sub(started).Round(time.Second)),
		slog.String("cycles", humanize.Comma(int64(sched.Executed()))),
		slog.String("skipped", humanize.Comma(int64(sched.Skipped()))))

	return nil
}

func createVehicle(config *VehicleConfig, logger *slog.Logger) (Vehicle, error) {
	if config.Connect == "" {
		logger.Info("no connection target given, running the simulator",
			slog.Float64("failureRate", config.Simulator.FailureRate))

		return vehicle.NewSimulator(
			vehicle.WithFailureRate(config.Simulator.FailureRate),
			vehicle.WithSeed(config.Simulator.Seed)), nil
	}

	logger.Info("connecting to vehicle", slog.String("target", config.Connect))

	m, err := vehicle.NewMAVLink(config.Connect,
		vehicle.WithMAVLinkLogger(logger),
		vehicle.WithStaleAfter(config.StaleAfter.Duration()),
		vehicle.WithStreamRate(uint16(config.StreamRate)))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// waitForVehicle gives the vehicle up to timeout to report in, so that the
// first records are not empty. Transmission starts regardless.
func waitForVehicle(ctx context.Context, source vehicle.State, timeout time.Duration, logger *slog.Logger) {
	readier, ok := source.(vehicle.Readier)
	if !ok || timeout <= 0 {
		return
	}

	logger.Info("waiting for vehicle", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := readier.WaitReady(ctx); err != nil {
		logger.Warn("vehicle not ready, transmitting partial telemetry",
			slog.String("context", "vehicle"),
			slog.String("error", err.Error()))
		return
	}
	logger.Info("vehicle ready", slog.Duration("after", time.Since(start).Round(time.Millisecond)))
}

func createRadio(config *LinkConfig, logger *slog.Logger) (link.Radio, error) {
	switch config.Type {
	case LinkXBee:
		radio, err := xbee.New(config.XBee(), xbee.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("creating XBee radio: %w", err)
		}
		return radio, nil

	case LinkMQTT:
		radio, err := mqtt.New(&config.MQTT)
		if err != nil {
			return nil, fmt.Errorf("creating MQTT radio: %w", err)
		}
		return radio, nil

	default:
		return nil, fmt.Errorf("creating radio: unknown type '%s'", config.Type)
	}
}

func createStorage(config *StorageConfig, now time.Time) (*storage.SqliteStore, error) {
	dir := config.DataDirectory
	if dir == "" {
		dir = storageDir
	}

	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory '%s': %w", dir, err)
	}

	return storage.NewSqliteStore(storage.SessionFilePath(dir, now)), nil
}

func closeAndLog(c io.Closer, name string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn(fmt.Sprintf("closing %s: %s", name, err.Error()))
	}
}
