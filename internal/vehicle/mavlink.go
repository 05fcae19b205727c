package vehicle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

const (
	// StaleAfter is the default age after which a reported value is considered stale
	StaleAfter = 5 * time.Second

	// StreamRate is the default rate in Hz requested for all vehicle data streams
	StreamRate = 4

	gcsSystemID    = 255
	serialBaudRate = 115_200

	mavModeFlagSafetyArmed = 128

	mavTypeGCS          = 6
	mavAutopilotInvalid = 8
	ekfPosHorizAbs      = 16
	ekfConstPosMode     = 128
	ekfPredPosHorizAbs  = 512
)

// copterModes maps ArduCopter custom modes to their names
var copterModes = map[uint32]string{
	0:  "STABILIZE",
	1:  "ACRO",
	2:  "ALT_HOLD",
	3:  "AUTO",
	4:  "GUIDED",
	5:  "LOITER",
	6:  "RTL",
	7:  "CIRCLE",
	9:  "LAND",
	11: "DRIFT",
	13: "SPORT",
	14: "FLIP",
	15: "AUTOTUNE",
	16: "POSHOLD",
	17: "BRAKE",
	18: "THROW",
	19: "AVOID_ADSB",
	20: "GUIDED_NOGPS",
	21: "SMART_RTL",
	22: "FLOWHOLD",
	23: "FOLLOW",
	24: "ZIGZAG",
	25: "SYSTEMID",
	26: "AUTOROTATE",
	27: "AUTO_RTL",
}

// systemStates are MAV_STATE names indexed by value
var systemStates = []string{
	"UNINIT",
	"BOOT",
	"CALIBRATING",
	"STANDBY",
	"ACTIVE",
	"CRITICAL",
	"EMERGENCY",
	"POWEROFF",
	"FLIGHT_TERMINATION",
}

type observation[T any] struct {
	value T
	at    time.Time
	valid bool
}

func (o *observation[T]) set(v T, at time.Time) {
	o.value = v
	o.at = at
	o.valid = true
}

type heartbeat struct {
	mode   string
	armed  bool
	status string
}

type position struct {
	relative Location
	global   Location
	velocity [3]float64
}

type hud struct {
	heading     int
	groundSpeed float64
	airSpeed    float64
}

// WithMAVLinkLogger sets the logger for the MAVLink vehicle
func WithMAVLinkLogger(logger *slog.Logger) func(m *MAVLink) {
	return func(m *MAVLink) {
		m.logger = logger.With(slog.String("component", "mavlink"))
	}
}

// WithStaleAfter sets the age after which a reported value is considered stale.
// Zero disables the check.
func WithStaleAfter(d time.Duration) func(m *MAVLink) {
	return func(m *MAVLink) {
		m.staleAfter = d
	}
}

// WithStreamRate sets the data stream rate in Hz requested from the vehicle.
// Zero leaves the vehicle stream configuration untouched.
func WithStreamRate(rate uint16) func(m *MAVLink) {
	return func(m *MAVLink) {
		m.streamRate = rate
	}
}

// MAVLink is a vehicle State backed by a MAVLink connection. It keeps the latest
// value of every message of interest and answers accessors from that cache.
type MAVLink struct {
	node       *gomavlib.Node
	write      func(msg message.Message) error
	staleAfter time.Duration
	streamRate uint16
	now        func() time.Time
	logger     *slog.Logger

	mu          sync.RWMutex
	targets     map[byte]struct{}
	heartbeat   observation[heartbeat]
	position    observation[position]
	attitude    observation[Attitude]
	hud         observation[hud]
	battery     observation[float64]
	gps         observation[GPSInfo]
	ekfFlags    observation[uint32]
	rangeFinder observation[float64]

	ready     chan struct{}
	readyOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMAVLink connects to the vehicle at the given target, see ParseEndpoint
// for the accepted formats
func NewMAVLink(target string, options ...func(m *MAVLink)) (*MAVLink, error) {
	endpoint, err := ParseEndpoint(target)
	if err != nil {
		return nil, err
	}

	m := MAVLink{
		staleAfter: StaleAfter,
		streamRate: StreamRate,
		now:        time.Now,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		targets:    make(map[byte]struct{}),
		ready:      make(chan struct{}),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}

	for _, option := range options {
		option(&m)
	}

	m.node, err = gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:   []gomavlib.EndpointConf{endpoint},
		Dialect:     ardupilotmega.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: gcsSystemID,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MAVLink node for %s: %w", target, err)
	}
	m.write = m.node.WriteMessageAll

	go m.run()

	return &m, nil
}

// ParseEndpoint parses a connection target string. Accepted formats:
//
//	udp:host:port      listen for UDP packets (same as udpin)
//	udpout:host:port   send UDP packets to host:port
//	tcp:host:port      connect to a TCP server
//	tcpin:host:port    accept TCP connections
//	serial:device:baud serial port, baud is optional
//	/dev/ttyUSB0,57600 serial port, device,baud shorthand
func ParseEndpoint(target string) (gomavlib.EndpointConf, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("vehicle: empty connection target")
	}

	if strings.HasPrefix(target, "/") {
		device, baud, err := splitSerial(target, ",")
		if err != nil {
			return nil, err
		}
		return gomavlib.EndpointSerial{Device: device, Baud: baud}, nil
	}

	scheme, address, ok := strings.Cut(target, ":")
	if !ok || address == "" {
		return nil, fmt.Errorf("vehicle: invalid connection target '%s'", target)
	}

	switch scheme {
	case "udp", "udpin":
		return gomavlib.EndpointUDPServer{Address: address}, nil

	case "udpout":
		return gomavlib.EndpointUDPClient{Address: address}, nil

	case "tcp":
		return gomavlib.EndpointTCPClient{Address: address}, nil

	case "tcpin":
		return gomavlib.EndpointTCPServer{Address: address}, nil

	case "serial":
		device, baud, err := splitSerial(address, ":")
		if err != nil {
			return nil, err
		}
		return gomavlib.EndpointSerial{Device: device, Baud: baud}, nil

	default:
		return nil, fmt.Errorf("vehicle: unknown connection scheme '%s'", scheme)
	}
}

func splitSerial(s, sep string) (string, int, error) {
	device, rate, ok := strings.Cut(s, sep)
	if !ok {
		return device, serialBaudRate, nil
	}

	baud, err := strconv.Atoi(rate)
	if err != nil || baud <= 0 {
		return "", 0, fmt.Errorf("vehicle: invalid baud rate '%s'", rate)
	}
	return device, baud, nil
}

func (m *MAVLink) run() {
	defer close(m.done)

	events := m.node.Events()
	for {
		select {
		case <-m.closing:
			return

		case evt, ok := <-events:
			if !ok {
				return
			}

			switch e := evt.(type) {
			case *gomavlib.EventChannelOpen:
				m.logger.Info("channel open", slog.Any("channel", e.Channel))

			case *gomavlib.EventChannelClose:
				m.logger.Warn("channel closed", slog.Any("channel", e.Channel))

			case *gomavlib.EventFrame:
				m.handle(e.SystemID(), e.ComponentID(), e.Message())
			}
		}
	}
}

func (m *MAVLink) handle(systemID, componentID byte, msg message.Message) {
	at := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	switch msg := msg.(type) {
	case *ardupilotmega.MessageHeartbeat:
		if int(msg.Type) == mavTypeGCS || int(msg.Autopilot) == mavAutopilotInvalid {
			return // other ground stations
		}

		m.heartbeat.set(heartbeat{
			mode:   modeName(msg.CustomMode),
			armed:  msg.BaseMode&mavModeFlagSafetyArmed != 0,
			status: statusName(int(msg.SystemStatus)),
		}, at)

		m.readyOnce.Do(func() { close(m.ready) })

		if _, ok := m.targets[systemID]; !ok && m.streamRate > 0 {
			m.targets[systemID] = struct{}{}
			go m.requestStreams(systemID, componentID)
		}

	case *ardupilotmega.MessageGlobalPositionInt:
		lat := float64(msg.Lat) / 1e7
		lon := float64(msg.Lon) / 1e7

		m.position.set(position{
			relative: Location{Latitude: lat, Longitude: lon, Altitude: float64(msg.RelativeAlt) / 1000},
			global:   Location{Latitude: lat, Longitude: lon, Altitude: float64(msg.Alt) / 1000},
			velocity: [3]float64{float64(msg.Vx) / 100, float64(msg.Vy) / 100, float64(msg.Vz) / 100},
		}, at)

	case *ardupilotmega.MessageAttitude:
		m.attitude.set(Attitude{
			Roll:  float64(msg.Roll),
			Pitch: float64(msg.Pitch),
			Yaw:   float64(msg.Yaw),
		}, at)

	case *ardupilotmega.MessageVfrHud:
		m.hud.set(hud{
			heading:     int(msg.Heading),
			groundSpeed: float64(msg.Groundspeed),
			airSpeed:    float64(msg.Airspeed),
		}, at)

	case *ardupilotmega.MessageSysStatus:
		m.battery.set(float64(msg.VoltageBattery)/1000, at)

	case *ardupilotmega.MessageGpsRawInt:
		m.gps.set(GPSInfo{
			Satellites: int(msg.SatellitesVisible),
			HDOP:       int(msg.Eph),
			FixType:    int(msg.FixType),
		}, at)

	case *ardupilotmega.MessageEkfStatusReport:
		m.ekfFlags.set(uint32(msg.Flags), at)

	case *ardupilotmega.MessageRangefinder:
		m.rangeFinder.set(float64(msg.Distance), at)

	case *ardupilotmega.MessageDistanceSensor:
		m.rangeFinder.set(float64(msg.CurrentDistance)/100, at)
	}
}

func (m *MAVLink) requestStreams(systemID, componentID byte) {
	m.logger.Info("requesting data streams",
		slog.Int("system", int(systemID)),
		slog.Int("rate", int(m.streamRate)))

	err := m.write(&ardupilotmega.MessageRequestDataStream{
		TargetSystem:    systemID,
		TargetComponent: componentID,
		ReqStreamId:     0, // MAV_DATA_STREAM_ALL
		ReqMessageRate:  m.streamRate,
		StartStop:       1,
	})
	if err != nil {
		m.logger.Warn("data stream request not sent",
			slog.Int("system", int(systemID)),
			slog.String("error", err.Error()))
	}
}

// WaitReady blocks until the first heartbeat of a vehicle arrives
func (m *MAVLink) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-m.closing:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("waiting for the first heartbeat: %w", ctx.Err())
	}
}

func modeName(customMode uint32) string {
	if name, ok := copterModes[customMode]; ok {
		return name
	}
	return fmt.Sprintf("MODE(%d)", customMode)
}

func statusName(state int) string {
	if state >= 0 && state < len(systemStates) {
		return systemStates[state]
	}
	return fmt.Sprintf("STATE(%d)", state)
}

// latest returns the observed value unless it is missing or stale. Callers must hold the read lock.
func latest[T any](m *MAVLink, o *observation[T]) (T, error) {
	if !o.valid {
		var zero T
		return zero, ErrUnavailable
	}
	if m.staleAfter > 0 && m.now().Sub(o.at) > m.staleAfter {
		var zero T
		return zero, fmt.Errorf("%w: last update %s ago", ErrStale, m.now().Sub(o.at).Round(time.Millisecond))
	}
	return o.value, nil
}

func (m *MAVLink) GlobalRelativeFrame(context.Context) (Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := latest(m, &m.position)
	return p.relative, err
}

func (m *MAVLink) GlobalFrame(context.Context) (Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := latest(m, &m.position)
	return p.global, err
}

func (m *MAVLink) Attitude(context.Context) (Attitude, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return latest(m, &m.attitude)
}

func (m *MAVLink) Velocity(context.Context) ([3]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := latest(m, &m.position)
	return p.velocity, err
}

func (m *MAVLink) Heading(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, err := latest(m, &m.hud)
	return h.heading, err
}

func (m *MAVLink) GroundSpeed(context.Context) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, err := latest(m, &m.hud)
	return h.groundSpeed, err
}

func (m *MAVLink) AirSpeed(context.Context) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, err := latest(m, &m.hud)
	return h.airSpeed, err
}

func (m *MAVLink) Mode(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hb, err := latest(m, &m.heartbeat)
	return hb.mode, err
}

func (m *MAVLink) Armed(context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hb, err := latest(m, &m.heartbeat)
	return hb.armed, err
}

// EKFOk reports the EKF health the same way ground stations do: an armed vehicle
// needs an absolute horizontal position outside of constant position mode, a
// disarmed one an absolute or predicted horizontal position.
func (m *MAVLink) EKFOk(context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flags, err := latest(m, &m.ekfFlags)
	if err != nil {
		return false, err
	}
	hb, err := latest(m, &m.heartbeat)
	if err != nil {
		return false, err
	}

	if hb.armed {
		return flags&ekfPosHorizAbs != 0 && flags&ekfConstPosMode == 0, nil
	}
	return flags&(ekfPosHorizAbs|ekfPredPosHorizAbs) != 0, nil
}

func (m *MAVLink) SystemStatus(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hb, err := latest(m, &m.heartbeat)
	return hb.status, err
}

func (m *MAVLink) GPS(context.Context) (GPSInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return latest(m, &m.gps)
}

func (m *MAVLink) BatteryVoltage(context.Context) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return latest(m, &m.battery)
}

func (m *MAVLink) RangeFinder(context.Context) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return latest(m, &m.rangeFinder)
}

// Close closes the MAVLink connection. It is safe to call Close multiple times.
func (m *MAVLink) Close() error {
	m.closeOnce.Do(func() {
		m.node.Close()
		close(m.closing)
		<-m.done
	})
	return nil
}
