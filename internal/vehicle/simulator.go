package vehicle

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	// Default home location of the ArduPilot SITL (CMAC, Canberra)
	homeLatitude  = -35.363261
	homeLongitude = 149.165230
	homeAltitude  = 584.0

	loiterRadius   = 20.0 // meters
	loiterAltitude = 10.0 // meters above home
	loiterPeriod   = 60 * time.Second

	metersPerDegree = 111_320.0

	batteryFull  = 12.6 // volts
	batteryDrain = 0.001
)

// WithFailureRate sets the probability in range [0, 1] of every accessor call to fail
func WithFailureRate(rate float64) func(s *Simulator) {
	return func(s *Simulator) {
		s.failureRate = rate
	}
}

// WithSeed sets the seed of the fault injection random source
func WithSeed(seed int64) func(s *Simulator) {
	return func(s *Simulator) {
		s.rnd = rand.New(rand.NewSource(seed))
	}
}

// WithClock sets the time source of the simulation
func WithClock(now func() time.Time) func(s *Simulator) {
	return func(s *Simulator) {
		s.now = now
	}
}

// Simulator is a simulated vehicle loitering in circles above its home position.
// It is used when no connection target is given and, with a failure rate set,
// to exercise partial telemetry.
type Simulator struct {
	start       time.Time
	now         func() time.Time
	failureRate float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulator creates a new simulated vehicle
func NewSimulator(options ...func(s *Simulator)) *Simulator {
	s := Simulator{
		now: time.Now,
		rnd: rand.New(rand.NewSource(1)),
	}

	for _, option := range options {
		option(&s)
	}

	s.start = s.now()
	return &s
}

// fault returns an error for the accessor with the configured probability
func (s *Simulator) fault(accessor string) error {
	if s.failureRate <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rnd.Float64() < s.failureRate {
		return fmt.Errorf("simulator: %s: %w", accessor, ErrUnavailable)
	}
	return nil
}

// phase returns the loiter angle in radians
func (s *Simulator) phase() float64 {
	elapsed := s.now().Sub(s.start)
	return 2 * math.Pi * float64(elapsed%loiterPeriod) / float64(loiterPeriod)
}

func (s *Simulator) location(altitude float64) Location {
	phase := s.phase()
	north := loiterRadius * math.Cos(phase)
	east := loiterRadius * math.Sin(phase)

	return Location{
		Latitude:  homeLatitude + north/metersPerDegree,
		Longitude: homeLongitude + east/(metersPerDegree*math.Cos(homeLatitude*math.Pi/180)),
		Altitude:  altitude,
	}
}

func (s *Simulator) speed() float64 {
	return 2 * math.Pi * loiterRadius / loiterPeriod.Seconds()
}

func (s *Simulator) GlobalRelativeFrame(context.Context) (Location, error) {
	if err := s.fault("global relative frame"); err != nil {
		return Location{}, err
	}
	return s.location(loiterAltitude), nil
}

func (s *Simulator) GlobalFrame(context.Context) (Location, error) {
	if err := s.fault("global frame"); err != nil {
		return Location{}, err
	}
	return s.location(homeAltitude + loiterAltitude), nil
}

func (s *Simulator) Attitude(context.Context) (Attitude, error) {
	if err := s.fault("attitude"); err != nil {
		return Attitude{}, err
	}

	yaw := math.Mod(s.phase()+math.Pi/2, 2*math.Pi)
	if yaw > math.Pi {
		yaw -= 2 * math.Pi
	}
	return Attitude{Roll: 0.05, Pitch: -0.02, Yaw: yaw}, nil
}

func (s *Simulator) Velocity(context.Context) ([3]float64, error) {
	if err := s.fault("velocity"); err != nil {
		return [3]float64{}, err
	}

	phase := s.phase()
	speed := s.speed()
	return [3]float64{-speed * math.Sin(phase), speed * math.Cos(phase), 0}, nil
}

func (s *Simulator) Heading(context.Context) (int, error) {
	if err := s.fault("heading"); err != nil {
		return 0, err
	}

	deg := (s.phase() + math.Pi/2) * 180 / math.Pi
	return int(math.Mod(deg, 360)), nil
}

func (s *Simulator) GroundSpeed(context.Context) (float64, error) {
	if err := s.fault("groundspeed"); err != nil {
		return 0, err
	}
	return s.speed(), nil
}

func (s *Simulator) AirSpeed(context.Context) (float64, error) {
	if err := s.fault("airspeed"); err != nil {
		return 0, err
	}
	return s.speed(), nil
}

func (s *Simulator) Mode(context.Context) (string, error) {
	if err := s.fault("mode"); err != nil {
		return "", err
	}
	return "GUIDED", nil
}

func (s *Simulator) Armed(context.Context) (bool, error) {
	if err := s.fault("armed"); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Simulator) EKFOk(context.Context) (bool, error) {
	if err := s.fault("ekf"); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Simulator) SystemStatus(context.Context) (string, error) {
	if err := s.fault("system status"); err != nil {
		return "", err
	}
	return "ACTIVE", nil
}

func (s *Simulator) GPS(context.Context) (GPSInfo, error) {
	if err := s.fault("gps"); err != nil {
		return GPSInfo{}, err
	}
	return GPSInfo{Satellites: 10, HDOP: 121, FixType: 3}, nil
}

func (s *Simulator) BatteryVoltage(context.Context) (float64, error) {
	if err := s.fault("battery"); err != nil {
		return 0, err
	}

	drained := batteryDrain * s.now().Sub(s.start).Seconds()
	return math.Max(batteryFull-drained, 0), nil
}

func (s *Simulator) RangeFinder(context.Context) (float64, error) {
	if err := s.fault("rangefinder"); err != nil {
		return 0, err
	}
	return loiterAltitude, nil
}

// Close implements io.Closer, the simulator holds no resources
func (s *Simulator) Close() error {
	return nil
}
