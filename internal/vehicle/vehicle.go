package vehicle

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned when a value has not been reported by the vehicle yet
	ErrUnavailable = errors.New("value not available")

	// ErrStale is returned when the last reported value is too old to be trusted
	ErrStale = errors.New("value is stale")

	// ErrClosed is returned when waiting on a closed connection
	ErrClosed = errors.New("vehicle connection closed")
)

// Readier is implemented by state sources that take time to receive the
// first report from the vehicle
type Readier interface {
	WaitReady(ctx context.Context) error
}

// Location is a geodetic position
type Location struct {
	Latitude  float64 // Latitude in degrees
	Longitude float64 // Longitude in degrees
	Altitude  float64 // Altitude in meters, relative to home or AMSL depending on the frame
}

// Attitude is the vehicle orientation in radians
type Attitude struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

// GPSInfo is the GPS receiver status
type GPSInfo struct {
	Satellites int // Number of visible satellites
	HDOP       int // Horizontal dilution of precision, unitless * 100 (GPS_RAW_INT.eph)
	FixType    int // 0-1: no fix, 2: 2D fix, 3: 3D fix, 4+: DGPS/RTK
}

// State is a read-only view of the vehicle state. Every accessor may fail
// independently of the others.
type State interface {
	GlobalRelativeFrame(ctx context.Context) (Location, error)
	GlobalFrame(ctx context.Context) (Location, error)
	Attitude(ctx context.Context) (Attitude, error)
	Velocity(ctx context.Context) ([3]float64, error) // North, east, down in m/s
	Heading(ctx context.Context) (int, error)         // Degrees, 0..360
	GroundSpeed(ctx context.Context) (float64, error) // m/s
	AirSpeed(ctx context.Context) (float64, error)    // m/s
	Mode(ctx context.Context) (string, error)
	Armed(ctx context.Context) (bool, error)
	EKFOk(ctx context.Context) (bool, error)
	SystemStatus(ctx context.Context) (string, error)
	GPS(ctx context.Context) (GPSInfo, error)
	BatteryVoltage(ctx context.Context) (float64, error) // Volts
	RangeFinder(ctx context.Context) (float64, error)    // Meters
}
