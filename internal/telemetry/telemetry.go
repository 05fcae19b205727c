package telemetry

import (
	"time"

	"github.com/roman-kulish/telemetry-uplink/internal/vehicle"
)

// Attribute names, used as the diagnostic context of collection failures
const (
	AttrLocation    = "location"
	AttrAttitude    = "attitude"
	AttrVelocity    = "velocity"
	AttrHeading     = "heading"
	AttrGroundSpeed = "groundspeed"
	AttrAirSpeed    = "airspeed"
	AttrMode        = "mode"
	AttrArmed       = "arm"
	AttrEKF         = "ekf"
	AttrStatus      = "status"
	AttrGPS         = "gps"
	AttrBattery     = "battery"
	AttrRangeFinder = "lidar"
)

// Sample is the telemetry collected from the drone in a single cycle.
// A nil field means the attribute could not be read.
type Sample struct {
	Timestamp        time.Time        // Time the collection started
	Latitude         *float64         // Latitude in degrees
	Longitude        *float64         // Longitude in degrees
	AltitudeRelative *float64         // Altitude above home in meters
	Altitude         *float64         // Altitude above mean sea level in meters
	Roll             *float64         // Roll angle in radians
	Pitch            *float64         // Pitch angle in radians
	Yaw              *float64         // Yaw angle in radians
	Velocity         *[3]float64      // North, east, down velocity in m/s
	Heading          *int             // Heading in degrees
	GroundSpeed      *float64         // Ground speed in m/s
	AirSpeed         *float64         // Air speed in m/s
	Mode             *string          // Flight mode name
	Armed            *bool            // Whether the motors are armed
	EKFOk            *bool            // Whether the EKF reports a usable solution
	SystemStatus     *string          // System status, e.g. STANDBY or ACTIVE
	GPS              *vehicle.GPSInfo // GPS satellites, HDOP and fix type
	BatteryVoltage   *float64         // Battery voltage in volts
	RangeFinder      *float64         // Range finder distance in meters
}

// Missing returns the names of the attributes absent from the sample
func (s *Sample) Missing() []string {
	var missing []string
	if s.Latitude == nil || s.Altitude == nil {
		missing = append(missing, AttrLocation)
	}
	if s.Roll == nil {
		missing = append(missing, AttrAttitude)
	}
	if s.Velocity == nil {
		missing = append(missing, AttrVelocity)
	}
	if s.Heading == nil {
		missing = append(missing, AttrHeading)
	}
	if s.GroundSpeed == nil {
		missing = append(missing, AttrGroundSpeed)
	}
	if s.AirSpeed == nil {
		missing = append(missing, AttrAirSpeed)
	}
	if s.Mode == nil {
		missing = append(missing, AttrMode)
	}
	if s.Armed == nil {
		missing = append(missing, AttrArmed)
	}
	if s.EKFOk == nil {
		missing = append(missing, AttrEKF)
	}
	if s.SystemStatus == nil {
		missing = append(missing, AttrStatus)
	}
	if s.GPS == nil {
		missing = append(missing, AttrGPS)
	}
	if s.BatteryVoltage == nil {
		missing = append(missing, AttrBattery)
	}
	if s.RangeFinder == nil {
		missing = append(missing, AttrRangeFinder)
	}
	return missing
}
