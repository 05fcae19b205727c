package storage

import (
	"database/sql"
	"time"

	"github.com/roman-kulish/telemetry-uplink/internal/telemetry"
)

// Session is a single run of the uplink
type Session struct {
	ID        int64
	StartTime time.Time
	LinkType  string  // Radio link type, e.g. xbee or mqtt
	Peer      string  // Address of the remote radio
	Config    *string // Configuration the session ran with, JSON
}

// CycleStats is the outcome of one transmission cycle
type CycleStats struct {
	RecordSize int // Serialized record size in bytes
	Frames     int // Frames produced, sentinels included
	Sent       int
	Failed     int
}

// Cycle is an archived transmission cycle
type Cycle struct {
	ID        int64
	SessionID int64
	Sample    *telemetry.Sample
	Stats     CycleStats
}

type cycleData struct {
	ID               int64
	SessionID        int64
	Timestamp        time.Time
	Latitude         sql.Null[float64]
	Longitude        sql.Null[float64]
	AltitudeRelative sql.Null[float64]
	Altitude         sql.Null[float64]
	Roll             sql.Null[float64]
	Pitch            sql.Null[float64]
	Yaw              sql.Null[float64]
	VelocityNorth    sql.Null[float64]
	VelocityEast     sql.Null[float64]
	VelocityDown     sql.Null[float64]
	Heading          sql.Null[int64]
	GroundSpeed      sql.Null[float64]
	AirSpeed         sql.Null[float64]
	Mode             sql.Null[string]
	Armed            sql.Null[bool]
	EKFOk            sql.Null[bool]
	SystemStatus     sql.Null[string]
	GPSSatellites    sql.Null[int64]
	GPSHDOP          sql.Null[int64]
	GPSFixType       sql.Null[int64]
	BatteryVoltage   sql.Null[float64]
	RangeFinder      sql.Null[float64]
	RecordSize       int
	Frames           int
	Sent             int
	Failed           int
}

// args returns the insert arguments in the column order of insertCycleSQL
func (d *cycleData) args() []any {
	return []any{
		d.SessionID,
		d.Timestamp,
		d.Latitude,
		d.Longitude,
		d.AltitudeRelative,
		d.Altitude,
		d.Roll,
		d.Pitch,
		d.Yaw,
		d.VelocityNorth,
		d.VelocityEast,
		d.VelocityDown,
		d.Heading,
		d.GroundSpeed,
		d.AirSpeed,
		d.Mode,
		d.Armed,
		d.EKFOk,
		d.SystemStatus,
		d.GPSSatellites,
		d.GPSHDOP,
		d.GPSFixType,
		d.BatteryVoltage,
		d.RangeFinder,
		d.RecordSize,
		d.Frames,
		d.Sent,
		d.Failed,
	}
}

// dest returns the scan destinations in the column order of selectCyclesSQL
func (d *cycleData) dest() []any {
	return []any{
		&d.ID,
		&d.SessionID,
		&d.Timestamp,
		&d.Latitude,
		&d.Longitude,
		&d.AltitudeRelative,
		&d.Altitude,
		&d.Roll,
		&d.Pitch,
		&d.Yaw,
		&d.VelocityNorth,
		&d.VelocityEast,
		&d.VelocityDown,
		&d.Heading,
		&d.GroundSpeed,
		&d.AirSpeed,
		&d.Mode,
		&d.Armed,
		&d.EKFOk,
		&d.SystemStatus,
		&d.GPSSatellites,
		&d.GPSHDOP,
		&d.GPSFixType,
		&d.BatteryVoltage,
		&d.RangeFinder,
		&d.RecordSize,
		&d.Frames,
		&d.Sent,
		&d.Failed,
	}
}
