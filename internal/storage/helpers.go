package storage

import (
	"database/sql"
	"errors"

	"github.com/roman-kulish/telemetry-uplink/internal/telemetry"
	"github.com/roman-kulish/telemetry-uplink/internal/vehicle"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toCycleData(sessionID int64, s *telemetry.Sample, stats CycleStats) *cycleData {
	d := cycleData{
		SessionID:        sessionID,
		Timestamp:        s.Timestamp.UTC(),
		Latitude:         toNull(s.Latitude),
		Longitude:        toNull(s.Longitude),
		AltitudeRelative: toNull(s.AltitudeRelative),
		Altitude:         toNull(s.Altitude),
		Roll:             toNull(s.Roll),
		Pitch:            toNull(s.Pitch),
		Yaw:              toNull(s.Yaw),
		Heading:          toNullInt64(s.Heading),
		GroundSpeed:      toNull(s.GroundSpeed),
		AirSpeed:         toNull(s.AirSpeed),
		Mode:             toNull(s.Mode),
		Armed:            toNull(s.Armed),
		EKFOk:            toNull(s.EKFOk),
		SystemStatus:     toNull(s.SystemStatus),
		BatteryVoltage:   toNull(s.BatteryVoltage),
		RangeFinder:      toNull(s.RangeFinder),
		RecordSize:       stats.RecordSize,
		Frames:           stats.Frames,
		Sent:             stats.Sent,
		Failed:           stats.Failed,
	}

	if s.Velocity != nil {
		d.VelocityNorth = toNull(&s.Velocity[0])
		d.VelocityEast = toNull(&s.Velocity[1])
		d.VelocityDown = toNull(&s.Velocity[2])
	}

	if s.GPS != nil {
		d.GPSSatellites = toNullInt64(&s.GPS.Satellites)
		d.GPSHDOP = toNullInt64(&s.GPS.HDOP)
		d.GPSFixType = toNullInt64(&s.GPS.FixType)
	}

	return &d
}

func fromCycleData(d *cycleData) *Cycle {
	s := telemetry.Sample{
		Timestamp:        d.Timestamp.UTC(),
		Latitude:         fromNull(d.Latitude),
		Longitude:        fromNull(d.Longitude),
		AltitudeRelative: fromNull(d.AltitudeRelative),
		Altitude:         fromNull(d.Altitude),
		Roll:             fromNull(d.Roll),
		Pitch:            fromNull(d.Pitch),
		Yaw:              fromNull(d.Yaw),
		GroundSpeed:      fromNull(d.GroundSpeed),
		AirSpeed:         fromNull(d.AirSpeed),
		Mode:             fromNull(d.Mode),
		Armed:            fromNull(d.Armed),
		EKFOk:            fromNull(d.EKFOk),
		SystemStatus:     fromNull(d.SystemStatus),
		BatteryVoltage:   fromNull(d.BatteryVoltage),
		RangeFinder:      fromNull(d.RangeFinder),
	}

	if d.Heading.Valid {
		heading := int(d.Heading.V)
		s.Heading = &heading
	}

	if d.VelocityNorth.Valid && d.VelocityEast.Valid && d.VelocityDown.Valid {
		s.Velocity = &[3]float64{d.VelocityNorth.V, d.VelocityEast.V, d.VelocityDown.V}
	}

	if d.GPSSatellites.Valid && d.GPSHDOP.Valid && d.GPSFixType.Valid {
		s.GPS = &vehicle.GPSInfo{
			Satellites: int(d.GPSSatellites.V),
			HDOP:       int(d.GPSHDOP.V),
			FixType:    int(d.GPSFixType.V),
		}
	}

	return &Cycle{
		ID:        d.ID,
		SessionID: d.SessionID,
		Sample:    &s,
		Stats: CycleStats{
			RecordSize: d.RecordSize,
			Frames:     d.Frames,
			Sent:       d.Sent,
			Failed:     d.Failed,
		},
	}
}

func toNull[T any](v *T) sql.Null[T] {
	if v == nil {
		return sql.Null[T]{}
	}
	return sql.Null[T]{V: *v, Valid: true}
}

// toNullInt64 widens to int64, the driver does not accept int values
func toNullInt64(v *int) sql.Null[int64] {
	if v == nil {
		return sql.Null[int64]{}
	}
	return sql.Null[int64]{V: int64(*v), Valid: true}
}

func fromNull[T any](n sql.Null[T]) *T {
	if !n.Valid {
		return nil
	}
	v := n.V
	return &v
}
