package telemetry

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// Record keys in their wire order
const (
	KeyLatitude         = "lat"
	KeyLongitude        = "lng"
	KeyAltitudeRelative = "altr"
	KeyAltitude         = "alt"
	KeyRoll             = "roll"
	KeyPitch            = "pitch"
	KeyYaw              = "yaw"
	KeySatellites       = "numSat"
	KeyHDOP             = "hdop"
	KeyFixType          = "fix"
	KeyHeading          = "head"
	KeyGroundSpeed      = "gs"
	KeyAirSpeed         = "as"
	KeyMode             = "mode"
	KeyArmed            = "arm"
	KeyEKF              = "ekf"
	KeyStatus           = "status"
	KeyRangeFinder      = "lidar"
	KeyBatteryVoltage   = "volt"
)

// Encode serializes the attributes present in the sample into a single record:
//
//	{'lat': -35.36, 'lng': 149.16, 'mode': 'GUIDED', 'arm': True}
//
// Keys always appear in the same order and absent attributes are omitted.
// The output only depends on the sample values.
func Encode(s *Sample) []byte {
	var e encoder
	e.buf.WriteByte('{')

	if s != nil {
		e.float(KeyLatitude, s.Latitude)
		e.float(KeyLongitude, s.Longitude)
		e.float(KeyAltitudeRelative, s.AltitudeRelative)
		e.float(KeyAltitude, s.Altitude)
		e.float(KeyRoll, s.Roll)
		e.float(KeyPitch, s.Pitch)
		e.float(KeyYaw, s.Yaw)
		if s.GPS != nil {
			e.int(KeySatellites, &s.GPS.Satellites)
			e.int(KeyHDOP, &s.GPS.HDOP)
			e.int(KeyFixType, &s.GPS.FixType)
		}
		e.int(KeyHeading, s.Heading)
		e.float(KeyGroundSpeed, s.GroundSpeed)
		e.float(KeyAirSpeed, s.AirSpeed)
		e.string(KeyMode, s.Mode)
		e.bool(KeyArmed, s.Armed)
		e.bool(KeyEKF, s.EKFOk)
		e.string(KeyStatus, s.SystemStatus)
		e.float(KeyRangeFinder, s.RangeFinder)
		e.float(KeyBatteryVoltage, s.BatteryVoltage)
	}

	e.buf.WriteByte('}')
	return e.buf.Bytes()
}

type encoder struct {
	buf bytes.Buffer
	n   int
}

func (e *encoder) key(k string) {
	if e.n > 0 {
		e.buf.WriteString(", ")
	}
	e.n++

	e.buf.WriteByte('\'')
	e.buf.WriteString(k)
	e.buf.WriteString("': ")
}

func (e *encoder) float(k string, v *float64) {
	if v == nil {
		return
	}
	e.key(k)
	e.buf.WriteString(formatFloat(*v))
}

func (e *encoder) int(k string, v *int) {
	if v == nil {
		return
	}
	e.key(k)
	e.buf.WriteString(strconv.Itoa(*v))
}

func (e *encoder) bool(k string, v *bool) {
	if v == nil {
		return
	}
	e.key(k)
	if *v {
		e.buf.WriteString("True")
	} else {
		e.buf.WriteString("False")
	}
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func (e *encoder) string(k string, v *string) {
	if v == nil {
		return
	}
	e.key(k)
	e.buf.WriteByte('\'')
	e.buf.WriteString(quoteReplacer.Replace(*v))
	e.buf.WriteByte('\'')
}

// formatFloat renders the shortest representation that reads back to the same
// value, always marked as a float: 1.0, 0.25, 1e-05, 1e+16.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	if i := strings.IndexByte(s, 'e'); i >= 0 {
		if exp, err := strconv.Atoi(s[i+1:]); err == nil && (exp < -4 || exp >= 16) {
			return s
		}
	}

	s = strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
