package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/telemetry-uplink/internal/link"
	"github.com/roman-kulish/telemetry-uplink/internal/link/mqtt"
	"github.com/roman-kulish/telemetry-uplink/internal/link/xbee"
)

const (
	LinkXBee LinkType = "xbee"
	LinkMQTT LinkType = "mqtt"
)

const (
	defaultLogFile       = "drone.log"
	defaultLogMaxSizeMB  = 10
	defaultLogMaxBackups = 3
	defaultPeer          = "0013A200419B5208"
	defaultStaleAfter    = 5 * time.Second
	defaultWaitReady     = 30 * time.Second
	defaultStreamRate    = 4
	defaultDataDirectory = "data"
)

type LinkType string

// Config represents the main application configuration
type Config struct {
	Settings Settings       `yaml:"settings" json:"settings"`
	Vehicle  VehicleConfig  `yaml:"vehicle" json:"vehicle"`
	Link     LinkConfig     `yaml:"link" json:"link"`
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel      slog.Level `yaml:"logLevel" json:"logLevel"`           // Console log level
	LogFile       string     `yaml:"logFile" json:"logFile"`             // Diagnostic log file, empty disables it
	LogFileLevel  slog.Level `yaml:"logFileLevel" json:"logFileLevel"`   // Diagnostic log file level (default: WARN)
	LogMaxSizeMB  int        `yaml:"logMaxSizeMB" json:"logMaxSizeMB"`   // Rotate the log file at this size
	LogMaxBackups int        `yaml:"logMaxBackups" json:"logMaxBackups"` // Rotated files to keep
	Echo          bool       `yaml:"echo" json:"echo"`                   // Print every sample to stdout
}

// VehicleConfig represents the connection to the flight controller
type VehicleConfig struct {
	Connect     string          `yaml:"connect" json:"connect"`         // MAVLink endpoint, empty runs the simulator
	StaleAfter  TimeDuration    `yaml:"staleAfter" json:"staleAfter"`   // Values older than this are not reported
	ReadTimeout TimeDuration    `yaml:"readTimeout" json:"readTimeout"` // Bound on a single attribute read, 0 disables it
	WaitReady   TimeDuration    `yaml:"waitReady" json:"waitReady"`     // Wait for the first heartbeat before transmitting, 0 does not wait
	StreamRate  int             `yaml:"streamRate" json:"streamRate"`   // Requested MAVLink stream rate in Hz, 0 disables requests
	Simulator   SimulatorConfig `yaml:"simulator" json:"simulator"`
}

// SimulatorConfig represents the simulated vehicle settings
type SimulatorConfig struct {
	FailureRate float64 `yaml:"failureRate" json:"failureRate"` // Probability of an attribute read failing
	Seed        int64   `yaml:"seed" json:"seed"`
}

// LinkConfig represents the radio link to the ground station
type LinkConfig struct {
	Type          LinkType     `yaml:"type" json:"type"`
	Port          string       `yaml:"port" json:"port"`
	BaudRate      int          `yaml:"baudRate" json:"baudRate"`
	Peer          string       `yaml:"peer" json:"peer"`                   // 64-bit address of the remote radio, hex
	MaxSegmentLen int          `yaml:"maxSegmentLen" json:"maxSegmentLen"` // Largest data segment per frame
	MaxPayload    int          `yaml:"maxPayload" json:"maxPayload"`       // Largest payload the radio accepts
	SendTimeout   TimeDuration `yaml:"sendTimeout" json:"sendTimeout"`     // Bound on a single frame send, 0 disables it
	StatusTimeout TimeDuration `yaml:"statusTimeout" json:"statusTimeout"` // Wait for the XBee transmit status, 0 does not wait
	MQTT          mqtt.Config  `yaml:"mqtt" json:"mqtt"`
}

// XBee returns the serial configuration of the local XBee module
func (c *LinkConfig) XBee() *xbee.Config {
	return &xbee.Config{
		Port:          c.Port,
		BaudRate:      c.BaudRate,
		MaxPayload:    c.MaxPayload,
		StatusTimeout: c.StatusTimeout.Duration(),
	}
}

// PeerAddress returns the parsed address of the remote radio
func (c *LinkConfig) PeerAddress() (link.Address, error) {
	return link.ParseAddress(c.Peer)
}

// ScheduleConfig represents the transmission schedule
type ScheduleConfig struct {
	Interval  TimeDuration `yaml:"interval" json:"interval"`
	Immediate bool         `yaml:"immediate" json:"immediate"` // Run the first cycle without waiting an interval
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	DataDirectory string `yaml:"dataDirectory" json:"dataDirectory"`
}

// NewConfig returns the configuration the uplink runs with when no file is given
func NewConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel:      slog.LevelInfo,
			LogFile:       defaultLogFile,
			LogFileLevel:  slog.LevelWarn,
			LogMaxSizeMB:  defaultLogMaxSizeMB,
			LogMaxBackups: defaultLogMaxBackups,
		},
		Vehicle: VehicleConfig{
			StaleAfter: NewTimeDuration(defaultStaleAfter),
			WaitReady:  NewTimeDuration(defaultWaitReady),
			StreamRate: defaultStreamRate,
			Simulator: SimulatorConfig{
				Seed: 1,
			},
		},
		Link: LinkConfig{
			Type:          LinkXBee,
			Port:          xbee.DefaultPort,
			BaudRate:      xbee.DefaultBaudRate,
			Peer:          defaultPeer,
			MaxSegmentLen: link.DefaultMaxSegmentLen,
			MaxPayload:    xbee.DefaultMaxPayload,
			StatusTimeout: NewTimeDuration(xbee.DefaultStatusTimeout),
			MQTT: mqtt.Config{
				Broker:      mqtt.DefaultBroker,
				ClientID:    mqtt.DefaultClientID,
				TopicPrefix: mqtt.DefaultTopicPrefix,
			},
		},
		Schedule: ScheduleConfig{
			Interval: NewTimeDuration(time.Second),
		},
		Storage: StorageConfig{
			DataDirectory: defaultDataDirectory,
		},
	}
}

// LoadConfig reads the YAML configuration file on top of the defaults. A
// missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := NewConfig()
	if path == "" {
		return config, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config, nil
		}
		return nil, fmt.Errorf("opening configuration: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)

	if err = decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	if c.Schedule.Interval <= 0 {
		errs = append(errs, link.NewConfigError(fmt.Sprintf("schedule.interval must be positive: %s", c.Schedule.Interval), nil))
	}

	if c.Link.MaxSegmentLen <= 0 {
		errs = append(errs, link.NewConfigError(fmt.Sprintf("link.maxSegmentLen must be positive: %d", c.Link.MaxSegmentLen), link.ErrInvalidSegmentLength))
	} else if c.Link.MaxSegmentLen > c.Link.MaxPayload {
		errs = append(errs, link.NewConfigError(fmt.Sprintf("link.maxSegmentLen %d exceeds link.maxPayload %d", c.Link.MaxSegmentLen, c.Link.MaxPayload), link.ErrInvalidSegmentLength))
	}

	if _, err := c.Link.PeerAddress(); err != nil {
		errs = append(errs, link.NewConfigError("link.peer", err))
	}

	switch c.Link.Type {
	case LinkXBee:
		if err := c.Link.XBee().Validate(); err != nil {
			errs = append(errs, link.NewConfigError("link", err))
		}
	case LinkMQTT:
		if err := c.Link.MQTT.Validate(); err != nil {
			errs = append(errs, link.NewConfigError("link.mqtt", err))
		}
	default:
		errs = append(errs, link.NewConfigError(fmt.Sprintf("link.type: unknown type '%s'", c.Link.Type), nil))
	}

	if c.Link.SendTimeout < 0 {
		errs = append(errs, link.NewConfigError(fmt.Sprintf("link.sendTimeout must not be negative: %s", c.Link.SendTimeout), nil))
	}

	if c.Vehicle.StaleAfter < 0 || c.Vehicle.ReadTimeout < 0 || c.Vehicle.WaitReady < 0 {
		errs = append(errs, link.NewConfigError("vehicle: durations must not be negative", nil))
	}
	if c.Vehicle.StreamRate < 0 {
		errs = append(errs, link.NewConfigError(fmt.Sprintf("vehicle.streamRate must not be negative: %d", c.Vehicle.StreamRate), nil))
	}
	if rate := c.Vehicle.Simulator.FailureRate; rate < 0 || rate > 1 {
		errs = append(errs, link.NewConfigError(fmt.Sprintf("vehicle.simulator.failureRate must be within [0, 1]: %g", rate), nil))
	}

	if c.Storage.Enabled && c.Storage.DataDirectory == "" {
		errs = append(errs, link.NewConfigError("storage.dataDirectory is required when storage is enabled", nil))
	}

	return errors.Join(errs...)
}

type TimeDuration time.Duration

func NewTimeDuration(d time.Duration) TimeDuration {
	return TimeDuration(d)
}

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *TimeDuration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}
