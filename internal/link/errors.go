package link

import "errors"

var (
	// ErrInvalidSegmentLength is reported when the maximum segment length is not positive
	ErrInvalidSegmentLength = errors.New("max segment length must be positive")

	// ErrInvalidAddress is reported when a peer address is not 16 hex digits
	ErrInvalidAddress = errors.New("invalid 64-bit address")
)

// ConfigError is a custom error type for configuration errors. Configuration
// errors are detected at setup time, before any cycle runs.
type ConfigError struct {
	msg string
	err error
}

func NewConfigError(msg string, err error) *ConfigError {
	return &ConfigError{msg, err}
}

func (e *ConfigError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.err
}
