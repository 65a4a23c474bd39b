package mdt

import (
	"errors"
	"fmt"
	"strconv"
)

// Predefined error types for robust error handling
var (
	ErrDeviceNotFound   = errors.New("serial device not found")
	ErrPermissionDenied = errors.New("permission denied accessing serial device")
	ErrDeviceInUse      = errors.New("serial device already in use")
	ErrInvalidBaudRate  = errors.New("invalid baud rate")
	ErrInvalidConfig    = errors.New("invalid serial configuration")
	ErrPortClosed       = errors.New("serial port is closed")
	ErrWriteTimeout     = errors.New("write operation timed out")
	ErrReadTimeout      = errors.New("read operation timed out")

	// USB-related errors
	ErrUSBInfoNotAvailable  = errors.New("USB device information not available")
	ErrUSBResetNotAvailable = errors.New("usbreset utility not available")

	// Discovery errors
	ErrEnumeration     = errors.New("serial port enumeration failed")
	ErrPortUnavailable = errors.New("port could not be opened")
	ErrProbeTimeout    = errors.New("probe query unanswered")
	ErrUnsafeQuery     = errors.New("probe query set contains a non-query command")
	ErrNoDeviceFound   = errors.New("no MDT device found")

	// Controller errors
	ErrPortBusy         = errors.New("port already has an open session")
	ErrInvalidAxis      = errors.New("unsupported axis")
	ErrDeviceCommand    = errors.New("device command failed")
	ErrNotConnected     = errors.New("controller not connected")
	ErrAlreadyConnected = errors.New("controller already connected")
	ErrInvalidLimit     = errors.New("invalid voltage limit")

	// Backend errors
	ErrSDKNotPresent = errors.New("MDT command library not present")
	ErrSDKLoad       = errors.New("MDT command library failed to load")
)

// CommandError describes a failed device command with enough context for
// the caller to decide whether to retry or disconnect.
type CommandError struct {
	Op   string
	Port string
	Axis Axis
	// Requested is the caller's value, Value the one sent after clamping.
	Requested float64
	Value     float64
	Err       error
}

func (e *CommandError) Error() string {
	msg := e.Op + " on " + e.Port
	if e.Axis != "" {
		msg += " axis " + string(e.Axis)
	}
	if e.Op == opNameSetVoltage {
		msg += " value " + strconv.FormatFloat(e.Value, 'f', 3, 64) + "V"
		if e.Requested != e.Value {
			msg += " (requested " + strconv.FormatFloat(e.Requested, 'f', 3, 64) + "V)"
		}
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap exposes both ErrDeviceCommand and the underlying cause to errors.Is.
func (e *CommandError) Unwrap() []error {
	return []error{ErrDeviceCommand, e.Err}
}
