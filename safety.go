package mdt

import (
	"fmt"
	"math"
	"strings"
)

const (
	// HardMaxVoltage is the highest output any MDT controller can produce.
	// No configuration raises it.
	HardMaxVoltage = 150.0

	// DefaultSoftLimit is the software ceiling applied unless the caller
	// configures another one.
	DefaultSoftLimit = 100.0
)

// Axis identifies an output channel of the controller
type Axis string

const (
	AxisX Axis = "X"
	AxisY Axis = "Y"
	AxisZ Axis = "Z"
)

// AllAxes lists the channels of a three-axis controller in output order.
var AllAxes = []Axis{AxisX, AxisY, AxisZ}

// ParseAxis accepts x, y or z in either case.
func ParseAxis(s string) (Axis, error) {
	switch Axis(strings.ToUpper(strings.TrimSpace(s))) {
	case AxisX:
		return AxisX, nil
	case AxisY:
		return AxisY, nil
	case AxisZ:
		return AxisZ, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAxis, s)
}

// Valid reports whether a is one of X, Y or Z.
func (a Axis) Valid() bool {
	return a == AxisX || a == AxisY || a == AxisZ
}

// Limits is the voltage ceiling configuration for a controller.
type Limits struct {
	Soft float64 `json:"soft" yaml:"soft"`
	Hard float64 `json:"hard" yaml:"hard"`
}

// DefaultLimits returns a 100 V soft limit under the 150 V hard maximum.
func DefaultLimits() Limits {
	return Limits{Soft: DefaultSoftLimit, Hard: HardMaxVoltage}
}

// NewLimits validates a soft limit. Values above HardMaxVoltage are
// accepted; the effective ceiling still stops at HardMaxVoltage.
func NewLimits(soft float64) (Limits, error) {
	if math.IsNaN(soft) || math.IsInf(soft, 0) || soft <= 0 {
		return Limits{}, fmt.Errorf("%w: soft limit %v", ErrInvalidLimit, soft)
	}
	return Limits{Soft: soft, Hard: HardMaxVoltage}, nil
}

// Ceiling is the highest voltage a write may apply under these limits.
func (l Limits) Ceiling() float64 {
	return ceiling(l.Soft, l.Hard)
}

func ceiling(soft, hard float64) float64 {
	c := math.Min(math.Min(soft, hard), HardMaxVoltage)
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	return c
}

// VoltageCommand is the outcome of evaluating a requested voltage.
type VoltageCommand struct {
	Axis      Axis    `json:"axis" yaml:"axis"`
	Requested float64 `json:"requested" yaml:"requested"`
	Applied   float64 `json:"applied" yaml:"applied"`
	Clamped   bool    `json:"clamped" yaml:"clamped"`
}

// Evaluate decides the voltage actually written for a request. The result
// always lies in [0, min(softLimit, hardMax, HardMaxVoltage)] and Clamped is
// set whenever Applied differs from requested.
func Evaluate(axis Axis, requested, softLimit, hardMax float64) VoltageCommand {
	applied := requested
	top := ceiling(softLimit, hardMax)

	switch {
	case math.IsNaN(requested), requested < 0:
		applied = 0
	case requested > top:
		applied = top
	}

	return VoltageCommand{
		Axis:      axis,
		Requested: requested,
		Applied:   applied,
		Clamped:   applied != requested,
	}
}
