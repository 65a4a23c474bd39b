package mdt

import (
	"context"
	"time"
)

// Status is a snapshot of the controller's outputs and link health.
type Status struct {
	Connected bool        `json:"connected" yaml:"connected"`
	Port      string      `json:"port,omitempty" yaml:"port,omitempty"`
	Backend   BackendKind `json:"backend,omitempty" yaml:"backend,omitempty"`
	Model     string      `json:"model,omitempty" yaml:"model,omitempty"`
	// CurrentVoltages holds a live reading per axis, or the last known
	// value when the live read failed.
	CurrentVoltages map[Axis]float64 `json:"current_voltages" yaml:"current_voltages"`
	// Stale is set when any value in CurrentVoltages comes from the cache
	// or an axis could not be reported at all.
	Stale     bool   `json:"stale" yaml:"stale"`
	StaleAxes []Axis `json:"stale_axes,omitempty" yaml:"stale_axes,omitempty"`
	LastError string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	// VoltageLimit is the position of the front-panel limit switch, 0 if
	// the device did not report it.
	VoltageLimit float64   `json:"voltage_limit,omitempty" yaml:"voltage_limit,omitempty"`
	Limits       Limits    `json:"limits" yaml:"limits"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// GetDeviceStatus reads every axis of the connected device. A failed read
// falls back to the last known value and marks the status stale. A
// disconnected controller reports Connected=false without error.
func (c *Controller) GetDeviceStatus(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Connected:       c.state == StateConnected,
		CurrentVoltages: make(map[Axis]float64),
		Limits:          c.limits,
		UpdatedAt:       time.Now(),
	}
	if !st.Connected {
		return st, nil
	}

	st.Port = c.session.Port
	st.Backend = c.session.Backend
	st.Model = c.session.Model

	for _, axis := range c.session.Axes {
		v, err := c.readVoltage(ctx, axis)
		if err == nil {
			st.CurrentVoltages[axis] = v
			continue
		}

		st.Stale = true
		st.StaleAxes = append(st.StaleAxes, axis)
		st.LastError = err.Error()
		if cached, ok := c.cache[axis]; ok {
			st.CurrentVoltages[axis] = cached
		}
		c.log.Debug().Err(err).Str("axis", string(axis)).Msg("live read failed, reporting cached value")
	}

	if resp, err := c.transport.Send(ctx, Command{Op: OpGetLimit}); err == nil {
		st.VoltageLimit = resp.Value
	}
	return st, nil
}
