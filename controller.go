package mdt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the connection state of a Controller
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ControllerConfig holds the settings a Controller is built with.
type ControllerConfig struct {
	Limits     Limits
	Backend    BackendConfig
	Discoverer *Discoverer
	Logger     zerolog.Logger
	// Axes overrides the outputs derived from the identified model.
	Axes []Axis
}

// ControllerOption is a functional option for NewController
type ControllerOption func(*ControllerConfig) error

// WithSoftLimit sets the software voltage ceiling.
func WithSoftLimit(volts float64) ControllerOption {
	return func(c *ControllerConfig) error {
		l, err := NewLimits(volts)
		if err != nil {
			return err
		}
		c.Limits = l
		return nil
	}
}

// WithBackendConfig sets backend selection and transport settings.
func WithBackendConfig(bc BackendConfig) ControllerOption {
	return func(c *ControllerConfig) error {
		c.Backend = bc
		return nil
	}
}

// WithDiscoverer sets the discoverer used when Connect gets no port.
func WithDiscoverer(d *Discoverer) ControllerOption {
	return func(c *ControllerConfig) error {
		c.Discoverer = d
		return nil
	}
}

// WithAxes restricts or overrides the axes a session may drive.
func WithAxes(axes ...Axis) ControllerOption {
	return func(c *ControllerConfig) error {
		if len(axes) == 0 {
			return fmt.Errorf("%w: no axes", ErrInvalidAxis)
		}
		for _, a := range axes {
			if !a.Valid() {
				return fmt.Errorf("%w: %q", ErrInvalidAxis, a)
			}
		}
		c.Axes = append([]Axis(nil), axes...)
		return nil
	}
}

// WithLogger sets the controller logger.
func WithLogger(log zerolog.Logger) ControllerOption {
	return func(c *ControllerConfig) error {
		c.Logger = log
		return nil
	}
}

// Controller drives one MDT controller with software voltage limits.
//
// A Controller owns at most one session. Calls are serialized internally,
// but interleaving calls from several goroutines is still the caller's
// responsibility to order.
type Controller struct {
	mu        sync.Mutex
	limits    Limits
	backend   BackendConfig
	discover  *Discoverer
	log       zerolog.Logger
	axes      []Axis
	state     State
	attempt   int // bumped by each Connect and by Close while connecting
	transport Transport
	session   Session
	cache     map[Axis]float64
}

// NewController builds a disconnected controller. The soft limit defaults
// to DefaultSoftLimit.
func NewController(opts ...ControllerOption) (*Controller, error) {
	cfg := ControllerConfig{
		Limits:  DefaultLimits(),
		Backend: DefaultBackendConfig(),
		Logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	return &Controller{
		limits:   cfg.Limits,
		backend:  cfg.Backend,
		discover: cfg.Discoverer,
		log:      cfg.Logger,
		axes:     cfg.Axes,
	}, nil
}

// Connect opens a session on port. An empty port runs discovery and uses
// the best confirmed controller that has no session in this process.
func (c *Controller) Connect(ctx context.Context, port string) (err error) {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, c.session.Port)
	}
	c.state = StateConnecting
	c.attempt++
	attempt := c.attempt
	c.mu.Unlock()

	t, session, err := c.open(ctx, port)

	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.attempt == attempt && c.state == StateConnecting
	if err != nil {
		if current {
			c.state = StateDisconnected
		}
		return err
	}
	if !current {
		// closed while connecting, possibly with a newer Connect under way
		t.Close()
		sessions.release(session.Port, session.ID)
		return fmt.Errorf("%w: closed during connect", ErrNotConnected)
	}

	c.transport = t
	c.session = session
	c.cache = make(map[Axis]float64)
	c.state = StateConnected

	c.log.Info().Str("port", session.Port).Str("session", session.ID).Str("backend", string(session.Backend)).
		Str("model", session.Model).Bool("fell_back", session.FellBack).Msg("connected")
	return nil
}

// open acquires the port, selects a backend and identifies the device.
// On failure everything acquired so far is released.
func (c *Controller) open(ctx context.Context, port string) (_ Transport, _ Session, err error) {
	if port == "" {
		port, err = c.pickPort(ctx)
		if err != nil {
			return nil, Session{}, err
		}
	}
	log := c.log.With().Str("port", port).Logger()

	id, err := sessions.acquire(port)
	if err != nil {
		return nil, Session{}, err
	}
	defer func() {
		if err != nil {
			sessions.release(port, id)
		}
	}()

	sel, err := SelectBackend(c.backend, log)
	if err != nil {
		return nil, Session{}, err
	}

	t, err := sel.Backend.Open(ctx, port)
	if err != nil {
		return nil, Session{}, err
	}

	resp, err := t.Send(ctx, Command{Op: OpIdentify})
	if err != nil {
		t.Close()
		return nil, Session{}, &CommandError{Op: opNameIdentify, Port: port, Err: err}
	}
	model := Identify(resp.Text).Model
	axes := axesForModel(model)
	if len(c.axes) > 0 {
		axes = c.axes
	}

	return t, Session{
		ID:       id,
		Backend:  t.Kind(),
		Port:     port,
		Model:    model,
		Axes:     axes,
		FellBack: sel.FellBack,
		OpenedAt: time.Now(),
	}, nil
}

func (c *Controller) pickPort(ctx context.Context) (string, error) {
	d := c.discover
	if d == nil {
		var err error
		d, err = NewDiscoverer(WithDiscoveryLogger(c.log))
		if err != nil {
			return "", err
		}
	}

	results, err := d.Discover(ctx)
	if err != nil {
		return "", err
	}
	for _, r := range results {
		if r.Confirmed() && !sessions.held(r.Port) {
			return r.Port, nil
		}
	}
	return "", ErrNoDeviceFound
}

// IsConnected reports whether a session is open.
func (c *Controller) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the open session, or ErrNotConnected.
func (c *Controller) Session() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return Session{}, ErrNotConnected
	}
	return c.session, nil
}

// Limits returns the active voltage limits.
func (c *Controller) Limits() Limits {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limits
}

// SetSoftLimit replaces the soft limit. It is the only way to raise the
// ceiling; SetVoltageSafe never does.
func (c *Controller) SetSoftLimit(volts float64) error {
	l, err := NewLimits(volts)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Warn().Float64("old", c.limits.Soft).Float64("new", l.Soft).
		Float64("effective", l.Ceiling()).Msg("soft voltage limit changed")
	c.limits = l
	return nil
}

// checkAxis validates axis against the supported set, the connection
// state and the axes of the connected model, in that order.
func (c *Controller) checkAxis(axis Axis) error {
	if !axis.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAxis, axis)
	}
	if c.state != StateConnected {
		return ErrNotConnected
	}
	if !c.session.HasAxis(axis) {
		return fmt.Errorf("%w: %q on %s (%s)", ErrInvalidAxis, axis, c.session.Port, c.session.Model)
	}
	return nil
}

// SetVoltageSafe clamps value under the configured limits and writes it.
// The returned command reports the applied value and whether it was
// clamped. A failed write leaves the session open.
func (c *Controller) SetVoltageSafe(ctx context.Context, axis Axis, value float64) (VoltageCommand, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkAxis(axis); err != nil {
		return VoltageCommand{}, err
	}

	vc := Evaluate(axis, value, c.limits.Soft, c.limits.Hard)
	if vc.Clamped {
		c.log.Warn().Str("port", c.session.Port).Str("axis", string(axis)).
			Float64("requested", value).Float64("applied", vc.Applied).Msg("voltage clamped")
	}

	_, err := c.transport.Send(ctx, Command{Op: OpSetVoltage, Axis: axis, Value: vc.Applied})
	if err != nil {
		return vc, &CommandError{Op: opNameSetVoltage, Port: c.session.Port, Axis: axis, Requested: value, Value: vc.Applied, Err: err}
	}
	c.cache[axis] = vc.Applied
	return vc, nil
}

// GetVoltage reads the present output of one axis.
func (c *Controller) GetVoltage(ctx context.Context, axis Axis) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkAxis(axis); err != nil {
		return 0, err
	}
	return c.readVoltage(ctx, axis)
}

func (c *Controller) readVoltage(ctx context.Context, axis Axis) (float64, error) {
	resp, err := c.transport.Send(ctx, Command{Op: OpGetVoltage, Axis: axis})
	if err != nil {
		return 0, &CommandError{Op: opNameGetVoltage, Port: c.session.Port, Axis: axis, Err: err}
	}
	c.cache[axis] = resp.Value
	return resp.Value, nil
}

// Close ends the session and releases the port. It is safe to call in any
// state and always leaves the controller disconnected.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateDisconnected:
		return nil
	case StateConnecting:
		// the pending Connect sees the new attempt and releases what it acquired
		c.attempt++
		c.state = StateDisconnected
		return nil
	}

	var err error
	if c.transport != nil {
		err = c.transport.Close()
	}
	sessions.release(c.session.Port, c.session.ID)
	c.log.Info().Str("port", c.session.Port).Str("session", c.session.ID).Msg("disconnected")

	c.transport = nil
	c.session = Session{}
	c.cache = nil
	c.state = StateDisconnected
	return err
}

// WithController connects a new controller, runs fn and closes the session
// on every exit path, panics included.
func WithController(ctx context.Context, port string, fn func(*Controller) error, opts ...ControllerOption) (err error) {
	c, err := NewController(opts...)
	if err != nil {
		return err
	}
	if err := c.Connect(ctx, port); err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil && !errors.Is(cerr, ErrPortClosed) {
			err = cerr
		}
	}()
	return fn(c)
}
