package mdt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CommandLibrary is the vendor command library seen as an opaque set of
// calls. Handles are the library's own connection identifiers.
type CommandLibrary interface {
	Open(port string, baud int, timeout time.Duration) (int, error)
	Close(hdl int) error
	ID(hdl int) (string, error)
	SetVoltage(hdl int, axis Axis, volts float64) error
	Voltage(hdl int, axis Axis) (float64, error)
	VoltageLimit(hdl int) (float64, error)
}

type sdkBackend struct {
	lib CommandLibrary
	cfg BackendConfig
}

func (b *sdkBackend) Kind() BackendKind { return BackendSDK }

func (b *sdkBackend) Open(ctx context.Context, port string) (Transport, error) {
	serialCfg := DefaultConfig()
	for _, opt := range b.cfg.Serial {
		if err := opt(&serialCfg); err != nil {
			return nil, err
		}
	}

	hdl, err := callContext(ctx, func() (int, error) {
		return b.lib.Open(port, serialCfg.BaudRate, b.cfg.CommandTimeout)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPortUnavailable, err)
	}
	return &sdkTransport{lib: b.lib, hdl: hdl, port: port, timeout: b.cfg.CommandTimeout}, nil
}

type sdkTransport struct {
	mu      sync.Mutex
	lib     CommandLibrary
	hdl     int
	port    string
	timeout time.Duration
	closed  bool
}

var _ Transport = (*sdkTransport)(nil)

func (t *sdkTransport) Kind() BackendKind { return BackendSDK }

func (t *sdkTransport) Port() string { return t.port }

func (t *sdkTransport) Send(ctx context.Context, cmd Command) (Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return Response{}, ErrPortClosed
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return callContext(ctx, func() (Response, error) {
		switch cmd.Op {
		case OpIdentify:
			id, err := t.lib.ID(t.hdl)
			return Response{Text: id}, err
		case OpGetVoltage:
			v, err := t.lib.Voltage(t.hdl, cmd.Axis)
			return Response{Value: v}, err
		case OpSetVoltage:
			return Response{}, t.lib.SetVoltage(t.hdl, cmd.Axis, cmd.Value)
		case OpGetLimit:
			v, err := t.lib.VoltageLimit(t.hdl)
			return Response{Value: v}, err
		default:
			return Response{}, fmt.Errorf("%w: raw queries are not available through the command library", ErrDeviceCommand)
		}
	})
}

func (t *sdkTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.lib.Close(t.hdl)
}

// callContext runs a blocking library call and gives up when ctx is done.
// An abandoned call finishes in the background under the library's own
// timeout.
func callContext[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	resultCh := make(chan result, 1)
	go func() {
		v, err := call()
		resultCh <- result{v: v, err: err}
	}()

	select {
	case r := <-resultCh:
		return r.v, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %v", ErrReadTimeout, ctx.Err())
		}
		return zero, ctx.Err()
	}
}
