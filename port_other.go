//go:build !linux

package mdt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.bug.st/serial"
)

// port wraps go.bug.st/serial on platforms without the termios implementation
type port struct {
	mu     sync.RWMutex
	sp     serial.Port
	device string
	closed bool
}

var _ Port = (*port)(nil)

func openError(device string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound:
			return fmt.Errorf("failed to open %s: %w", device, ErrDeviceNotFound)
		case serial.PermissionDenied:
			return fmt.Errorf("failed to open %s: %w", device, ErrPermissionDenied)
		case serial.PortBusy:
			return fmt.Errorf("failed to open %s: %w", device, ErrDeviceInUse)
		case serial.InvalidSpeed:
			return ErrInvalidBaudRate
		}
	}
	return fmt.Errorf("failed to open %s: %v", device, err)
}

func openPort(device string, config Config) (Port, error) {
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	if config.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch config.Parity {
	case ParityOdd:
		mode.Parity = serial.OddParity
	case ParityEven:
		mode.Parity = serial.EvenParity
	}

	sp, err := serial.Open(device, mode)
	if err != nil {
		return nil, openError(device, err)
	}
	if err := sp.SetReadTimeout(config.ReadTimeout()); err != nil {
		sp.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %v", device, err)
	}

	return &port{sp: sp, device: device}, nil
}

func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	p.closed = true
	return p.sp.Close()
}

func (p *port) Read(buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	return p.sp.Read(buf)
}

func (p *port) Write(data []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	return p.sp.Write(data)
}

func (p *port) WriteContext(ctx context.Context, data []byte) (int, error) {
	n, err := doContext(ctx, func() (int, error) { return p.Write(data) })
	if errors.Is(err, context.DeadlineExceeded) {
		return n, fmt.Errorf("%w: %v", ErrWriteTimeout, err)
	}
	return n, err
}

func (p *port) ReadContext(ctx context.Context, buf []byte) (int, error) {
	n, err := doContext(ctx, func() (int, error) { return p.Read(buf) })
	if errors.Is(err, context.DeadlineExceeded) {
		return n, fmt.Errorf("%w: %v", ErrReadTimeout, err)
	}
	return n, err
}

func (p *port) Drain() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	return p.sp.Drain()
}

func (p *port) FlushInput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	return p.sp.ResetInputBuffer()
}

func (p *port) FlushOutput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	return p.sp.ResetOutputBuffer()
}
