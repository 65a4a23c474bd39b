package mdt

import (
	"context"
)

// Port represents a serial port connection interface
type Port interface {
	Close() error
	Read(buf []byte) (int, error)
	Write(data []byte) (int, error)
	WriteContext(ctx context.Context, data []byte) (int, error)
	ReadContext(ctx context.Context, buf []byte) (int, error)
	Drain() error
	FlushInput() error
	FlushOutput() error
}

// OpenFunc opens a serial port. The prober and the serial backend take one
// so that alternative port implementations can be substituted.
type OpenFunc func(device string, opts ...Option) (Port, error)

// Open opens a serial port with the given device path and options
func Open(device string, opts ...Option) (Port, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}
	return openPort(device, config)
}

type ioResult struct {
	n   int
	err error
}

// doContext runs a blocking I/O call in a goroutine and returns early when
// ctx is done. The call itself is bounded by the port's read timeout.
func doContext(ctx context.Context, op func() (int, error)) (int, error) {
	// Check if context is already cancelled
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	resultCh := make(chan ioResult, 1)
	go func() {
		n, err := op()
		resultCh <- ioResult{n: n, err: err}
	}()

	select {
	case result := <-resultCh:
		return result.n, result.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
