package mdt

import (
	"context"
	"fmt"
	"sync"
)

// serialBackend speaks the MDT text protocol over a serial port.
type serialBackend struct {
	cfg BackendConfig
}

func (b *serialBackend) Kind() BackendKind { return BackendSerial }

func (b *serialBackend) Open(ctx context.Context, port string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sp, err := b.cfg.Open(port, b.cfg.Serial...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPortUnavailable, err)
	}
	return &serialTransport{port: port, sp: sp, cfg: b.cfg}, nil
}

type serialTransport struct {
	mu     sync.Mutex
	port   string
	sp     Port
	cfg    BackendConfig
	closed bool
}

var _ Transport = (*serialTransport)(nil)

func (t *serialTransport) Kind() BackendKind { return BackendSerial }

func (t *serialTransport) Port() string { return t.port }

// Send writes the command text and reads the echo and reply up to the
// prompt. No reply within CommandTimeout is an error, for sets as well.
func (t *serialTransport) Send(ctx context.Context, cmd Command) (Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return Response{}, ErrPortClosed
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.CommandTimeout)
	defer cancel()

	text := cmd.Text()
	if err := t.sp.FlushInput(); err != nil {
		return Response{}, err
	}
	if _, err := t.sp.WriteContext(ctx, []byte(text+t.cfg.EOL)); err != nil {
		return Response{}, err
	}

	raw, err := readReply(ctx, t.sp)
	if err != nil && len(raw) == 0 {
		return Response{}, err
	}

	reply := cleanReply(raw, text)
	if err := deviceError(reply); err != nil {
		return Response{Text: reply}, err
	}

	resp := Response{Text: reply}
	switch cmd.Op {
	case OpGetVoltage, OpGetLimit:
		v, err := parseNumber(reply)
		if err != nil {
			return resp, fmt.Errorf("%w: unparseable reply %q", ErrDeviceCommand, reply)
		}
		resp.Value = v
	}
	return resp, nil
}

func (t *serialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.sp.Close()
}
