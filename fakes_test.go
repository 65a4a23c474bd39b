package mdt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// fakeDevice emulates an MDT controller, or something else, behind a
// serial port. Replies follow the firmware: echo, payload, prompt.
type fakeDevice struct {
	mu      sync.Mutex
	notify  chan struct{}
	pending []byte
	closed  bool
	opens   int
	writes  []string

	idReply   string // reply to id?; "" means CMD_NOT_DEFINED
	idnReply  string // reply to *IDN?; "" means CMD_NOT_DEFINED
	silent    bool   // accept writes, never answer
	garbage   string // answer every command with this text instead
	rejectSet bool
	eol       string        // only commands ending in eol are answered, if set
	mute      map[Axis]bool // reads of these axes are not answered
	limit     float64
	volts     map[Axis]float64
}

var _ Port = (*fakeDevice)(nil)

func newMDT(model string) *fakeDevice {
	return &fakeDevice{
		notify:  make(chan struct{}, 1),
		idReply: model + " Piezo Controller\rFirmware Version: 1.09",
		limit:   150,
		volts:   map[Axis]float64{},
		mute:    map[Axis]bool{},
	}
}

func newSilent() *fakeDevice {
	d := newMDT("")
	d.silent = true
	return d
}

func newGarbage(text string) *fakeDevice {
	d := newMDT("")
	d.garbage = text
	return d
}

func (d *fakeDevice) reply(cmd string) string {
	if d.garbage != "" {
		return d.garbage
	}

	lower := strings.ToLower(cmd)
	var payload string
	switch {
	case lower == "id?":
		payload = d.idReply
	case cmd == "*IDN?":
		payload = d.idnReply
	case lower == "xr?":
		payload = fmt.Sprintf("[%6.2f]", d.volts[AxisX])
	case lower == "vlimit?":
		payload = fmt.Sprintf("[%.0f]", d.limit)
	case len(lower) == 9 && strings.HasSuffix(lower, "voltage?"):
		axis := Axis(strings.ToUpper(lower[:1]))
		if d.mute[axis] {
			return ""
		}
		payload = fmt.Sprintf("[%6.2f]", d.volts[axis])
	case strings.Contains(lower, "voltage="):
		if d.rejectSet {
			payload = "CMD_ARG_INVALID"
			break
		}
		axis := Axis(strings.ToUpper(lower[:1]))
		v, err := strconv.ParseFloat(lower[strings.Index(lower, "=")+1:], 64)
		if err != nil {
			payload = "CMD_ARG_INVALID"
			break
		}
		d.volts[axis] = v
		return cmd + "\r>"
	}
	if payload == "" {
		payload = "CMD_NOT_DEFINED"
	}
	return cmd + "\r" + payload + "\r>"
}

func (d *fakeDevice) open() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = false
	d.opens++
	d.pending = nil
}

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *fakeDevice) sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.writes...)
}

func (d *fakeDevice) voltage(a Axis) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volts[a]
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrPortClosed
	}
	d.closed = true
	return nil
}

// fakeReadTimeout plays the part of VTIME: Read waits this long for data
// before returning 0, nil.
const fakeReadTimeout = 10 * time.Millisecond

func (d *fakeDevice) Read(buf []byte) (int, error) {
	timer := time.NewTimer(fakeReadTimeout)
	defer timer.Stop()
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return 0, ErrPortClosed
		}
		if len(d.pending) > 0 {
			n := copy(buf, d.pending)
			d.pending = d.pending[n:]
			d.mu.Unlock()
			return n, nil
		}
		d.mu.Unlock()

		select {
		case <-timer.C:
			return 0, nil
		case <-d.notify:
		}
	}
}

func (d *fakeDevice) Write(data []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, ErrPortClosed
	}
	cmd := strings.TrimRight(string(data), "\r\n")
	d.writes = append(d.writes, cmd)
	if !d.silent && (d.eol == "" || strings.HasSuffix(string(data), d.eol)) {
		d.pending = append(d.pending, d.reply(cmd)...)
	}
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
	return len(data), nil
}

func (d *fakeDevice) WriteContext(ctx context.Context, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteTimeout, err)
	}
	return d.Write(data)
}

// ReadContext returns pending bytes or blocks until more arrive or ctx
// expires, like a port whose read timeout is longer than ctx.
func (d *fakeDevice) ReadContext(ctx context.Context, buf []byte) (int, error) {
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return 0, ErrPortClosed
		}
		if len(d.pending) > 0 {
			n := copy(buf, d.pending)
			d.pending = d.pending[n:]
			d.mu.Unlock()
			return n, nil
		}
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %v", ErrReadTimeout, ctx.Err())
		case <-d.notify:
		}
	}
}

func (d *fakeDevice) Drain() error { return nil }

func (d *fakeDevice) FlushInput() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
	return nil
}

func (d *fakeDevice) FlushOutput() error { return nil }

// fakeBus maps port paths to fake devices and implements OpenFunc and
// Lister over them.
type fakeBus struct {
	mu      sync.Mutex
	devices map[string]*fakeDevice
	openErr map[string]error
	infos   []PortInfo
	listErr error
}

func newFakeBus() *fakeBus {
	return &fakeBus{devices: map[string]*fakeDevice{}, openErr: map[string]error{}}
}

func (b *fakeBus) add(path string, d *fakeDevice) *fakeBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[path] = d
	b.infos = append(b.infos, PortInfo{Name: path[strings.LastIndex(path, "/")+1:], Path: path})
	return b
}

func (b *fakeBus) addBroken(path string, err error) *fakeBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr[path] = err
	b.infos = append(b.infos, PortInfo{Name: path[strings.LastIndex(path, "/")+1:], Path: path})
	return b
}

func (b *fakeBus) Open(device string, opts ...Option) (Port, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.openErr[device]; err != nil {
		return nil, err
	}
	d, ok := b.devices[device]
	if !ok {
		return nil, fmt.Errorf("failed to open %s: %w", device, ErrDeviceNotFound)
	}
	d.open()
	return d, nil
}

func (b *fakeBus) ListPorts() ([]PortInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]PortInfo(nil), b.infos...), nil
}

// fakeLibrary stands in for the vendor command library.
type fakeLibrary struct {
	mu      sync.Mutex
	id      string
	volts   map[Axis]float64
	handles map[int]string
	next    int
	delay   time.Duration
	openErr error
	setErr  error
}

var _ CommandLibrary = (*fakeLibrary)(nil)

func newFakeLibrary(id string) *fakeLibrary {
	return &fakeLibrary{id: id, volts: map[Axis]float64{}, handles: map[int]string{}}
}

func (l *fakeLibrary) Open(port string, baud int, timeout time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.openErr != nil {
		return -1, l.openErr
	}
	l.next++
	l.handles[l.next] = port
	return l.next, nil
}

func (l *fakeLibrary) Close(hdl int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handles, hdl)
	return nil
}

func (l *fakeLibrary) open() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handles)
}

func (l *fakeLibrary) ID(hdl int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.id, nil
}

func (l *fakeLibrary) SetVoltage(hdl int, axis Axis, volts float64) error {
	l.mu.Lock()
	delay, err := l.delay, l.setErr
	l.mu.Unlock()
	time.Sleep(delay)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.volts[axis] = volts
	return nil
}

func (l *fakeLibrary) Voltage(hdl int, axis Axis) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.volts[axis], nil
}

func (l *fakeLibrary) VoltageLimit(hdl int) (float64, error) {
	return 150, nil
}
