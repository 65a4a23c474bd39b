//go:build windows && amd64

package mdt

import (
	"fmt"
	"math"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// dllLibrary binds the exported functions of MDT_COMMAND_LIB.dll. Every
// function returns a negative status on failure.
type dllLibrary struct {
	mu sync.Mutex

	open, close, getID, getLimit *windows.LazyProc
	setVoltage, getVoltage       map[Axis]*windows.LazyProc
}

// LoadSDK loads the vendor command library at path and resolves the calls
// used by the SDK backend.
func LoadSDK(path string) (CommandLibrary, error) {
	dll := windows.NewLazyDLL(path)
	if err := dll.Load(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSDKLoad, err)
	}

	lib := &dllLibrary{
		open:       dll.NewProc("Open"),
		close:      dll.NewProc("Close"),
		getID:      dll.NewProc("GetId"),
		getLimit:   dll.NewProc("GetLimtVoltage"),
		setVoltage: make(map[Axis]*windows.LazyProc),
		getVoltage: make(map[Axis]*windows.LazyProc),
	}
	for _, a := range AllAxes {
		lib.setVoltage[a] = dll.NewProc("Set" + string(a) + "AxisVoltage")
		lib.getVoltage[a] = dll.NewProc("Get" + string(a) + "AxisVoltage")
	}

	procs := []*windows.LazyProc{lib.open, lib.close, lib.getID, lib.getLimit}
	for _, a := range AllAxes {
		procs = append(procs, lib.setVoltage[a], lib.getVoltage[a])
	}
	for _, p := range procs {
		if err := p.Find(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSDKLoad, err)
		}
	}
	return lib, nil
}

func status(op string, r1 uintptr) error {
	if code := int32(r1); code < 0 {
		return fmt.Errorf("%s returned %d", op, code)
	}
	return nil
}

func (l *dllLibrary) Open(port string, baud int, timeout time.Duration) (int, error) {
	name, err := windows.BytePtrFromString(port)
	if err != nil {
		return 0, err
	}
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	r1, _, _ := l.open.Call(uintptr(unsafe.Pointer(name)), uintptr(baud), uintptr(secs))
	if err := status("Open", r1); err != nil {
		return 0, err
	}
	return int(int32(r1)), nil
}

func (l *dllLibrary) Close(hdl int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r1, _, _ := l.close.Call(uintptr(hdl))
	return status("Close", r1)
}

func (l *dllLibrary) ID(hdl int) (string, error) {
	buf := make([]byte, 256)

	l.mu.Lock()
	defer l.mu.Unlock()
	r1, _, _ := l.getID.Call(uintptr(hdl), uintptr(unsafe.Pointer(&buf[0])))
	if err := status("GetId", r1); err != nil {
		return "", err
	}
	return windows.ByteSliceToString(buf), nil
}

// SetVoltage passes the voltage as raw float64 bits; the amd64 syscall
// path mirrors the first four arguments into XMM0-3.
func (l *dllLibrary) SetVoltage(hdl int, axis Axis, volts float64) error {
	proc, ok := l.setVoltage[axis]
	if !ok {
		return ErrInvalidAxis
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	r1, _, _ := proc.Call(uintptr(hdl), uintptr(math.Float64bits(volts)))
	return status(proc.Name, r1)
}

func (l *dllLibrary) Voltage(hdl int, axis Axis) (float64, error) {
	proc, ok := l.getVoltage[axis]
	if !ok {
		return 0, ErrInvalidAxis
	}

	var v float64
	l.mu.Lock()
	defer l.mu.Unlock()
	r1, _, _ := proc.Call(uintptr(hdl), uintptr(unsafe.Pointer(&v)))
	if err := status(proc.Name, r1); err != nil {
		return 0, err
	}
	return v, nil
}

func (l *dllLibrary) VoltageLimit(hdl int) (float64, error) {
	var v float64
	l.mu.Lock()
	defer l.mu.Unlock()
	r1, _, _ := l.getLimit.Call(uintptr(hdl), uintptr(unsafe.Pointer(&v)))
	if err := status("GetLimtVoltage", r1); err != nil {
		return 0, err
	}
	return v, nil
}
