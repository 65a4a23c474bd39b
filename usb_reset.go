package mdt

import (
	"fmt"
	"os/exec"
	"time"
)

// ResetUSBDevice performs a USB-level reset of the bridge behind a port.
// This recovers adapters that stop answering after a controller power cycle.
//
// Requirements:
// - usbreset utility must be installed (from usbutils package)
// - Requires appropriate permissions (typically root/sudo)
//
// Returns:
// - nil if reset successful
// - ErrPortBusy if this process has a session open on the port
// - ErrUSBResetNotAvailable if usbreset utility not found
// - ErrUSBInfoNotAvailable if device is not USB or metadata unavailable
// - error if reset fails
func ResetUSBDevice(portPath string) error {
	if sessions.held(portPath) {
		return fmt.Errorf("%w: close the session before resetting %s", ErrPortBusy, portPath)
	}

	info, err := GetPortInfo(portPath)
	if err != nil {
		return fmt.Errorf("failed to get port info: %w", err)
	}

	if info.BusNumber == "" || info.DeviceNumber == "" {
		return ErrUSBInfoNotAvailable
	}

	if !IsUSBResetAvailable() {
		return ErrUSBResetNotAvailable
	}

	cmd := exec.Command("usbreset", usbPath(info.BusNumber, info.DeviceNumber))
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("usbreset failed: %w (output: %s)", err, string(output))
	}

	// USB devices typically take 1-2 seconds to re-enumerate
	time.Sleep(2 * time.Second)

	return nil
}

// usbPath formats bus and device numbers as usbreset expects (BBB/DDD)
func usbPath(bus, device string) string {
	pad := func(s string) string {
		for len(s) < 3 {
			s = "0" + s
		}
		return s
	}
	return pad(bus) + "/" + pad(device)
}

// ResetUSBDeviceBySerial resets a USB device by its serial number
// Useful when device paths change after reboot or when multiple devices are connected
func ResetUSBDeviceBySerial(serialNumber string) error {
	ports, err := SysfsLister{}.ListPorts()
	if err != nil {
		return err
	}

	for _, p := range ports {
		if p.SerialNumber == serialNumber {
			return ResetUSBDevice(p.Path)
		}
	}

	return fmt.Errorf("device with serial %s not found", serialNumber)
}

// IsUSBResetAvailable checks if usbreset utility is available in PATH
func IsUSBResetAvailable() bool {
	_, err := exec.LookPath("usbreset")
	return err == nil
}
