package mdt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
)

// PortInfo describes a serial port as reported by the operating system.
// Vendor and product identifiers may be empty or belong to a generic
// USB-serial bridge rather than the instrument behind it.
type PortInfo struct {
	Name            string `json:"name" yaml:"name"`
	Path            string `json:"path" yaml:"path"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty"`
	VendorID        string `json:"vid,omitempty" yaml:"vid,omitempty"`
	ProductID       string `json:"pid,omitempty" yaml:"pid,omitempty"`
	SerialNumber    string `json:"serial_number,omitempty" yaml:"serial_number,omitempty"`
	Manufacturer    string `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	Product         string `json:"product,omitempty" yaml:"product,omitempty"`
	InterfaceNumber string `json:"interface,omitempty" yaml:"interface,omitempty"`
	BusNumber       string `json:"bus,omitempty" yaml:"bus,omitempty"`
	DeviceNumber    string `json:"device,omitempty" yaml:"device,omitempty"`
}

// Lister enumerates the serial ports currently present on the system.
type Lister interface {
	ListPorts() ([]PortInfo, error)
}

// DefaultLister returns the sysfs lister on Linux and the cross-platform
// enumerator elsewhere.
func DefaultLister() Lister {
	if runtime.GOOS == "linux" {
		return SysfsLister{}
	}
	return EnumeratorLister{}
}

// Regular expressions for different types of serial devices
var serialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^ttyUSB\d+$`), // USB serial adapters
	regexp.MustCompile(`^ttyACM\d+$`), // USB CDC/ACM devices
	regexp.MustCompile(`^ttyS\d+$`),   // Standard serial ports
	regexp.MustCompile(`^ttyAMA\d+$`), // ARM/Raspberry Pi serial
	regexp.MustCompile(`^ttymxc\d+$`), // i.MX serial ports
	regexp.MustCompile(`^ttyO\d+$`),   // OMAP serial ports
	regexp.MustCompile(`^ttySAC\d+$`), // Samsung serial ports
	regexp.MustCompile(`^ttyTHS\d+$`), // Tegra serial ports
}

// Exclude patterns for virtual terminals and other non-serial devices
var excludePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^tty\d+$`),  // Virtual terminals (tty1, tty2, etc.)
	regexp.MustCompile(`^console$`), // Console
	regexp.MustCompile(`^ptmx$`),    // Pseudo-terminal multiplexer
	regexp.MustCompile(`^pty.*$`),   // Pseudo-terminals
	regexp.MustCompile(`^pts/.*$`),  // Pseudo-terminal slaves
}

// SysfsLister lists ports from /dev and reads USB metadata from sysfs.
// Empty fields select the system defaults.
type SysfsLister struct {
	DevDir string
	SysDir string
}

func (l SysfsLister) devDir() string {
	if l.DevDir == "" {
		return "/dev"
	}
	return l.DevDir
}

func (l SysfsLister) sysDir() string {
	if l.SysDir == "" {
		return "/sys"
	}
	return l.SysDir
}

// ListPorts returns the serial ports under DevDir, sorted by path, with
// USB metadata filled in where sysfs provides it.
func (l SysfsLister) ListPorts() ([]PortInfo, error) {
	entries, err := os.ReadDir(l.devDir())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumeration, err)
	}

	var ports []PortInfo
	for _, entry := range entries {
		name := entry.Name()
		if !isSerialName(name) {
			continue
		}

		fullPath := filepath.Join(l.devDir(), name)
		if !isCharacterDevice(fullPath) {
			continue
		}
		ports = append(ports, l.describe(name, fullPath))
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Path < ports[j].Path })
	return ports, nil
}

// isSerialName reports whether a /dev entry name looks like a serial port
func isSerialName(name string) bool {
	for _, excludePattern := range excludePatterns {
		if excludePattern.MatchString(name) {
			return false
		}
	}
	for _, pattern := range serialPatterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

// isCharacterDevice checks if the given path is a character device
func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func (l SysfsLister) describe(name, path string) PortInfo {
	info := PortInfo{
		Name:        name,
		Path:        path,
		Description: getPortDescription(name),
	}
	if strings.HasPrefix(name, "ttyUSB") || strings.HasPrefix(name, "ttyACM") {
		l.enrichUSBInfo(&info)
	}
	return info
}

// GetPortInfo returns detailed information about a specific port
func GetPortInfo(portPath string) (*PortInfo, error) {
	if !isCharacterDevice(portPath) {
		return nil, ErrDeviceNotFound
	}
	info := SysfsLister{}.describe(filepath.Base(portPath), portPath)
	return &info, nil
}

// getPortDescription provides human-readable descriptions for different port types
func getPortDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial Port"
	case strings.HasPrefix(name, "ttySAC"):
		return "Samsung Serial Port"
	case strings.HasPrefix(name, "ttyTHS"):
		return "Tegra Serial Port"
	case strings.HasPrefix(name, "ttyO"):
		return "OMAP Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	default:
		return "Serial Port"
	}
}

// enrichUSBInfo follows /sys/class/tty/<name>/device to the USB interface
// and device directories and copies their descriptor files. Missing files
// leave the fields empty.
//
// Layout: .../<usbdev>/<usbdev>:<cfg>.<if>/<ttyUSBn>. CDC/ACM devices link
// straight to the interface directory.
func (l SysfsLister) enrichUSBInfo(info *PortInfo) {
	devicePath := filepath.Join(l.sysDir(), "class", "tty", info.Name, "device")
	resolvedPath, err := filepath.EvalSymlinks(devicePath)
	if err != nil {
		return
	}

	interfacePath := resolvedPath
	if readSysfsFile(filepath.Join(interfacePath, "bInterfaceNumber")) == "" {
		interfacePath = filepath.Dir(resolvedPath)
	}
	info.InterfaceNumber = readSysfsFile(filepath.Join(interfacePath, "bInterfaceNumber"))

	usbDevicePath := filepath.Dir(interfacePath)
	info.VendorID = readSysfsFile(filepath.Join(usbDevicePath, "idVendor"))
	info.ProductID = readSysfsFile(filepath.Join(usbDevicePath, "idProduct"))
	info.SerialNumber = readSysfsFile(filepath.Join(usbDevicePath, "serial"))
	info.Manufacturer = readSysfsFile(filepath.Join(usbDevicePath, "manufacturer"))
	info.Product = readSysfsFile(filepath.Join(usbDevicePath, "product"))
	info.BusNumber = readSysfsFile(filepath.Join(usbDevicePath, "busnum"))
	info.DeviceNumber = readSysfsFile(filepath.Join(usbDevicePath, "devnum"))
}

// readSysfsFile returns the trimmed content of a sysfs attribute, or "" if
// it cannot be read.
func readSysfsFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
