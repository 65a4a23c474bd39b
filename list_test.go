//go:build linux

package mdt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestListPorts(t *testing.T) {
	ports, err := SysfsLister{}.ListPorts()
	if err != nil {
		t.Errorf("ListPorts failed: %v", err)
	}

	// Check that all returned ports are valid paths
	for _, p := range ports {
		if !strings.HasPrefix(p.Path, "/dev/") {
			t.Errorf("Port path doesn't start with /dev/: %s", p.Path)
		}

		// Verify it's a character device
		if !isCharacterDevice(p.Path) {
			t.Errorf("Port is not a character device: %s", p.Path)
		}
	}

	// Check that ports are sorted
	for i := 1; i < len(ports); i++ {
		if ports[i-1].Path > ports[i].Path {
			t.Errorf("Ports are not sorted: %s > %s", ports[i-1].Path, ports[i].Path)
		}
	}
}

func TestIsCharacterDevice(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/dev/null", true},     // Should exist and be a character device
		{"/dev/zero", true},     // Should exist and be a character device
		{"/tmp", false},         // Directory, not character device
		{"/nonexistent", false}, // Doesn't exist
	}

	for _, test := range tests {
		result := isCharacterDevice(test.path)
		if result != test.expected {
			t.Errorf("isCharacterDevice(%s) = %v, expected %v", test.path, result, test.expected)
		}
	}
}

func TestGetPortDescription(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"ttyUSB0", "USB Serial Port"},
		{"ttyACM0", "USB CDC/ACM Device"},
		{"ttyS0", "Standard Serial Port"},
		{"ttyAMA0", "ARM Serial Port"},
		{"ttymxc0", "i.MX Serial Port"},
		{"ttyO0", "OMAP Serial Port"},
		{"ttySAC0", "Samsung Serial Port"},
		{"ttyTHS0", "Tegra Serial Port"},
		{"unknown", "Serial Port"},
	}

	for _, test := range tests {
		result := getPortDescription(test.name)
		if result != test.expected {
			t.Errorf("getPortDescription(%s) = %s, expected %s", test.name, result, test.expected)
		}
	}
}

func TestGetPortInfo(t *testing.T) {
	// /dev/null should always exist and be a character device
	info, err := GetPortInfo("/dev/null")
	if err != nil {
		t.Fatalf("GetPortInfo failed for /dev/null: %v", err)
	}

	if info.Name != "null" {
		t.Errorf("Expected name 'null', got '%s'", info.Name)
	}
	if info.Path != "/dev/null" {
		t.Errorf("Expected path '/dev/null', got '%s'", info.Path)
	}
	if info.Description == "" {
		t.Error("Description should not be empty")
	}

	_, err = GetPortInfo("/dev/nonexistent")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}

// TestIsSerialName tests that we correctly filter different types of devices
func TestIsSerialName(t *testing.T) {
	tests := []struct {
		name        string
		shouldMatch bool
	}{
		{"ttyUSB0", true},
		{"ttyUSB1", true},
		{"ttyACM0", true},
		{"ttyS0", true},
		{"ttyAMA0", true},
		{"ttyTHS2", true},
		{"tty1", false},    // Virtual terminal
		{"tty2", false},    // Virtual terminal
		{"console", false}, // Console
		{"ptmx", false},    // Pseudo-terminal multiplexer
		{"ptyp0", false},   // Pseudo-terminal
		{"random", false},  // Not a serial device
		{"urandom", false}, // Not a serial device
		{"ttyUSB", false},  // No index
	}

	for _, tt := range tests {
		if got := isSerialName(tt.name); got != tt.shouldMatch {
			t.Errorf("isSerialName(%q) = %v, expected %v", tt.name, got, tt.shouldMatch)
		}
	}
}

// fakeTree builds a /dev and /sys pair in a temp dir. Device nodes are
// symlinks to /dev/null so they stat as character devices.
type fakeTree struct {
	t   *testing.T
	dev string
	sys string
}

func newFakeTree(t *testing.T) *fakeTree {
	root := t.TempDir()
	ft := &fakeTree{t: t, dev: filepath.Join(root, "dev"), sys: filepath.Join(root, "sys")}
	for _, dir := range []string{ft.dev, ft.sys} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return ft
}

func (ft *fakeTree) node(name string) {
	if err := os.Symlink("/dev/null", filepath.Join(ft.dev, name)); err != nil {
		ft.t.Fatal(err)
	}
}

func (ft *fakeTree) file(path, content string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		ft.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
		ft.t.Fatal(err)
	}
}

// usbDevice writes the descriptor files of a USB device directory.
func (ft *fakeTree) usbDevice(dir string, attrs map[string]string) {
	for k, v := range attrs {
		ft.file(filepath.Join(dir, k), v)
	}
}

// link points /sys/class/tty/<name>/device at target.
func (ft *fakeTree) link(name, target string) {
	classDir := filepath.Join(ft.sys, "class", "tty", name)
	if err := os.MkdirAll(classDir, 0o755); err != nil {
		ft.t.Fatal(err)
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		ft.t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(classDir, "device")); err != nil {
		ft.t.Fatal(err)
	}
}

func TestSysfsListerListPorts(t *testing.T) {
	ft := newFakeTree(t)

	// ttyUSB: device link points at the tty dir below the interface
	ftdi := filepath.Join(ft.sys, "devices", "usb5", "5-2")
	ft.usbDevice(ftdi, map[string]string{
		"idVendor":     "0403",
		"idProduct":    "6001",
		"serial":       "A1B2C3",
		"manufacturer": "FTDI",
		"product":      "FT232R USB UART",
		"busnum":       "5",
		"devnum":       "7",
	})
	ft.file(filepath.Join(ftdi, "5-2:1.0", "bInterfaceNumber"), "00")
	ft.link("ttyUSB0", filepath.Join(ftdi, "5-2:1.0", "ttyUSB0"))
	ft.node("ttyUSB0")

	// ttyACM: device link points straight at the interface
	thor := filepath.Join(ft.sys, "devices", "usb3", "3-1")
	ft.usbDevice(thor, map[string]string{
		"idVendor":     "1313",
		"idProduct":    "80a0",
		"manufacturer": "Thorlabs",
		"product":      "MDT694B",
		"busnum":       "3",
		"devnum":       "2",
	})
	ft.file(filepath.Join(thor, "3-1:1.0", "bInterfaceNumber"), "00")
	ft.link("ttyACM0", filepath.Join(thor, "3-1:1.0"))
	ft.node("ttyACM0")

	ft.node("ttyS4")   // standard port, no USB metadata
	ft.node("tty1")    // virtual terminal
	ft.node("urandom") // not serial
	ft.file(filepath.Join(ft.dev, "ttyS9"), "regular file")

	ports, err := SysfsLister{DevDir: ft.dev, SysDir: ft.sys}.ListPorts()
	if err != nil {
		t.Fatalf("ListPorts failed: %v", err)
	}

	var names []string
	for _, p := range ports {
		names = append(names, p.Name)
	}
	if got, want := strings.Join(names, ","), "ttyACM0,ttyS4,ttyUSB0"; got != want {
		t.Fatalf("ports = %s, want %s", got, want)
	}

	acm, std, usb := ports[0], ports[1], ports[2]

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"usb VendorID", usb.VendorID, "0403"},
		{"usb ProductID", usb.ProductID, "6001"},
		{"usb SerialNumber", usb.SerialNumber, "A1B2C3"},
		{"usb InterfaceNumber", usb.InterfaceNumber, "00"},
		{"usb BusNumber", usb.BusNumber, "5"},
		{"usb DeviceNumber", usb.DeviceNumber, "7"},
		{"usb Manufacturer", usb.Manufacturer, "FTDI"},
		{"usb Product", usb.Product, "FT232R USB UART"},
		{"usb Path", usb.Path, filepath.Join(ft.dev, "ttyUSB0")},
		{"acm VendorID", acm.VendorID, "1313"},
		{"acm Product", acm.Product, "MDT694B"},
		{"acm InterfaceNumber", acm.InterfaceNumber, "00"},
		{"acm Description", acm.Description, "USB CDC/ACM Device"},
		{"std VendorID", std.VendorID, ""},
		{"std Description", std.Description, "Standard Serial Port"},
	}

	for _, tt := range tests {
		if tt.got != tt.expected {
			t.Errorf("%s = %q, expected %q", tt.name, tt.got, tt.expected)
		}
	}
}

func TestSysfsListerEmpty(t *testing.T) {
	ft := newFakeTree(t)

	ports, err := SysfsLister{DevDir: ft.dev, SysDir: ft.sys}.ListPorts()
	if err != nil {
		t.Fatalf("ListPorts failed: %v", err)
	}
	if len(ports) != 0 {
		t.Errorf("expected no ports, got %v", ports)
	}
}

func TestSysfsListerEnumerationError(t *testing.T) {
	_, err := SysfsLister{DevDir: filepath.Join(t.TempDir(), "missing")}.ListPorts()
	if !errors.Is(err, ErrEnumeration) {
		t.Errorf("expected ErrEnumeration, got %v", err)
	}
}

// TestListPortsIntegration is an integration test that requires actual system
func TestListPortsIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ports, err := DefaultLister().ListPorts()
	if err != nil {
		t.Fatalf("ListPorts failed: %v", err)
	}

	t.Logf("Found %d serial ports:", len(ports))
	for i, p := range ports {
		t.Logf("  %d. %s (%s) vid=%s pid=%s", i+1, p.Path, p.Description, p.VendorID, p.ProductID)
	}
}

// BenchmarkListPorts benchmarks the sysfs lister
func BenchmarkListPorts(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := (SysfsLister{}).ListPorts(); err != nil {
			b.Errorf("ListPorts failed: %v", err)
		}
	}
}
