package mdt

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// EnumeratorLister lists ports through the platform enumeration APIs
// (SetupAPI on Windows, IOKit on macOS, sysfs on Linux).
type EnumeratorLister struct{}

// ListPorts returns the detected ports sorted by name.
func (EnumeratorLister) ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumeration, err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, portInfoFromDetails(d))
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Path < ports[j].Path })
	return ports, nil
}

func portInfoFromDetails(d *enumerator.PortDetails) PortInfo {
	info := PortInfo{
		Name: filepath.Base(d.Name),
		Path: d.Name,
	}
	if !d.IsUSB {
		info.Description = "Serial Port"
		return info
	}
	info.Description = "USB Serial Port"
	info.VendorID = strings.ToLower(d.VID)
	info.ProductID = strings.ToLower(d.PID)
	info.SerialNumber = d.SerialNumber
	info.Product = d.Product
	return info
}
