// Package devs loads the HIL device registry and binds each declared device
// to the hardware that is currently reachable: a serial endpoint found by
// enumerating connected interfaces, and a power-switch path found through
// uhubctl. A device with neither binding is simply not connected right now;
// that is a valid state, not an error.
package devs

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"go.bug.st/serial/enumerator"
	"gopkg.in/yaml.v3"

	"github.com/mpy-hil/planrunner/providers/uhubctl"
)

// SerialAccess is the serial endpoint of a connected device.
type SerialAccess struct {
	// Address is the addressable port path, e.g. /dev/ttyACM0.
	Address string
}

// Device is one registry entry, optionally bound to live hardware.
// The uid is the stable hardware serial number used for both bindings.
type Device struct {
	Name     string
	UID      string
	Features []string
	Access   *SerialAccess
	Switch   *uhubctl.Switch
}

// Connected reports whether the device currently has a serial endpoint.
func (d *Device) Connected() bool {
	return d.Access != nil
}

// HasFeature reports whether the registry declares the given feature tag.
func (d *Device) HasFeature(feature string) bool {
	for _, f := range d.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// SupportsBoard reports whether the device can stand in for the given board,
// optionally at a specific version. The board is either the device name or
// one of its feature tags; a version must appear as a feature tag.
func (d *Device) SupportsBoard(board, version string) bool {
	if d.Name != board && !d.HasFeature(board) {
		return false
	}
	if version != "" && !d.HasFeature(version) {
		return false
	}
	return true
}

// SerialPort is one enumerated serial interface.
type SerialPort struct {
	Device       string
	SerialNumber string
}

// PortLister enumerates the currently connected serial interfaces.
type PortLister func() ([]SerialPort, error)

// ListSerialPorts enumerates connected USB serial interfaces with their
// hardware serial numbers.
func ListSerialPorts() ([]SerialPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate serial ports failed")
	}
	var ports []SerialPort
	for _, d := range details {
		if !d.IsUSB {
			continue
		}
		ports = append(ports, SerialPort{Device: d.Name, SerialNumber: d.SerialNumber})
	}
	return ports, nil
}

// Registry constructs Device values from a registry document and binds them
// against the hardware visible at call time. Devices are built fresh on
// every Load; nothing is cached between calls.
type Registry struct {
	ctl       *uhubctl.Controller
	listPorts PortLister
}

// NewRegistry returns a Registry binding against live serial enumeration and
// the given power controller.
func NewRegistry(ctl *uhubctl.Controller) *Registry {
	return &Registry{ctl: ctl, listPorts: ListSerialPorts}
}

// NewRegistryWithLister returns a Registry with a custom port lister.
func NewRegistryWithLister(ctl *uhubctl.Controller, lister PortLister) *Registry {
	return &Registry{ctl: ctl, listPorts: lister}
}

type registryEntry struct {
	Name     string   `yaml:"name"`
	UID      string   `yaml:"uid"`
	Features []string `yaml:"features"`
}

// Load reads the registry document and returns one bound Device per entry.
// A missing or unparsable document is an error; an entry whose hardware is
// absent yields a Device with nil Access/Switch.
func (r *Registry) Load(ctx context.Context, path string) ([]*Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read devices file %q failed", path)
	}
	var entries []registryEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(err, "parse devices file %q failed", path)
	}

	ports, err := r.listPorts()
	if err != nil {
		return nil, err
	}

	devices := make([]*Device, 0, len(entries))
	for _, entry := range entries {
		dev := &Device{
			Name:     entry.Name,
			UID:      entry.UID,
			Features: entry.Features,
			Access:   accessFromUID(ports, entry.UID),
		}
		if r.ctl != nil {
			dev.Switch = uhubctl.SwitchFromUID(ctx, r.ctl, entry.UID)
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// accessFromUID matches the uid against the hardware serial numbers of the
// enumerated ports.
func accessFromUID(ports []SerialPort, uid string) *SerialAccess {
	if uid == "" {
		return nil
	}
	for _, p := range ports {
		if p.SerialNumber == uid {
			return &SerialAccess{Address: p.Device}
		}
	}
	return nil
}

// ScanConnected builds anonymous Device records straight from the connected
// serial interfaces, for querying hardware that has no registry entry.
func (r *Registry) ScanConnected() ([]*Device, error) {
	ports, err := r.listPorts()
	if err != nil {
		return nil, err
	}
	devices := make([]*Device, 0, len(ports))
	for _, p := range ports {
		devices = append(devices, &Device{
			UID:    p.SerialNumber,
			Access: &SerialAccess{Address: p.Device},
		})
	}
	return devices, nil
}

// ConnectedPortsForBoard returns the serial addresses of the connected
// devices that can serve the given board/version.
func ConnectedPortsForBoard(devices []*Device, board, version string) []string {
	var addrs []string
	for _, dev := range devices {
		if dev.Connected() && dev.SupportsBoard(board, version) {
			addrs = append(addrs, dev.Access.Address)
		}
	}
	return addrs
}
