package printer

import (
	"errors"
	"strings"

	"nemonic-bridge/internal/nemonic"
)

// Common errors
var (
	ErrNoDevicesFound     = errors.New("no paired Bluetooth devices found")
	ErrRFCOMMFailed       = errors.New("failed to establish RFCOMM connection")
	ErrPrivilegeRequired  = errors.New("root privileges required for RFCOMM")
	ErrConnectionCanceled = errors.New("connection canceled")
	ErrNotSupported       = errors.New("operation not supported on this platform")
)

// BluetoothDevice represents a paired Bluetooth device
type BluetoothDevice struct {
	Name string
	MAC  string // MAC address on Linux, or COM port on Windows
}

// TypeForName guesses the printer model from an advertised name.
func TypeForName(name string) nemonic.PrinterType {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "label"):
		return nemonic.TypeNemonicLabel
	case strings.Contains(n, "mip"):
		return nemonic.TypeNemonicMIP
	case n == "":
		return nemonic.TypeNone
	default:
		return nemonic.TypeNemonic
	}
}

// MatchName reports whether name contains any of the filters, ignoring case.
// An empty filter list matches every non-empty name.
func MatchName(name string, filters []string) bool {
	if name == "" {
		return false
	}
	if len(filters) == 0 {
		return true
	}
	n := strings.ToLower(name)
	for _, f := range filters {
		if f != "" && strings.Contains(n, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

// pairedDevices returns devices, or ErrNoDevicesFound when there are none.
func pairedDevices(devices []BluetoothDevice) ([]BluetoothDevice, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	return devices, nil
}
