//go:build windows

package printer

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows/registry"
)

// RFCOMMConnection wraps a Bluetooth COM port. Windows creates SPP ports for
// paired devices itself, so there is nothing to bring up or tear down.
type RFCOMMConnection struct {
	DevicePath string
	MAC        string
}

// ListPairedBluetoothDevices returns Bluetooth COM ports on Windows
func ListPairedBluetoothDevices() ([]BluetoothDevice, error) {
	btPorts, err := getBluetoothCOMPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list paired devices: %w", err)
	}
	var devices []BluetoothDevice
	for name, port := range btPorts {
		devices = append(devices, BluetoothDevice{
			Name: name,
			MAC:  port, // the COM port is the identifier on Windows
		})
	}
	return pairedDevices(devices)
}

// getBluetoothCOMPorts reads Bluetooth COM port mappings from registry
func getBluetoothCOMPorts() (map[string]string, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, `HARDWARE\DEVICEMAP\SERIALCOMM`, registry.READ)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	names, err := key.ReadValueNames(-1)
	if err != nil {
		return nil, err
	}

	ports := make(map[string]string)
	for _, name := range names {
		val, _, err := key.GetStringValue(name)
		if err != nil {
			continue
		}
		lower := strings.ToLower(name)
		if strings.Contains(lower, "bth") || strings.Contains(lower, "bluetooth") {
			ports[name] = val
		}
	}
	return ports, nil
}

// EstablishRFCOMM validates the COM port named by mac and returns its path.
func EstablishRFCOMM(ctx context.Context, mac string, channel int, log logrus.FieldLogger) (*RFCOMMConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrConnectionCanceled
	}
	if !strings.HasPrefix(strings.ToUpper(mac), "COM") {
		return nil, fmt.Errorf("%w: invalid COM port %q", ErrRFCOMMFailed, mac)
	}

	comPath := mac
	// COM10 and up need the \\.\ prefix
	if len(mac) > 4 {
		comPath = `\\.\` + mac
	}
	log.WithField("port", comPath).Info("using COM port")

	return &RFCOMMConnection{
		DevicePath: comPath,
		MAC:        mac,
	}, nil
}

// Close is a no-op on Windows
func (c *RFCOMMConnection) Close() error {
	return nil
}

// IsDeviceReady reports true while a path is set. Windows offers no cheap
// presence check short of opening the port, so link loss shows up as I/O errors.
func (c *RFCOMMConnection) IsDeviceReady() bool {
	return c.DevicePath != ""
}
