//go:build !linux && !windows

package printer

import (
	"context"

	"github.com/sirupsen/logrus"
)

// RFCOMMConnection is unavailable on this platform.
type RFCOMMConnection struct {
	DevicePath string
	MAC        string
}

// ListPairedBluetoothDevices is not supported on this platform.
func ListPairedBluetoothDevices() ([]BluetoothDevice, error) {
	return nil, ErrNotSupported
}

// EstablishRFCOMM is not supported on this platform.
func EstablishRFCOMM(ctx context.Context, mac string, channel int, log logrus.FieldLogger) (*RFCOMMConnection, error) {
	return nil, ErrNotSupported
}

func (c *RFCOMMConnection) Close() error {
	return nil
}

func (c *RFCOMMConnection) IsDeviceReady() bool {
	return false
}
