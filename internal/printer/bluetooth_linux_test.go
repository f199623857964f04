//go:build linux

package printer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBluetoothctlDevices(t *testing.T) {
	out := "Device 00:11:22:33:44:55 nemonic Label\n" +
		"Device AA:BB:CC:DD:EE:FF JBL Flip 5\n" +
		"[CHG] Controller 11:11:11:11:11:11 Discovering: yes\n" +
		"Device 12:34:56:78:9A:BC\n\n"

	assert.Equal(t, []BluetoothDevice{
		{Name: "nemonic Label", MAC: "00:11:22:33:44:55"},
		{Name: "JBL Flip 5", MAC: "AA:BB:CC:DD:EE:FF"},
	}, parseBluetoothctlDevices(out))
}
