//go:build linux

package printer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RFCOMMConnection manages an rfcomm connect process (Linux-specific)
type RFCOMMConnection struct {
	DevicePath string
	MAC        string
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	helper     string
	mu         sync.Mutex
	closed     bool
}

// ListPairedBluetoothDevices returns all paired Bluetooth devices
func ListPairedBluetoothDevices() ([]BluetoothDevice, error) {
	out, err := exec.Command("bluetoothctl", "devices", "Paired").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list paired devices: %w", err)
	}
	return pairedDevices(parseBluetoothctlDevices(string(out)))
}

// parseBluetoothctlDevices parses "Device XX:XX:XX:XX:XX:XX Name" lines.
func parseBluetoothctlDevices(out string) []BluetoothDevice {
	var devices []BluetoothDevice
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Device ") {
			continue
		}
		mac, name, ok := strings.Cut(strings.TrimPrefix(line, "Device "), " ")
		if ok {
			devices = append(devices, BluetoothDevice{MAC: mac, Name: name})
		}
	}
	return devices
}

// findFreeRFCOMMDevice finds an unused /dev/rfcommN slot
func findFreeRFCOMMDevice() (string, int, error) {
	for i := 0; i < 10; i++ {
		devPath := fmt.Sprintf("/dev/rfcomm%d", i)
		out, _ := exec.Command("rfcomm", "show", devPath).Output()
		if len(out) == 0 || strings.Contains(string(out), "No such device") {
			return devPath, i, nil
		}
	}
	return "", -1, fmt.Errorf("%w: no free RFCOMM device slots", ErrRFCOMMFailed)
}

// privilegeHelper returns pkexec or sudo, whichever is installed first.
func privilegeHelper() string {
	for _, h := range []string{"pkexec", "sudo"} {
		if _, err := exec.LookPath(h); err == nil {
			return h
		}
	}
	return ""
}

func privileged(ctx context.Context, helper string, args ...string) *exec.Cmd {
	if helper == "sudo" {
		return exec.CommandContext(ctx, "sudo", append([]string{"-n", "rfcomm"}, args...)...)
	}
	return exec.CommandContext(ctx, "pkexec", append([]string{"rfcomm"}, args...)...)
}

// EstablishRFCOMM binds a free /dev/rfcommN to mac and returns once the
// device node exists, ctx is done, or 15 seconds have passed.
func EstablishRFCOMM(ctx context.Context, mac string, channel int, log logrus.FieldLogger) (*RFCOMMConnection, error) {
	if _, err := exec.LookPath("rfcomm"); err != nil {
		return nil, fmt.Errorf("%w: rfcomm not found, install bluez", ErrNotSupported)
	}
	devPath, devNum, err := findFreeRFCOMMDevice()
	if err != nil {
		return nil, err
	}
	helper := privilegeHelper()
	if helper == "" {
		return nil, ErrPrivilegeRequired
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := privileged(procCtx, helper, "connect", fmt.Sprintf("/dev/rfcomm%d", devNum), mac, strconv.Itoa(channel))
	conn := &RFCOMMConnection{
		DevicePath: devPath,
		MAC:        mac,
		cmd:        cmd,
		cancel:     cancel,
		helper:     helper,
	}

	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()

	log = log.WithFields(logrus.Fields{"mac": mac, "device": devPath})
	log.Info("connecting rfcomm")
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start rfcomm: %v", ErrRFCOMMFailed, err)
	}

	for _, r := range []io.Reader{stdout, stderr} {
		go func(r io.Reader) {
			scanner := bufio.NewScanner(r)
			for scanner.Scan() {
				log.Debug(scanner.Text())
			}
		}(r)
	}

	deadline := time.NewTimer(15 * time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, fmt.Errorf("%w: %w", ErrConnectionCanceled, ctx.Err())
		case <-deadline.C:
			conn.Close()
			return nil, fmt.Errorf("%w: timeout waiting for %s", ErrRFCOMMFailed, devPath)
		case <-tick.C:
			if _, err := os.Stat(devPath); err == nil {
				log.Info("rfcomm device ready")
				return conn, nil
			}
		}
	}
}

// Close terminates the rfcomm process and releases the device node.
func (c *RFCOMMConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if c.cancel != nil {
		c.cancel()
	}
	if c.DevicePath != "" && c.helper != "" {
		privileged(context.Background(), c.helper, "release", c.DevicePath).Run()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill()
		c.cmd.Wait()
	}
	return nil
}

// IsDeviceReady checks if the RFCOMM device is still available
func (c *RFCOMMConnection) IsDeviceReady() bool {
	if c.DevicePath == "" {
		return false
	}
	_, err := os.Stat(c.DevicePath)
	return err == nil
}
