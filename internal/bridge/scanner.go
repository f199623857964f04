package bridge

import (
	"github.com/sirupsen/logrus"

	"nemonic-bridge/internal/channel"
	"nemonic-bridge/internal/nemonic"
)

// Scanner is the scan bridge. Discovered printers are forwarded as they
// arrive, on the scan controller's goroutine.
type Scanner struct {
	ch      channel.Invoker
	scanner nemonic.ScanController
	log     logrus.FieldLogger
}

// NewScanner builds the scan bridge and its scan controller.
func NewScanner(ch channel.Invoker, newScanner func(nemonic.ScanCallback) nemonic.ScanController, log logrus.FieldLogger) *Scanner {
	s := &Scanner{
		ch:  ch,
		log: log.WithField("component", "scanner"),
	}
	s.scanner = newScanner(s)
	return s
}

// StartScan starts a scan session on the scan controller.
func (s *Scanner) StartScan() int {
	return s.scanner.StartScan()
}

// StopScan stops the scan session.
func (s *Scanner) StopScan() {
	s.scanner.StopScan()
}

// DeviceFound implements nemonic.ScanCallback.
func (s *Scanner) DeviceFound(p nemonic.Printer) {
	s.log.WithFields(logrus.Fields{"name": p.Name, "mac": p.MacAddress, "type": p.Type}).Debug("device found")
	s.ch.InvokeMethod(MethodDeviceFound, map[string]any{
		"name":       p.Name,
		"macAddress": p.MacAddress,
		"type":       int(p.Type),
	})
}
