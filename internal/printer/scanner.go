package printer

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"nemonic-bridge/internal/nemonic"
)

// ScanOptions configures a Scanner.
type ScanOptions struct {
	NameFilters   []string // case-insensitive substrings of the advertised name
	IncludePaired bool     // report paired devices before advertisements
}

// adapter is the part of *bluetooth.Adapter the scanner drives.
type adapter interface {
	Enable() error
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
}

// stopRetry bounds how long StopScan keeps retrying a stop that raced the
// start of the adapter scan.
const (
	stopRetryInterval = 100 * time.Millisecond
	stopRetries       = 50
)

// Scanner implements nemonic.ScanController over the system Bluetooth
// adapter.
type Scanner struct {
	adapter adapter
	opts    ScanOptions
	cb      nemonic.ScanCallback
	log     logrus.FieldLogger

	mu       sync.Mutex
	enabled  bool
	scanning bool
	stopping bool
	seen     map[string]bool
}

// NewScanner returns a Scanner on the default adapter.
func NewScanner(opts ScanOptions, cb nemonic.ScanCallback, log logrus.FieldLogger) *Scanner {
	return &Scanner{
		adapter: bluetooth.DefaultAdapter,
		opts:    opts,
		cb:      cb,
		log:     log.WithField("component", "scanner"),
	}
}

// StartScan begins a scan session and returns at once. Each address is
// reported at most once per session.
func (s *Scanner) StartScan() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanning {
		return nemonic.Busy
	}
	if !s.enabled {
		if err := s.adapter.Enable(); err != nil {
			s.log.WithError(err).Warn("enable bluetooth adapter")
			return nemonic.NotSupported
		}
		s.enabled = true
	}
	s.scanning = true
	s.seen = make(map[string]bool)

	go s.run()
	return nemonic.OK
}

func (s *Scanner) run() {
	if s.opts.IncludePaired {
		s.reportPaired()
	}

	s.mu.Lock()
	if s.stopping {
		s.scanning, s.stopping = false, false
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.log.Info("scanning")
	err := s.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		if s.stopRequested() {
			s.stopAdapter()
			return
		}
		s.report(r.LocalName(), r.Address.String())
	})

	s.mu.Lock()
	s.scanning, s.stopping = false, false
	s.mu.Unlock()
	if err != nil {
		s.log.WithError(err).Warn("scan ended")
		return
	}
	s.log.Info("scan stopped")
}

func (s *Scanner) reportPaired() {
	devices, err := ListPairedBluetoothDevices()
	if errors.Is(err, ErrNoDevicesFound) {
		return
	}
	if err != nil {
		s.log.WithError(err).Debug("list paired devices")
		return
	}
	for _, d := range devices {
		s.report(d.Name, d.MAC)
	}
}

func (s *Scanner) report(name, address string) {
	if !MatchName(name, s.opts.NameFilters) {
		return
	}
	s.mu.Lock()
	if !s.scanning || s.stopping || s.seen[address] {
		s.mu.Unlock()
		return
	}
	s.seen[address] = true
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"name": name, "address": address}).Debug("device found")
	s.cb.DeviceFound(nemonic.Printer{
		Name:       name,
		MacAddress: address,
		Type:       TypeForName(name),
	})
}

// StopScan ends the scan session. It returns at once; results stop being
// reported immediately.
func (s *Scanner) StopScan() {
	s.mu.Lock()
	if !s.scanning || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	s.mu.Unlock()
	if err := s.adapter.StopScan(); err != nil {
		// the adapter scan may not have started yet
		s.log.WithError(err).Debug("stop scan, retrying")
		go s.retryStop()
	}
}

func (s *Scanner) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *Scanner) stopAdapter() {
	if err := s.adapter.StopScan(); err != nil {
		s.log.WithError(err).Debug("stop scan")
	}
}

// retryStop stops the adapter scan once it is running, until the session
// ends.
func (s *Scanner) retryStop() {
	t := time.NewTicker(stopRetryInterval)
	defer t.Stop()
	for i := 0; i < stopRetries; i++ {
		<-t.C
		s.mu.Lock()
		pending := s.scanning && s.stopping
		s.mu.Unlock()
		if !pending {
			return
		}
		if err := s.adapter.StopScan(); err == nil {
			return
		}
	}
	s.log.Warn("adapter scan did not stop")
}
