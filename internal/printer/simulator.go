package printer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"nemonic-bridge/internal/imaging"
	"nemonic-bridge/internal/nemonic"
)

// SimOptions configures a simulated printer.
type SimOptions struct {
	OutputDir string // page previews are written here as PNG when set
	Battery   int    // percent
	Status    int    // status bits answered to ESC !?
}

// SimPrinter is an in-memory printer that understands the TSPL subset the
// Controller sends. Its Dial method is a DialFunc.
type SimPrinter struct {
	opts SimOptions
	log  logrus.FieldLogger

	mu      sync.Mutex
	present bool
	pages   []image.Image
	cuts    int
	density int
	speed   int
	written int
}

// NewSimPrinter returns a simulated printer.
func NewSimPrinter(opts SimOptions, log logrus.FieldLogger) *SimPrinter {
	return &SimPrinter{
		opts: opts,
		log:  log.WithField("component", "simulator"),
	}
}

// NewSimulator returns a Controller wired to a new SimPrinter.
func NewSimulator(opts Options, sim SimOptions, cb nemonic.PrinterCallback, log logrus.FieldLogger) (*Controller, *SimPrinter) {
	p := NewSimPrinter(sim, log)
	opts.Dial = p.Dial
	return NewController(opts, cb, log), p
}

// Dial implements DialFunc.
func (s *SimPrinter) Dial(ctx context.Context, p nemonic.Printer, settle time.Duration) (Link, error) {
	t := time.NewTimer(settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrConnectionCanceled, ctx.Err())
	case <-t.C:
	}

	s.mu.Lock()
	s.present = true
	s.mu.Unlock()
	s.log.WithField("mac", p.MacAddress).Info("simulated printer connected")
	return &simLink{sim: s}, nil
}

// Unplug makes open links report the device as gone.
func (s *SimPrinter) Unplug() {
	s.mu.Lock()
	s.present = false
	s.mu.Unlock()
}

// SetBattery sets the charge answered to BATTERY?.
func (s *SimPrinter) SetBattery(percent int) {
	s.mu.Lock()
	s.opts.Battery = percent
	s.mu.Unlock()
}

// SetStatus sets the status bits answered to ESC !?.
func (s *SimPrinter) SetStatus(bits int) {
	s.mu.Lock()
	s.opts.Status = bits
	s.mu.Unlock()
}

// Pages returns the printed pages in order.
func (s *SimPrinter) Pages() []image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]image.Image(nil), s.pages...)
}

// Cuts returns how many times the cutter fired.
func (s *SimPrinter) Cuts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cuts
}

// Settings returns the last DENSITY and SPEED received.
func (s *SimPrinter) Settings() (density, speed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.density, s.speed
}

func (s *SimPrinter) addPage(img image.Image) {
	s.mu.Lock()
	s.pages = append(s.pages, img)
	s.written++
	n := s.written
	dir := s.opts.OutputDir
	s.mu.Unlock()

	if dir == "" {
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("page-%04d.png", n))
	if err := writePNG(path, img); err != nil {
		s.log.WithError(err).Warn("write page preview")
		return
	}
	s.log.WithField("path", path).Debug("page written")
}

func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var (
	escStatus = []byte("\x1b!?")
	escResume = []byte("\x1b!o")
	bitmapCmd = []byte("BITMAP ")
)

// simLink parses the command stream written to it and queues replies.
type simLink struct {
	sim *SimPrinter

	mu     sync.Mutex
	in     []byte
	out    bytes.Buffer
	bitmap image.Image
	closed bool
}

func (l *simLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, io.ErrClosedPipe
	}
	l.in = append(l.in, p...)
	l.parse()
	return len(p), nil
}

// Read returns queued replies. With nothing queued it returns 0, nil like a
// serial port whose read timed out.
func (l *simLink) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, io.ErrClosedPipe
	}
	if l.out.Len() == 0 {
		return 0, nil
	}
	return l.out.Read(p)
}

func (l *simLink) Ready() bool {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	l.sim.mu.Lock()
	defer l.sim.mu.Unlock()
	return l.sim.present && !closed
}

func (l *simLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

// parse consumes every complete command in l.in.
func (l *simLink) parse() {
	for len(l.in) > 0 {
		switch {
		case bytes.HasPrefix(l.in, escStatus):
			l.sim.mu.Lock()
			l.out.WriteByte(byte(l.sim.opts.Status))
			l.sim.mu.Unlock()
			l.in = l.in[len(escStatus):]
		case bytes.HasPrefix(l.in, escResume):
			l.in = l.in[len(escResume):]
		case bytes.HasPrefix(l.in, bitmapCmd):
			n := l.parseBitmap()
			if n == 0 {
				return
			}
			l.in = l.in[n:]
		default:
			i := bytes.Index(l.in, []byte("\r\n"))
			if i < 0 {
				return
			}
			l.command(string(l.in[:i]))
			l.in = l.in[i+2:]
		}
	}
}

// parseBitmap decodes a BITMAP command at the head of l.in and returns the
// bytes it used, or zero when the command is incomplete.
func (l *simLink) parseBitmap() int {
	// BITMAP x,y,widthBytes,height,mode,<data>\r\n
	header := l.in[len(bitmapCmd):]
	var fields []int
	off := 0
	for len(fields) < 5 {
		i := bytes.IndexByte(header[off:], ',')
		if i < 0 {
			return 0
		}
		v, err := strconv.Atoi(string(header[off : off+i]))
		if err != nil {
			l.sim.log.WithError(err).Warn("bad BITMAP header")
			return len(l.in)
		}
		fields = append(fields, v)
		off += i + 1
	}
	widthBytes, height := fields[2], fields[3]
	size := widthBytes * height
	if len(header) < off+size+2 {
		return 0
	}

	// a zero bit prints a dot; the preview wants set bits dark
	data := make([]byte, size)
	for i, b := range header[off : off+size] {
		data[i] = ^b
	}
	l.bitmap = imaging.PreviewMonochrome(data, widthBytes*8, height)
	return len(bitmapCmd) + off + size + 2
}

func (l *simLink) command(line string) {
	name, arg, _ := strings.Cut(line, " ")
	switch name {
	case "BATTERY?":
		l.sim.mu.Lock()
		level := l.sim.opts.Battery
		l.sim.mu.Unlock()
		l.out.WriteString("BATTERY")
		l.out.WriteByte(byte(level))
		l.out.WriteString("\r\n")
	case "CLS":
		l.bitmap = nil
	case "DENSITY", "SPEED":
		v, err := strconv.Atoi(arg)
		if err != nil {
			return
		}
		l.sim.mu.Lock()
		if name == "DENSITY" {
			l.sim.density = v
		} else {
			l.sim.speed = v
		}
		l.sim.mu.Unlock()
	case "PRINT":
		copies, err := strconv.Atoi(arg)
		if err != nil || l.bitmap == nil {
			return
		}
		for i := 0; i < copies; i++ {
			l.sim.addPage(l.bitmap)
		}
	case "CUT":
		l.sim.mu.Lock()
		l.sim.cuts++
		l.sim.mu.Unlock()
	}
}

// SimScanner reports a fixed device list on every scan.
type SimScanner struct {
	devices  []nemonic.Printer
	interval time.Duration
	cb       nemonic.ScanCallback
	log      logrus.FieldLogger

	mu   sync.Mutex
	stop chan struct{}
}

// NewSimScanner returns a scanner that reports devices one per interval.
func NewSimScanner(devices []nemonic.Printer, interval time.Duration, cb nemonic.ScanCallback, log logrus.FieldLogger) *SimScanner {
	return &SimScanner{
		devices:  devices,
		interval: interval,
		cb:       cb,
		log:      log.WithField("component", "simulator"),
	}
}

// StartScan reports each configured device once, interval apart.
func (s *SimScanner) StartScan() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nemonic.Busy
	}
	stop := make(chan struct{})
	s.stop = stop
	go func() {
		for _, d := range s.devices {
			select {
			case <-stop:
				return
			case <-time.After(s.interval):
			}
			s.cb.DeviceFound(d)
		}
	}()
	return nemonic.OK
}

// StopScan ends the session early.
func (s *SimScanner) StopScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}
