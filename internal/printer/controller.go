package printer

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"nemonic-bridge/internal/imaging"
	"nemonic-bridge/internal/nemonic"
	"nemonic-bridge/internal/tspl"
)

// Options configures a Controller.
type Options struct {
	Label           tspl.LabelSize // cartridge loaded in label printers
	Roll            tspl.LabelSize // continuous media of nemonic and MIP printers
	ConnectDelay    int           // msec between transport bring-up and open
	ConnectTimeout  time.Duration // bound on the dial, excluding the delay
	LowBattery      int           // percent; below this CheckPower fails
	CriticalBattery int           // percent
	PageTimeout     time.Duration // per-page budget for the automatic print timeout
	WatchInterval   time.Duration
	PauseSettle     time.Duration // wait after clearing pause before page data
	Dial            DialFunc
}

// DefaultOptions returns options for a 14x40mm label cartridge and a 76mm
// roll. Dial is left unset.
func DefaultOptions() Options {
	return Options{
		Label:           tspl.Label14x40,
		Roll:            tspl.Continuous76x76,
		ConnectDelay:    1000,
		ConnectTimeout:  30 * time.Second,
		LowBattery:      20,
		CriticalBattery: 5,
		PageTimeout:     15 * time.Second,
		WatchInterval:   2 * time.Second,
		PauseSettle:     100 * time.Millisecond,
	}
}

// mediaFor returns the media loaded in printers of type t.
func (o Options) mediaFor(t nemonic.PrinterType) tspl.LabelSize {
	if t == nemonic.TypeNemonicLabel {
		return o.Label
	}
	return o.Roll
}

// Controller implements nemonic.PrinterController for TSPL printers.
type Controller struct {
	opts Options
	cb   nemonic.PrinterCallback
	log  logrus.FieldLogger

	mu            sync.Mutex
	state         int
	link          Link
	printer       nemonic.Printer
	watchStop     chan struct{}
	connectDelay  int
	autoTimeout   bool
	manualTimeout int // msec
	template      image.Image
	cancelConnect context.CancelFunc
	cancelPrint   context.CancelFunc

	// ioMu serializes request/response exchanges on the link.
	ioMu sync.Mutex
}

// NewController returns a disconnected controller reporting to cb.
func NewController(opts Options, cb nemonic.PrinterCallback, log logrus.FieldLogger) *Controller {
	return &Controller{
		opts:         opts,
		cb:           cb,
		log:          log.WithField("component", "printer"),
		state:        nemonic.StateDisconnected,
		connectDelay: opts.ConnectDelay,
		autoTimeout:  true,
	}
}

// DefaultConnectDelay returns the configured connect delay in msec.
func (c *Controller) DefaultConnectDelay() int {
	return c.opts.ConnectDelay
}

// ConnectDelay returns the current connect delay in msec.
func (c *Controller) ConnectDelay() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectDelay
}

// SetConnectDelay sets the wait between transport bring-up and open.
func (c *Controller) SetConnectDelay(msec int) {
	c.mu.Lock()
	c.connectDelay = max(msec, 0)
	c.mu.Unlock()
}

// Connect opens a link to p. It blocks until the link is up or fails.
func (c *Controller) Connect(p nemonic.Printer) int {
	if p.MacAddress == "" {
		return nemonic.InvalidParameter
	}
	if c.opts.Dial == nil {
		return nemonic.NotSupported
	}

	c.mu.Lock()
	if c.state != nemonic.StateDisconnected {
		c.mu.Unlock()
		return nemonic.AlreadyConnected
	}
	c.state = nemonic.StateConnecting
	settle := time.Duration(c.connectDelay) * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout+settle)
	c.cancelConnect = cancel
	c.mu.Unlock()
	defer cancel()

	log := c.log.WithFields(logrus.Fields{"name": p.Name, "mac": p.MacAddress})
	log.Info("connecting")
	link, err := c.opts.Dial(ctx, p, settle)

	c.mu.Lock()
	c.cancelConnect = nil
	if err != nil {
		c.state = nemonic.StateDisconnected
		c.mu.Unlock()
		log.WithError(err).Warn("connect failed")
		return resultFor(err)
	}
	stop := make(chan struct{})
	c.link = link
	c.printer = p
	c.state = nemonic.StateConnected
	c.watchStop = stop
	c.mu.Unlock()

	go c.watch(link, stop)
	log.Info("connected")
	return nemonic.OK
}

// watch drops the link once its device goes away.
func (c *Controller) watch(link Link, stop <-chan struct{}) {
	t := time.NewTicker(c.opts.WatchInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if !link.Ready() {
				c.log.Warn("printer link lost")
				c.drop(link)
				return
			}
		}
	}
}

// drop tears down link if it is still current and reports the disconnect.
func (c *Controller) drop(link Link) {
	c.mu.Lock()
	if c.link != link {
		c.mu.Unlock()
		return
	}
	c.link = nil
	c.printer = nemonic.Printer{}
	c.state = nemonic.StateDisconnected
	close(c.watchStop)
	c.watchStop = nil
	if c.cancelPrint != nil {
		c.cancelPrint()
	}
	c.mu.Unlock()

	if err := link.Close(); err != nil {
		c.log.WithError(err).Debug("close link")
	}
	c.cb.Disconnected()
}

// Disconnect closes the link, or aborts a pending connect.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	link := c.link
	if c.cancelConnect != nil {
		c.cancelConnect()
	}
	c.mu.Unlock()
	if link != nil {
		c.drop(link)
	}
}

// ConnectState returns one of the nemonic.State values.
func (c *Controller) ConnectState() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cancel aborts a pending connect or the running print job.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelConnect != nil {
		c.cancelConnect()
	}
	if c.cancelPrint != nil {
		c.cancelPrint()
	}
}

// SetPrintTimeout selects the automatic per-page budget or a fixed job
// timeout of manualTime msec. A manual value of zero or less disables it.
func (c *Controller) SetPrintTimeout(enableAuto bool, manualTime int) {
	c.mu.Lock()
	c.autoTimeout = enableAuto
	c.manualTimeout = manualTime
	c.mu.Unlock()
}

// Print runs a job to completion. Progress is reported per page and the job
// always ends with one PrintComplete carrying the returned result.
func (c *Controller) Print(info nemonic.PrintInfo) int {
	return c.complete(c.print(info, true))
}

func (c *Controller) complete(result int) int {
	c.cb.PrintComplete(result)
	return result
}

func (c *Controller) print(info nemonic.PrintInfo, overlay bool) int {
	if len(info.Images) == 0 || info.Copies < 1 {
		return nemonic.InvalidParameter
	}
	for _, img := range info.Images {
		if img == nil {
			return nemonic.InvalidParameter
		}
	}

	total := info.Pages()
	c.mu.Lock()
	link := c.link
	if link == nil {
		c.mu.Unlock()
		return nemonic.NotConnected
	}
	if c.cancelPrint != nil {
		c.mu.Unlock()
		return nemonic.Busy
	}
	ctx, cancel := c.printContext(total)
	c.cancelPrint = cancel
	media := c.opts.mediaFor(c.printer.Type)
	var template image.Image
	if overlay {
		template = c.template
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancelPrint = nil
		c.mu.Unlock()
		cancel()
	}()

	if res := c.preflight(link, info, media); res != nemonic.OK {
		return res
	}

	log := c.log.WithFields(logrus.Fields{"pages": total, "quality": info.Quality})
	log.Info("printing")
	density, speed := qualitySettings(info.Quality)
	index := 0
	for n := 0; n < info.Copies; n++ {
		for _, img := range info.Images {
			if err := ctx.Err(); err != nil {
				log.WithError(err).WithField("page", index).Info("print stopped")
				return resultFor(err)
			}
			index++
			page := tspl.BuildPage(tspl.Page{
				Size:    media,
				Density: density,
				Speed:   speed,
				Bitmap:  render(media, template, img, info.Dither),
				Cut:     info.LastPageCut && index == total,
			})

			c.ioMu.Lock()
			err := sendPage(link, page, c.opts.PauseSettle)
			c.ioMu.Unlock()

			res := resultFor(err)
			c.cb.PrintProgress(index, total, res)
			if res != nemonic.OK {
				log.WithError(err).WithField("page", index).Warn("page failed")
				return res
			}
		}
	}
	return nemonic.OK
}

// printContext returns the job context. Callers hold mu.
func (c *Controller) printContext(pages int) (context.Context, context.CancelFunc) {
	switch {
	case c.autoTimeout:
		return context.WithTimeout(context.Background(), time.Duration(pages+1)*c.opts.PageTimeout)
	case c.manualTimeout > 0:
		return context.WithTimeout(context.Background(), time.Duration(c.manualTimeout)*time.Millisecond)
	default:
		return context.WithCancel(context.Background())
	}
}

func (c *Controller) preflight(link Link, info nemonic.PrintInfo, media tspl.LabelSize) int {
	if info.CheckPrinterStatus {
		status := c.queryStatus(link)
		if status < 0 {
			return status
		}
		if status != nemonic.StatusNormal {
			c.log.WithField("status", status).Warn("printer not ready")
			return nemonic.PrinterStatusError
		}
	}
	if info.CheckCartridgeType && !cartridgeFits(info.Printer.Type, media) {
		return nemonic.CartridgeTypeError
	}
	if info.CheckPower {
		level := c.queryBattery(link)
		if level < 0 {
			return level
		}
		if level < c.opts.LowBattery {
			return nemonic.LowPower
		}
	}
	return nemonic.OK
}

// render produces TSPL bitmap data for one page of media.
func render(media tspl.LabelSize, template, img image.Image, dither bool) []byte {
	w, h := media.PixelW, media.PixelH
	if template != nil {
		img = imaging.Compose(template, img, w, h)
	}
	return imaging.ToMonochrome(img, w, h, imaging.MonoOptions{
		Threshold: 128,
		Invert:    true,
		Dither:    dither,
	})
}

// SetTemplate stores img, binarized once, as an overlay for later pages.
// With withPrint the template is also printed on its own.
func (c *Controller) SetTemplate(img image.Image, withPrint, enableDither bool) int {
	if img == nil {
		return nemonic.InvalidParameter
	}
	c.mu.Lock()
	printer := c.printer
	c.mu.Unlock()

	media := c.opts.mediaFor(printer.Type)
	w, h := media.PixelW, media.PixelH
	mono := imaging.ToMonochrome(img, w, h, imaging.MonoOptions{Threshold: 128, Dither: enableDither})
	tmpl := imaging.PreviewMonochrome(mono, w, h)

	c.mu.Lock()
	c.template = tmpl
	c.mu.Unlock()

	if !withPrint {
		return nemonic.OK
	}
	return c.complete(c.print(nemonic.PrintInfo{
		Printer: printer,
		Images:  []image.Image{tmpl},
		Quality: nemonic.QualityMiddleNormal,
		Copies:  1,
	}, false))
}

// ClearTemplate drops the overlay set by SetTemplate.
func (c *Controller) ClearTemplate() int {
	c.mu.Lock()
	c.template = nil
	c.mu.Unlock()
	return nemonic.OK
}

// PrinterStatus returns the TSPL status bits, or a negative result code.
func (c *Controller) PrinterStatus() int {
	link := c.currentLink()
	if link == nil {
		return nemonic.NotConnected
	}
	return c.queryStatus(link)
}

// CartridgeType reports the configured media of the connected printer type;
// the link does not report the loaded media.
func (c *Controller) CartridgeType() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return nemonic.NotConnected
	}
	return tspl.CartridgeCode(c.opts.mediaFor(c.printer.Type))
}

// PrinterName returns the name the connected printer was dialed with.
func (c *Controller) PrinterName() nemonic.ResultString {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return nemonic.ResultString{Result: nemonic.NotConnected}
	}
	return nemonic.ResultString{Result: nemonic.OK, Value: c.printer.Name}
}

// BatteryLevel returns the charge in percent, or a negative result code.
func (c *Controller) BatteryLevel() int {
	link := c.currentLink()
	if link == nil {
		return nemonic.NotConnected
	}
	return c.queryBattery(link)
}

// BatteryStatus classifies the battery level against the configured thresholds.
func (c *Controller) BatteryStatus() int {
	level := c.BatteryLevel()
	switch {
	case level < 0:
		return level
	case level < c.opts.CriticalBattery:
		return nemonic.BatteryCritical
	case level < c.opts.LowBattery:
		return nemonic.BatteryLow
	default:
		return nemonic.BatteryNormal
	}
}

func (c *Controller) currentLink() Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

func (c *Controller) queryStatus(link Link) int {
	c.ioMu.Lock()
	status, err := queryStatus(link)
	c.ioMu.Unlock()
	if err != nil {
		c.log.WithError(err).Warn("status query failed")
		return resultFor(err)
	}
	return status
}

func (c *Controller) queryBattery(link Link) int {
	c.ioMu.Lock()
	level, err := queryBattery(link)
	c.ioMu.Unlock()
	if err != nil {
		c.log.WithError(err).Warn("battery query failed")
		return resultFor(err)
	}
	return level
}

// qualitySettings maps a print quality to TSPL density and speed.
func qualitySettings(q nemonic.PrintQuality) (density, speed int) {
	switch q {
	case nemonic.QualityLowFast:
		return 6, 4
	case nemonic.QualityHighSlow:
		return 14, 2
	default:
		return 10, 3
	}
}

// cartridgeFits reports whether label is media the printer type takes. nemonic
// and MIP printers use continuous rolls, the label model uses gapped labels.
func cartridgeFits(t nemonic.PrinterType, label tspl.LabelSize) bool {
	switch t {
	case nemonic.TypeNemonicLabel:
		return label.Gap > 0
	case nemonic.TypeNemonic, nemonic.TypeNemonicMIP:
		return label.Gap == 0
	default:
		return true
	}
}

// resultFor converts a driver error to a result code.
func resultFor(err error) int {
	switch {
	case err == nil:
		return nemonic.OK
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return nemonic.Timeout
	case errors.Is(err, ErrConnectionCanceled), errors.Is(err, context.Canceled):
		return nemonic.Canceled
	case errors.Is(err, ErrNotSupported):
		return nemonic.NotSupported
	case errors.Is(err, ErrNotConnected):
		return nemonic.NotConnected
	default:
		return nemonic.Fail
	}
}
