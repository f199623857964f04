// Package bridge connects a method channel to the printer and scan
// controllers: calls go in through Plugin, controller callbacks come back out
// as channel notifications.
package bridge

import (
	"image"
	"sync"

	"github.com/sirupsen/logrus"

	"nemonic-bridge/internal/channel"
	"nemonic-bridge/internal/nemonic"
)

// Outbound notification names.
const (
	MethodDisconnected  = "disconnected"
	MethodPrintProgress = "printProgress"
	MethodPrintComplete = "printComplete"
	MethodDeviceFound   = "deviceFound"
)

// Poster queues work for the main loop.
type Poster interface {
	Post(fn func()) bool
}

// Controller is the print/connect bridge. It forwards every call to the
// printer controller unchanged and re-posts the controller's callbacks to the
// main loop before sending them on the channel.
type Controller struct {
	ch      channel.Invoker
	main    Poster
	printer nemonic.PrinterController
	log     logrus.FieldLogger

	mu        sync.Mutex
	connected *nemonic.Printer
}

// NewController builds the bridge and its printer controller. newPrinter
// receives the bridge as the controller's callback.
func NewController(ch channel.Invoker, main Poster, newPrinter func(nemonic.PrinterCallback) nemonic.PrinterController, log logrus.FieldLogger) *Controller {
	c := &Controller{
		ch:   ch,
		main: main,
		log:  log.WithField("component", "controller"),
	}
	c.printer = newPrinter(c)
	return c
}

// DefaultConnectDelay returns the controller default in msec.
func (c *Controller) DefaultConnectDelay() int {
	return c.printer.DefaultConnectDelay()
}

// ConnectDelay returns the current connect delay in msec.
func (c *Controller) ConnectDelay() int {
	return c.printer.ConnectDelay()
}

// SetConnectDelay forwards msec unchanged.
func (c *Controller) SetConnectDelay(msec int) {
	c.printer.SetConnectDelay(msec)
}

// Connect connects to p and remembers it on success.
func (c *Controller) Connect(p nemonic.Printer) int {
	result := c.printer.Connect(p)
	if result == nemonic.OK {
		c.mu.Lock()
		c.connected = &p
		c.mu.Unlock()
	}
	return result
}

// Disconnect disconnects and forgets the connected printer.
func (c *Controller) Disconnect() {
	c.printer.Disconnect()
	c.forget()
}

// Connected returns the printer of the last successful Connect, until it
// disconnects.
func (c *Controller) Connected() (nemonic.Printer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected == nil {
		return nemonic.Printer{}, false
	}
	return *c.connected, true
}

func (c *Controller) forget() {
	c.mu.Lock()
	c.connected = nil
	c.mu.Unlock()
}

// ConnectState returns the controller connection state.
func (c *Controller) ConnectState() int {
	return c.printer.ConnectState()
}

// Cancel aborts a pending connect or running print.
func (c *Controller) Cancel() {
	c.printer.Cancel()
}

// SetPrintTimeout forwards the timeout mode unchanged.
func (c *Controller) SetPrintTimeout(enableAuto bool, manualTime int) {
	c.printer.SetPrintTimeout(enableAuto, manualTime)
}

// Print runs a print job and returns its result.
func (c *Controller) Print(info nemonic.PrintInfo) int {
	return c.printer.Print(info)
}

// SetTemplate installs an overlay image, optionally printing it.
func (c *Controller) SetTemplate(img image.Image, withPrint, enableDither bool) int {
	return c.printer.SetTemplate(img, withPrint, enableDither)
}

// ClearTemplate removes the overlay image.
func (c *Controller) ClearTemplate() int {
	return c.printer.ClearTemplate()
}

// PrinterStatus returns the printer status bits or a result code.
func (c *Controller) PrinterStatus() int {
	return c.printer.PrinterStatus()
}

// CartridgeType returns the loaded cartridge code or a result code.
func (c *Controller) CartridgeType() int {
	return c.printer.CartridgeType()
}

// PrinterName returns the connected printer name with a result code.
func (c *Controller) PrinterName() nemonic.ResultString {
	return c.printer.PrinterName()
}

// BatteryLevel returns the charge in percent or a result code.
func (c *Controller) BatteryLevel() int {
	return c.printer.BatteryLevel()
}

// BatteryStatus returns one of the nemonic.Battery values or a result code.
func (c *Controller) BatteryStatus() int {
	return c.printer.BatteryStatus()
}

// Disconnected implements nemonic.PrinterCallback.
func (c *Controller) Disconnected() {
	c.forget()
	c.post(MethodDisconnected, nil)
}

// PrintProgress implements nemonic.PrinterCallback.
func (c *Controller) PrintProgress(index, total, result int) {
	c.post(MethodPrintProgress, map[string]any{
		"index":  index,
		"total":  total,
		"result": result,
	})
}

// PrintComplete implements nemonic.PrinterCallback.
func (c *Controller) PrintComplete(result int) {
	c.post(MethodPrintComplete, map[string]any{
		"result": result,
	})
}

func (c *Controller) post(method string, args any) {
	ok := c.main.Post(func() {
		c.ch.InvokeMethod(method, args)
	})
	if !ok {
		c.log.WithField("method", method).Warn("main loop closed, notification dropped")
	}
}
