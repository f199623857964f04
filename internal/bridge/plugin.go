package bridge

import (
	"sync"

	"github.com/sirupsen/logrus"

	"nemonic-bridge/internal/channel"
	"nemonic-bridge/internal/nemonic"
)

// ChannelName is the method channel the bridge is registered on.
const ChannelName = "nemonic_sdk"

type handlerFunc func(call *channel.MethodCall, result channel.Result)

// Plugin dispatches method calls to the print/connect and scan bridges.
type Plugin struct {
	controller *Controller
	scanner    *Scanner
	handlers   map[string]handlerFunc
	jobs       sync.WaitGroup
	log        logrus.FieldLogger
}

// NewPlugin returns a dispatcher for controller and scanner.
func NewPlugin(controller *Controller, scanner *Scanner, log logrus.FieldLogger) *Plugin {
	p := &Plugin{
		controller: controller,
		scanner:    scanner,
		log:        log.WithField("component", "plugin"),
	}
	p.handlers = map[string]handlerFunc{
		"startScan":              p.startScan,
		"stopScan":               p.stopScan,
		"getDefaultConnectDelay": p.getDefaultConnectDelay,
		"getConnectDelay":        p.getConnectDelay,
		"setConnectDelay":        p.setConnectDelay,
		"connect":                p.connect,
		"disconnect":             p.disconnect,
		"getConnectState":        p.getConnectState,
		"cancel":                 p.cancel,
		"setPrintTimeout":        p.setPrintTimeout,
		"print":                  p.print,
		"setTemplate":            p.setTemplate,
		"clearTemplate":          p.clearTemplate,
		"getPrinterStatus":       p.getPrinterStatus,
		"getCartridgeType":       p.getCartridgeType,
		"getPrinterName":         p.getPrinterName,
		"getBatteryLevel":        p.getBatteryLevel,
		"getBatteryStatus":       p.getBatteryStatus,
	}
	return p
}

// Methods returns the operation names the plugin answers.
func (p *Plugin) Methods() []string {
	names := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		names = append(names, name)
	}
	return names
}

// OnMethodCall implements channel.MethodCallHandler.
func (p *Plugin) OnMethodCall(call *channel.MethodCall, result channel.Result) {
	h, ok := p.handlers[call.Method]
	if !ok {
		result.NotImplemented()
		return
	}
	h(call, result)
}

// Wait blocks until every running connect, print and template job has
// replied.
func (p *Plugin) Wait() {
	p.jobs.Wait()
}

// async replies with the value of fn from a new goroutine, leaving the
// channel free for cancel and disconnect while fn blocks.
func (p *Plugin) async(result channel.Result, fn func() int) {
	p.jobs.Add(1)
	go func() {
		defer p.jobs.Done()
		result.Success(fn())
	}()
}

// invalid answers a call whose arguments could not be decoded.
func (p *Plugin) invalid(call *channel.MethodCall, result channel.Result, err error) {
	p.log.WithError(err).WithField("method", call.Method).Warn("invalid arguments")
	result.Success(nemonic.InvalidParameter)
}

func (p *Plugin) startScan(call *channel.MethodCall, result channel.Result) {
	result.Success(p.scanner.StartScan())
}

func (p *Plugin) stopScan(call *channel.MethodCall, result channel.Result) {
	p.scanner.StopScan()
	result.Success(true)
}

func (p *Plugin) getDefaultConnectDelay(call *channel.MethodCall, result channel.Result) {
	result.Success(p.controller.DefaultConnectDelay())
}

func (p *Plugin) getConnectDelay(call *channel.MethodCall, result channel.Result) {
	result.Success(p.controller.ConnectDelay())
}

func (p *Plugin) setConnectDelay(call *channel.MethodCall, result channel.Result) {
	msec, err := call.Int("msec")
	if err != nil {
		p.invalid(call, result, err)
		return
	}
	p.controller.SetConnectDelay(msec)
	result.Success(nil)
}

func (p *Plugin) connect(call *channel.MethodCall, result channel.Result) {
	printer, err := decodePrinter(call, "name", "macAddress", "type")
	if err != nil {
		p.invalid(call, result, err)
		return
	}
	p.log.WithFields(logrus.Fields{
		"name": printer.Name,
		"mac":  printer.MacAddress,
		"type": int(printer.Type),
	}).Debug("connect printer argument")
	p.async(result, func() int { return p.controller.Connect(printer) })
}

func (p *Plugin) disconnect(call *channel.MethodCall, result channel.Result) {
	p.controller.Disconnect()
	result.Success(nil)
}

func (p *Plugin) getConnectState(call *channel.MethodCall, result channel.Result) {
	result.Success(p.controller.ConnectState())
}

func (p *Plugin) cancel(call *channel.MethodCall, result channel.Result) {
	p.controller.Cancel()
	result.Success(nil)
}

func (p *Plugin) setPrintTimeout(call *channel.MethodCall, result channel.Result) {
	enableAuto, err := call.Bool("enableAuto")
	if err != nil {
		p.invalid(call, result, err)
		return
	}
	manualTime, err := call.Int("manualTime")
	if err != nil {
		p.invalid(call, result, err)
		return
	}
	p.controller.SetPrintTimeout(enableAuto, manualTime)
	result.Success(nil)
}

func (p *Plugin) print(call *channel.MethodCall, result channel.Result) {
	info, err := decodePrintInfo(call)
	if err != nil {
		p.invalid(call, result, err)
		return
	}
	p.log.WithFields(logrus.Fields{
		"printer": info.Printer.Name,
		"images":  len(info.Images),
		"copies":  info.Copies,
		"quality": info.Quality,
	}).Debug("print info argument")
	p.async(result, func() int { return p.controller.Print(info) })
}

func (p *Plugin) setTemplate(call *channel.MethodCall, result channel.Result) {
	img, err := decodeImage(call, "image")
	if err != nil {
		p.invalid(call, result, err)
		return
	}
	withPrint, err := call.Bool("withPrint")
	if err != nil {
		p.invalid(call, result, err)
		return
	}
	enableDither, err := call.Bool("enableDither")
	if err != nil {
		p.invalid(call, result, err)
		return
	}
	if !withPrint {
		result.Success(p.controller.SetTemplate(img, false, enableDither))
		return
	}
	p.async(result, func() int { return p.controller.SetTemplate(img, true, enableDither) })
}

func (p *Plugin) clearTemplate(call *channel.MethodCall, result channel.Result) {
	result.Success(p.controller.ClearTemplate())
}

func (p *Plugin) getPrinterStatus(call *channel.MethodCall, result channel.Result) {
	result.Success(p.controller.PrinterStatus())
}

func (p *Plugin) getCartridgeType(call *channel.MethodCall, result channel.Result) {
	result.Success(p.controller.CartridgeType())
}

func (p *Plugin) getPrinterName(call *channel.MethodCall, result channel.Result) {
	name := p.controller.PrinterName()
	result.Success(map[string]any{
		"result": name.Result,
		"value":  name.Value,
	})
}

func (p *Plugin) getBatteryLevel(call *channel.MethodCall, result channel.Result) {
	result.Success(p.controller.BatteryLevel())
}

func (p *Plugin) getBatteryStatus(call *channel.MethodCall, result channel.Result) {
	result.Success(p.controller.BatteryStatus())
}
