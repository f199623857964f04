package bridge

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"nemonic-bridge/internal/channel"
	"nemonic-bridge/internal/nemonic"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// fakePrinter records every call it receives.
type fakePrinter struct {
	cb    nemonic.PrinterCallback
	calls []string

	delay       int
	connected   nemonic.Printer
	enableAuto  bool
	manualTime  int
	printInfo   nemonic.PrintInfo
	template    image.Image
	withPrint   bool
	dither      bool
	printerName nemonic.ResultString
	result      int
}

func (f *fakePrinter) record(name string) { f.calls = append(f.calls, name) }

func (f *fakePrinter) DefaultConnectDelay() int { f.record("DefaultConnectDelay"); return 1000 }
func (f *fakePrinter) ConnectDelay() int        { f.record("ConnectDelay"); return f.delay }
func (f *fakePrinter) SetConnectDelay(msec int) { f.record("SetConnectDelay"); f.delay = msec }
func (f *fakePrinter) Connect(p nemonic.Printer) int {
	f.record("Connect")
	f.connected = p
	return f.result
}
func (f *fakePrinter) Disconnect()       { f.record("Disconnect") }
func (f *fakePrinter) ConnectState() int { f.record("ConnectState"); return nemonic.StateConnected }
func (f *fakePrinter) Cancel()           { f.record("Cancel") }
func (f *fakePrinter) SetPrintTimeout(enableAuto bool, manualTime int) {
	f.record("SetPrintTimeout")
	f.enableAuto, f.manualTime = enableAuto, manualTime
}
func (f *fakePrinter) Print(info nemonic.PrintInfo) int {
	f.record("Print")
	f.printInfo = info
	return f.result
}
func (f *fakePrinter) SetTemplate(img image.Image, withPrint, enableDither bool) int {
	f.record("SetTemplate")
	f.template, f.withPrint, f.dither = img, withPrint, enableDither
	return f.result
}
func (f *fakePrinter) ClearTemplate() int { f.record("ClearTemplate"); return f.result }
func (f *fakePrinter) PrinterStatus() int { f.record("PrinterStatus"); return nemonic.StatusOutOfPaper }
func (f *fakePrinter) CartridgeType() int { f.record("CartridgeType"); return 3 }
func (f *fakePrinter) PrinterName() nemonic.ResultString {
	f.record("PrinterName")
	return f.printerName
}
func (f *fakePrinter) BatteryLevel() int  { f.record("BatteryLevel"); return 77 }
func (f *fakePrinter) BatteryStatus() int { f.record("BatteryStatus"); return nemonic.BatteryLow }

type fakeScanner struct {
	cb    nemonic.ScanCallback
	calls []string
}

func (f *fakeScanner) StartScan() int { f.calls = append(f.calls, "StartScan"); return nemonic.OK }
func (f *fakeScanner) StopScan()      { f.calls = append(f.calls, "StopScan") }

// recordingChannel captures outbound notifications.
type recordingChannel struct {
	mu     sync.Mutex
	events []channel.Event
	inLoop []bool
	onLoop func() bool
	notify chan struct{}
}

func newRecordingChannel(onLoop func() bool) *recordingChannel {
	return &recordingChannel{onLoop: onLoop, notify: make(chan struct{}, 1024)}
}

func (r *recordingChannel) InvokeMethod(method string, args any) {
	r.mu.Lock()
	r.events = append(r.events, channel.Event{Method: method, Arguments: args})
	if r.onLoop != nil {
		r.inLoop = append(r.inLoop, r.onLoop())
	}
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recordingChannel) snapshot() ([]channel.Event, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]channel.Event(nil), r.events...), append([]bool(nil), r.inLoop...)
}

// syncPoster runs tasks immediately.
type syncPoster struct{}

func (syncPoster) Post(fn func()) bool { fn(); return true }

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 37)
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// recordResult is a channel.Result for direct dispatcher tests.
type recordResult struct {
	kind  string
	value any
}

func (r *recordResult) Success(v any)                 { r.kind, r.value = "success", v }
func (r *recordResult) Error(code, msg string, _ any) { r.kind, r.value = "error", code }
func (r *recordResult) NotImplemented()               { r.kind = "notImplemented" }
