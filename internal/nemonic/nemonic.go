// Package nemonic defines the printer controller boundary: the descriptors that
// cross it, the result codes it reports and the callback interfaces it drives.
package nemonic

import "image"

// Printer identifies a printer. Values are immutable once built.
type Printer struct {
	Name       string
	MacAddress string // Bluetooth address, or COM port on Windows
	Type       PrinterType
}

// PrintInfo describes one print job.
type PrintInfo struct {
	Printer            Printer
	Images             []image.Image
	Quality            PrintQuality
	Copies             int
	LastPageCut        bool
	Dither             bool
	CheckPrinterStatus bool
	CheckCartridgeType bool
	CheckPower         bool
}

// Pages returns the number of pages the job produces.
func (p PrintInfo) Pages() int {
	return len(p.Images) * p.Copies
}

// ResultString is a result code paired with a value.
type ResultString struct {
	Result int
	Value  string
}

// PrinterController drives a connected printer.
type PrinterController interface {
	DefaultConnectDelay() int
	ConnectDelay() int
	SetConnectDelay(msec int)
	Connect(printer Printer) int
	Disconnect()
	ConnectState() int
	Cancel()
	SetPrintTimeout(enableAuto bool, manualTime int)
	Print(info PrintInfo) int
	SetTemplate(img image.Image, withPrint, enableDither bool) int
	ClearTemplate() int
	PrinterStatus() int
	CartridgeType() int
	PrinterName() ResultString
	BatteryLevel() int
	BatteryStatus() int
}

// PrinterCallback receives asynchronous printer events. Controllers call it from
// their own goroutines.
type PrinterCallback interface {
	Disconnected()
	PrintProgress(index, total, result int)
	PrintComplete(result int)
}

// ScanController discovers printers.
type ScanController interface {
	StartScan() int
	StopScan()
}

// ScanCallback receives discovered printers.
type ScanCallback interface {
	DeviceFound(printer Printer)
}
