package nemonic

import "fmt"

// Result codes. Zero is success, negative values are failures.
const (
	OK                 = 0
	Fail               = -1
	InvalidParameter   = -2
	NotConnected       = -3
	AlreadyConnected   = -4
	Timeout            = -5
	Canceled           = -6
	PrinterStatusError = -7
	CartridgeTypeError = -8
	LowPower           = -9
	NotSupported       = -10
	Busy               = -11
)

var resultNames = map[int]string{
	OK:                 "ok",
	Fail:               "fail",
	InvalidParameter:   "invalid parameter",
	NotConnected:       "not connected",
	AlreadyConnected:   "already connected",
	Timeout:            "timeout",
	Canceled:           "canceled",
	PrinterStatusError: "printer status error",
	CartridgeTypeError: "cartridge type error",
	LowPower:           "low power",
	NotSupported:       "not supported",
	Busy:               "busy",
}

// ResultName returns a readable name for a result code.
func ResultName(code int) string {
	if name, ok := resultNames[code]; ok {
		return name
	}
	return fmt.Sprintf("result(%d)", code)
}

type PrinterType int

const (
	TypeNone PrinterType = iota
	TypeNemonic
	TypeNemonicLabel
	TypeNemonicMIP
)

// String returns the model name.
func (t PrinterType) String() string {
	switch t {
	case TypeNemonic:
		return "nemonic"
	case TypeNemonicLabel:
		return "nemonic label"
	case TypeNemonicMIP:
		return "nemonic mip"
	default:
		return "none"
	}
}

// PrinterTypeOf maps a raw value to a PrinterType. Unknown values become TypeNone.
func PrinterTypeOf(v int) PrinterType {
	t := PrinterType(v)
	if t < TypeNone || t > TypeNemonicMIP {
		return TypeNone
	}
	return t
}

type PrintQuality int

const (
	QualityLowFast PrintQuality = iota
	QualityMiddleNormal
	QualityHighSlow
)

// String returns the quality name.
func (q PrintQuality) String() string {
	switch q {
	case QualityMiddleNormal:
		return "middle/normal"
	case QualityHighSlow:
		return "high/slow"
	default:
		return "low/fast"
	}
}

// PrintQualityOf maps a raw value to a PrintQuality. Unknown values become
// QualityLowFast.
func PrintQualityOf(v int) PrintQuality {
	q := PrintQuality(v)
	if q < QualityLowFast || q > QualityHighSlow {
		return QualityLowFast
	}
	return q
}

// Connect states.
const (
	StateDisconnected = 0
	StateConnecting   = 1
	StateConnected    = 2
)

// Printer status bits, as reported by the TSPL ESC !? query. Zero is normal.
const (
	StatusNormal      = 0x00
	StatusHeadOpen    = 0x01
	StatusPaperJam    = 0x02
	StatusOutOfPaper  = 0x04
	StatusOutOfRibbon = 0x08
	StatusPause       = 0x10
	StatusPrinting    = 0x20
	StatusCoverOpen   = 0x40
	StatusOtherError  = 0x80
)

// Battery status values.
const (
	BatteryNormal   = 0
	BatteryLow      = 1
	BatteryCritical = 2
)

// CartridgeNone is reported when no label cartridge is known.
const CartridgeNone = 0
