// Package printer drives nemonic printers over a Bluetooth serial link using
// TSPL, and discovers them over BLE.
package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"nemonic-bridge/internal/nemonic"
)

var (
	ErrNotConnected = errors.New("printer not connected")
	ErrTimeout      = errors.New("operation timed out")
	ErrBadResponse  = errors.New("invalid printer response")
)

// Link is an open byte stream to a printer.
type Link interface {
	io.ReadWriter
	// Ready reports whether the underlying device is still present.
	Ready() bool
	Close() error
}

// DialFunc opens a link to p, waiting settle between bringing the transport
// up and opening it.
type DialFunc func(ctx context.Context, p nemonic.Printer, settle time.Duration) (Link, error)

// serialLink is a Link over an RFCOMM device node or COM port.
type serialLink struct {
	serial.Port
	rfcomm *RFCOMMConnection
}

func (l *serialLink) Ready() bool {
	return l.rfcomm.IsDeviceReady()
}

func (l *serialLink) Close() error {
	err := l.Port.Close()
	l.rfcomm.Close()
	return err
}

// SerialDialer returns a DialFunc that binds RFCOMM channel to the printer's
// address and opens the resulting device at baudRate.
func SerialDialer(baudRate, channel int, log logrus.FieldLogger) DialFunc {
	return func(ctx context.Context, p nemonic.Printer, settle time.Duration) (Link, error) {
		conn, err := EstablishRFCOMM(ctx, p.MacAddress, channel, log)
		if err != nil {
			return nil, err
		}

		t := time.NewTimer(settle)
		defer t.Stop()
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, fmt.Errorf("%w: %w", ErrConnectionCanceled, ctx.Err())
		case <-t.C:
		}

		port, err := openPort(conn.DevicePath, baudRate)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return &serialLink{Port: port, rfcomm: conn}, nil
	}
}

func openPort(portName string, baudRate int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(3 * time.Second); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", portName, err)
	}
	return port, nil
}

// readFull fills buf. A zero-length read without error is a serial read
// timeout.
func readFull(r io.Reader, buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := r.Read(buf[off:])
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		if n == 0 {
			return ErrTimeout
		}
		off += n
	}
	return nil
}

// discardLine reads up to and including the next '\n'.
func discardLine(r io.Reader) error {
	var b [1]byte
	for {
		if err := readFull(r, b[:]); err != nil {
			return err
		}
		if b[0] == '\n' {
			return nil
		}
	}
}

// queryStatus sends ESC !? and returns the status byte.
func queryStatus(rw io.ReadWriter) (int, error) {
	if _, err := rw.Write([]byte("\x1b!?")); err != nil {
		return 0, fmt.Errorf("write failed: %w", err)
	}
	var b [1]byte
	if err := readFull(rw, b[:]); err != nil {
		return 0, err
	}
	return int(b[0]), nil
}

// queryBattery sends BATTERY? and returns the charge in percent.
func queryBattery(rw io.ReadWriter) (int, error) {
	if _, err := rw.Write([]byte("BATTERY?\r\n")); err != nil {
		return 0, fmt.Errorf("write failed: %w", err)
	}
	// Response format: "BATTERY", one percentage byte, CRLF
	resp := make([]byte, 8)
	if err := readFull(rw, resp); err != nil {
		return 0, err
	}
	if !bytes.HasPrefix(resp, []byte("BATTERY")) {
		return 0, fmt.Errorf("%w: %q", ErrBadResponse, resp)
	}
	if err := discardLine(rw); err != nil {
		return 0, err
	}
	return int(resp[7]), nil
}

// cancelPause sends the escape sequence that clears a paused state.
func cancelPause(w io.Writer) error {
	_, err := w.Write([]byte("\x1b!o"))
	return err
}

// sendPage clears any pause and writes one encoded page.
func sendPage(w io.Writer, data []byte, settle time.Duration) error {
	if err := cancelPause(w); err != nil {
		return fmt.Errorf("print failed: %w", err)
	}
	time.Sleep(settle)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("print failed: %w", err)
	}
	return nil
}
