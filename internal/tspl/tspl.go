package tspl

import (
	"fmt"
	"strings"
)

// LabelSize represents a supported label cartridge
type LabelSize struct {
	Name   string
	Width  float64 // mm
	Height float64 // mm
	PixelW int     // printable dots across the head
	PixelH int     // dots along the feed
	Gap    float64 // mm between labels, zero for continuous media
}

// WidthBytes returns the BITMAP row length in bytes.
func (s LabelSize) WidthBytes() int {
	return (s.PixelW + 7) / 8
}

var (
	Label12x40      = LabelSize{"12x40mm", 12.0, 40.0, 96, 284, 5.0}
	Label14x40      = LabelSize{"14x40mm", 14.0, 40.0, 96, 284, 5.0}
	Label14x50      = LabelSize{"14x50mm", 14.0, 50.0, 96, 355, 5.0}
	Label14x75      = LabelSize{"14x75mm", 14.0, 75.0, 96, 532, 5.0}
	Label15x30      = LabelSize{"15x30mm", 15.0, 30.0, 96, 213, 5.0}
	Continuous76x76 = LabelSize{"76x76mm", 76.0, 76.0, 576, 576, 0}
)

// AllSizes lists the known cartridges. A cartridge code is its index here
// plus one; zero means no cartridge.
var AllSizes = []LabelSize{Label12x40, Label14x40, Label14x50, Label14x75, Label15x30, Continuous76x76}

// SizeByName finds a label size by its Name.
func SizeByName(name string) (LabelSize, bool) {
	for _, s := range AllSizes {
		if s.Name == name {
			return s, true
		}
	}
	return LabelSize{}, false
}

// CartridgeCode returns the cartridge code for a label size, or zero.
func CartridgeCode(size LabelSize) int {
	for i, s := range AllSizes {
		if s.Name == size.Name {
			return i + 1
		}
	}
	return 0
}

// Command builds TSPL2 commands
type Command struct {
	buf strings.Builder
}

// New starts an empty command sequence.
func New() *Command {
	return &Command{}
}

// Size sets label dimensions
func (c *Command) Size(width, height float64) *Command {
	fmt.Fprintf(&c.buf, "SIZE %.1f mm,%.1f mm\r\n", width, height)
	return c
}

// Gap sets gap between labels
func (c *Command) Gap(gap, offset float64) *Command {
	fmt.Fprintf(&c.buf, "GAP %.1f mm,%.1f mm\r\n", gap, offset)
	return c
}

// Direction sets print direction (0 or 1)
func (c *Command) Direction(dir, mirror int) *Command {
	fmt.Fprintf(&c.buf, "DIRECTION %d,%d\r\n", dir, mirror)
	return c
}

// Density sets print darkness (0-15)
func (c *Command) Density(level int) *Command {
	fmt.Fprintf(&c.buf, "DENSITY %d\r\n", clamp(level, 0, 15))
	return c
}

// Speed sets print speed in inches per second (1-6)
func (c *Command) Speed(ips int) *Command {
	fmt.Fprintf(&c.buf, "SPEED %d\r\n", clamp(ips, 1, 6))
	return c
}

// CLS clears the image buffer
func (c *Command) CLS() *Command {
	c.buf.WriteString("CLS\r\n")
	return c
}

// Bitmap adds a 1-bit image at x, y (dots). A zero bit prints a dot.
func (c *Command) Bitmap(x, y, widthBytes, height int, data []byte) *Command {
	fmt.Fprintf(&c.buf, "BITMAP %d,%d,%d,%d,1,", x, y, widthBytes, height)
	c.buf.Write(data)
	c.buf.WriteString("\r\n")
	return c
}

// Print prints n copies
func (c *Command) Print(copies int) *Command {
	fmt.Fprintf(&c.buf, "PRINT %d\r\n", copies)
	return c
}

// Cut fires the cutter once.
func (c *Command) Cut() *Command {
	c.buf.WriteString("CUT\r\n")
	return c
}

// Bytes returns the raw command bytes to send to printer
func (c *Command) Bytes() []byte {
	return []byte(c.buf.String())
}

// String returns the command as a string (for debugging)
func (c *Command) String() string {
	return c.buf.String()
}

// Page describes one printed label.
type Page struct {
	Size    LabelSize
	Density int
	Speed   int
	Bitmap  []byte // Size.WidthBytes() * Size.PixelH bytes, zero bit = dot
	Cut     bool   // cut after this page
}

// BuildPage encodes a single page.
func BuildPage(p Page) []byte {
	cmd := New()
	cmd.Size(p.Size.Width, p.Size.Height).
		Gap(p.Size.Gap, 0).
		Direction(0, 0).
		Density(p.Density).
		Speed(p.Speed).
		CLS().
		Bitmap(0, 0, p.Size.WidthBytes(), p.Size.PixelH, p.Bitmap).
		Print(1)
	if p.Cut {
		cmd.Cut()
	}
	return cmd.Bytes()
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
