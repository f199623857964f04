package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// printerDPI matches the 203 dpi thermal heads the labels are printed on.
const printerDPI = 203

type Orientation int

const (
	Horizontal Orientation = iota
	Vertical
)

// TextOptions configures text rendering
type TextOptions struct {
	FontSize      float64 // points
	Orientation   Orientation
	Invert        bool // white text on black
	WordBreakOnly bool // wrap at spaces; words wider than a line are still split
}

// RenderText lays text out centred on a width x height canvas. Vertical text is
// laid out on the rotated canvas and turned 90 degrees clockwise.
func RenderText(text string, width, height int, opts TextOptions) (image.Image, error) {
	if opts.FontSize <= 0 {
		return nil, fmt.Errorf("invalid font size %.1f", opts.FontSize)
	}
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}

	w, h := width, height
	if opts.Orientation == Vertical {
		w, h = height, width
	}

	bg, fg := image.Image(image.White), image.Image(image.Black)
	if opts.Invert {
		bg, fg = fg, bg
	}
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), bg, image.Point{}, draw.Src)

	face := truetype.NewFace(f, &truetype.Options{Size: opts.FontSize, DPI: printerDPI})
	defer face.Close()

	ctx := freetype.NewContext()
	ctx.SetDPI(printerDPI)
	ctx.SetFont(f)
	ctx.SetFontSize(opts.FontSize)
	ctx.SetClip(canvas.Bounds())
	ctx.SetDst(canvas)
	ctx.SetSrc(fg)
	ctx.SetHinting(font.HintingFull)

	lines := wrapLines(text, face, w-10, opts.WordBreakOnly)
	m := face.Metrics()
	lineHeight := m.Height.Ceil()
	y := (h-len(lines)*lineHeight)/2 + m.Ascent.Ceil()
	for _, line := range lines {
		x := (w - measure(face, line)) / 2
		if _, err := ctx.DrawString(line, freetype.Pt(x, y)); err != nil {
			return nil, fmt.Errorf("draw text: %w", err)
		}
		y += lineHeight
	}

	if opts.Orientation == Vertical {
		return rotate(canvas, true), nil
	}
	return canvas, nil
}

// wrapLines breaks text into lines no wider than maxWidth. Explicit newlines
// always break.
func wrapLines(text string, face font.Face, maxWidth int, wordsOnly bool) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		if !wordsOnly {
			lines = append(lines, splitRunes(para, face, maxWidth)...)
			continue
		}
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := ""
		for _, word := range words {
			candidate := word
			if current != "" {
				candidate = current + " " + word
			}
			if measure(face, candidate) <= maxWidth {
				current = candidate
				continue
			}
			if current != "" {
				lines = append(lines, current)
			}
			// a word that is too long on its own is split by rune
			parts := splitRunes(word, face, maxWidth)
			lines = append(lines, parts[:len(parts)-1]...)
			current = parts[len(parts)-1]
		}
		lines = append(lines, current)
	}
	return lines
}

// splitRunes breaks s anywhere so that each part fits maxWidth. It always
// returns at least one part.
func splitRunes(s string, face font.Face, maxWidth int) []string {
	var parts []string
	current := ""
	for _, r := range s {
		next := current + string(r)
		if current != "" && measure(face, next) > maxWidth {
			parts = append(parts, current)
			next = string(r)
		}
		current = next
	}
	return append(parts, current)
}

func measure(face font.Face, s string) int {
	var width fixed.Int26_6
	for _, r := range s {
		if adv, ok := face.GlyphAdvance(r); ok {
			width += adv
		}
	}
	return width.Ceil()
}

// rotate turns src by 90 degrees, clockwise or counter-clockwise.
func rotate(src image.Image, clockwise bool) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y))
			if clockwise {
				dst.Set(h-1-y, x, c)
			} else {
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}
