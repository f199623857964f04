package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var ErrEmptyImage = errors.New("empty image data")

// Decode decodes an encoded raster image (PNG, JPEG, GIF, BMP or WebP).
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decode %s image: %w", format, ErrEmptyImage)
	}
	return img, nil
}

// MonoOptions controls 1-bit conversion.
type MonoOptions struct {
	Threshold uint8 // gray values below this become dots when not dithering
	Invert    bool  // flip every bit after conversion
	Dither    bool  // Floyd-Steinberg error diffusion instead of a fixed threshold
}

// ToMonochrome fits img into width x height and packs it MSB first, one bit per
// pixel, rows padded to whole bytes. A set bit is a dark pixel unless
// opts.Invert is set.
func ToMonochrome(img image.Image, width, height int, opts MonoOptions) []byte {
	gray := grayPlane(resizeToFit(img, width, height), width, height)

	widthBytes := (width + 7) / 8
	data := make([]byte, widthBytes*height)

	if opts.Dither {
		floydSteinberg(gray, width, height)
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := gray[y*width+x]
			var dark bool
			if opts.Dither {
				dark = v < 128
			} else {
				dark = v < float32(opts.Threshold)
			}
			if dark != opts.Invert {
				data[y*widthBytes+x/8] |= 1 << (7 - uint(x%8))
			}
		}
	}
	return data
}

// grayPlane returns luminance values for a width x height canvas. Pixels
// outside img are white.
func grayPlane(img image.Image, width, height int) []float32 {
	plane := make([]float32, width*height)
	b := img.Bounds()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < b.Dx() && y < b.Dy() {
				plane[y*width+x] = float32(rgbToGray(img.At(b.Min.X+x, b.Min.Y+y)))
			} else {
				plane[y*width+x] = 255
			}
		}
	}
	return plane
}

func floydSteinberg(plane []float32, width, height int) {
	spread := func(x, y int, e float32) {
		if x < 0 || x >= width || y >= height {
			return
		}
		plane[y*width+x] += e
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			old := plane[y*width+x]
			var v float32
			if old >= 128 {
				v = 255
			}
			plane[y*width+x] = v
			e := old - v
			spread(x+1, y, e*7/16)
			spread(x-1, y+1, e*3/16)
			spread(x, y+1, e*5/16)
			spread(x+1, y+1, e*1/16)
		}
	}
}

// rgbToGray converts a color to grayscale value. Transparent pixels are white.
func rgbToGray(c color.Color) uint8 {
	r, g, b, a := c.RGBA()
	if a == 0 {
		return 255
	}
	// channels are alpha-premultiplied, so this composites over white
	gray := (0.299*float64(r)+0.587*float64(g)+0.114*float64(b))/256 + 255*(1-float64(a)/0xffff)
	if gray > 255 {
		gray = 255
	}
	return uint8(gray)
}

// resizeToFit scales image to fit within bounds while maintaining aspect ratio
func resizeToFit(img image.Image, maxW, maxH int) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == maxW && srcH <= maxH || srcH == maxH && srcW <= maxW {
		return img
	}

	scale := float64(maxW) / float64(srcW)
	if s := float64(maxH) / float64(srcH); s < scale {
		scale = s
	}
	newW := max(1, int(float64(srcW)*scale))
	newH := max(1, int(float64(srcH)*scale))

	// nearest neighbour is enough for a thermal head
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	for y := 0; y < newH; y++ {
		srcY := min(int(float64(y)/scale), srcH-1)
		for x := 0; x < newW; x++ {
			srcX := min(int(float64(x)/scale), srcW-1)
			dst.Set(x, y, img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY))
		}
	}
	return dst
}

// Compose overlays img on a template with a darken blend, so white areas of
// either layer never hide the other. Both are fitted to width x height.
func Compose(template, img image.Image, width, height int) image.Image {
	canvas := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	for _, layer := range []image.Image{template, img} {
		if layer == nil {
			continue
		}
		l := resizeToFit(layer, width, height)
		b := l.Bounds()
		for y := 0; y < b.Dy() && y < height; y++ {
			for x := 0; x < b.Dx() && x < width; x++ {
				g := rgbToGray(l.At(b.Min.X+x, b.Min.Y+y))
				if g < canvas.GrayAt(x, y).Y {
					canvas.SetGray(x, y, color.Gray{Y: g})
				}
			}
		}
	}
	return canvas
}

// PreviewMonochrome renders packed bitmap data, as produced by ToMonochrome
// without Invert, as a grayscale image.
func PreviewMonochrome(data []byte, width, height int) image.Image {
	widthBytes := (width + 7) / 8
	img := image.NewGray(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			bit := (data[y*widthBytes+x/8] >> (7 - uint(x%8))) & 1
			if bit == 1 {
				img.SetGray(x, y, color.Gray{0})
			} else {
				img.SetGray(x, y, color.Gray{255})
			}
		}
	}
	return img
}
