package tspl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPage(t *testing.T) {
	bitmap := make([]byte, Label14x40.WidthBytes()*Label14x40.PixelH)
	out := string(BuildPage(Page{Size: Label14x40, Density: 20, Speed: 3, Bitmap: bitmap}))

	assert.True(t, strings.HasPrefix(out, "SIZE 14.0 mm,40.0 mm\r\nGAP 5.0 mm,0.0 mm\r\nDIRECTION 0,0\r\n"))
	assert.Contains(t, out, "DENSITY 15\r\n")
	assert.Contains(t, out, "SPEED 3\r\n")
	assert.Contains(t, out, "BITMAP 0,0,12,284,1,")
	assert.True(t, strings.HasSuffix(out, "\r\nPRINT 1\r\n"))
	assert.NotContains(t, out, "CUT")
}

func TestBuildPageWithCut(t *testing.T) {
	out := string(BuildPage(Page{Size: Label15x30, Density: 8, Speed: 0, Cut: true}))
	assert.Contains(t, out, "SPEED 1\r\n")
	assert.True(t, strings.HasSuffix(out, "PRINT 1\r\nCUT\r\n"))
}

func TestCartridgeCodes(t *testing.T) {
	assert.Equal(t, 1, CartridgeCode(Label12x40))
	assert.Equal(t, len(AllSizes), CartridgeCode(Continuous76x76))
	assert.Equal(t, 0, CartridgeCode(LabelSize{Name: "custom"}))

	s, ok := SizeByName("14x50mm")
	assert.True(t, ok)
	assert.Equal(t, 355, s.PixelH)

	_, ok = SizeByName("nope")
	assert.False(t, ok)
}
