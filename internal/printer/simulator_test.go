package printer

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nemonic-bridge/internal/nemonic"
	"nemonic-bridge/internal/tspl"
)

func TestSimulatorWritesPagePreviews(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	ctrl, _ := NewSimulator(opts, SimOptions{OutputDir: dir, Battery: 100}, &recorder{}, quietLogger())
	require.Equal(t, nemonic.OK, ctrl.Connect(nemonic.Printer{Name: "nemonic", MacAddress: "sim"}))
	defer ctrl.Disconnect()

	info := job(fill(8, 8, color.Black), fill(8, 8, color.White))
	require.Equal(t, nemonic.OK, ctrl.Print(info))

	for i, dark := range []bool{true, false} {
		f, err := os.Open(filepath.Join(dir, []string{"page-0001.png", "page-0002.png"}[i]))
		require.NoError(t, err)
		img, err := png.Decode(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, 576, img.Bounds().Dx())
		assert.Equal(t, 576, img.Bounds().Dy())
		assert.Equal(t, dark, isDark(img, 100, 100))
	}
}

func TestSimLinkHandlesSplitWrites(t *testing.T) {
	sim := NewSimPrinter(SimOptions{}, quietLogger())
	l := &simLink{sim: sim}

	bitmap := make([]byte, 2*3)
	page := tspl.New().CLS().Bitmap(0, 0, 2, 3, bitmap).Print(2).Bytes()
	for _, b := range page {
		_, err := l.Write([]byte{b})
		require.NoError(t, err)
	}
	require.Len(t, sim.Pages(), 2)
	// all-zero TSPL data is a fully printed page
	assert.True(t, isDark(sim.Pages()[0], 15, 2))
}

type foundList struct {
	mu    sync.Mutex
	found []nemonic.Printer
}

func (f *foundList) DeviceFound(p nemonic.Printer) {
	f.mu.Lock()
	f.found = append(f.found, p)
	f.mu.Unlock()
}

func (f *foundList) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.found)
}

func TestSimScanner(t *testing.T) {
	devices := []nemonic.Printer{
		{Name: "nemonic", MacAddress: "sim-1", Type: nemonic.TypeNemonic},
		{Name: "nemonic Label", MacAddress: "sim-2", Type: nemonic.TypeNemonicLabel},
	}
	found := &foundList{}
	s := NewSimScanner(devices, time.Millisecond, found, quietLogger())

	require.Equal(t, nemonic.OK, s.StartScan())
	assert.Equal(t, nemonic.Busy, s.StartScan())
	require.Eventually(t, func() bool { return found.len() == 2 }, time.Second, time.Millisecond)
	s.StopScan()
	s.StopScan()

	found.mu.Lock()
	assert.Equal(t, devices, found.found)
	found.mu.Unlock()

	require.Equal(t, nemonic.OK, s.StartScan())
	s.StopScan()
}
