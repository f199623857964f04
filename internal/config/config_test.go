package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.FileExists(t, path)

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfigOverridesKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	yml := `
listen: 0.0.0.0:9000
driver: simulator
log:
  level: debug
printer:
  label: 12x40mm
  page_timeout: 45s
scan:
  name_filters: [nemonic, p21]
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, DriverSimulator, cfg.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "12x40mm", cfg.Printer.Label)
	assert.Equal(t, "76x76mm", cfg.Printer.Roll)
	assert.Equal(t, 45*time.Second, cfg.Printer.PageTimeout)
	assert.Equal(t, 115200, cfg.Printer.BaudRate)
	assert.Equal(t, []string{"nemonic", "p21"}, cfg.Scan.NameFilters)
	assert.Equal(t, "nemonic_sdk", cfg.Channel)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"driver":   "driver: usb\n",
		"format":   "log:\n  format: xml\n",
		"queue":    "queue_size: 0\n",
		"baud":     "printer:\n  baud_rate: -1\n",
		"channel":  "channel: \"\"\n",
		"garbage":  "listen: [\n",
		"listen":   "listen: \"\"\n",
		"eventbuf": "event_buffer: 0\n",
		"label":    "printer:\n  label: 76x76mm\n",
		"roll":     "printer:\n  roll: 14x40mm\n",
		"unknown":  "printer:\n  roll: 80x80mm\n",
	}
	for name, yml := range tests {
		path := filepath.Join(t.TempDir(), name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(yml), 0644))
		_, err := LoadConfig(path)
		assert.Error(t, err, name)
	}
}

func TestValidateWrapsErrInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Driver = "bogus"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
	assert.NoError(t, DefaultConfig().Validate())
}
