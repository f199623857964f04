package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"nemonic-bridge/internal/tspl"
)

const (
	DriverSerial    = "serial"
	DriverSimulator = "simulator"
)

var ErrInvalid = errors.New("invalid config")

// Config holds the bridge configuration.
type Config struct {
	Listen      string          `yaml:"listen"`       // HTTP listen address
	Channel     string          `yaml:"channel"`      // method channel name
	CallTimeout time.Duration   `yaml:"call_timeout"` // bound on one method call
	QueueSize   int             `yaml:"queue_size"`   // main loop queue length
	EventBuffer int             `yaml:"event_buffer"` // per-subscriber event buffer
	Driver      string          `yaml:"driver"`       // "serial" or "simulator"
	Log         LogConfig       `yaml:"log"`
	Printer     PrinterConfig   `yaml:"printer"`
	Scan        ScanConfig      `yaml:"scan"`
	MDNS        MDNSConfig      `yaml:"mdns"`
	Simulator   SimulatorConfig `yaml:"simulator"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // logrus level name
	Format string `yaml:"format"` // "text" or "json"
	File   string `yaml:"file"`   // empty logs to stderr
}

type PrinterConfig struct {
	Label           string        `yaml:"label"` // label printer cartridge, e.g. "14x40mm"
	Roll            string        `yaml:"roll"`  // nemonic and MIP roll, e.g. "76x76mm"
	BaudRate        int           `yaml:"baud_rate"`
	RFCOMMChannel   int           `yaml:"rfcomm_channel"`
	ConnectDelay    int           `yaml:"connect_delay"` // msec
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	PageTimeout     time.Duration `yaml:"page_timeout"`
	LowBattery      int           `yaml:"low_battery"`      // percent
	CriticalBattery int           `yaml:"critical_battery"` // percent
}

type ScanConfig struct {
	NameFilters   []string `yaml:"name_filters"`
	IncludePaired bool     `yaml:"include_paired"`
}

type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"` // empty uses the host name
}

type SimulatorConfig struct {
	OutputDir string         `yaml:"output_dir"`
	Battery   int            `yaml:"battery"`
	Devices   []DeviceConfig `yaml:"devices"`
}

// DeviceConfig is a printer the simulated scanner reports.
type DeviceConfig struct {
	Name       string `yaml:"name"`
	MacAddress string `yaml:"mac_address"`
	Type       int    `yaml:"type"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8642",
		Channel:     "nemonic_sdk",
		CallTimeout: 2 * time.Minute,
		QueueSize:   256,
		EventBuffer: 64,
		Driver:      DriverSerial,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Printer: PrinterConfig{
			Label:           "14x40mm",
			Roll:            "76x76mm",
			BaudRate:        115200,
			RFCOMMChannel:   1,
			ConnectDelay:    1000,
			ConnectTimeout:  30 * time.Second,
			PageTimeout:     15 * time.Second,
			LowBattery:      20,
			CriticalBattery: 5,
		},
		Scan: ScanConfig{
			NameFilters:   []string{"nemonic"},
			IncludePaired: true,
		},
		MDNS: MDNSConfig{
			Enabled: true,
		},
		Simulator: SimulatorConfig{
			OutputDir: "pages",
			Battery:   90,
			Devices: []DeviceConfig{
				{Name: "nemonic", MacAddress: "00:00:00:00:00:01", Type: 1},
				{Name: "nemonic Label", MacAddress: "00:00:00:00:00:02", Type: 2},
			},
		},
	}
}

// LoadConfig reads the config from a file or creates it if missing. Keys
// absent from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
		return cfg, nil
	} else if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the fields the bridge cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.Listen == "":
		return fmt.Errorf("%w: listen is empty", ErrInvalid)
	case c.Channel == "":
		return fmt.Errorf("%w: channel is empty", ErrInvalid)
	case c.Driver != DriverSerial && c.Driver != DriverSimulator:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalid, c.Driver)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalid)
	case c.EventBuffer < 1:
		return fmt.Errorf("%w: event_buffer must be positive", ErrInvalid)
	case c.Printer.BaudRate <= 0:
		return fmt.Errorf("%w: printer.baud_rate must be positive", ErrInvalid)
	case !isMedia(c.Printer.Label, true):
		return fmt.Errorf("%w: printer.label %q is not a gapped label size", ErrInvalid, c.Printer.Label)
	case !isMedia(c.Printer.Roll, false):
		return fmt.Errorf("%w: printer.roll %q is not a continuous roll size", ErrInvalid, c.Printer.Roll)
	case c.Log.Format != "text" && c.Log.Format != "json":
		return fmt.Errorf("%w: log.format must be text or json", ErrInvalid)
	}
	return nil
}

// isMedia reports whether name is a known size with (gapped) or without a gap.
func isMedia(name string, gapped bool) bool {
	size, ok := tspl.SizeByName(name)
	return ok && (size.Gap > 0) == gapped
}
