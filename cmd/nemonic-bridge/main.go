package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"nemonic-bridge/internal/bridge"
	"nemonic-bridge/internal/channel"
	"nemonic-bridge/internal/config"
	"nemonic-bridge/internal/discovery"
	"nemonic-bridge/internal/logging"
	"nemonic-bridge/internal/looper"
	"nemonic-bridge/internal/nemonic"
	"nemonic-bridge/internal/printer"
	"nemonic-bridge/internal/tspl"
)

func main() {
	configPath := flag.String("config", "nemonic-bridge.yaml", "path to config file, created with defaults if missing")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	driver := flag.String("driver", "", "printer driver: serial or simulator (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *driver != "" {
		cfg.Driver = *driver
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.WithField("signal", sig.String()).Info("shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("bridge stopped")
		closer.Close()
		os.Exit(1)
	}
}

// run wires the bridge and drives the main loop on the calling goroutine
// until ctx is cancelled or the server fails.
func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	newPrinter, newScanner, err := drivers(cfg, log)
	if err != nil {
		return err
	}

	loop := looper.New(cfg.QueueSize, log)
	hub := channel.NewHub(cfg.EventBuffer, log)
	ch := channel.New(cfg.Channel, hub, log)

	controller := bridge.NewController(ch, loop, newPrinter, log)
	scanner := bridge.NewScanner(ch, newScanner, log)
	plugin := bridge.NewPlugin(controller, scanner, log)
	ch.SetMethodCallHandler(plugin)

	srvCfg := channel.DefaultServerConfig()
	srvCfg.Addr = cfg.Listen
	srvCfg.CallTimeout = cfg.CallTimeout
	srv := channel.NewServer(srvCfg, log)
	srv.Register(ch, hub)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
		cancel()
	}()

	if cfg.MDNS.Enabled {
		if mdns := advertise(cfg, log); mdns != nil {
			defer mdns.Shutdown()
		}
	}

	log.WithFields(logrus.Fields{
		"channel": cfg.Channel,
		"driver":  cfg.Driver,
		"methods": len(plugin.Methods()),
	}).Info("bridge ready")

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Warn("main loop stopped")
	}

	scanner.StopScan()
	controller.Disconnect()
	plugin.Wait()
	return <-errChan
}

type shutdowner interface{ Shutdown() }

func advertise(cfg *config.Config, log logrus.FieldLogger) shutdowner {
	_, portStr, err := net.SplitHostPort(cfg.Listen)
	if err != nil {
		log.WithError(err).Warn("mDNS disabled: bad listen address")
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port == 0 {
		log.WithField("listen", cfg.Listen).Warn("mDNS disabled: listen address needs a fixed port")
		return nil
	}
	server, err := discovery.Advertise(cfg.MDNS.Instance, port, cfg.Channel)
	if err != nil {
		log.WithError(err).Warn("mDNS advertisement failed")
		return nil
	}
	log.WithField("service", discovery.ServiceType).Info("advertising over mDNS")
	return server
}

type (
	printerFactory func(nemonic.PrinterCallback) nemonic.PrinterController
	scannerFactory func(nemonic.ScanCallback) nemonic.ScanController
)

// drivers returns the controller constructors for the configured driver.
func drivers(cfg *config.Config, log logrus.FieldLogger) (printerFactory, scannerFactory, error) {
	label, ok := tspl.SizeByName(cfg.Printer.Label)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown label size %q", config.ErrInvalid, cfg.Printer.Label)
	}
	roll, ok := tspl.SizeByName(cfg.Printer.Roll)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown roll size %q", config.ErrInvalid, cfg.Printer.Roll)
	}
	opts := printer.DefaultOptions()
	opts.Label = label
	opts.Roll = roll
	opts.ConnectDelay = cfg.Printer.ConnectDelay
	opts.ConnectTimeout = cfg.Printer.ConnectTimeout
	opts.PageTimeout = cfg.Printer.PageTimeout
	opts.LowBattery = cfg.Printer.LowBattery
	opts.CriticalBattery = cfg.Printer.CriticalBattery

	if cfg.Driver == config.DriverSimulator {
		sim := printer.SimOptions{
			OutputDir: cfg.Simulator.OutputDir,
			Battery:   cfg.Simulator.Battery,
		}
		devices := make([]nemonic.Printer, 0, len(cfg.Simulator.Devices))
		for _, d := range cfg.Simulator.Devices {
			devices = append(devices, nemonic.Printer{
				Name:       d.Name,
				MacAddress: d.MacAddress,
				Type:       nemonic.PrinterTypeOf(d.Type),
			})
		}
		newPrinter := func(cb nemonic.PrinterCallback) nemonic.PrinterController {
			ctrl, _ := printer.NewSimulator(opts, sim, cb, log)
			return ctrl
		}
		newScanner := func(cb nemonic.ScanCallback) nemonic.ScanController {
			return printer.NewSimScanner(devices, 200*time.Millisecond, cb, log)
		}
		return newPrinter, newScanner, nil
	}

	opts.Dial = printer.SerialDialer(cfg.Printer.BaudRate, cfg.Printer.RFCOMMChannel, log)
	scan := printer.ScanOptions{
		NameFilters:   cfg.Scan.NameFilters,
		IncludePaired: cfg.Scan.IncludePaired,
	}
	newPrinter := func(cb nemonic.PrinterCallback) nemonic.PrinterController {
		return printer.NewController(opts, cb, log)
	}
	newScanner := func(cb nemonic.ScanCallback) nemonic.ScanController {
		return printer.NewScanner(scan, cb, log)
	}
	return newPrinter, newScanner, nil
}
