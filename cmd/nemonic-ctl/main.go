package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"nemonic-bridge/internal/bridge"
	"nemonic-bridge/internal/channel"
	"nemonic-bridge/internal/discovery"
	"nemonic-bridge/internal/imaging"
	"nemonic-bridge/internal/nemonic"
	"nemonic-bridge/internal/tspl"
)

const usage = `Usage: nemonic-ctl [-url URL] [-channel NAME] <command> [flags]

Commands:
  call <method> [json-args]   invoke one operation and print the reply
  print [flags]               print images or text and follow progress
  watch                       print notifications as they arrive
  discover [-timeout d]       browse the local network for bridges
`

var log = logrus.New()

func main() {
	baseURL := flag.String("url", "http://127.0.0.1:8642", "bridge base URL")
	channelName := flag.String("channel", bridge.ChannelName, "method channel name")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := channel.NewClient(*baseURL, *channelName)
	args := flag.Args()[1:]

	var err error
	switch flag.Arg(0) {
	case "call":
		err = runCall(ctx, client, args)
	case "print":
		err = runPrint(ctx, client, args)
	case "watch":
		err = runWatch(ctx, client)
	case "discover":
		err = runDiscover(ctx, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal(flag.Arg(0) + " failed")
	}
}

func runCall(ctx context.Context, client *channel.Client, args []string) error {
	if len(args) < 1 {
		return errors.New("call: method name required")
	}
	var callArgs map[string]any
	if len(args) > 1 {
		if err := json.Unmarshal([]byte(args[1]), &callArgs); err != nil {
			return fmt.Errorf("call: arguments must be a JSON object: %w", err)
		}
	}

	reply, err := client.Invoke(ctx, args[0], callArgs)
	if err != nil {
		return err
	}
	return printJSON(reply)
}

func runPrint(ctx context.Context, client *channel.Client, args []string) error {
	fs := flag.NewFlagSet("print", flag.ExitOnError)
	var images stringList
	fs.Var(&images, "image", "image file to print (repeatable)")
	text := fs.String("text", "", "text to render and print")
	fontSize := fs.Float64("font-size", 24, "text size in points")
	vertical := fs.Bool("vertical", false, "run text along the label")
	invert := fs.Bool("invert", false, "white text on black")
	labelName := fs.String("label", tspl.Label14x40.Name, "label size for text layout")
	name := fs.String("name", "nemonic", "printer name")
	mac := fs.String("mac", "", "printer address (connects first when set)")
	printerType := fs.Int("type", int(nemonic.TypeNemonicLabel), "printer type")
	quality := fs.Int("quality", int(nemonic.QualityMiddleNormal), "0 low/fast, 1 normal, 2 high/slow")
	copies := fs.Int("copies", 1, "copies of the image list")
	cut := fs.Bool("cut", true, "cut after the last page")
	dither := fs.Bool("dither", false, "dither instead of threshold")
	checks := fs.Bool("check", false, "check status, cartridge and power before printing")
	fs.Parse(args)

	pages, err := loadPages(images, *text, *labelName, imaging.TextOptions{
		FontSize:    *fontSize,
		Orientation: orientation(*vertical),
		Invert:      *invert,
	})
	if err != nil {
		return err
	}

	events, err := client.Subscribe(ctx)
	if err != nil {
		return err
	}

	if *mac != "" {
		reply, err := client.Invoke(ctx, "connect", map[string]any{
			"name":       *name,
			"macAddress": *mac,
			"type":       *printerType,
		})
		if err != nil {
			return err
		}
		code := resultCode(reply.Result)
		if code != nemonic.OK && code != nemonic.AlreadyConnected {
			return fmt.Errorf("connect: %s", nemonic.ResultName(code))
		}
	}

	completed := make(chan struct{})
	go func() {
		for ev := range events {
			printEvent(ev)
			if ev.Method == bridge.MethodPrintComplete {
				close(completed)
				return
			}
		}
	}()

	reply, err := client.Invoke(ctx, "print", map[string]any{
		"printerName":          *name,
		"printerMacAddress":    *mac,
		"printerType":          *printerType,
		"printQuality":         *quality,
		"images":               pages,
		"copies":               *copies,
		"isLastPageCut":        *cut,
		"enableDither":         *dither,
		"isCheckPrinterStatus": *checks,
		"isCheckCartridgeType": *checks,
		"isCheckPower":         *checks,
	})
	if err != nil {
		return err
	}
	// notifications trail the reply by a main loop hop
	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		log.Warn("no printComplete notification received")
	}

	code := resultCode(reply.Result)
	if code != nemonic.OK {
		return fmt.Errorf("print: %s", nemonic.ResultName(code))
	}
	fmt.Println("print: OK")
	return nil
}

// loadPages returns PNG-encoded pages from image files or rendered text.
func loadPages(files []string, text, labelName string, opts imaging.TextOptions) ([][]byte, error) {
	var pages [][]byte
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if _, err := imaging.Decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		pages = append(pages, data)
	}

	if text != "" {
		label, ok := tspl.SizeByName(labelName)
		if !ok {
			return nil, fmt.Errorf("unknown label size %q", labelName)
		}
		img, err := imaging.RenderText(text, label.PixelW, label.PixelH, opts)
		if err != nil {
			return nil, err
		}
		data, err := encodePNG(img)
		if err != nil {
			return nil, err
		}
		pages = append(pages, data)
	}

	if len(pages) == 0 {
		return nil, errors.New("print: need -image or -text")
	}
	return pages, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func orientation(vertical bool) imaging.Orientation {
	if vertical {
		return imaging.Vertical
	}
	return imaging.Horizontal
}

func runWatch(ctx context.Context, client *channel.Client) error {
	return client.Listen(ctx, printEvent)
}

func runDiscover(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	timeout := fs.Duration("timeout", 3*time.Second, "how long to browse")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var mu sync.Mutex
	seen := make(map[string]bool)
	err := discovery.Browse(ctx, func(b discovery.Bridge) {
		mu.Lock()
		defer mu.Unlock()
		if seen[b.Instance] {
			return
		}
		seen[b.Instance] = true
		fmt.Printf("%s\t%s\tchannel=%s\n", b.Instance, b.BaseURL(), b.Channel)
	})
	if err != nil {
		return err
	}
	if len(seen) == 0 {
		fmt.Println("no bridges found")
	}
	return nil
}

func printEvent(ev channel.Event) {
	args, _ := json.Marshal(ev.Arguments)
	fmt.Printf("%s %s\n", ev.Method, args)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// resultCode reads an integer result from a decoded reply.
func resultCode(v any) int {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return nemonic.Fail
		}
		return int(i)
	case float64:
		return int(n)
	default:
		return nemonic.Fail
	}
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
