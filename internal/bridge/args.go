package bridge

import (
	"fmt"
	"image"

	"nemonic-bridge/internal/channel"
	"nemonic-bridge/internal/imaging"
	"nemonic-bridge/internal/nemonic"
)

func decodePrinter(call *channel.MethodCall, nameKey, macKey, typeKey string) (nemonic.Printer, error) {
	name, err := call.String(nameKey)
	if err != nil {
		return nemonic.Printer{}, err
	}
	mac, err := call.String(macKey)
	if err != nil {
		return nemonic.Printer{}, err
	}
	typ, err := call.Int(typeKey)
	if err != nil {
		return nemonic.Printer{}, err
	}
	return nemonic.Printer{
		Name:       name,
		MacAddress: mac,
		Type:       nemonic.PrinterTypeOf(typ),
	}, nil
}

func decodeImage(call *channel.MethodCall, key string) (image.Image, error) {
	data, err := call.Bytes(key)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return img, nil
}

func decodePrintInfo(call *channel.MethodCall) (nemonic.PrintInfo, error) {
	var info nemonic.PrintInfo

	printer, err := decodePrinter(call, "printerName", "printerMacAddress", "printerType")
	if err != nil {
		return info, err
	}
	quality, err := call.Int("printQuality")
	if err != nil {
		return info, err
	}

	encoded, err := call.BytesList("images")
	if err != nil {
		return info, err
	}
	images := make([]image.Image, 0, len(encoded))
	for i, data := range encoded {
		img, err := imaging.Decode(data)
		if err != nil {
			return info, fmt.Errorf("images[%d]: %w", i, err)
		}
		images = append(images, img)
	}

	copies, err := call.Int("copies")
	if err != nil {
		return info, err
	}

	flags := []struct {
		key string
		dst *bool
	}{
		{"isLastPageCut", &info.LastPageCut},
		{"enableDither", &info.Dither},
		{"isCheckPrinterStatus", &info.CheckPrinterStatus},
		{"isCheckCartridgeType", &info.CheckCartridgeType},
		{"isCheckPower", &info.CheckPower},
	}
	for _, f := range flags {
		v, err := call.Bool(f.key)
		if err != nil {
			return info, err
		}
		*f.dst = v
	}

	info.Printer = printer
	info.Quality = nemonic.PrintQualityOf(quality)
	info.Images = images
	info.Copies = copies
	return info, nil
}
