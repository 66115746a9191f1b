package device

import (
	"github.com/smazurov/fakewebcam/internal/vb2"
	"github.com/smazurov/fakewebcam/pkg/linuxav/v4l2"
)

// Fixed capture format. Every format query reports these values.
const (
	Width         = 640
	Height        = 480
	Depth         = 16
	BytesPerPixel = Depth / 8
	BytesPerLine  = Width * BytesPerPixel
	SizeImage     = Height * BytesPerLine

	PixelFormat       = v4l2.PixFmtYUYV
	FormatDescription = "4:2:2, packed, YUYV"
	Field             = v4l2.FieldInterlaced
	Colorspace        = v4l2.ColorspaceSMPTE170M
	Standard          = v4l2.Std525_60
)

// Identity reported by QUERYCAP.
const (
	DriverName    = "fake_webcam"
	DriverVersion = 0x000001
	DefaultName   = "Fake Webcam"

	deviceCaps = v4l2.CapVideoCapture | v4l2.CapStreaming | v4l2.CapReadWrite
)

// Capability returns the capability block of the device.
func Capability() v4l2.Capability {
	return v4l2.Capability{
		Driver:       DriverName,
		Card:         DriverName,
		BusInfo:      DriverName,
		Version:      DriverVersion,
		Capabilities: deviceCaps | v4l2.CapDeviceCaps,
		DeviceCaps:   deviceCaps,
	}
}

// PixFormat returns the fixed capture format.
func PixFormat() v4l2.PixFormat {
	return v4l2.PixFormat{
		Width:        Width,
		Height:       Height,
		PixelFormat:  PixelFormat,
		Field:        Field,
		BytesPerLine: v4l2.BytesPerLine(Width, Depth),
		SizeImage:    v4l2.SizeImage(Height, v4l2.BytesPerLine(Width, Depth)),
		Colorspace:   Colorspace,
	}
}

// EnumFormat describes the supported format at index. Only index 0 exists.
func EnumFormat(index uint32) (v4l2.FmtDesc, error) {
	if index != 0 {
		return v4l2.FmtDesc{}, vb2.NewError(vb2.ErrCodeInvalidArgument, "format index out of range",
			map[string]any{"index": index})
	}
	return v4l2.FmtDesc{
		Index:       0,
		Type:        v4l2.BufTypeVideoCapture,
		Description: FormatDescription,
		PixelFormat: PixelFormat,
	}, nil
}

// TryFormat accepts only the fixed pixel format and overwrites every other field
// with the fixed values.
func TryFormat(f *v4l2.Format) error {
	if f.Pix.PixelFormat != PixelFormat {
		return vb2.NewError(vb2.ErrCodeInvalidArgument, "unsupported pixel format",
			map[string]any{"pixelformat": v4l2.FormatFourCC(f.Pix.PixelFormat)})
	}
	f.Pix = PixFormat()
	return nil
}

// EnumInput describes the input at index. Only input 0 exists.
func EnumInput(index uint32, name string) (v4l2.Input, error) {
	if index != 0 {
		return v4l2.Input{}, vb2.NewError(vb2.ErrCodeInvalidArgument, "input index out of range",
			map[string]any{"index": index})
	}
	return v4l2.Input{
		Index: 0,
		Name:  name,
		Type:  v4l2.InputTypeCamera,
		Std:   Standard,
	}, nil
}
