package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/fakewebcam/internal/api/models"
	"github.com/smazurov/fakewebcam/internal/device"
	"github.com/smazurov/fakewebcam/pkg/linuxav/v4l2"
)

const devDir = "/dev/"

// lookupDevice resolves a node name such as "video0".
func (s *Server) lookupDevice(id string) (*device.Device, error) {
	if id == "" || strings.Contains(id, "/") {
		return nil, huma.Error400BadRequest("invalid device name " + id)
	}
	dev, ok := s.registry.Lookup(devDir + id)
	if !ok {
		return nil, huma.Error404NotFound("device not found: " + id)
	}
	return dev, nil
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List registered capture devices with their queue state",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.DevicesResponse, error) {
		devs := s.registry.Devices()
		list := make([]models.DeviceStatus, 0, len(devs))
		for _, dev := range devs {
			list = append(list, s.deviceStatus(dev))
		}
		return &models.DevicesResponse{
			Body: models.DevicesData{Devices: list, Count: len(list)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-device",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device}",
		Summary:     "Get Device",
		Description: "Get the queue state and buffers of one device",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404},
	}, func(_ context.Context, input *models.DeviceInput) (*models.DeviceStatusResponse, error) {
		dev, err := s.lookupDevice(input.Device)
		if err != nil {
			return nil, err
		}
		return &models.DeviceStatusResponse{Body: s.deviceStatus(dev)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-device-info",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device}/info",
		Summary:     "Get Device Info",
		Description: "Query capability, format and input through the device's ioctl interface",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 503},
	}, func(ctx context.Context, input *models.DeviceInput) (*models.DeviceInfoResponse, error) {
		dev, err := s.lookupDevice(input.Device)
		if err != nil {
			return nil, err
		}
		info, err := QueryDeviceInfo(ctx, dev)
		if err != nil {
			return nil, toHTTPError("failed to query device", err)
		}
		return &models.DeviceInfoResponse{Body: info}, nil
	})
}

func (s *Server) deviceStatus(dev *device.Device) models.DeviceStatus {
	st := dev.Status()
	buffers := make([]models.BufferData, 0, len(st.Buffers))
	for _, b := range st.Buffers {
		buffers = append(buffers, models.BufferData{
			Index:     b.Index,
			State:     string(b.State),
			Length:    b.Length,
			BytesUsed: b.BytesUsed,
			Offset:    b.Offset,
			Sequence:  b.Sequence,
			Timestamp: b.Timestamp,
		})
	}
	return models.DeviceStatus{
		ID:         strings.TrimPrefix(st.Path, devDir),
		Name:       st.Name,
		Path:       st.Path,
		Registered: st.Registered,
		State:      string(st.State),
		FileIO:     st.FileIO,
		OpenFiles:  st.OpenFiles,
		Capturing:  s.captures.get(st.Path) != nil,
		NextTimeNs: st.NextTime,
		Buffers:    buffers,
	}
}

// QueryDeviceInfo opens a throwaway file handle and issues the identification
// ioctls a capture client would.
func QueryDeviceInfo(ctx context.Context, dev *device.Device) (models.DeviceInfoData, error) {
	f, err := dev.Open(0)
	if err != nil {
		return models.DeviceInfoData{}, err
	}
	defer f.Close()

	var (
		caps   v4l2.Capability
		desc   = v4l2.FmtDesc{Type: v4l2.BufTypeVideoCapture}
		format = v4l2.Format{Type: v4l2.BufTypeVideoCapture}
		index  uint32
		in     v4l2.Input
	)
	if err := f.Ioctl(ctx, v4l2.VIDIOC_QUERYCAP, &caps); err != nil {
		return models.DeviceInfoData{}, err
	}
	if err := f.Ioctl(ctx, v4l2.VIDIOC_ENUM_FMT, &desc); err != nil {
		return models.DeviceInfoData{}, err
	}
	if err := f.Ioctl(ctx, v4l2.VIDIOC_G_FMT, &format); err != nil {
		return models.DeviceInfoData{}, err
	}
	if err := f.Ioctl(ctx, v4l2.VIDIOC_G_INPUT, &index); err != nil {
		return models.DeviceInfoData{}, err
	}
	in.Index = index
	if err := f.Ioctl(ctx, v4l2.VIDIOC_ENUMINPUT, &in); err != nil {
		return models.DeviceInfoData{}, err
	}

	return models.DeviceInfoData{
		Capability: models.CapabilityData{
			Driver:       caps.Driver,
			Card:         caps.Card,
			BusInfo:      caps.BusInfo,
			Version:      formatVersion(caps.Version),
			Capabilities: capabilityNames(caps.DeviceCaps),
		},
		Format: models.FormatData{
			Description:  desc.Description,
			PixelFormat:  v4l2.FormatFourCC(format.Pix.PixelFormat),
			Width:        format.Pix.Width,
			Height:       format.Pix.Height,
			BytesPerLine: format.Pix.BytesPerLine,
			SizeImage:    format.Pix.SizeImage,
			Field:        fieldName(format.Pix.Field),
			Colorspace:   colorspaceName(format.Pix.Colorspace),
		},
		Input: models.InputData{
			Index:    in.Index,
			Name:     in.Name,
			Type:     inputTypeName(in.Type),
			Standard: fmt.Sprintf("0x%08x", in.Std),
		},
	}, nil
}

func formatVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", (v>>16)&0xff, (v>>8)&0xff, v&0xff)
}

func capabilityNames(caps uint32) []string {
	flags := []struct {
		bit  uint32
		name string
	}{
		{v4l2.CapVideoCapture, "video_capture"},
		{v4l2.CapReadWrite, "read_write"},
		{v4l2.CapStreaming, "streaming"},
	}
	names := make([]string, 0, len(flags))
	for _, f := range flags {
		if caps&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return names
}

func fieldName(field uint32) string {
	switch field {
	case v4l2.FieldNone:
		return "none"
	case v4l2.FieldInterlaced:
		return "interlaced"
	default:
		return "any"
	}
}

func colorspaceName(cs uint32) string {
	if cs == v4l2.ColorspaceSMPTE170M {
		return "smpte170m"
	}
	return "default"
}

func inputTypeName(t uint32) string {
	switch t {
	case v4l2.InputTypeCamera:
		return "camera"
	case v4l2.InputTypeTuner:
		return "tuner"
	default:
		return "unknown"
	}
}
