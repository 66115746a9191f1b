package models

// BufferData describes one buffer of a device queue.
type BufferData struct {
	Index     uint32 `json:"index" example:"0" doc:"Buffer index"`
	State     string `json:"state" example:"queued-ready" doc:"Buffer state: free, queued-pending, queued-ready, dequeued"`
	Length    uint32 `json:"length" example:"614400" doc:"Buffer length in bytes"`
	BytesUsed uint32 `json:"bytes_used" example:"614400" doc:"Bytes of frame data"`
	Offset    uint32 `json:"offset" example:"0" doc:"mmap offset"`
	Sequence  uint32 `json:"sequence" example:"42" doc:"Sequence number of the last frame"`
	Timestamp int64  `json:"timestamp_ns" example:"1500000000" doc:"Monotonic timestamp of the last frame"`
}

// DeviceStatus is a snapshot of one registered device.
type DeviceStatus struct {
	ID         string       `json:"id" example:"video0" doc:"Video node name"`
	Name       string       `json:"name" example:"Fake Webcam" doc:"Device name"`
	Path       string       `json:"path" example:"/dev/video0" doc:"Video node path"`
	Registered bool         `json:"registered" doc:"Whether the node can be opened"`
	State      string       `json:"state" example:"streaming" doc:"Stream state: idle, allocated, streaming"`
	FileIO     bool         `json:"file_io" doc:"Whether the read() emulator owns the queue"`
	OpenFiles  int          `json:"open_files" example:"1" doc:"Open file handles"`
	Capturing  bool         `json:"capturing" doc:"Whether the API holds a capture session"`
	NextTimeNs int64        `json:"next_time_ns" doc:"Target time of the most recently queued frame"`
	Buffers    []BufferData `json:"buffers" doc:"Queue buffers"`
}

type DeviceStatusResponse struct {
	Body DeviceStatus
}

// DevicesData lists registered devices.
type DevicesData struct {
	Devices []DeviceStatus `json:"devices" doc:"Registered devices"`
	Count   int            `json:"count" example:"1" doc:"Number of devices"`
}

type DevicesResponse struct {
	Body DevicesData
}

// CapabilityData mirrors the capability query.
type CapabilityData struct {
	Driver       string   `json:"driver" example:"fake_webcam"`
	Card         string   `json:"card" example:"fake_webcam"`
	BusInfo      string   `json:"bus_info" example:"fake_webcam"`
	Version      string   `json:"version" example:"0.0.1"`
	Capabilities []string `json:"capabilities" example:"[\"video_capture\",\"streaming\",\"read_write\"]"`
}

// FormatData describes the capture format.
type FormatData struct {
	Description  string `json:"description" example:"4:2:2, packed, YUYV"`
	PixelFormat  string `json:"pixel_format" example:"YUYV"`
	Width        uint32 `json:"width" example:"640"`
	Height       uint32 `json:"height" example:"480"`
	BytesPerLine uint32 `json:"bytes_per_line" example:"1280"`
	SizeImage    uint32 `json:"size_image" example:"614400"`
	Field        string `json:"field" example:"interlaced"`
	Colorspace   string `json:"colorspace" example:"smpte170m"`
}

// InputData describes the single capture input.
type InputData struct {
	Index    uint32 `json:"index" example:"0"`
	Name     string `json:"name" example:"Fake Webcam"`
	Type     string `json:"type" example:"camera"`
	Standard string `json:"standard" example:"0x0000f900"`
}

// DeviceInfoData is the result of querying a device through its ioctl interface.
type DeviceInfoData struct {
	Capability CapabilityData `json:"capability"`
	Format     FormatData     `json:"format"`
	Input      InputData      `json:"input"`
}

type DeviceInfoResponse struct {
	Body DeviceInfoData
}

// CaptureRequest starts or stops the API capture session of a device.
type CaptureRequest struct {
	DeviceInput
	Body struct {
		Streaming bool `json:"streaming" doc:"true to request buffers and stream on, false to stream off and free them"`
	}
}

// CaptureData reports the capture session of a device.
type CaptureData struct {
	Device    string `json:"device" example:"/dev/video0"`
	Streaming bool   `json:"streaming"`
	Buffers   uint32 `json:"buffers" example:"4" doc:"Buffers granted by REQBUFS"`
	Frames    uint64 `json:"frames" example:"120" doc:"Frames dequeued by the session"`
}

type CaptureResponse struct {
	Body CaptureData
}

// FrameRequest fetches a single frame.
type FrameRequest struct {
	DeviceInput
	Quality int `query:"quality" default:"80" minimum:"1" maximum:"100" doc:"JPEG quality"`
	Timeout int `query:"timeout_ms" default:"2000" minimum:"1" maximum:"60000" doc:"How long to wait for a frame"`
}

// FrameResponse is a JPEG snapshot.
type FrameResponse struct {
	ContentType string `header:"Content-Type"`
	Sequence    string `header:"X-Frame-Sequence"`
	Body        []byte
}

// PreviewRequest opens an MJPEG preview stream.
type PreviewRequest struct {
	DeviceInput
	FPS     int `query:"fps" default:"10" minimum:"1" maximum:"60" doc:"Preview frame rate"`
	Quality int `query:"quality" default:"70" minimum:"1" maximum:"100" doc:"JPEG quality"`
}

// EventsRequest configures the device event stream.
type EventsRequest struct {
	Frames bool `query:"frames" doc:"Include per-frame queue, delivery and dequeue events"`
}
