package v4l2

// Capability flags.
const (
	CapVideoCapture = 0x00000001
	CapReadWrite    = 0x01000000
	CapStreaming    = 0x04000000
	CapDeviceCaps   = 0x80000000
)

// Common pixel formats.
const (
	PixFmtYUYV  = 0x56595559 // 'YUYV'
	PixFmtMJPEG = 0x47504A4D // 'MJPG'
	PixFmtH264  = 0x34363248 // 'H264'
	PixFmtHEVC  = 0x43564548 // 'HEVC'
	PixFmtNV12  = 0x3231564E // 'NV12'
)

// Field orders.
const (
	FieldAny        = 0
	FieldNone       = 1
	FieldInterlaced = 4
)

// Colorspaces.
const (
	ColorspaceDefault   = 0
	ColorspaceSMPTE170M = 1
)

// Video standards.
const (
	StdNTSC   = 0x0000b000 // NTSC_M | NTSC_M_JP | NTSC_M_KR
	Std525_60 = 0x0000f900 // PAL_M | PAL_60 | NTSC | NTSC_443
)

// Input types.
const (
	InputTypeTuner  = 1
	InputTypeCamera = 2
)

// Buffer type.
const (
	BufTypeVideoCapture = 1
)

// Memory types.
const (
	MemoryMMAP    = 1
	MemoryUserPtr = 2
)

// Buffer flags reported by QUERYBUF/DQBUF.
const (
	BufFlagMapped             = 0x00000001
	BufFlagQueued             = 0x00000002
	BufFlagDone               = 0x00000004
	BufFlagTimestampMonotonic = 0x00002000
)

// Capability mirrors struct v4l2_capability.
type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
}

// FmtDesc mirrors struct v4l2_fmtdesc.
type FmtDesc struct {
	Index       uint32
	Type        uint32
	Flags       uint32
	Description string
	PixelFormat uint32
}

// PixFormat mirrors struct v4l2_pix_format.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
}

// Format mirrors struct v4l2_format for single-planar capture.
type Format struct {
	Type uint32
	Pix  PixFormat
}

// Input mirrors struct v4l2_input.
type Input struct {
	Index uint32
	Name  string
	Type  uint32
	Std   uint64
}

// RequestBuffers mirrors struct v4l2_requestbuffers.
type RequestBuffers struct {
	Count  uint32
	Type   uint32
	Memory uint32
}

// Buffer mirrors struct v4l2_buffer for single-planar MMAP buffers.
type Buffer struct {
	Index     uint32
	Type      uint32
	BytesUsed uint32
	Flags     uint32
	Field     uint32
	Timestamp int64 // monotonic nanoseconds
	Sequence  uint32
	Memory    uint32
	Offset    uint32
	Length    uint32
}
