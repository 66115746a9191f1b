package v4l2

import "fmt"

// IOCTL request codes (64-bit encoding of linux/videodev2.h).
const (
	VIDIOC_QUERYCAP  = 0x80685600
	VIDIOC_ENUM_FMT  = 0xc0405602
	VIDIOC_G_FMT     = 0xc0d05604
	VIDIOC_S_FMT     = 0xc0d05605
	VIDIOC_REQBUFS   = 0xc0145608
	VIDIOC_QUERYBUF  = 0xc0585609
	VIDIOC_QBUF      = 0xc058560f
	VIDIOC_DQBUF     = 0xc0585611
	VIDIOC_STREAMON  = 0x40045612
	VIDIOC_STREAMOFF = 0x40045613
	VIDIOC_S_STD     = 0x40085618
	VIDIOC_ENUMINPUT = 0xc050561a
	VIDIOC_G_INPUT   = 0x80045626
	VIDIOC_S_INPUT   = 0xc0045627
	VIDIOC_TRY_FMT   = 0xc0d05640
)

var ioctlNames = map[uint32]string{
	VIDIOC_QUERYCAP:  "VIDIOC_QUERYCAP",
	VIDIOC_ENUM_FMT:  "VIDIOC_ENUM_FMT",
	VIDIOC_G_FMT:     "VIDIOC_G_FMT",
	VIDIOC_S_FMT:     "VIDIOC_S_FMT",
	VIDIOC_REQBUFS:   "VIDIOC_REQBUFS",
	VIDIOC_QUERYBUF:  "VIDIOC_QUERYBUF",
	VIDIOC_QBUF:      "VIDIOC_QBUF",
	VIDIOC_DQBUF:     "VIDIOC_DQBUF",
	VIDIOC_STREAMON:  "VIDIOC_STREAMON",
	VIDIOC_STREAMOFF: "VIDIOC_STREAMOFF",
	VIDIOC_S_STD:     "VIDIOC_S_STD",
	VIDIOC_ENUMINPUT: "VIDIOC_ENUMINPUT",
	VIDIOC_G_INPUT:   "VIDIOC_G_INPUT",
	VIDIOC_S_INPUT:   "VIDIOC_S_INPUT",
	VIDIOC_TRY_FMT:   "VIDIOC_TRY_FMT",
}

// IoctlName returns the symbolic name of a request code, or its hex value if unknown.
func IoctlName(cmd uint32) string {
	if name, ok := ioctlNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("0x%08x", cmd)
}
