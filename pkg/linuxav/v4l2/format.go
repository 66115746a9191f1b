package v4l2

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	b := make([]byte, 4)
	b[0] = byte(format & 0xFF)
	b[1] = byte((format >> 8) & 0xFF)
	b[2] = byte((format >> 16) & 0xFF)
	b[3] = byte((format >> 24) & 0xFF)
	return string(b)
}

// FourCC builds a pixel format code from its four characters.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// BytesPerLine returns the packed line stride for a width and bit depth.
func BytesPerLine(width, depth uint32) uint32 {
	return (width * depth) / 8
}

// SizeImage returns the frame size for a height and line stride.
func SizeImage(height, bytesPerLine uint32) uint32 {
	return height * bytesPerLine
}

// PageAlign rounds n up to the next multiple of pageSize.
func PageAlign(n, pageSize uint32) uint32 {
	return (n + pageSize - 1) &^ (pageSize - 1)
}
