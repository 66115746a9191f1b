// Package v4l2 holds the Video4Linux2 vocabulary shared by the emulated capture
// device and its clients: capability bits, pixel formats, field and colorspace
// identifiers, VIDIOC request codes, and plain Go mirrors of the structures the
// capture ioctls exchange.
//
// Nothing here talks to a kernel. The structures carry the same fields as
// linux/videodev2.h but are ordinary Go values, passed by pointer through an
// in-process ioctl table.
//
// # Capabilities
//
//	var cp v4l2.Capability
//	err := file.Ioctl(ctx, v4l2.VIDIOC_QUERYCAP, &cp)
//	if cp.Capabilities&v4l2.CapStreaming != 0 { ... }
//
// # Buffers
//
//	req := v4l2.RequestBuffers{Count: 4, Type: v4l2.BufTypeVideoCapture, Memory: v4l2.MemoryMMAP}
//	err := file.Ioctl(ctx, v4l2.VIDIOC_REQBUFS, &req)
//
//	buf := v4l2.Buffer{Index: 0, Type: v4l2.BufTypeVideoCapture, Memory: v4l2.MemoryMMAP}
//	err = file.Ioctl(ctx, v4l2.VIDIOC_QBUF, &buf)
package v4l2
