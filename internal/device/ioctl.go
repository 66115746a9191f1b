package device

import (
	"context"
	"fmt"

	"github.com/smazurov/fakewebcam/internal/metrics"
	"github.com/smazurov/fakewebcam/internal/vb2"
	"github.com/smazurov/fakewebcam/pkg/linuxav/v4l2"
)

// ioctlOp handles one request code. It runs with the device lock held.
type ioctlOp func(ctx context.Context, d *Device, f *File, arg any) error

// handler adapts a typed handler to ioctlOp. The argument must be a *T.
func handler[T any](fn func(ctx context.Context, d *Device, f *File, arg *T) error) ioctlOp {
	return func(ctx context.Context, d *Device, f *File, arg any) error {
		p, ok := arg.(*T)
		if !ok || p == nil {
			return vb2.NewError(vb2.ErrCodeInvalidArgument, "wrong argument type",
				map[string]any{"want": fmt.Sprintf("%T", (*T)(nil)), "got": fmt.Sprintf("%T", arg)})
		}
		return fn(ctx, d, f, p)
	}
}

var ioctlTable = map[uint32]ioctlOp{
	v4l2.VIDIOC_QUERYCAP:  handler(queryCap),
	v4l2.VIDIOC_ENUM_FMT:  handler(enumFmt),
	v4l2.VIDIOC_G_FMT:     handler(getFmt),
	v4l2.VIDIOC_S_FMT:     handler(tryFmt),
	v4l2.VIDIOC_TRY_FMT:   handler(tryFmt),
	v4l2.VIDIOC_S_STD:     handler(setStd),
	v4l2.VIDIOC_ENUMINPUT: handler(enumInput),
	v4l2.VIDIOC_G_INPUT:   handler(getInput),
	v4l2.VIDIOC_S_INPUT:   handler(setInput),
	v4l2.VIDIOC_REQBUFS:   handler(reqBufs),
	v4l2.VIDIOC_QUERYBUF:  handler(queryBuf),
	v4l2.VIDIOC_QBUF:      handler(qBuf),
	v4l2.VIDIOC_DQBUF:     handler(dqBuf),
	v4l2.VIDIOC_STREAMON:  handler(streamOn),
	v4l2.VIDIOC_STREAMOFF: handler(streamOff),
}

// Ioctl dispatches a request code on behalf of f. arg must point to the
// request's argument type, e.g. *v4l2.Format for VIDIOC_G_FMT and *uint32 for
// VIDIOC_STREAMON. Unknown codes fail with ErrNotSupported. f must have been
// opened on d.
func (d *Device) Ioctl(ctx context.Context, f *File, cmd uint32, arg any) error {
	name := v4l2.IoctlName(cmd)
	op, ok := ioctlTable[cmd]
	if !ok {
		metrics.RecordIoctl(d.Path(), name, vb2.ErrNotSupported)
		return vb2.NewError(vb2.ErrCodeNotSupported, "unsupported ioctl", map[string]any{"cmd": name})
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	err := f.check()
	if err == nil {
		err = op(ctx, d, f, arg)
	}
	metrics.RecordIoctl(d.label(), name, err)
	if err != nil {
		d.logger.Debug("ioctl failed", "cmd", name, "error", err)
	}
	return err
}

func checkBufType(t uint32) error {
	if t != v4l2.BufTypeVideoCapture {
		return vb2.NewError(vb2.ErrCodeInvalidArgument, "unsupported buffer type", map[string]any{"type": t})
	}
	return nil
}

func checkMemory(m uint32) error {
	if m != v4l2.MemoryMMAP {
		return vb2.NewError(vb2.ErrCodeInvalidArgument, "only mmap buffers are supported", map[string]any{"memory": m})
	}
	return nil
}

func queryCap(_ context.Context, _ *Device, _ *File, c *v4l2.Capability) error {
	*c = Capability()
	return nil
}

func enumFmt(_ context.Context, _ *Device, _ *File, desc *v4l2.FmtDesc) error {
	if err := checkBufType(desc.Type); err != nil {
		return err
	}
	fd, err := EnumFormat(desc.Index)
	if err != nil {
		return err
	}
	*desc = fd
	return nil
}

func getFmt(_ context.Context, _ *Device, _ *File, f *v4l2.Format) error {
	if err := checkBufType(f.Type); err != nil {
		return err
	}
	f.Pix = PixFormat()
	return nil
}

func tryFmt(_ context.Context, _ *Device, _ *File, f *v4l2.Format) error {
	if err := checkBufType(f.Type); err != nil {
		return err
	}
	return TryFormat(f)
}

// setStd accepts any standard.
func setStd(context.Context, *Device, *File, *uint64) error {
	return nil
}

func enumInput(_ context.Context, d *Device, _ *File, in *v4l2.Input) error {
	input, err := EnumInput(in.Index, d.name)
	if err != nil {
		return err
	}
	*in = input
	return nil
}

func getInput(_ context.Context, _ *Device, _ *File, i *uint32) error {
	*i = 0
	return nil
}

func setInput(_ context.Context, _ *Device, _ *File, i *uint32) error {
	if *i != 0 {
		return vb2.NewError(vb2.ErrCodeInvalidArgument, "input index out of range", map[string]any{"index": *i})
	}
	return nil
}

func reqBufs(_ context.Context, d *Device, f *File, req *v4l2.RequestBuffers) error {
	if err := checkBufType(req.Type); err != nil {
		return err
	}
	if err := checkMemory(req.Memory); err != nil {
		return err
	}
	if err := d.checkOwner(f); err != nil {
		return err
	}

	n, err := d.queue.ReqBufs(req.Count)
	if err != nil {
		return err
	}
	req.Count = n
	if n > 0 {
		d.owner = f
	} else {
		d.owner = nil
	}
	return nil
}

func queryBuf(_ context.Context, d *Device, _ *File, b *v4l2.Buffer) error {
	if err := checkBufType(b.Type); err != nil {
		return err
	}
	info, err := d.queue.QueryBuf(b.Index)
	if err != nil {
		return err
	}
	fillBuffer(b, info)
	return nil
}

func qBuf(_ context.Context, d *Device, f *File, b *v4l2.Buffer) error {
	if err := checkBufType(b.Type); err != nil {
		return err
	}
	if err := checkMemory(b.Memory); err != nil {
		return err
	}
	if err := d.checkOwner(f); err != nil {
		return err
	}
	info, err := d.queue.QBuf(b.Index)
	if err != nil {
		return err
	}
	fillBuffer(b, info)
	return nil
}

func dqBuf(ctx context.Context, d *Device, f *File, b *v4l2.Buffer) error {
	if err := checkBufType(b.Type); err != nil {
		return err
	}
	if err := d.checkOwner(f); err != nil {
		return err
	}
	info, err := d.queue.DQBuf(ctx, f.nonblocking)
	if err != nil {
		return err
	}
	fillBuffer(b, info)
	return nil
}

func streamOn(_ context.Context, d *Device, f *File, t *uint32) error {
	if err := checkBufType(*t); err != nil {
		return err
	}
	if err := d.checkOwner(f); err != nil {
		return err
	}
	return d.queue.StreamOn()
}

func streamOff(_ context.Context, d *Device, f *File, t *uint32) error {
	if err := checkBufType(*t); err != nil {
		return err
	}
	if err := d.checkOwner(f); err != nil {
		return err
	}
	return d.queue.StreamOff()
}

func fillBuffer(b *v4l2.Buffer, info vb2.BufferInfo) {
	b.Index = info.Index
	b.Type = v4l2.BufTypeVideoCapture
	b.Memory = v4l2.MemoryMMAP
	b.Offset = info.Offset
	b.Length = info.Length
	b.BytesUsed = info.BytesUsed
	b.Sequence = info.Sequence
	b.Timestamp = info.Timestamp
	b.Field = Field
	b.Flags = v4l2.BufFlagTimestampMonotonic
	switch info.State {
	case vb2.StateQueuedPending:
		b.Flags |= v4l2.BufFlagQueued
	case vb2.StateQueuedReady:
		b.Flags |= v4l2.BufFlagDone
	}
}
