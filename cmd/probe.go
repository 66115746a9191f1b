package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/smazurov/fakewebcam/internal/device"
	"github.com/smazurov/fakewebcam/internal/logging"
	"github.com/smazurov/fakewebcam/internal/vb2"
	"github.com/smazurov/fakewebcam/pkg/linuxav/v4l2"
)

// ProbeOptions configures a scripted capture session.
type ProbeOptions struct {
	Name     string
	Frames   int
	Mode     string // "mmap" or "read"
	NonBlock bool
	Pattern  bool
	Timeout  time.Duration
}

// FrameResult is one captured frame.
type FrameResult struct {
	Sequence  uint32
	Index     uint32
	BytesUsed uint32
	Timestamp int64
	Elapsed   time.Duration
}

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	opts := ProbeOptions{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Run a scripted capture session",
		Long: `Registers a device and captures frames from it, either through mmap streaming ` +
			`(REQBUFS, QBUF, STREAMON, DQBUF) or through read(), printing per-frame timing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Mode != "mmap" && opts.Mode != "read" {
				return fmt.Errorf("unknown mode %q (want mmap or read)", opts.Mode)
			}
			if opts.Frames <= 0 {
				return errors.New("frames must be positive")
			}
			return RunProbe(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", device.DefaultName, "Device name")
	cmd.Flags().IntVarP(&opts.Frames, "frames", "n", 30, "Number of frames to capture")
	cmd.Flags().StringVar(&opts.Mode, "mode", "mmap", "I/O method: mmap or read")
	cmd.Flags().BoolVar(&opts.NonBlock, "nonblock", false, "Open with O_NONBLOCK and poll before each frame")
	cmd.Flags().BoolVar(&opts.Pattern, "pattern", true, "Fill frames with the test pattern")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "Give up waiting for a frame after this long")
	return cmd
}

// RunProbe registers a device, captures opts.Frames frames and writes one line
// per frame plus a summary to w.
func RunProbe(ctx context.Context, w io.Writer, opts ProbeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.GetLogger("probe")
	dev, unregister, err := registerStandalone(opts.Name, opts.Pattern, logger)
	if err != nil {
		return err
	}
	defer unregister()

	flags := 0
	if opts.NonBlock {
		flags |= unix.O_NONBLOCK
	}
	f, err := dev.Open(flags)
	if err != nil {
		return fmt.Errorf("open %s: %w", dev.Path(), err)
	}
	defer f.Close()

	logger.Info("Probe started", "device", dev.Path(), "mode", opts.Mode, "frames", opts.Frames)
	fmt.Fprintf(w, "Probing %s (%s, %d frames)\n", dev.Path(), opts.Mode, opts.Frames)

	var results []FrameResult
	start := time.Now()
	if opts.Mode == "read" {
		results, err = probeRead(ctx, f, opts)
	} else {
		results, err = probeMmap(ctx, f, opts)
	}
	for _, r := range results {
		fmt.Fprintf(w, "frame seq=%-4d index=%d bytes=%d ts=%dns +%v\n",
			r.Sequence, r.Index, r.BytesUsed, r.Timestamp, r.Elapsed.Round(time.Microsecond))
	}
	if err != nil {
		return err
	}

	total := time.Since(start)
	fps := float64(len(results)) / total.Seconds()
	fmt.Fprintf(w, "Captured %d frames in %v (%.1f fps)\n", len(results), total.Round(time.Millisecond), fps)
	logger.Info("Probe finished", "device", dev.Path(), "frames", len(results), "duration", total)
	return nil
}

// waitReady polls a non-blocking file until a frame is readable.
func waitReady(ctx context.Context, f *device.File, opts ProbeOptions) error {
	if !opts.NonBlock {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	events, err := f.Poll(ctx, true)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	if events&vb2.PollErr != 0 {
		return errors.New("poll: error condition")
	}
	return nil
}

func probeMmap(ctx context.Context, f *device.File, opts ProbeOptions) ([]FrameResult, error) {
	req := v4l2.RequestBuffers{Count: vb2.NumBuffers, Type: v4l2.BufTypeVideoCapture, Memory: v4l2.MemoryMMAP}
	if err := f.Ioctl(ctx, v4l2.VIDIOC_REQBUFS, &req); err != nil {
		return nil, fmt.Errorf("VIDIOC_REQBUFS: %w", err)
	}
	bufs := make([]v4l2.Buffer, req.Count)
	for i := range req.Count {
		buf := v4l2.Buffer{Index: i, Type: v4l2.BufTypeVideoCapture}
		if err := f.Ioctl(ctx, v4l2.VIDIOC_QUERYBUF, &buf); err != nil {
			return nil, fmt.Errorf("VIDIOC_QUERYBUF %d: %w", i, err)
		}
		if _, err := f.Mmap(buf.Offset); err != nil {
			return nil, fmt.Errorf("mmap buffer %d: %w", i, err)
		}
		buf.Memory = v4l2.MemoryMMAP
		bufs[i] = buf
	}

	// The queue accepts buffers only while streaming.
	typ := uint32(v4l2.BufTypeVideoCapture)
	if err := f.Ioctl(ctx, v4l2.VIDIOC_STREAMON, &typ); err != nil {
		return nil, fmt.Errorf("VIDIOC_STREAMON: %w", err)
	}
	for i := range bufs {
		if err := f.Ioctl(ctx, v4l2.VIDIOC_QBUF, &bufs[i]); err != nil {
			return nil, fmt.Errorf("VIDIOC_QBUF %d: %w", i, err)
		}
	}

	results := make([]FrameResult, 0, opts.Frames)
	start := time.Now()
	for len(results) < opts.Frames {
		if err := waitReady(ctx, f, opts); err != nil {
			return results, err
		}
		buf := v4l2.Buffer{Type: v4l2.BufTypeVideoCapture, Memory: v4l2.MemoryMMAP}
		dqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		err := f.Ioctl(dqCtx, v4l2.VIDIOC_DQBUF, &buf)
		cancel()
		if err != nil {
			return results, fmt.Errorf("VIDIOC_DQBUF: %w", err)
		}
		results = append(results, FrameResult{
			Sequence:  buf.Sequence,
			Index:     buf.Index,
			BytesUsed: buf.BytesUsed,
			Timestamp: buf.Timestamp,
			Elapsed:   time.Since(start),
		})
		if err := f.Ioctl(ctx, v4l2.VIDIOC_QBUF, &buf); err != nil {
			return results, fmt.Errorf("VIDIOC_QBUF %d: %w", buf.Index, err)
		}
	}

	if err := f.Ioctl(ctx, v4l2.VIDIOC_STREAMOFF, &typ); err != nil {
		return results, fmt.Errorf("VIDIOC_STREAMOFF: %w", err)
	}
	req.Count = 0
	if err := f.Ioctl(ctx, v4l2.VIDIOC_REQBUFS, &req); err != nil {
		return results, fmt.Errorf("VIDIOC_REQBUFS 0: %w", err)
	}
	return results, nil
}

func probeRead(ctx context.Context, f *device.File, opts ProbeOptions) ([]FrameResult, error) {
	frame := make([]byte, device.SizeImage)
	results := make([]FrameResult, 0, opts.Frames)
	start := time.Now()
	for len(results) < opts.Frames {
		if err := waitReady(ctx, f, opts); err != nil {
			return results, err
		}
		readCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		n, err := f.Read(readCtx, frame)
		cancel()
		if err != nil {
			return results, fmt.Errorf("read: %w", err)
		}
		results = append(results, FrameResult{
			Sequence:  uint32(len(results)),
			BytesUsed: uint32(n),
			Elapsed:   time.Since(start),
		})
	}
	return results, nil
}
