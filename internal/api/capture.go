package api

import (
	"bytes"
	"context"
	"image/jpeg"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/fakewebcam/internal/api/models"
	"github.com/smazurov/fakewebcam/internal/device"
	"github.com/smazurov/fakewebcam/internal/pattern"
	"github.com/smazurov/fakewebcam/internal/vb2"
	"github.com/smazurov/fakewebcam/pkg/linuxav/v4l2"
)

const previewBoundary = "frame"

// captureSession drives a device the way a streaming client does: it owns the
// buffers, keeps them queued and dequeues one per frame request.
type captureSession struct {
	mu      sync.Mutex
	path    string
	file    *device.File
	buffers uint32
	frames  uint64
}

func startCapture(ctx context.Context, dev *device.Device) (*captureSession, error) {
	f, err := dev.Open(0)
	if err != nil {
		return nil, err
	}
	c := &captureSession{path: dev.Path(), file: f}

	req := v4l2.RequestBuffers{Count: vb2.NumBuffers, Type: v4l2.BufTypeVideoCapture, Memory: v4l2.MemoryMMAP}
	if err := f.Ioctl(ctx, v4l2.VIDIOC_REQBUFS, &req); err != nil {
		f.Close()
		return nil, err
	}
	c.buffers = req.Count

	// Buffers can only be queued once the queue is streaming.
	typ := uint32(v4l2.BufTypeVideoCapture)
	if err := f.Ioctl(ctx, v4l2.VIDIOC_STREAMON, &typ); err != nil {
		f.Close()
		return nil, err
	}
	for i := range req.Count {
		buf := v4l2.Buffer{Index: i, Type: v4l2.BufTypeVideoCapture, Memory: v4l2.MemoryMMAP}
		if err := f.Ioctl(ctx, v4l2.VIDIOC_QBUF, &buf); err != nil {
			f.Close()
			return nil, err
		}
	}
	return c, nil
}

// frame dequeues the next ready buffer, copies it out and queues it again.
func (c *captureSession) frame(ctx context.Context) ([]byte, uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := v4l2.Buffer{Type: v4l2.BufTypeVideoCapture, Memory: v4l2.MemoryMMAP}
	if err := c.file.Ioctl(ctx, v4l2.VIDIOC_DQBUF, &buf); err != nil {
		return nil, 0, err
	}
	mem, err := c.file.Mmap(buf.Offset)
	if err != nil {
		return nil, 0, err
	}
	n := buf.BytesUsed
	if n == 0 || n > uint32(len(mem)) {
		n = uint32(len(mem))
	}
	data := bytes.Clone(mem[:n])

	requeue := v4l2.Buffer{Index: buf.Index, Type: v4l2.BufTypeVideoCapture, Memory: v4l2.MemoryMMAP}
	if err := c.file.Ioctl(ctx, v4l2.VIDIOC_QBUF, &requeue); err != nil {
		return nil, 0, err
	}
	c.frames++
	return data, buf.Sequence, nil
}

// stop streams off, frees the buffers and closes the file.
func (c *captureSession) stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	typ := uint32(v4l2.BufTypeVideoCapture)
	err := c.file.Ioctl(ctx, v4l2.VIDIOC_STREAMOFF, &typ)
	if err == nil {
		req := v4l2.RequestBuffers{Type: v4l2.BufTypeVideoCapture, Memory: v4l2.MemoryMMAP}
		err = c.file.Ioctl(ctx, v4l2.VIDIOC_REQBUFS, &req)
	}
	if cerr := c.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *captureSession) data() models.CaptureData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CaptureData{Device: c.path, Streaming: true, Buffers: c.buffers, Frames: c.frames}
}

// captureManager tracks one capture session per device path.
type captureManager struct {
	mu       sync.Mutex
	sessions map[string]*captureSession
}

func newCaptureManager() *captureManager {
	return &captureManager{sessions: make(map[string]*captureSession)}
}

func (m *captureManager) get(path string) *captureSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[path]
}

// start returns the running session for dev, starting one if needed.
func (m *captureManager) start(ctx context.Context, dev *device.Device) (*captureSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.sessions[dev.Path()]; ok {
		return c, nil
	}
	c, err := startCapture(ctx, dev)
	if err != nil {
		return nil, err
	}
	m.sessions[dev.Path()] = c
	return c, nil
}

// stop ends the session for path. It reports false if there was none.
func (m *captureManager) stop(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	c, ok := m.sessions[path]
	delete(m.sessions, path)
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, c.stop(ctx)
}

func (m *captureManager) stopAll(logger *slog.Logger) {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*captureSession)
	m.mu.Unlock()

	for path, c := range sessions {
		if err := c.stop(context.Background()); err != nil {
			logger.Warn("Failed to stop capture session", "device", path, "error", err)
		}
	}
}

// frameSource yields raw frames for the lifetime of one request.
type frameSource interface {
	next(ctx context.Context) ([]byte, uint32, error)
	close()
}

type sessionSource struct{ c *captureSession }

func (s sessionSource) next(ctx context.Context) ([]byte, uint32, error) {
	return s.c.frame(ctx)
}

func (s sessionSource) close() {}

// readSource reads frames through the read() emulator on its own file.
type readSource struct {
	file *device.File
	buf  []byte
	seq  uint32
}

func (r *readSource) next(ctx context.Context) ([]byte, uint32, error) {
	total := 0
	for total < len(r.buf) {
		n, err := r.file.Read(ctx, r.buf[total:])
		if err != nil {
			return nil, 0, err
		}
		total += n
	}
	seq := r.seq
	r.seq++
	return bytes.Clone(r.buf[:total]), seq, nil
}

func (r *readSource) close() { r.file.Close() }

// openSource uses the API capture session when one is running and falls back
// to read() otherwise.
func (s *Server) openSource(dev *device.Device) (frameSource, error) {
	if c := s.captures.get(dev.Path()); c != nil {
		return sessionSource{c}, nil
	}
	f, err := dev.Open(0)
	if err != nil {
		return nil, err
	}
	return &readSource{file: f, buf: make([]byte, device.SizeImage)}, nil
}

func encodeJPEG(frame []byte, quality int) ([]byte, error) {
	img, err := pattern.DecodeYUYV(frame, device.Width, device.Height)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (s *Server) registerCaptureRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-capture",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device}/capture",
		Summary:     "Get Capture Session",
		Description: "Report whether the API is streaming from the device",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404},
	}, func(_ context.Context, input *models.DeviceInput) (*models.CaptureResponse, error) {
		dev, err := s.lookupDevice(input.Device)
		if err != nil {
			return nil, err
		}
		resp := &models.CaptureResponse{Body: models.CaptureData{Device: dev.Path()}}
		if c := s.captures.get(dev.Path()); c != nil {
			resp.Body = c.data()
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-capture",
		Method:      http.MethodPut,
		Path:        "/api/devices/{device}/capture",
		Summary:     "Start or Stop Capture",
		Description: "Request buffers, queue them and stream on, or stream off and free the buffers",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 409, 503},
	}, func(ctx context.Context, input *models.CaptureRequest) (*models.CaptureResponse, error) {
		dev, err := s.lookupDevice(input.Device)
		if err != nil {
			return nil, err
		}

		if !input.Body.Streaming {
			stopped, err := s.captures.stop(ctx, dev.Path())
			if err != nil {
				return nil, toHTTPError("failed to stop capture", err)
			}
			if stopped {
				s.logger.Info("Capture session stopped", "device", dev.Path())
			}
			return &models.CaptureResponse{Body: models.CaptureData{Device: dev.Path()}}, nil
		}

		c, err := s.captures.start(ctx, dev)
		if err != nil {
			return nil, toHTTPError("failed to start capture", err)
		}
		s.logger.Info("Capture session started", "device", dev.Path(), "buffers", c.buffers)
		return &models.CaptureResponse{Body: c.data()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-frame",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device}/frame",
		Summary:     "Get Frame",
		Description: "Capture one frame and return it as JPEG",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 409, 503, 504},
	}, func(ctx context.Context, input *models.FrameRequest) (*models.FrameResponse, error) {
		dev, err := s.lookupDevice(input.Device)
		if err != nil {
			return nil, err
		}
		src, err := s.openSource(dev)
		if err != nil {
			return nil, toHTTPError("failed to open device", err)
		}
		defer src.close()

		ctx, cancel := context.WithTimeout(ctx, time.Duration(input.Timeout)*time.Millisecond)
		defer cancel()
		frame, seq, err := src.next(ctx)
		if err != nil {
			return nil, toHTTPError("failed to capture frame", err)
		}
		img, err := encodeJPEG(frame, input.Quality)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to encode frame", err)
		}
		return &models.FrameResponse{
			ContentType: "image/jpeg",
			Sequence:    strconv.FormatUint(uint64(seq), 10),
			Body:        img,
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-preview",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device}/preview",
		Summary:     "MJPEG Preview",
		Description: "Stream frames as multipart/x-mixed-replace JPEG",
		Tags:        []string{"capture"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 409},
	}, func(_ context.Context, input *models.PreviewRequest) (*huma.StreamResponse, error) {
		dev, err := s.lookupDevice(input.Device)
		if err != nil {
			return nil, err
		}
		src, err := s.openSource(dev)
		if err != nil {
			return nil, toHTTPError("failed to open device", err)
		}

		return &huma.StreamResponse{
			Body: func(hctx huma.Context) {
				defer src.close()
				s.streamPreview(hctx, dev.Path(), src, input.FPS, input.Quality)
			},
		}, nil
	})
}

func (s *Server) streamPreview(hctx huma.Context, path string, src frameSource, fps, quality int) {
	ctx := hctx.Context()
	hctx.SetHeader("Content-Type", "multipart/x-mixed-replace; boundary="+previewBoundary)
	hctx.SetHeader("Cache-Control", "no-cache")

	w := hctx.BodyWriter()
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(previewBoundary); err != nil {
		return
	}
	flusher, _ := w.(http.Flusher)

	s.logger.Debug("Preview started", "device", path, "fps", fps)
	defer s.logger.Debug("Preview ended", "device", path)

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	for {
		frame, seq, err := src.next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Preview capture failed", "device", path, "error", err)
			}
			return
		}
		img, err := encodeJPEG(frame, quality)
		if err != nil {
			s.logger.Warn("Preview encode failed", "device", path, "error", err)
			return
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":     {"image/jpeg"},
			"Content-Length":   {strconv.Itoa(len(img))},
			"X-Frame-Sequence": {strconv.FormatUint(uint64(seq), 10)},
		})
		if err != nil {
			return
		}
		if _, err := part.Write(img); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
