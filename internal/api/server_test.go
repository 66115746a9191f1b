package api

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"

	"github.com/smazurov/fakewebcam/internal/api/models"
	"github.com/smazurov/fakewebcam/internal/device"
	"github.com/smazurov/fakewebcam/internal/events"
)

type heapAllocator struct{}

func (heapAllocator) Alloc(size int) ([]byte, error) { return make([]byte, size), nil }
func (heapAllocator) Free([]byte) error              { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// registerDevices registers n pattern devices and unregisters them when the
// test ends.
func registerDevices(t *testing.T, n int) (*device.Registry, *events.Bus) {
	t.Helper()
	reg := device.NewRegistry(8, discardLogger())
	bus := events.New()
	for range n {
		dev, err := device.Register(device.Options{
			Host:      reg,
			Allocator: heapAllocator{},
			Pattern:   true,
			Events:    bus,
			Logger:    discardLogger(),
		})
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		t.Cleanup(func() {
			if err := dev.Unregister(); err != nil {
				t.Errorf("Unregister() error = %v", err)
			}
		})
	}
	return reg, bus
}

// newTestAPI serves the routes on a humatest API, without middleware.
func newTestAPI(t *testing.T, devices int) (humatest.TestAPI, *Server) {
	t.Helper()
	reg, bus := registerDevices(t, devices)
	_, api := humatest.New(t)
	s := newServer(api, &Options{Registry: reg, EventBus: bus})
	s.registerRoutes()
	t.Cleanup(func() { s.captures.stopAll(discardLogger()) })
	return api, s
}

func decode[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v", v, err)
	}
	return v
}

func TestHealthAndVersion(t *testing.T) {
	api, _ := newTestAPI(t, 0)

	resp := api.Get("/api/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("health status = %d", resp.Code)
	}
	if health := decode[models.HealthData](t, resp.Body); health.Status != "ok" {
		t.Errorf("health = %+v", health)
	}

	resp = api.Get("/api/version")
	if resp.Code != http.StatusOK {
		t.Fatalf("version status = %d", resp.Code)
	}
	if v := decode[models.VersionData](t, resp.Body); v.Version == "" || v.GoVersion == "" {
		t.Errorf("version = %+v", v)
	}
}

func TestListAndGetDevices(t *testing.T) {
	api, _ := newTestAPI(t, 2)

	resp := api.Get("/api/devices")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}
	list := decode[models.DevicesData](t, resp.Body)
	if list.Count != 2 || len(list.Devices) != 2 {
		t.Fatalf("devices = %+v", list)
	}
	for i, want := range []string{"video0", "video1"} {
		d := list.Devices[i]
		if d.ID != want || d.Path != "/dev/"+want || d.Name != device.DefaultName {
			t.Errorf("device %d = %+v", i, d)
		}
		if d.State != "idle" || !d.Registered || len(d.Buffers) != 0 {
			t.Errorf("device %d not idle: %+v", i, d)
		}
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/devices/video1", http.StatusOK},
		{"/api/devices/video7", http.StatusNotFound},
		{"/api/devices/video7/info", http.StatusNotFound},
		{"/api/devices/video7/frame", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if resp := api.Get(tt.path); resp.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, resp.Code, tt.want)
			}
		})
	}
}

func TestDeviceInfo(t *testing.T) {
	api, _ := newTestAPI(t, 1)

	resp := api.Get("/api/devices/video0/info")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}
	info := decode[models.DeviceInfoData](t, resp.Body)

	if info.Capability.Driver != device.DriverName || info.Capability.Card != device.DriverName {
		t.Errorf("capability = %+v", info.Capability)
	}
	if strings.Join(info.Capability.Capabilities, ",") != "video_capture,read_write,streaming" {
		t.Errorf("capabilities = %v", info.Capability.Capabilities)
	}
	wantFormat := models.FormatData{
		Description:  device.FormatDescription,
		PixelFormat:  "YUYV",
		Width:        640,
		Height:       480,
		BytesPerLine: 1280,
		SizeImage:    614400,
		Field:        "interlaced",
		Colorspace:   "smpte170m",
	}
	if info.Format != wantFormat {
		t.Errorf("format = %+v, want %+v", info.Format, wantFormat)
	}
	if info.Input.Name != device.DefaultName || info.Input.Type != "camera" || info.Input.Index != 0 {
		t.Errorf("input = %+v", info.Input)
	}
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

func TestBasicAuthAndCORS(t *testing.T) {
	reg, bus := registerDevices(t, 1)
	server := NewServer(&Options{
		AuthUsername: "admin",
		AuthPassword: "secret",
		Registry:     reg,
		EventBus:     bus,
	})
	ts := httptest.NewServer(server.GetMux())
	defer ts.Close()

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health is public", "/api/health", "", http.StatusOK},
		{"missing credentials", "/api/devices", "", http.StatusUnauthorized},
		{"wrong scheme", "/api/devices", "Bearer token", http.StatusUnauthorized},
		{"bad encoding", "/api/devices", "Basic !!!", http.StatusUnauthorized},
		{"wrong password", "/api/devices", "Basic " + basicAuth("admin", "nope"), http.StatusUnauthorized},
		{"valid header", "/api/devices", "Basic " + basicAuth("admin", "secret"), http.StatusOK},
		{"valid query", "/api/devices?auth=" + basicAuth("admin", "secret"), "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("WWW-Authenticate header missing")
			}
		})
	}

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/devices", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", resp.StatusCode, resp.Header)
	}
}
