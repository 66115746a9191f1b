package led

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/fakewebcam/internal/events"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingController struct {
	mu    sync.Mutex
	calls []bool
	err   error
}

func (c *recordingController) Set(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.calls = append(c.calls, on)
	return nil
}

func (c *recordingController) snapshot() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.calls...)
}

func waitLit(t *testing.T, m *Manager, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.Lit() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Lit() = %v, want %v", !want, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSysfsController(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "cam:activity")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	c := New(root, "cam:activity", discardLogger())
	if _, ok := c.(*sysfs); !ok {
		t.Fatalf("New() = %T, want *sysfs", c)
	}

	tests := []struct {
		on   bool
		want string
	}{
		{true, "1"},
		{false, "0"},
	}
	for _, tt := range tests {
		if err := c.Set(tt.on); err != nil {
			t.Fatalf("Set(%v) error = %v", tt.on, err)
		}
		brightness, _ := os.ReadFile(filepath.Join(dir, "brightness"))
		trigger, _ := os.ReadFile(filepath.Join(dir, "trigger"))
		if string(brightness) != tt.want || string(trigger) != "none" {
			t.Errorf("Set(%v): brightness=%q trigger=%q", tt.on, brightness, trigger)
		}
	}
}

func TestNewFallsBackToNoop(t *testing.T) {
	tests := []struct {
		name string
		led  string
	}{
		{"disabled", ""},
		{"missing", "no-such-led"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(t.TempDir(), tt.led, discardLogger())
			if _, ok := c.(noop); !ok {
				t.Fatalf("New() = %T, want noop", c)
			}
			if err := c.Set(true); err != nil {
				t.Errorf("noop Set() error = %v", err)
			}
		})
	}
}

func TestManagerFollowsStreamingDevices(t *testing.T) {
	bus := events.New()
	ctrl := &recordingController{}
	m := NewManager(ctrl, bus, discardLogger())
	m.Start()

	if m.Lit() {
		t.Fatal("LED lit before any device streams")
	}

	bus.Publish(events.StreamStateChangedEvent{Device: "/dev/video0", From: "allocated", To: "streaming"})
	waitLit(t, m, true)

	bus.Publish(events.StreamStateChangedEvent{Device: "/dev/video1", From: "allocated", To: "streaming"})
	bus.Publish(events.StreamStateChangedEvent{Device: "/dev/video0", From: "streaming", To: "allocated"})
	time.Sleep(50 * time.Millisecond)
	if !m.Lit() {
		t.Error("LED went off while /dev/video1 still streams")
	}

	bus.Publish(events.DeviceRegisteredEvent{Device: "/dev/video1", Action: "unregistered"})
	waitLit(t, m, false)

	m.Stop()
	calls := ctrl.snapshot()
	want := []bool{false, true, false, false}
	if len(calls) != len(want) {
		t.Fatalf("controller calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("controller calls = %v, want %v", calls, want)
			break
		}
	}
}

func TestManagerKeepsStateOnControllerError(t *testing.T) {
	bus := events.New()
	ctrl := &recordingController{err: errors.New("read-only file system")}
	m := NewManager(ctrl, bus, discardLogger())
	m.Start()
	defer m.Stop()

	bus.Publish(events.StreamStateChangedEvent{Device: "/dev/video0", To: "streaming"})
	time.Sleep(50 * time.Millisecond)
	if m.Lit() {
		t.Error("Lit() = true after failed Set")
	}
}
