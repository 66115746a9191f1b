package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/fakewebcam/internal/api/models"
)

func TestInfoCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "text",
			args: nil,
			want: []string{"Driver name    : fake_webcam", "Width/Height   : 640/480", "'YUYV' (4:2:2, packed, YUYV)", "Video input 0: Fake Webcam (camera"},
		},
		{
			name: "custom name",
			args: []string{"--name", "Bench Cam"},
			want: []string{"Video input 0: Bench Cam"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := CreateInfoCmd()
			c.SetOut(&out)
			c.SetArgs(tt.args)
			if err := c.Execute(); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output missing %q:\n%s", want, out.String())
				}
			}
		})
	}
}

func TestInfoCommandJSON(t *testing.T) {
	var out bytes.Buffer
	c := CreateInfoCmd()
	c.SetOut(&out)
	c.SetArgs([]string{"--json"})
	if err := c.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var info models.DeviceInfoData
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if info.Format.SizeImage != 614400 || info.Capability.Driver != "fake_webcam" {
		t.Errorf("info = %+v", info)
	}
}

func TestRunProbe(t *testing.T) {
	tests := []struct {
		name string
		opts ProbeOptions
	}{
		{"mmap", ProbeOptions{Frames: 5, Mode: "mmap", Pattern: true}},
		{"mmap nonblocking", ProbeOptions{Frames: 5, Mode: "mmap", NonBlock: true}},
		{"read", ProbeOptions{Frames: 3, Mode: "read", Pattern: true}},
		{"read nonblocking", ProbeOptions{Frames: 3, Mode: "read", NonBlock: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Timeout = 2 * time.Second
			var out bytes.Buffer
			if err := RunProbe(context.Background(), &out, tt.opts); err != nil {
				t.Fatalf("RunProbe() error = %v\n%s", err, out.String())
			}
			if got := strings.Count(out.String(), "frame seq="); got != tt.opts.Frames {
				t.Errorf("frame lines = %d, want %d:\n%s", got, tt.opts.Frames, out.String())
			}
			if !strings.Contains(out.String(), "bytes=614400") {
				t.Errorf("frames not full size:\n%s", out.String())
			}
		})
	}
}

func TestProbeCommandRejectsBadFlags(t *testing.T) {
	tests := [][]string{
		{"--mode", "userptr"},
		{"--frames", "0"},
	}
	for _, args := range tests {
		c := CreateProbeCmd()
		c.SetOut(&bytes.Buffer{})
		c.SetErr(&bytes.Buffer{})
		c.SetArgs(args)
		if err := c.Execute(); err == nil {
			t.Errorf("Execute(%v) succeeded, want error", args)
		}
	}
}
