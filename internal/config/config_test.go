package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string

	Port     string        `toml:"server.port" env:"SERVER_PORT"`
	Name     string        `toml:"device.name" env:"DEVICE_NAME"`
	MaxNodes int           `toml:"device.max_nodes" env:"DEVICE_MAX_NODES"`
	Pattern  bool          `toml:"device.pattern" env:"DEVICE_PATTERN"`
	Interval time.Duration `toml:"metrics.interval" env:"METRICS_INTERVAL"`
	Ratio    float64       `toml:"metrics.ratio" env:"METRICS_RATIO"`
	Tags     []string      `toml:"device.tags" env:"DEVICE_TAGS"`
	Untagged string
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleConfig = `
[server]
port = ":9000"

[device]
name = "Bench Cam"
max_nodes = 8
pattern = false
tags = ["a", "b"]

[metrics]
interval = "250ms"
ratio = 2
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeConfig(t, sampleConfig), Pattern: true, Untagged: "keep"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	want := &testOptions{
		Config:   opts.Config,
		Port:     ":9000",
		Name:     "Bench Cam",
		MaxNodes: 8,
		Pattern:  false,
		Interval: 250 * time.Millisecond,
		Ratio:    2,
		Tags:     []string{"a", "b"},
		Untagged: "keep",
	}
	if !reflect.DeepEqual(opts, want) {
		t.Errorf("LoadConfig() = %+v, want %+v", opts, want)
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	t.Setenv("FAKEWEBCAM_SERVER_PORT", ":7000")
	t.Setenv("FAKEWEBCAM_DEVICE_MAX_NODES", "3")
	t.Setenv("FAKEWEBCAM_DEVICE_PATTERN", "true")
	t.Setenv("FAKEWEBCAM_METRICS_INTERVAL", "2s")
	t.Setenv("FAKEWEBCAM_DEVICE_TAGS", "x, y ,z")
	t.Setenv("FAKEWEBCAM_METRICS_RATIO", "not-a-number")

	opts := &testOptions{Config: writeConfig(t, sampleConfig)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if opts.Port != ":7000" {
		t.Errorf("Port = %q, want :7000", opts.Port)
	}
	if opts.Name != "Bench Cam" {
		t.Errorf("Name = %q, want value from file", opts.Name)
	}
	if opts.MaxNodes != 3 || !opts.Pattern || opts.Interval != 2*time.Second {
		t.Errorf("env overrides not applied: %+v", opts)
	}
	if !reflect.DeepEqual(opts.Tags, []string{"x", "y", "z"}) {
		t.Errorf("Tags = %v, want [x y z]", opts.Tags)
	}
	if opts.Ratio != 2 {
		t.Errorf("Ratio = %v, want file value kept on bad env", opts.Ratio)
	}
}

func TestLoadConfigCLIFlagsWin(t *testing.T) {
	t.Setenv("FAKEWEBCAM_SERVER_PORT", ":7000")

	opts := &testOptions{Config: writeConfig(t, sampleConfig)}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&opts.Port, "port", ":8090", "")
	cmd.Flags().IntVar(&opts.MaxNodes, "max-nodes", 64, "")
	if err := cmd.Flags().Parse([]string{"--port", ":1234"}); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if opts.Port != ":1234" {
		t.Errorf("Port = %q, want CLI value", opts.Port)
	}
	if opts.MaxNodes != 8 {
		t.Errorf("MaxNodes = %d, want file value for unchanged flag", opts.MaxNodes)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: ":8090"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if opts.Port != ":8090" {
		t.Errorf("Port = %q, want default kept", opts.Port)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if err := LoadConfig(&testOptions{Config: writeConfig(t, "[server\nport =")}, nil); err == nil {
		t.Error("LoadConfig() with invalid TOML succeeded")
	}
	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Error("LoadConfig() with non-pointer succeeded")
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":           "port",
		"LoggingLevel":   "logging-level",
		"DeviceMaxNodes": "device-max-nodes",
		"LoggingAPI":     "logging-api",
		"HTTPServerPort": "http-server-port",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"device": map[string]any{"name": "cam", "inner": map[string]any{"x": int64(1)}},
		"flat":   "v",
	}
	tests := []struct {
		path string
		want any
	}{
		{"device.name", "cam"},
		{"device.inner.x", int64(1)},
		{"flat", "v"},
		{"flat.child", nil},
		{"missing.key", nil},
	}
	for _, tt := range tests {
		if got := getNestedValue(data, tt.path); got != tt.want {
			t.Errorf("getNestedValue(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]string
		level   string
		journal bool
		wantErr bool
	}{
		{
			name: "module levels",
			content: `
[logging]
level = "warn"
format = "json"
journal = true
vb2 = "debug"
device = "error"
`,
			want:    map[string]string{"vb2": "debug", "device": "error"},
			level:   "warn",
			journal: true,
		},
		{
			name:    "no logging table",
			content: "[server]\nport = \":1\"\n",
			want:    map[string]string{},
			level:   "info",
		},
		{
			name:    "level with wrong type",
			content: "[logging]\nlevel = 3\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadLoggingConfig(writeConfig(t, tt.content))
			if tt.wantErr {
				if err == nil {
					t.Error("LoadLoggingConfig() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadLoggingConfig() error = %v", err)
			}
			if cfg.Level != tt.level || cfg.Journal != tt.journal {
				t.Errorf("level/journal = %s/%v, want %s/%v", cfg.Level, cfg.Journal, tt.level, tt.journal)
			}
			if !reflect.DeepEqual(cfg.Modules, tt.want) {
				t.Errorf("Modules = %v, want %v", cfg.Modules, tt.want)
			}
		})
	}

	cfg, err := LoadLoggingConfig("")
	if err != nil || cfg.Level != "info" || cfg.Format != "text" {
		t.Errorf("LoadLoggingConfig(\"\") = %+v, %v, want defaults", cfg, err)
	}
}
