// Package led drives an activity LED that is lit while any device streams.
package led

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultSysfsRoot is where the kernel exposes LED class devices.
const DefaultSysfsRoot = "/sys/class/leds"

// Controller switches a single LED.
type Controller interface {
	Set(on bool) error
}

// New returns a sysfs controller for the LED called name under root, or a
// no-op controller when name is empty or the LED does not exist.
func New(root, name string, logger *slog.Logger) Controller {
	if name == "" {
		return noop{logger: logger}
	}
	if root == "" {
		root = DefaultSysfsRoot
	}
	dir := filepath.Join(root, name)
	if _, err := os.Stat(dir); err != nil {
		logger.Warn("Activity LED not found, LED control disabled", "led", name, "error", err)
		return noop{logger: logger}
	}
	logger.Info("Activity LED enabled", "led", name, "path", dir)
	return &sysfs{dir: dir}
}

// sysfs controls an LED through its trigger and brightness attributes.
type sysfs struct {
	dir string
}

func (s *sysfs) Set(on bool) error {
	// Manual control needs the trigger cleared first.
	if err := os.WriteFile(filepath.Join(s.dir, "trigger"), []byte("none"), 0o644); err != nil {
		return fmt.Errorf("set LED trigger: %w", err)
	}
	value := "0"
	if on {
		value = "1"
	}
	if err := os.WriteFile(filepath.Join(s.dir, "brightness"), []byte(value), 0o644); err != nil {
		return fmt.Errorf("set LED brightness: %w", err)
	}
	return nil
}

type noop struct {
	logger *slog.Logger
}

func (n noop) Set(on bool) error {
	n.logger.Debug("LED control not available (no-op)", "on", on)
	return nil
}
