// Package cmd holds the subcommands that exercise a standalone device without
// the HTTP server.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/smazurov/fakewebcam/internal/device"
	"github.com/smazurov/fakewebcam/internal/logging"
)

// registerStandalone registers one device on a private registry. The returned
// function unregisters it.
func registerStandalone(name string, pattern bool, logger *slog.Logger) (*device.Device, func(), error) {
	registry := device.NewRegistry(1, logger)
	dev, err := device.Register(device.Options{
		Name:        name,
		Host:        registry,
		Pattern:     pattern,
		Logger:      logger,
		QueueLogger: logging.GetLogger("vb2"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("register device: %w", err)
	}
	return dev, func() {
		if err := dev.Unregister(); err != nil {
			logger.Warn("Failed to unregister device", "error", err)
		}
	}, nil
}
