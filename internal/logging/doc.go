// Package logging provides slog loggers with per-module levels.
//
// Records go to stdout (text or json) when stdout is attached, to the systemd
// journal when enabled in the configuration and the journal socket is
// reachable, and always to an in-memory ring buffer that backs the log stream
// of the HTTP API.
//
// Initialize once at startup, then fetch a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"vb2":    "debug",
//			"device": "warn",
//		},
//	})
//
//	logger := logging.GetLogger("device")
//	logger.Info("Device registered", "path", "/dev/video0")
//
// Calling Initialize again (the config watcher does this when the file
// changes) updates the level of every logger already handed out.
//
// The equivalent TOML:
//
//	[logging]
//	level = "info"
//	format = "text"
//	journal = true
//	vb2 = "debug"
//	device = "warn"
//
// Journal entries carry SYSLOG_IDENTIFIER=fakewebcam:
//
//	journalctl -t fakewebcam MODULE=vb2 -f
package logging
