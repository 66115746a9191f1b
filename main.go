package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/fakewebcam/cmd"
	"github.com/smazurov/fakewebcam/internal/api"
	"github.com/smazurov/fakewebcam/internal/config"
	"github.com/smazurov/fakewebcam/internal/device"
	"github.com/smazurov/fakewebcam/internal/events"
	"github.com/smazurov/fakewebcam/internal/led"
	"github.com/smazurov/fakewebcam/internal/logging"
	"github.com/smazurov/fakewebcam/internal/metrics/exporters"
	"github.com/smazurov/fakewebcam/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Device settings
	DeviceName     string `help:"Device and input name" default:"Fake Webcam" toml:"device.name" env:"DEVICE_NAME"`
	DeviceMaxNodes int    `help:"Number of video node minors" default:"64" toml:"device.max_nodes" env:"DEVICE_MAX_NODES"`
	DevicePattern  bool   `help:"Fill frames with a test pattern" default:"true" toml:"device.pattern" env:"DEVICE_PATTERN"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Features settings
	FeaturesJournal         bool   `help:"Also log to the systemd journal" default:"true" toml:"features.journal" env:"FEATURES_JOURNAL"`
	FeaturesPrometheus      bool   `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"features.prometheus" env:"FEATURES_PROMETHEUS"`
	FeaturesMetricsInterval string `help:"Queue metrics SSE interval" default:"1s" toml:"features.metrics_interval" env:"FEATURES_METRICS_INTERVAL"`
	FeaturesLED             string `help:"LED class device lit while streaming (empty disables)" default:"" toml:"features.led" env:"FEATURES_LED"`

	// Logging settings
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingQueue  string `help:"Buffer queue logging level" default:"info" toml:"logging.vb2" env:"LOGGING_VB2"`
	LoggingDevice string `help:"Device logging level" default:"info" toml:"logging.device" env:"LOGGING_DEVICE"`
	LoggingAPI    string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP   string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:   o.LoggingLevel,
		Format:  o.LoggingFormat,
		Journal: o.FeaturesJournal,
		Modules: map[string]string{
			"vb2":    o.LoggingQueue,
			"device": o.LoggingDevice,
			"api":    o.LoggingAPI,
			"http":   o.LoggingHTTP,
		},
	}
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		loggingConfig := opts.loggingConfig()
		logging.Initialize(loggingConfig)
		logger := logging.GetLogger("main")

		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(api.LogEntryToEvent(entry))
		})

		// Levels follow the [logging] table of the config file while running.
		watcher := config.NewConfigWatcher(opts.Config, config.LoadLoggingConfig, logger)
		watcher.OnReload(func(cfg logging.Config) {
			cfg.Journal = loggingConfig.Journal
			logging.Initialize(cfg)
			logger.Info("Logging configuration reloaded", "level", cfg.Level, "modules", cfg.Modules)
		})

		registry := device.NewRegistry(opts.DeviceMaxNodes, logging.GetLogger("device"))
		var dev atomic.Pointer[device.Device]

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Registry:     registry,
			EventBus:     eventBus,
		}
		if opts.FeaturesPrometheus {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		sseExporter := exporters.NewSSEExporter(eventBus)
		if interval, parseErr := time.ParseDuration(opts.FeaturesMetricsInterval); parseErr == nil {
			sseExporter.SetInterval(interval)
		} else {
			logger.Warn("Invalid metrics interval, using default", "value", opts.FeaturesMetricsInterval)
		}

		ledLogger := logging.GetLogger("led")
		ledManager := led.NewManager(led.New(led.DefaultSysfsRoot, opts.FeaturesLED, ledLogger), eventBus, ledLogger)

		hooks.OnStart(func() {
			logger.Info("Starting fakewebcam", "version", version.Get().String())
			ledManager.Start()

			registered, err := device.Register(device.Options{
				Name:        opts.DeviceName,
				Host:        registry,
				Pattern:     opts.DevicePattern,
				Events:      eventBus,
				Logger:      logging.GetLogger("device"),
				QueueLogger: logging.GetLogger("vb2"),
			})
			if err != nil {
				logger.Error("Failed to register device", "error", err)
				os.Exit(1)
			}
			dev.Store(registered)
			logger.Info("Device ready", "name", registered.Name(), "path", registered.Path())

			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Config file watching disabled", "path", opts.Config, "error", watchErr)
			}
			sseExporter.Start(context.Background())

			if _, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Debug("systemd notification failed", "error", notifyErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			sseExporter.Stop()
			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping config watcher", "error", stopErr)
			}
			if registered := dev.Load(); registered != nil {
				if unregErr := registered.Unregister(); unregErr != nil {
					logger.Error("Error unregistering device", "error", unregErr)
				}
			}
			ledManager.Stop()
		})
	})

	cli.Root().Version = version.Get().String()
	cli.Root().SetVersionTemplate("{{.Version}}\n")
	cli.Root().AddCommand(cmd.CreateInfoCmd())
	cli.Root().AddCommand(cmd.CreateProbeCmd())

	cli.Run()
}
