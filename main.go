package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/linkstation/modemgw/cmd"
	"github.com/linkstation/modemgw/internal/api"
	"github.com/linkstation/modemgw/internal/config"
	"github.com/linkstation/modemgw/internal/control"
	"github.com/linkstation/modemgw/internal/events"
	"github.com/linkstation/modemgw/internal/logging"
	"github.com/linkstation/modemgw/internal/metrics"
	"github.com/linkstation/modemgw/internal/nvr"
	"github.com/linkstation/modemgw/internal/telemetry"
	"github.com/linkstation/modemgw/internal/transport"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8080" toml:"server.port" env:"SERVER_PORT"`

	// Serial settings
	SerialDevice   string `help:"AT serial device path (empty = auto-resolve)" default:"" toml:"serial.device" env:"SERIAL_DEVICE"`
	SerialBaud     int    `help:"Serial baud rate" default:"115200" toml:"serial.baud" env:"SERIAL_BAUD"`
	SerialDeadline string `help:"Per-command reply deadline" default:"10s" toml:"serial.deadline" env:"SERIAL_DEADLINE"`

	// Telemetry settings
	PollInterval string `help:"Telemetry poll interval" default:"5s" toml:"telemetry.poll_interval" env:"POLL_INTERVAL"`

	// Control gate settings (hot-reloaded from the config file)
	ControlEnabled        bool `help:"Enable the control surface" default:"false" toml:"control.enabled" env:"CONTROL_ENABLED"`
	ControlAllowDangerous bool `help:"Allow dangerous control actions" default:"false" toml:"control.allow_dangerous" env:"CONTROL_ALLOW_DANGEROUS"`

	// NVR relay settings
	NvrEnabled     bool   `help:"Enable the NVR relay" default:"true" toml:"nvr.enabled" env:"NVR_ENABLED"`
	NvrHost        string `help:"NVR upstream host" default:"192.168.99.11" toml:"nvr.host" env:"NVR_HOST"`
	NvrPort        int    `help:"NVR upstream port" default:"8787" toml:"nvr.port" env:"NVR_PORT"`
	NvrTimeout     string `help:"NVR metadata request timeout" default:"3s" toml:"nvr.timeout" env:"NVR_TIMEOUT"`
	NvrPublicHost  string `help:"Public host for rewritten RTSP URLs (empty = NVR host)" default:"" toml:"nvr.public_host" env:"NVR_PUBLIC_HOST"`
	NvrSubBasePort int    `help:"Base port of the public RTSP range" default:"9550" toml:"nvr.sub_base_port" env:"NVR_SUB_BASE_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username (empty disables auth)" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingTransport string `help:"Transport logging level" default:"info" toml:"logging.transport" env:"LOGGING_TRANSPORT"`
	LoggingTelemetry string `help:"Telemetry logging level" default:"info" toml:"logging.telemetry" env:"LOGGING_TELEMETRY"`
	LoggingControl   string `help:"Control logging level" default:"info" toml:"logging.control" env:"LOGGING_CONTROL"`
	LoggingNvr       string `help:"NVR relay logging level" default:"info" toml:"logging.nvr" env:"LOGGING_NVR"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func main() {
	// Create Huma CLI
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging: file config first so arbitrary per-module
		// levels work, then the explicit flags on top.
		logCfg := config.LoadLoggingConfig(opts.Config)
		logCfg.Level = opts.LoggingLevel
		logCfg.Format = opts.LoggingFormat
		for module, level := range map[string]string{
			"transport": opts.LoggingTransport,
			"telemetry": opts.LoggingTelemetry,
			"control":   opts.LoggingControl,
			"nvr":       opts.LoggingNvr,
			"api":       opts.LoggingAPI,
		} {
			if level != "" {
				logCfg.Modules[module] = level
			}
		}
		logging.Initialize(logCfg)

		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()

		// Metrics registry plus the event-driven collectors
		m := metrics.New()
		unbindMetrics := m.Bind(eventBus)

		// Serial AT channel
		trans := transport.New(transport.Config{
			Device:   opts.SerialDevice,
			Baud:     opts.SerialBaud,
			Deadline: parseDuration(opts.SerialDeadline, 10*time.Second),
			Bus:      eventBus,
			Metrics:  m,
			Logger:   logging.GetLogger("transport"),
		})

		// Background telemetry poller
		cache := telemetry.NewCache(telemetry.CacheConfig{
			Sender:   trans,
			Interval: parseDuration(opts.PollInterval, 5*time.Second),
			Bus:      eventBus,
			Metrics:  m,
			Logger:   logging.GetLogger("telemetry"),
		})

		// Control gates start from the CLI/env/TOML values and follow
		// the config file afterwards, so an operator can flip them
		// without restarting the service.
		var gatesMu sync.RWMutex
		gates := config.Gates{
			Enabled:        opts.ControlEnabled,
			AllowDangerous: opts.ControlAllowDangerous,
		}
		gatesFn := func() config.Gates {
			gatesMu.RLock()
			defer gatesMu.RUnlock()
			return gates
		}

		gatesWatcher := config.NewConfigWatcher(
			opts.Config,
			config.LoadGates,
			logger,
		)
		gatesWatcher.OnReload(func(g config.Gates) {
			gatesMu.Lock()
			gates = g
			gatesMu.Unlock()
			logger.Info("Control gates reloaded", "enabled", g.Enabled, "allow_dangerous", g.AllowDangerous)
		})

		planner := control.NewPlanner(trans, gatesFn, eventBus, logging.GetLogger("control"))

		// NVR relay
		publicHost := opts.NvrPublicHost
		if publicHost == "" {
			publicHost = opts.NvrHost
		}
		nvrClient := nvr.NewClient(nvr.ClientConfig{
			BaseURL: fmt.Sprintf("http://%s:%d", opts.NvrHost, opts.NvrPort),
			Timeout: parseDuration(opts.NvrTimeout, 3*time.Second),
			Logger:  logging.GetLogger("nvr"),
		})
		nvrGateway := nvr.NewGateway(nvr.GatewayConfig{
			Client:      nvrClient,
			Enabled:     opts.NvrEnabled,
			PublicHost:  publicHost,
			SubBasePort: opts.NvrSubBasePort,
			Metrics:     m,
			Logger:      logging.GetLogger("nvr"),
		})

		server := api.NewServer(&api.Options{
			AuthUsername:   opts.AuthUsername,
			AuthPassword:   opts.AuthPassword,
			Snapshots:      cache,
			Planner:        planner,
			Sender:         trans,
			EventBus:       eventBus,
			MetricsHandler: m.Handler(),
			NVRGateway:     nvrGateway,
		})

		pollCtx, stopPolling := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			// Config watcher is non-fatal; gates just stay static.
			if watchErr := gatesWatcher.Start(); watchErr != nil {
				logger.Warn("Failed to watch config file, gate hot-reload disabled", "error", watchErr)
			}

			go cache.Run(pollCtx)

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			stopPolling()
			if stopErr := gatesWatcher.Stop(); stopErr != nil {
				logger.Error("Error stopping config watcher", "error", stopErr)
			}
			unbindMetrics()
		})
	})

	// Add one-shot AT probe command
	cli.Root().AddCommand(cmd.CreateATCmd())

	// Run the CLI
	cli.Run()
}
