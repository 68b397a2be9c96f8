// Package logging provides structured logging with per-module log level
// configuration.
//
// The logging system uses Go's slog package with automatic output routing:
// logs go to the systemd journal when journald is available, to stdout when a
// terminal, pipe, or file is connected, and to both when both are available.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"transport": "debug",
//			"api":       "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("transport")
//	logger.Info("Serial port opened", "port", "/dev/ttyUSB2")
//
// When running under systemd:
//
//	journalctl -t modemgw -f
//	journalctl -t modemgw MODULE=transport
package logging
