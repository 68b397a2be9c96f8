package transport

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// defaultInterfaceSuffix is the USB interface that carries the AT
// channel on Quectel modems (interface 2 of configuration 1).
const defaultInterfaceSuffix = ":1.2"

// resolver finds the tty device for the modem's AT interface. The
// configured path is tried first; when the device re-enumerates under a
// different ttyUSB number, the remembered USB interface id or a suffix
// scan recovers it.
type resolver struct {
	preferred string
	suffix    string
	logger    *slog.Logger

	// remembered across reconnects
	interfaceID string
	sysPath     string

	// filesystem roots, overridable in tests
	sysClassTTY string
	sysBusUSB   string
	devDir      string
}

func newResolver(preferred string, logger *slog.Logger) *resolver {
	return &resolver{
		preferred:   preferred,
		suffix:      defaultInterfaceSuffix,
		logger:      logger,
		sysClassTTY: "/sys/class/tty",
		sysBusUSB:   "/sys/bus/usb/devices",
		devDir:      "/dev",
	}
}

// Resolve returns a usable device path or ErrDeviceNotFound.
func (r *resolver) Resolve() (string, error) {
	if _, err := os.Stat(r.preferred); err == nil {
		return r.preferred, nil
	}
	if alt := r.findByInterface(); alt != "" {
		return alt, nil
	}
	if alt := r.scanForSuffix(); alt != "" {
		return alt, nil
	}
	return "", newError(ErrDeviceNotFound, "",
		fmt.Errorf("device %s absent and interface could not be resolved", r.preferred))
}

// Remember records the USB interface id behind a successfully opened
// device so the next reconnect can find it under a new tty number.
func (r *resolver) Remember(device string) {
	id := r.interfaceIDFromDevice(device)
	if id == "" {
		return
	}
	r.interfaceID = id
	r.sysPath = filepath.Join(r.sysBusUSB, id)
	if idx := strings.Index(id, ":1."); idx != -1 {
		r.suffix = id[idx:]
	}
	r.logger.Debug("Remembered USB interface", "interface", id, "device", device)
}

// interfaceIDFromDevice walks /sys/class/tty/<name> back to the USB
// interface directory and returns its id (e.g. "2-1:1.2").
func (r *resolver) interfaceIDFromDevice(device string) string {
	name := filepath.Base(device)
	link := filepath.Join(r.sysClassTTY, name)
	real, err := filepath.EvalSymlinks(link)
	if err != nil {
		return ""
	}
	// .../<interface>/<tty-subdir>/tty/<name> -> three levels up
	ifaceDir := filepath.Dir(filepath.Dir(filepath.Dir(real)))
	id := filepath.Base(ifaceDir)
	if id == "" || !strings.Contains(id, ":1.") {
		return ""
	}
	return id
}

// findByInterface looks for a ttyUSB node under the remembered USB
// interface directory.
func (r *resolver) findByInterface() string {
	if r.interfaceID == "" {
		return ""
	}
	sysPath := r.sysPath
	if sysPath == "" {
		sysPath = filepath.Join(r.sysBusUSB, r.interfaceID)
	}
	if fi, err := os.Stat(sysPath); err != nil || !fi.IsDir() {
		return ""
	}
	matches, _ := filepath.Glob(filepath.Join(sysPath, "ttyUSB*"))
	sort.Strings(matches)
	for _, m := range matches {
		candidate := filepath.Join(r.devDir, filepath.Base(m))
		if _, err := os.Stat(candidate); err == nil {
			r.logger.Info("Resolved USB interface to device",
				"interface", r.interfaceID, "device", candidate)
			return candidate
		}
	}
	return ""
}

// scanForSuffix walks every ttyUSB device looking for one whose USB
// interface id ends with the expected suffix.
func (r *resolver) scanForSuffix() string {
	if r.suffix == "" {
		return ""
	}
	devices, _ := filepath.Glob(filepath.Join(r.devDir, "ttyUSB*"))
	sort.Strings(devices)
	for _, dev := range devices {
		id := r.interfaceIDFromDevice(dev)
		if id == "" || !strings.HasSuffix(id, r.suffix) {
			continue
		}
		r.interfaceID = id
		r.sysPath = filepath.Join(r.sysBusUSB, id)
		r.logger.Info("Auto-detected AT interface",
			"interface", id, "device", dev, "suffix", r.suffix)
		return dev
	}
	return ""
}
