package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Gates holds the runtime switches that guard modem control actions.
// They are read from the [control] section of the config file and are
// meant to be hot-reloaded through the Watcher, so an operator can
// re-enable control without restarting the service.
type Gates struct {
	// Enabled turns the control surface on. When false every action
	// request is returned as a preview, never executed.
	Enabled bool `toml:"enabled"`

	// AllowDangerous permits actions classified dangerous (reboot,
	// APN changes, band locks) to execute. Safe actions are unaffected.
	AllowDangerous bool `toml:"allow_dangerous"`
}

// LoadGates reads the control gate switches from a TOML config file.
// A missing file is an error so a watcher reload of a deleted config
// does not silently flip gates open or closed.
func LoadGates(path string) (Gates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Gates{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		Control Gates `toml:"control"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Gates{}, fmt.Errorf("parse config: %w", err)
	}
	return raw.Control, nil
}
