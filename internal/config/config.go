package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/linkstation/modemgw/internal/logging"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// LoadConfig fills opts from the TOML file and environment, with CLI
// flags winning over both. opts must be a pointer to a struct whose
// fields carry `toml` (dotted table path) and `env` tags. The file
// path comes from the struct's Config field; a missing file is fine,
// the defaults just stand.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	explicit := explicitFlags(cmd)

	table, err := readTOMLTable(configPathOf(v, t))
	if err != nil {
		return err
	}

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i)

		if explicit[flagName(tag.Name)] {
			continue
		}

		// File first, then environment on top of it.
		if path := tag.Tag.Get("toml"); path != "" && table != nil {
			if value := lookupDotted(table, path); value != nil {
				assign(field, value)
			}
		}
		if key := tag.Tag.Get("env"); key != "" {
			if raw := os.Getenv("MODEMGW_" + key); raw != "" {
				assignString(field, raw)
			}
		}
	}
	return nil
}

// explicitFlags collects the names of flags the user set on the
// command line. Those fields must not be overwritten.
func explicitFlags(cmd *cobra.Command) map[string]bool {
	set := make(map[string]bool)
	if cmd == nil {
		return set
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			set[f.Name] = true
		}
	})
	return set
}

func configPathOf(v reflect.Value, t reflect.Type) string {
	if f, ok := t.FieldByName("Config"); ok && f.Type.Kind() == reflect.String {
		return v.FieldByIndex(f.Index).String()
	}
	return ""
}

func readTOMLTable(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil
	}
	var table map[string]any
	if err := toml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return table, nil
}

// flagName derives the CLI flag for a struct field the same way
// humacli does: "SerialDevice" becomes "serial-device".
func flagName(field string) string {
	var out []rune
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			out = append(out, '-')
		}
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}

// lookupDotted walks nested TOML tables following a dotted path like
// "serial.device".
func lookupDotted(table map[string]any, path string) any {
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := table[part].(map[string]any)
		if !ok {
			return nil
		}
		table = next
	}
	return table[parts[len(parts)-1]]
}

func assign(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		arr, ok := value.([]any)
		if !ok {
			return
		}
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		field.Set(reflect.ValueOf(out))
	}
}

func assignString(field reflect.Value, raw string) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			field.SetBool(b)
		}
	case reflect.Int:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(raw, ",")
		out := make([]string, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		field.Set(reflect.ValueOf(out))
	}
}

// LoadLoggingConfig reads the [logging] table. The level and format
// keys are global, every other key names a module and its level. Any
// read or parse problem falls back to the defaults.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if configPath == "" {
		return cfg
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging map[string]string `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	for key, value := range raw.Logging {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg
}
