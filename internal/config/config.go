package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config represents the host configuration.
type Config struct {
	// Global options, keyed by option name.
	Global map[string]string
	// Dispatchers are the custom serial dispatchers declared in the
	// [dispatchers] section, in file order.
	Dispatchers []DispatcherConfig
	// Warnings contains any warnings generated during config loading
	Warnings []string
}

// DispatcherConfig declares a serial dispatcher the host creates at startup
// and publishes in its property bag, under Namespace/Local.
type DispatcherConfig struct {
	Name      string
	Namespace string
	Local     string
}

// NewConfig creates a new empty configuration.
func NewConfig() *Config {
	return &Config{
		Global:   make(map[string]string),
		Warnings: make([]string, 0),
	}
}

// Load loads configuration from the default config file path.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads configuration from the specified file path.
// The file uses dnsmasq-style format: optionName remainingLineIsTheValue
//
// Symlinks are rejected. A missing file yields an empty config.
func LoadFromPath(path string) (*Config, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlink not allowed in config path: %s", path)
	}

	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadFromReader(file)
}

// LoadFromReader loads configuration from an io.Reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	config := NewConfig()
	scanner := bufio.NewScanner(r)

	var section string
	seen := make(map[string]bool)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(strings.Trim(line, "[]"))
			if section != "" && section != "dispatchers" {
				config.addWarning("unknown section [%s] (line %d)", section, lineNo)
			}
			continue
		}

		optionName, value, _ := strings.Cut(line, " ")
		value = strings.TrimSpace(value)

		switch section {
		case "":
			config.Global[optionName] = value
		case "dispatchers":
			d, err := parseDispatcherLine(optionName, value)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if seen[d.Name] {
				return nil, fmt.Errorf("line %d: duplicate dispatcher %q", lineNo, d.Name)
			}
			seen[d.Name] = true
			config.Dispatchers = append(config.Dispatchers, d)
		default:
			// already warned about the section
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	for _, issue := range ValidateConfig(config, DefaultSchema()) {
		config.addWarning("%s", issue)
	}

	return config, nil
}

// addWarning adds a warning to the config's warnings list.
func (c *Config) addWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.Warnings = append(c.Warnings, msg)
	slog.Warn("[Config] " + msg)
}

// parseDispatcherLine parses "name namespace/local". The namespace is
// everything before the last slash.
func parseDispatcherLine(name, value string) (DispatcherConfig, error) {
	idx := strings.LastIndex(value, "/")
	if idx <= 0 || idx == len(value)-1 || strings.ContainsAny(value, " \t") {
		return DispatcherConfig{}, fmt.Errorf("invalid dispatcher %q: expected \"name namespace/local\", got %q", name, value)
	}
	return DispatcherConfig{
		Name:      name,
		Namespace: value[:idx],
		Local:     value[idx+1:],
	}, nil
}

// parseBool parses a boolean value from string.
// Accepts: true, false, 1, 0, yes, no, on, off (case-insensitive)
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}

// GetGlobalOption returns a global configuration option.
func (c *Config) GetGlobalOption(name string) (string, bool) {
	value, exists := c.Global[name]
	return value, exists
}

// SetGlobalOption sets a global configuration option.
func (c *Config) SetGlobalOption(name, value string) {
	c.Global[name] = value
}

// HasWarnings returns true if there are any warnings.
func (c *Config) HasWarnings() bool {
	return len(c.Warnings) > 0
}
