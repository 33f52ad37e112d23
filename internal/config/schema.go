package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OptionType represents the expected type of a configuration option value.
type OptionType string

const (
	// TypeString is a plain string value (the default for all config values).
	TypeString OptionType = "string"
	// TypeBool is a boolean value (true/false/yes/no/1/0/on/off).
	TypeBool OptionType = "bool"
	// TypeInt is an integer value.
	TypeInt OptionType = "int"
	// TypeDuration is a Go time.Duration value (e.g. "30s", "5m", "1h").
	TypeDuration OptionType = "duration"
)

// Option keys understood by the host.
const (
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
	KeyLogFile        = "log.file"
	KeyLogMaxSizeMB   = "log.maxSizeMb"
	KeyLogMaxFiles    = "log.maxFiles"
	KeySyncWarnAfter  = "sync.warnAfter"
	KeyMetricsEnabled = "metrics.enabled"
	KeyMetricsAddr    = "metrics.addr"
)

// ConfigOption declares a single global configuration option.
type ConfigOption struct {
	Key         string
	Type        OptionType
	Default     string
	Description string
	// EnvVar is the environment variable that overrides this option, or "".
	EnvVar string
}

// ConfigSchema declares the expected configuration options. It drives
// validation, typed getters, env var overrides and help output.
type ConfigSchema struct {
	options []*ConfigOption
	byKey   map[string]*ConfigOption
}

// NewSchema creates a new empty ConfigSchema.
func NewSchema() *ConfigSchema {
	return &ConfigSchema{byKey: make(map[string]*ConfigOption)}
}

// Register adds a ConfigOption to the schema. Last registration of a key wins.
func (s *ConfigSchema) Register(opt ConfigOption) {
	ref := new(ConfigOption)
	*ref = opt
	if _, ok := s.byKey[opt.Key]; !ok {
		s.options = append(s.options, ref)
	} else {
		for i, o := range s.options {
			if o.Key == opt.Key {
				s.options[i] = ref
			}
		}
	}
	s.byKey[opt.Key] = ref
}

// RegisterAll adds multiple ConfigOptions to the schema.
func (s *ConfigSchema) RegisterAll(opts []ConfigOption) {
	for _, opt := range opts {
		s.Register(opt)
	}
}

// Lookup returns the ConfigOption for key, or nil.
func (s *ConfigSchema) Lookup(key string) *ConfigOption {
	return s.byKey[key]
}

// Options returns all registered options in registration order.
func (s *ConfigSchema) Options() []ConfigOption {
	out := make([]ConfigOption, 0, len(s.options))
	for _, o := range s.options {
		out = append(out, *o)
	}
	return out
}

// Resolve returns the effective value for key by checking, in order: the
// environment variable declared for it (when non-empty), the config value,
// the schema default. Returns "" if the key is not found anywhere. c may be
// nil.
func (s *ConfigSchema) Resolve(c *Config, key string) string {
	opt := s.Lookup(key)
	if opt != nil && opt.EnvVar != "" {
		if v := os.Getenv(opt.EnvVar); v != "" {
			return v
		}
	}
	if c != nil {
		if v, ok := c.GetGlobalOption(key); ok {
			return v
		}
	}
	if opt != nil {
		return opt.Default
	}
	return ""
}

// Bool resolves key as a boolean, falling back to the schema default when
// the configured value does not parse.
func (s *ConfigSchema) Bool(c *Config, key string) bool {
	if b, err := parseBool(s.Resolve(c, key)); err == nil {
		return b
	}
	b, _ := parseBool(s.defaultOf(key))
	return b
}

// Int resolves key as an integer, falling back to the schema default.
func (s *ConfigSchema) Int(c *Config, key string) int {
	if i, err := strconv.Atoi(s.Resolve(c, key)); err == nil {
		return i
	}
	i, _ := strconv.Atoi(s.defaultOf(key))
	return i
}

// Duration resolves key as a time.Duration, falling back to the schema
// default.
func (s *ConfigSchema) Duration(c *Config, key string) time.Duration {
	if d, err := time.ParseDuration(s.Resolve(c, key)); err == nil {
		return d
	}
	d, _ := time.ParseDuration(s.defaultOf(key))
	return d
}

func (s *ConfigSchema) defaultOf(key string) string {
	if opt := s.Lookup(key); opt != nil {
		return opt.Default
	}
	return ""
}

// ValidateConfig checks a loaded Config against the schema and returns a
// sorted list of human-readable issues (empty if the config is valid).
func ValidateConfig(c *Config, s *ConfigSchema) []string {
	var issues []string

	for key, value := range c.Global {
		opt := s.Lookup(key)
		if opt == nil {
			issues = append(issues, fmt.Sprintf("unknown global option: %q (value: %q)", key, value))
			continue
		}
		if err := validateType(opt.Type, value); err != nil {
			issues = append(issues, fmt.Sprintf("global option %q: %v", key, err))
		}
	}

	sort.Strings(issues)
	return issues
}

// validateType checks that a string value matches the expected OptionType.
func validateType(t OptionType, value string) error {
	switch t {
	case TypeString, "":
		return nil
	case TypeBool:
		if _, err := parseBool(value); err != nil {
			return fmt.Errorf("expected bool, got %q", value)
		}
	case TypeInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("expected int, got %q", value)
		}
	case TypeDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("expected duration, got %q", value)
		}
	default:
		return fmt.Errorf("unknown option type %q", t)
	}
	return nil
}

// FormatHelp returns a formatted, human-readable reference of all
// registered options.
func (s *ConfigSchema) FormatHelp() string {
	var b strings.Builder
	b.WriteString("Global Options:\n")
	for _, o := range s.options {
		writeOptionHelp(&b, *o)
	}
	b.WriteString("\n[dispatchers]\n")
	b.WriteString("  <name> <namespace>/<local>            Serial dispatcher published in the property bag\n")
	return b.String()
}

func writeOptionHelp(b *strings.Builder, o ConfigOption) {
	fmt.Fprintf(b, "  %-35s %s", o.Key, o.Description)
	parts := make([]string, 0, 3)
	if o.Type != "" && o.Type != TypeString {
		parts = append(parts, fmt.Sprintf("type: %s", o.Type))
	}
	if o.Default != "" {
		parts = append(parts, fmt.Sprintf("default: %s", o.Default))
	}
	if o.EnvVar != "" {
		parts = append(parts, fmt.Sprintf("env: %s", o.EnvVar))
	}
	if len(parts) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

// DefaultSchema returns the schema declaring every option the host reads.
func DefaultSchema() *ConfigSchema {
	s := NewSchema()
	s.RegisterAll([]ConfigOption{
		{Key: KeyLogLevel, Type: TypeString, Default: "info", Description: "Log level: debug, info, warn, error", EnvVar: "RNHOST_LOG_LEVEL"},
		{Key: KeyLogFormat, Type: TypeString, Default: "text", Description: "Log format: text, json"},
		{Key: KeyLogFile, Type: TypeString, Default: "", Description: "Log file path (stderr if unset)", EnvVar: "RNHOST_LOG_FILE"},
		{Key: KeyLogMaxSizeMB, Type: TypeInt, Default: "10", Description: "Max log file size in MB before rotation"},
		{Key: KeyLogMaxFiles, Type: TypeInt, Default: "5", Description: "Max number of rotated log backup files"},
		{Key: KeySyncWarnAfter, Type: TypeDuration, Default: "5s", Description: "Warn when a synchronous dispatcher wait exceeds this (0 disables)"},
		{Key: KeyMetricsEnabled, Type: TypeBool, Default: "false", Description: "Serve Prometheus metrics"},
		{Key: KeyMetricsAddr, Type: TypeString, Default: "127.0.0.1:9464", Description: "Metrics listen address", EnvVar: "RNHOST_METRICS_ADDR"},
	})
	return s
}
