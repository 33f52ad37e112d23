package command

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/joeycumines/native-module-host/internal/config"
)

// HelpCommand displays help information for commands.
type HelpCommand struct {
	*BaseCommand
	registry *Registry
}

// NewHelpCommand creates a new help command.
func NewHelpCommand(registry *Registry) *HelpCommand {
	return &HelpCommand{
		BaseCommand: NewBaseCommand(
			"help",
			"Display help information for commands",
			"help [command]",
		),
		registry: registry,
	}
}

// Execute displays help information.
func (c *HelpCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stdout, "rnhost - run scripts against native modules")
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Usage: rnhost <command> [options] [args...]")
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Available commands:")

		w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
		for _, name := range c.registry.List() {
			if cmd, err := c.registry.Get(name); err == nil {
				_, _ = fmt.Fprintf(w, "  %s\t%s\n", name, cmd.Description())
			}
		}
		_ = w.Flush()

		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Use 'rnhost help <command>' for more information about a specific command.")
		return nil
	}

	cmd, err := c.registry.Get(args[0])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Command: %s\n", cmd.Name())
	_, _ = fmt.Fprintf(stdout, "Description: %s\n", cmd.Description())
	_, _ = fmt.Fprintf(stdout, "Usage: %s\n", cmd.Usage())

	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	buf := &bytes.Buffer{}
	fs.SetOutput(buf)
	cmd.SetupFlags(fs)
	fs.PrintDefaults()
	if buf.Len() > 0 {
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Flags:")
		_, _ = fmt.Fprint(stdout, buf.String())
	}
	return nil
}

// VersionCommand displays version information.
type VersionCommand struct {
	*BaseCommand
	version string
}

// NewVersionCommand creates a new version command.
func NewVersionCommand(version string) *VersionCommand {
	return &VersionCommand{
		BaseCommand: NewBaseCommand(
			"version",
			"Display version information",
			"version",
		),
		version: version,
	}
}

// Execute displays version information.
func (c *VersionCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return errors.New("unexpected arguments")
	}
	_, _ = fmt.Fprintf(stdout, "rnhost version %s\n", c.version)
	return nil
}

// ConfigCommand shows the effective configuration.
type ConfigCommand struct {
	*BaseCommand
	config *config.Config
	schema *config.ConfigSchema
}

// NewConfigCommand creates a new config command.
func NewConfigCommand(cfg *config.Config) *ConfigCommand {
	return &ConfigCommand{
		BaseCommand: NewBaseCommand(
			"config",
			"Show configuration settings",
			"config [key | validate | schema]",
		),
		config: cfg,
		schema: config.DefaultSchema(),
	}
}

// Execute prints every option with its effective value, a single option, the
// validation result or the option reference.
func (c *ConfigCommand) Execute(args []string, stdout, stderr io.Writer) error {
	switch {
	case len(args) == 0:
		w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
		for _, opt := range c.schema.Options() {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", opt.Key, c.schema.Resolve(c.config, opt.Key))
		}
		_ = w.Flush()
		if len(c.config.Dispatchers) > 0 {
			_, _ = fmt.Fprintln(stdout, "\n[dispatchers]")
			for _, d := range c.config.Dispatchers {
				_, _ = fmt.Fprintf(stdout, "%s %s/%s\n", d.Name, d.Namespace, d.Local)
			}
		}
		return nil
	case len(args) > 1:
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args[1:])
		return errors.New("unexpected arguments")
	case args[0] == "validate":
		return c.executeValidate(stdout)
	case args[0] == "schema":
		_, _ = fmt.Fprint(stdout, c.schema.FormatHelp())
		return nil
	}

	key := args[0]
	if c.schema.Lookup(key) == nil {
		if v, ok := c.config.GetGlobalOption(key); ok {
			_, _ = fmt.Fprintln(stdout, v)
			return nil
		}
		_, _ = fmt.Fprintf(stderr, "Unknown configuration key: %s\n", key)
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	_, _ = fmt.Fprintln(stdout, c.schema.Resolve(c.config, key))
	return nil
}

func (c *ConfigCommand) executeValidate(stdout io.Writer) error {
	// Loading already records validation issues as warnings.
	issues := append(slices.Clone(c.config.Warnings), config.ValidateConfig(c.config, c.schema)...)
	slices.Sort(issues)
	issues = slices.Compact(issues)
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(stdout, "Configuration is valid.")
		return nil
	}
	_, _ = fmt.Fprintln(stdout, "Configuration issues:")
	for _, issue := range issues {
		_, _ = fmt.Fprintf(stdout, "  - %s\n", issue)
	}
	return fmt.Errorf("configuration has %d issue(s)", len(issues))
}
