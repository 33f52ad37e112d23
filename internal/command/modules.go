package command

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/joeycumines/native-module-host/internal/config"
)

// ModulesCommand lists the native modules a host installs.
type ModulesCommand struct {
	*BaseCommand
	config  *config.Config
	samples bool
	verbose bool
}

// NewModulesCommand creates a new modules command.
func NewModulesCommand(cfg *config.Config) *ModulesCommand {
	return &ModulesCommand{
		BaseCommand: NewBaseCommand(
			"modules",
			"List the installed native modules",
			"modules [options]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the modules command.
func (c *ModulesCommand) SetupFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.samples, "samples", false, "Include the sample dispatcher modules")
	fs.BoolVar(&c.verbose, "v", false, "Show members and constants")
}

// Execute starts a host and prints its modules.
func (c *ModulesCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return fmt.Errorf("unexpected arguments")
	}

	ctx := context.Background()
	s, err := openSession(ctx, c.config, stderr, sessionOptions{samples: c.samples})
	if err != nil {
		return fmt.Errorf("failed to start host: %w", err)
	}
	defer s.Close()

	modules, err := s.host.Describe(ctx)
	if err != nil {
		return err
	}
	for _, m := range modules {
		_, _ = fmt.Fprintf(stdout, "%s (%s)\n", m.Name, m.Dispatcher)
		if !c.verbose {
			continue
		}
		if m.Constants.Len() > 0 {
			_, _ = fmt.Fprintf(stdout, "  constants: %s\n", m.Constants)
		}
		if len(m.SyncMethods) > 0 {
			_, _ = fmt.Fprintf(stdout, "  sync: %s\n", strings.Join(m.SyncMethods, ", "))
		}
		for _, method := range m.Methods {
			_, _ = fmt.Fprintf(stdout, "  async: %s (%s)\n", method.Name, method.Kind)
		}
	}
	return nil
}
