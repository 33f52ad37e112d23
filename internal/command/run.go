package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/native-module-host/internal/config"
	"github.com/joeycumines/native-module-host/internal/hostapi"
)

// RunCommand loads scripts into a host with the built-in modules.
type RunCommand struct {
	*BaseCommand
	config  *config.Config
	script  string
	samples bool
	wait    time.Duration
	// ctxFactory creates the execution context. Tests set it to avoid
	// installing signal handlers.
	ctxFactory func() (context.Context, context.CancelFunc)
}

// NewRunCommand creates a new run command.
func NewRunCommand(cfg *config.Config) *RunCommand {
	return &RunCommand{
		BaseCommand: NewBaseCommand(
			"run",
			"Run scripts against the native modules",
			"run [options] [script-file...]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the run command.
func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.script, "e", "", "JavaScript code to evaluate after the script files; the result is printed")
	fs.BoolVar(&c.samples, "samples", false, "Also install the sample dispatcher modules")
	fs.DurationVar(&c.wait, "wait", 0, "Keep the host running this long after loading scripts (negative waits for an interrupt)")
}

// Execute runs the script files in order, then the -e code.
func (c *RunCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 && c.script == "" {
		_, _ = fmt.Fprintln(stderr, "nothing to run: pass script files or -e")
		return errors.New("no scripts")
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if c.ctxFactory != nil {
		ctx, cancel = c.ctxFactory()
	} else {
		ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	}
	defer cancel()

	s, err := openSession(ctx, c.config, stderr, sessionOptions{samples: c.samples})
	if err != nil {
		return fmt.Errorf("failed to start host: %w", err)
	}
	defer s.Close()

	for _, path := range args {
		code, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := s.host.LoadScript(ctx, path, string(code)); err != nil {
			return err
		}
	}

	if c.script != "" {
		v, err := s.host.Evaluate(ctx, "<eval>", c.script)
		if err != nil {
			return err
		}
		if !v.IsNull() {
			_, _ = fmt.Fprintln(stdout, v.String())
		}
	}

	switch {
	case c.wait < 0:
		<-ctx.Done()
	case c.wait > 0:
		select {
		case <-ctx.Done():
		case <-time.After(c.wait):
		}
	}

	if s.host.State() == hostapi.StateHasError {
		return errors.New("script error, see log")
	}
	return nil
}
