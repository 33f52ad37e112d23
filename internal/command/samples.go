package command

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"github.com/joeycumines/native-module-host/internal/config"
)

//go:embed samples_driver.js
var samplesDriver string

// SamplesCommand exercises the sample modules and prints where each member
// ran.
type SamplesCommand struct {
	*BaseCommand
	config *config.Config
}

// NewSamplesCommand creates a new samples command.
func NewSamplesCommand(cfg *config.Config) *SamplesCommand {
	return &SamplesCommand{
		BaseCommand: NewBaseCommand(
			"samples",
			"Exercise the sample dispatcher modules",
			"samples",
		),
		config: cfg,
	}
}

// Execute calls every sample member, shuts the host down so finalizers run,
// then prints the event log. It fails if any member ran on the wrong
// dispatcher.
func (c *SamplesCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return errors.New("unexpected arguments")
	}

	s, err := openSession(context.Background(), c.config, stderr, sessionOptions{samples: true})
	if err != nil {
		return fmt.Errorf("failed to start host: %w", err)
	}
	runErr := s.host.LoadScript(context.Background(), "samples.js", samplesDriver)
	if err := s.Close(); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	for _, event := range s.events.Events() {
		_, _ = fmt.Fprintln(stdout, event)
	}
	failures := s.events.Failures()
	for _, f := range failures {
		_, _ = fmt.Fprintf(stderr, "FAIL: %s\n", f)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d sample check(s) failed", len(failures))
	}
	return nil
}
