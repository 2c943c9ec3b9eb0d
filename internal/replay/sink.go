package replay

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Sink receives each replayed line.
type Sink interface {
	Emit(ctx context.Context, line string) error
}

// SinkError wraps a failed emission. The pacer aborts on the first one;
// a sink that stops accepting lines means the run is no longer measuring
// anything real.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string { return fmt.Sprintf("emit line: %v", e.Err) }

func (e *SinkError) Unwrap() error { return e.Err }

// ExecSink injects each line by running a command with the line on stdin,
// the way the syslog logger utility expects. The command is awaited before
// the next line is considered; nothing is left running in the background.
type ExecSink struct {
	Argv []string
}

// NewExecSink builds a sink from an argv vector.
func NewExecSink(argv []string) (*ExecSink, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty sink command")
	}
	return &ExecSink{Argv: argv}, nil
}

func (s *ExecSink) Emit(ctx context.Context, line string) error {
	cmd := exec.CommandContext(ctx, s.Argv[0], s.Argv[1:]...)
	cmd.Stdin = strings.NewReader(line + "\n")
	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return &SinkError{Err: fmt.Errorf("%s: %w: %s", s.Argv[0], err, msg)}
		}
		return &SinkError{Err: fmt.Errorf("%s: %w", s.Argv[0], err)}
	}
	return nil
}

// WriterSink prints each line to w. It backs dry runs, where planned
// emissions go to stdout instead of the injector.
type WriterSink struct {
	W io.Writer
}

func (s *WriterSink) Emit(_ context.Context, line string) error {
	if _, err := fmt.Fprintln(s.W, line); err != nil {
		return &SinkError{Err: err}
	}
	return nil
}
