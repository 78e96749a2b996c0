package runner

import (
	"context"
	"errors"
	"io"
	"os/exec"
)

// Invoker abstracts what the wrapper runs on a weekday. Combined output goes
// to out as it is produced. A non-nil error means the invocation itself
// failed (could not start, invocation-boundary error); the invoked bot
// reporting a problem through its own output or exit status is NOT an
// invocation failure.
type Invoker interface {
	// Invoke runs the bot, writing combined stdout/stderr to out.
	// childExit is the bot's own exit status, or -1 when not applicable.
	Invoke(ctx context.Context, out io.Writer) (childExit int, err error)
}

// ExecInvoker runs a fixed external script with no arguments, the original
// deployment shape: the wrapper and the bot are separate programs.
type ExecInvoker struct {
	// Path to the bot script.
	Path string
}

func (e ExecInvoker) Invoke(ctx context.Context, out io.Writer) (int, error) {
	if e.Path == "" {
		return -1, errors.New("bot command path is empty")
	}

	cmd := exec.CommandContext(ctx, e.Path)
	// Both streams feed the same writer so the log sees the combined,
	// interleaved output exactly as a terminal would.
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			// The script ran and chose to exit non-zero. That is its own
			// business; only report the status.
			return ee.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, out io.Writer) (int, error)

func (f InvokerFunc) Invoke(ctx context.Context, out io.Writer) (int, error) {
	return f(ctx, out)
}
