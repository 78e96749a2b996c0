// Package runner implements the day-gated bot wrapper: on weekdays it
// invokes the bot and streams its combined output into the run log, on
// weekends it records a skip and does nothing else. The process exit code
// reports only invocation-level failures.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"closebot/internal/runlog"
	"closebot/pkg/logx"
)

// ExitCode is the wrapper's process exit code.
type ExitCode int

const (
	// ExitOK covers both a weekend skip and a completed invocation.
	ExitOK ExitCode = 0
	// ExitFailure means the bot could not be invoked at all.
	ExitFailure ExitCode = 1
)

// Outcome classifies a single wrapper run.
type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Result is the transient record of one run. It is not persisted itself;
// the run log holds its rendering, and the history store keeps a row per run.
type Result struct {
	Outcome   Outcome
	Detail    string // skip reason or failure detail
	ChildExit int    // bot's own exit status; -1 when unknown or not applicable
	Started   time.Time
	Finished  time.Time
	LogPath   string
}

// Config is the wrapper's process-wide configuration, fixed at startup and
// passed in explicitly.
type Config struct {
	// BaseDir anchors the log directory. Empty means "next to the wrapper
	// binary" (the directory of os.Executable).
	BaseDir string

	// Now supplies the clock for the day gate and log timestamps.
	// Defaults to time.Now.
	Now func() time.Time

	// Console receives the echo of every run-log line. Defaults to os.Stdout.
	Console io.Writer
}

// Runner executes one wrapper pass per Run call.
type Runner struct {
	cfg Config
	inv Invoker
	log logx.Logger
}

// New constructs a Runner around the given invoker.
func New(cfg Config, inv Invoker, log logx.Logger) *Runner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Console == nil {
		cfg.Console = os.Stdout
	}
	return &Runner{cfg: cfg, inv: inv, log: log}
}

// Run performs a single wrapper pass and reports the exit code the process
// should terminate with.
func (r *Runner) Run(ctx context.Context) (Result, ExitCode) {
	res := Result{Started: r.cfg.Now(), ChildExit: -1}

	base, err := r.baseDir()
	if err != nil {
		res.Outcome = OutcomeFailure
		res.Detail = fmt.Sprintf("resolve base dir: %v", err)
		res.Finished = r.cfg.Now()
		r.log.Error("run failed before logging was available", logx.Err(err))
		return res, ExitFailure
	}

	rl, err := runlog.Open(base,
		runlog.WithConsole(r.cfg.Console),
		runlog.WithClock(r.cfg.Now),
	)
	if err != nil {
		res.Outcome = OutcomeFailure
		res.Detail = err.Error()
		res.Finished = r.cfg.Now()
		r.log.Error("run log unavailable", logx.Err(err))
		return res, ExitFailure
	}
	res.LogPath = rl.Path()

	// Day gate: Saturday and Sunday are terminal skip states.
	day := r.cfg.Now().Weekday()
	if day == time.Saturday || day == time.Sunday {
		msg := fmt.Sprintf("Today is %s - skipping bot execution", day)
		r.entry(rl, msg)
		res.Outcome = OutcomeSkipped
		res.Detail = msg
		res.Finished = r.cfg.Now()
		r.log.Info("weekend skip", logx.String("day", day.String()))
		return res, ExitOK
	}

	r.entry(rl, "Starting bot execution")

	stream := rl.Stream()
	childExit, invErr := r.inv.Invoke(ctx, stream)
	if cerr := stream.Close(); cerr != nil {
		r.log.Warn("run log flush failed", logx.Err(cerr))
	}
	res.ChildExit = childExit
	res.Finished = r.cfg.Now()

	if invErr != nil {
		detail := fmt.Sprintf("failed to invoke bot: %v", invErr)
		r.entry(rl, "ERROR: "+detail)
		res.Outcome = OutcomeFailure
		res.Detail = detail
		r.log.Error("bot invocation failed", logx.Err(invErr))
		return res, ExitFailure
	}

	// The bot's own non-zero exit is deliberately not a wrapper failure:
	// the completion entry is still written and the wrapper exits 0. The
	// status only surfaces in diagnostics and run history.
	if childExit > 0 {
		r.log.Warn("bot exited non-zero", logx.Int("exit", childExit))
	}

	r.entry(rl, "Bot execution completed successfully")
	res.Outcome = OutcomeSuccess
	return res, ExitOK
}

func (r *Runner) baseDir() (string, error) {
	if r.cfg.BaseDir != "" {
		return r.cfg.BaseDir, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// entry appends a wrapper event to the run log. A failing append must not
// flip the run's outcome, so it is only reported on the diagnostic logger.
func (r *Runner) entry(rl *runlog.Log, msg string) {
	if err := rl.Entry(msg); err != nil {
		r.log.Warn("run log append failed", logx.Err(err), logx.String("entry", msg))
	}
}
