// Package daemon runs the wrapper on a cron schedule for long-lived
// deployments (systemd service instead of a crontab entry). Each tick is
// the exact same pass a one-shot run performs; the exit code becomes a log
// field instead of terminating the process.
package daemon

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"closebot/internal/runner"
	"closebot/pkg/logx"
)

// Pass executes one wrapper pass.
type Pass func(ctx context.Context) (runner.Result, runner.ExitCode)

// Config controls the schedule.
type Config struct {
	Spec     string // standard 5-field cron expression
	Timezone string // IANA name; empty means time.Local
}

// Daemon drives scheduled passes.
type Daemon struct {
	cfg  Config
	pass Pass
	log  logx.Logger

	running atomic.Bool
}

// New constructs a Daemon.
func New(cfg Config, pass Pass, log logx.Logger) *Daemon {
	if strings.TrimSpace(cfg.Spec) == "" {
		cfg.Spec = "0 9 * * *"
	}
	return &Daemon{cfg: cfg, pass: pass, log: log}
}

// Run blocks until ctx is done. It reports readiness and liveness to systemd
// when running under it; outside systemd both calls are no-ops.
func (d *Daemon) Run(ctx context.Context) error {
	loc := d.location()
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(d.cfg.Spec, func() { d.tick(ctx) }); err != nil {
		return err
	}

	c.Start()
	d.log.Info("daemon started", logx.String("spec", d.cfg.Spec), logx.String("tz", loc.String()))
	_, _ = sd.SdNotify(false, sd.SdNotifyReady)

	d.watchdog(ctx)

	<-ctx.Done()
	_, _ = sd.SdNotify(false, sd.SdNotifyStopping)
	<-c.Stop().Done()
	d.log.Info("daemon stopped")
	return nil
}

// tick runs one pass. Ticks never overlap: if the previous pass is still
// running (a hung external script blocks indefinitely), the new one is
// dropped with a warning rather than interleaving log writes.
func (d *Daemon) tick(ctx context.Context) {
	if !d.running.CompareAndSwap(false, true) {
		d.log.Warn("previous run still in progress; skipping tick")
		return
	}
	defer d.running.Store(false)

	start := time.Now()
	res, code := d.pass(ctx)
	d.log.Info("scheduled run finished",
		logx.String("outcome", string(res.Outcome)),
		logx.Int("exit_code", int(code)),
		logx.Duration("took", time.Since(start)),
	)
}

// watchdog starts WATCHDOG=1 pings when systemd requested them.
func (d *Daemon) watchdog(ctx context.Context) {
	interval, err := sd.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = sd.SdNotify(false, sd.SdNotifyWatchdog)
			}
		}
	}()
	d.log.Debug("systemd watchdog enabled", logx.Duration("interval", interval))
}

func (d *Daemon) location() *time.Location {
	tz := strings.TrimSpace(d.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		d.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
