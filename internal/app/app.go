// Package app wires the pieces together: it builds the invoker the wrapper
// runs, records each run in history, and fires notifications. Both the
// one-shot CLI path and the daemon ticks go through the same RunOnce.
package app

import (
	"context"
	"io"
	"sync"
	"time"

	"closebot/internal/bot"
	"closebot/internal/config"
	"closebot/internal/history"
	"closebot/internal/jira"
	"closebot/internal/notify"
	"closebot/internal/runner"
	"closebot/pkg/logx"
)

// App owns the long-lived resources of the process.
type App struct {
	log    logx.Logger
	logSvc *logx.Service
	now    func() time.Time

	mu  sync.RWMutex
	cfg *config.Config

	store    *history.Store
	notifier *notify.Notifier
}

// New builds the App from a validated config.
func New(cfg *config.Config, logSvc *logx.Service, log logx.Logger) (*App, error) {
	a := &App{cfg: cfg, logSvc: logSvc, log: log, now: time.Now}

	if cfg.History.Enabled {
		st, err := history.Open(history.Config{
			Path:        cfg.History.Path,
			BusyTimeout: cfg.HistoryBusyTimeout(),
			Keep:        cfg.History.Keep,
		}, log)
		if err != nil {
			return nil, err
		}
		a.store = st
	}

	if cfg.Notify.Enabled {
		n, err := notify.New(notify.Config{
			Token:     cfg.Notify.Token,
			ChatID:    cfg.Notify.ChatID,
			OnSuccess: cfg.Notify.OnSuccess,
		}, log)
		if err != nil {
			return nil, err
		}
		a.notifier = n
	}

	return a, nil
}

// Close releases resources.
func (a *App) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// Apply installs a reloaded config. Logging level/sinks take effect
// immediately; runner and bot settings apply from the next run. History and
// notify construction is not re-done on reload.
func (a *App) Apply(cfg *config.Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	if a.logSvc != nil {
		a.logSvc.Apply(cfg.Logging)
	}
}

func (a *App) config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// RunOnce performs a single wrapper pass: day gate, invocation, run log,
// then history row and notification.
func (a *App) RunOnce(ctx context.Context) (runner.Result, runner.ExitCode) {
	cfg := a.config()

	var closed int
	inv, err := a.buildInvoker(cfg, &closed)
	if err != nil {
		// Construction failures (bad jira config) behave like any other
		// invocation failure so the run log and exit code stay truthful.
		inv = runner.InvokerFunc(func(context.Context, io.Writer) (int, error) {
			return -1, err
		})
	}

	r := runner.New(runner.Config{BaseDir: cfg.Runner.BaseDir, Now: a.now}, inv, a.log)
	res, code := r.Run(ctx)

	a.record(ctx, res, closed)
	if a.notifier != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		a.notifier.RunFinished(nctx, res)
		cancel()
	}
	return res, code
}

// buildInvoker picks the external script when configured, otherwise the
// built-in auto-close bot.
func (a *App) buildInvoker(cfg *config.Config, closed *int) (runner.Invoker, error) {
	if cfg.Runner.Command != "" {
		return runner.ExecInvoker{Path: cfg.Runner.Command}, nil
	}

	client, err := jira.New(jira.Config{
		URL:        cfg.Jira.URL,
		Username:   cfg.Jira.Username,
		APIToken:   cfg.Jira.APIToken,
		RatePerSec: cfg.Jira.RatePerSec,
	})
	if err != nil {
		return nil, err
	}
	b := bot.New(client, bot.Config{
		StatusName:    cfg.Jira.StatusName,
		DaysThreshold: cfg.Jira.DaysThreshold,
		MaxResults:    cfg.Jira.MaxResults,
		ErrorProject:  cfg.Jira.ErrorProject,
		DryRun:        cfg.Runner.DryRun,
	}, a.log)

	return runner.InvokerFunc(func(ctx context.Context, out io.Writer) (int, error) {
		sum, err := b.Run(ctx, out)
		if err != nil {
			// The bot files a Bug ticket about its own failure before the
			// wrapper takes the error path.
			b.ReportFailure(ctx, out, err)
			return -1, err
		}
		*closed = sum.Closed
		return 0, nil
	}), nil
}

func (a *App) record(ctx context.Context, res runner.Result, closed int) {
	if a.store == nil {
		return
	}
	err := a.store.Append(ctx, history.Run{
		StartedAt:     res.Started,
		FinishedAt:    res.Finished,
		Outcome:       string(res.Outcome),
		Detail:        res.Detail,
		ChildExit:     res.ChildExit,
		TicketsClosed: closed,
	})
	if err != nil {
		a.log.Warn("history append failed", logx.Err(err))
		return
	}
	if n, err := a.store.Prune(ctx); err == nil && n > 0 {
		a.log.Debug("history pruned", logx.Int64("rows", n))
	}
}
