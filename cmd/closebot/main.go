package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"closebot/internal/app"
	"closebot/internal/config"
	"closebot/internal/daemon"
	"closebot/pkg/logx"
)

func main() {
	os.Exit(run())
}

// run keeps os.Exit out of the body so deferred cleanup still executes.
func run() int {
	var (
		cfgPath  string
		asDaemon bool
		dryRun   bool
	)
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.BoolVar(&asDaemon, "daemon", false, "keep running and execute on the configured schedule")
	flag.BoolVar(&dryRun, "dry-run", false, "report tickets without closing them (built-in bot only)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}
	if dryRun {
		cfg.Runner.DryRun = true
	}

	logSvc, log := logx.New(cfg.Logging)
	defer logSvc.Close()

	a, err := app.New(cfg, logSvc, log)
	if err != nil {
		log.Error("startup failed", logx.Err(err))
		return 1
	}
	defer a.Close()

	if asDaemon {
		go func() {
			if err := config.Watch(ctx, cfgPath, log, a.Apply); err != nil {
				log.Warn("config watch unavailable", logx.Err(err))
			}
		}()
		d := daemon.New(daemon.Config{
			Spec:     cfg.Schedule.Spec,
			Timezone: cfg.Schedule.Timezone,
		}, a.RunOnce, log)
		if err := d.Run(ctx); err != nil {
			log.Error("daemon failed", logx.Err(err))
			return 1
		}
		return 0
	}

	_, code := a.RunOnce(ctx)
	return int(code)
}
