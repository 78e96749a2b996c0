package app

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"closebot/internal/config"
	"closebot/internal/runner"
	"closebot/pkg/logx"
)

// wednesday keeps app tests independent of the real weekday.
var wednesday = time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	cfg.ApplyDefaults()
	a, err := New(cfg, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	a.now = func() time.Time { return wednesday }
	return a
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	path := filepath.Join(t.TempDir(), "bot.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestRunOnceExternalCommand(t *testing.T) {
	base := t.TempDir()
	cfg := &config.Config{
		Runner: config.RunnerConfig{
			Command: writeScript(t, "echo bot did things\n"),
			BaseDir: base,
		},
	}
	a := newTestApp(t, cfg)

	res, code := a.RunOnce(context.Background())
	if code != runner.ExitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if res.Outcome != runner.OutcomeSuccess {
		t.Fatalf("outcome = %s", res.Outcome)
	}

	b, err := os.ReadFile(filepath.Join(base, "log", "bot_log.txt"))
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(b), "bot did things") {
		t.Fatalf("script output missing from run log: %s", b)
	}
}

func TestRunOnceRecordsHistory(t *testing.T) {
	base := t.TempDir()
	cfg := &config.Config{
		Runner: config.RunnerConfig{
			Command: writeScript(t, "exit 0\n"),
			BaseDir: base,
		},
		History: config.HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(base, "runs.db"),
		},
	}
	a := newTestApp(t, cfg)

	if _, code := a.RunOnce(context.Background()); code != runner.ExitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}

	runs, err := a.store.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("history rows = %d, want 1", len(runs))
	}
	if runs[0].Outcome != string(runner.OutcomeSuccess) {
		t.Fatalf("recorded outcome = %s", runs[0].Outcome)
	}
}

func TestRunOnceInvocationFailure(t *testing.T) {
	base := t.TempDir()
	cfg := &config.Config{
		Runner: config.RunnerConfig{
			Command: filepath.Join(base, "missing.sh"),
			BaseDir: base,
		},
	}
	a := newTestApp(t, cfg)

	res, code := a.RunOnce(context.Background())
	if code != runner.ExitFailure {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if res.Outcome != runner.OutcomeFailure {
		t.Fatalf("outcome = %s", res.Outcome)
	}

	b, err := os.ReadFile(filepath.Join(base, "log", "bot_log.txt"))
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(b), "ERROR:") {
		t.Fatalf("missing ERROR entry: %s", b)
	}
}

func TestApplySwapsConfig(t *testing.T) {
	cfg := &config.Config{Runner: config.RunnerConfig{Command: "/opt/a.sh"}}
	a := newTestApp(t, cfg)

	next := &config.Config{Runner: config.RunnerConfig{Command: "/opt/b.sh"}}
	next.ApplyDefaults()
	a.Apply(next)

	if got := a.config().Runner.Command; got != "/opt/b.sh" {
		t.Fatalf("command after Apply = %q", got)
	}
}
