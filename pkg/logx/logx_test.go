package logx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFileSinkWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closebot.log")
	svc, log := New(Config{Level: "info", File: path})
	defer svc.Close()

	log.Info("run finished", String("outcome", "success"), Int("exit_code", 0))

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"message":"run finished"`, `"outcome":"success"`, `"exit_code":0`} {
		if !strings.Contains(s, want) {
			t.Fatalf("log line missing %s: %s", want, s)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closebot.log")
	svc, log := New(Config{Level: "warn", File: path})
	defer svc.Close()

	log.Info("too quiet")
	log.Warn("loud enough")

	b, _ := os.ReadFile(path)
	if strings.Contains(string(b), "too quiet") {
		t.Fatalf("info leaked through warn level: %s", b)
	}
	if !strings.Contains(string(b), "loud enough") {
		t.Fatalf("warn missing: %s", b)
	}
}

func TestApplySwapsLevelOnLiveLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closebot.log")
	svc, log := New(Config{Level: "error", File: path})
	defer svc.Close()

	log.Info("before apply")
	svc.Apply(Config{Level: "info", File: path})
	log.Info("after apply")

	b, _ := os.ReadFile(path)
	if strings.Contains(string(b), "before apply") {
		t.Fatalf("error level let info through: %s", b)
	}
	if !strings.Contains(string(b), "after apply") {
		t.Fatalf("apply did not lower the level: %s", b)
	}
}

func TestNopIsSafe(t *testing.T) {
	var zero Logger
	zero.Info("nothing happens")
	Nop().Error("still nothing", Err(nil))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"Warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in, zerolog.InfoLevel); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
