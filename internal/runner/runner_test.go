package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"closebot/internal/runlog"
	"closebot/pkg/logx"
)

// clockAt returns a clock frozen at the given local time.
func clockAt(s string) func() time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

type fakeInvoker struct {
	output    string
	childExit int
	err       error
	calls     int
}

func (f *fakeInvoker) Invoke(_ context.Context, out io.Writer) (int, error) {
	f.calls++
	if f.output != "" {
		io.WriteString(out, f.output)
	}
	return f.childExit, f.err
}

func readLog(t *testing.T, dir string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, runlog.DirName, runlog.FileName))
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	return string(b)
}

func newRunner(dir string, clock func() time.Time, inv Invoker) *Runner {
	return New(Config{
		BaseDir: dir,
		Now:     clock,
		Console: io.Discard,
	}, inv, logx.Nop())
}

func TestDayGate(t *testing.T) {
	// 2024-03-04 is a Monday.
	days := []struct {
		date string
		skip bool
	}{
		{"2024-03-04 10:00:00", false}, // Monday
		{"2024-03-05 10:00:00", false}, // Tuesday
		{"2024-03-06 10:00:00", false}, // Wednesday
		{"2024-03-07 10:00:00", false}, // Thursday
		{"2024-03-08 10:00:00", false}, // Friday
		{"2024-03-09 10:00:00", true},  // Saturday
		{"2024-03-10 10:00:00", true},  // Sunday
	}

	for _, tt := range days {
		tt := tt
		t.Run(tt.date, func(t *testing.T) {
			dir := t.TempDir()
			inv := &fakeInvoker{}
			res, code := newRunner(dir, clockAt(tt.date), inv).Run(context.Background())

			if code != ExitOK {
				t.Fatalf("exit code = %d, want 0", code)
			}
			if tt.skip {
				if inv.calls != 0 {
					t.Fatalf("invoker called %d times on a weekend", inv.calls)
				}
				if res.Outcome != OutcomeSkipped {
					t.Fatalf("outcome = %s, want skipped", res.Outcome)
				}
			} else {
				if inv.calls != 1 {
					t.Fatalf("invoker called %d times, want 1", inv.calls)
				}
				if res.Outcome != OutcomeSuccess {
					t.Fatalf("outcome = %s, want success", res.Outcome)
				}
			}
		})
	}
}

func TestSaturdaySkipEntry(t *testing.T) {
	dir := t.TempDir()
	inv := &fakeInvoker{}
	_, code := newRunner(dir, clockAt("2024-03-09 10:00:00"), inv).Run(context.Background())
	if code != ExitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}

	log := readLog(t, dir)
	want := "[2024-03-09 10:00:00] Today is Saturday - skipping bot execution\n"
	if log != want {
		t.Fatalf("log = %q, want exactly %q", log, want)
	}
}

func TestWeekdayRunWritesStartOutputAndCompletion(t *testing.T) {
	dir := t.TempDir()
	inv := &fakeInvoker{output: "hello from bot\nsecond line\n"}
	res, code := newRunner(dir, clockAt("2024-03-06 09:00:00"), inv).Run(context.Background())

	if code != ExitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want success", res.Outcome)
	}

	log := readLog(t, dir)
	lines := strings.Split(strings.TrimRight(log, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 log lines, got %d: %q", len(lines), log)
	}
	if !strings.Contains(lines[0], "Starting bot execution") {
		t.Fatalf("line 0 = %q", lines[0])
	}
	// Child output lines are verbatim, no timestamp prefix.
	if lines[1] != "hello from bot" || lines[2] != "second line" {
		t.Fatalf("child output mangled: %q", lines[1:3])
	}
	if !strings.Contains(lines[3], "Bot execution completed successfully") {
		t.Fatalf("line 3 = %q", lines[3])
	}
}

func TestInvocationFailure(t *testing.T) {
	dir := t.TempDir()
	inv := &fakeInvoker{err: errors.New("no such file or directory"), childExit: -1}
	res, code := newRunner(dir, clockAt("2024-03-06 09:00:00"), inv).Run(context.Background())

	if code != ExitFailure {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if res.Outcome != OutcomeFailure {
		t.Fatalf("outcome = %s, want failure", res.Outcome)
	}

	log := readLog(t, dir)
	if !strings.Contains(log, "ERROR: failed to invoke bot: no such file or directory") {
		t.Fatalf("missing ERROR entry: %q", log)
	}
}

func TestChildNonZeroExitIsStillSuccess(t *testing.T) {
	dir := t.TempDir()
	inv := &fakeInvoker{childExit: 3}
	res, code := newRunner(dir, clockAt("2024-03-06 09:00:00"), inv).Run(context.Background())

	if code != ExitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want success", res.Outcome)
	}
	if res.ChildExit != 3 {
		t.Fatalf("ChildExit = %d, want 3", res.ChildExit)
	}
	if !strings.Contains(readLog(t, dir), "Bot execution completed successfully") {
		t.Fatal("completion entry missing despite non-zero child exit")
	}
}

func TestLogGrowsAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	clock := clockAt("2024-03-06 09:00:00")

	newRunner(dir, clock, &fakeInvoker{}).Run(context.Background())
	first := readLog(t, dir)
	newRunner(dir, clock, &fakeInvoker{}).Run(context.Background())
	second := readLog(t, dir)

	if !strings.HasPrefix(second, first) {
		t.Fatal("log was rewritten, not appended")
	}
	if len(second) <= len(first) {
		t.Fatal("log did not grow")
	}
}

func TestConsoleEcho(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	inv := &fakeInvoker{output: "ticket PROJ-1 closed\n"}
	r := New(Config{BaseDir: dir, Now: clockAt("2024-03-06 09:00:00"), Console: &console}, inv, logx.Nop())
	r.Run(context.Background())

	out := console.String()
	for _, want := range []string{"Starting bot execution", "ticket PROJ-1 closed", "completed successfully"} {
		if !strings.Contains(out, want) {
			t.Fatalf("console missing %q: %q", want, out)
		}
	}
}
