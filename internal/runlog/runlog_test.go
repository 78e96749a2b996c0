package runlog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedClock(s string) func() time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func TestEntryFormat(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	l, err := Open(dir, WithConsole(&console), WithClock(fixedClock("2024-03-06 09:15:00")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Entry("Starting bot execution"); err != nil {
		t.Fatalf("Entry: %v", err)
	}

	want := "[2024-03-06 09:15:00] Starting bot execution\n"
	b, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(b) != want {
		t.Fatalf("file content = %q, want %q", b, want)
	}
	if console.String() != want {
		t.Fatalf("console echo = %q, want %q", console.String(), want)
	}
}

func TestOpenCreatesDirIdempotently(t *testing.T) {
	dir := t.TempDir()

	for i := 0; i < 2; i++ {
		if _, err := Open(dir, WithConsole(&bytes.Buffer{})); err != nil {
			t.Fatalf("Open #%d: %v", i+1, err)
		}
	}
	st, err := os.Stat(filepath.Join(dir, DirName))
	if err != nil {
		t.Fatalf("stat log dir: %v", err)
	}
	if !st.IsDir() {
		t.Fatal("log path is not a directory")
	}
}

func TestAppendOnlyAcrossOpens(t *testing.T) {
	dir := t.TempDir()

	for i, msg := range []string{"first", "second"} {
		l, err := Open(dir, WithConsole(&bytes.Buffer{}))
		if err != nil {
			t.Fatalf("Open #%d: %v", i+1, err)
		}
		if err := l.Entry(msg); err != nil {
			t.Fatalf("Entry #%d: %v", i+1, err)
		}
	}

	b, err := os.ReadFile(filepath.Join(dir, DirName, FileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), b)
	}
	if !strings.HasSuffix(lines[0], "first") || !strings.HasSuffix(lines[1], "second") {
		t.Fatalf("unexpected order or content: %q", lines)
	}
}

func TestStreamVerbatimAndLineBuffered(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	l, err := Open(dir, WithConsole(&console))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s := l.Stream()
	// Partial writes must not produce partial file lines.
	if _, err := s.Write([]byte("hel")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	b, _ := os.ReadFile(l.Path())
	if len(b) != 0 {
		t.Fatalf("partial line flushed early: %q", b)
	}
	if _, err := s.Write([]byte("lo\nworld")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err = os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(b) != "hello\nworld\n" {
		t.Fatalf("file content = %q, want %q", b, "hello\nworld\n")
	}
	if console.String() != "hello\nworld\n" {
		t.Fatalf("console echo = %q", console.String())
	}
}
