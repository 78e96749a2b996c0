// Package runlog maintains the bot run log: a plain-text, append-only file
// holding one timestamped line per wrapper event, interleaved with the
// verbatim output of the invoked bot. Everything written to the file is
// echoed to the console as well.
package runlog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// Timestamp layout for wrapper-generated entries.
	timeLayout = "2006-01-02 15:04:05"

	DirName  = "log"
	FileName = "bot_log.txt"
)

// Log appends entries to <base>/log/bot_log.txt. The file is opened in
// append mode for each write and never truncated; rotation is deliberately
// out of scope.
type Log struct {
	path    string
	console io.Writer
	now     func() time.Time

	mu sync.Mutex
}

// Option customizes a Log.
type Option func(*Log)

// WithConsole redirects console echo (default os.Stdout).
func WithConsole(w io.Writer) Option { return func(l *Log) { l.console = w } }

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option { return func(l *Log) { l.now = now } }

// Open prepares the run log under baseDir, creating <base>/log if absent.
// Creation is idempotent: an existing directory is not an error.
func Open(baseDir string, opts ...Option) (*Log, error) {
	dir := filepath.Join(baseDir, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	l := &Log{
		path:    filepath.Join(dir, FileName),
		console: os.Stdout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Entry appends a timestamped line "[yyyy-MM-dd HH:mm:ss] msg" to the log
// file and echoes the same line to the console.
func (l *Log) Entry(msg string) error {
	line := fmt.Sprintf("[%s] %s\n", l.now().Format(timeLayout), msg)
	return l.append([]byte(line))
}

func (l *Log) append(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = l.console.Write(p)

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	_, werr := f.Write(p)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("append run log: %w", werr)
	}
	return cerr
}

// Stream returns a writer that forwards child-process output to both the
// console and the log file verbatim (no timestamp prefix). Output is
// buffered per line so interleaved appends stay line-atomic; call Close to
// flush a trailing partial line.
func (l *Log) Stream() *Stream {
	return &Stream{log: l}
}

// Stream tees raw output lines into the run log.
type Stream struct {
	log *Log
	buf bytes.Buffer
}

func (s *Stream) Write(p []byte) (int, error) {
	s.buf.Write(p)
	for {
		i := bytes.IndexByte(s.buf.Bytes(), '\n')
		if i < 0 {
			return len(p), nil
		}
		line := make([]byte, i+1)
		copy(line, s.buf.Bytes()[:i+1])
		s.buf.Next(i + 1)
		if err := s.log.append(line); err != nil {
			return len(p), err
		}
	}
}

// Close flushes any buffered partial line, terminating it with a newline.
func (s *Stream) Close() error {
	if s.buf.Len() == 0 {
		return nil
	}
	rest := append(s.buf.Bytes(), '\n')
	s.buf.Reset()
	return s.log.append(rest)
}
