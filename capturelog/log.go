package capturelog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/circleci/trafficharness/capture"
	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/system"
	"github.com/circleci/trafficharness/worker"
)

var ErrClosed = errors.New("capture log is closed")

// DefaultSyncInterval is how often SyncLoop flushes the log to stable storage.
const DefaultSyncInterval = time.Second

type Log struct {
	path string

	mu       sync.Mutex
	f        *os.File
	closed   bool
	lines    int64
	bytes    int64
	failures int64
	lastErr  error
	torn     bool
}

// Open opens the log at path for appending, creating it and its parent directories
// when needed.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture log: %w", err)
	}
	return &Log{path: path, f: f}, nil
}

func (l *Log) Path() string {
	return l.path
}

// Append writes rec as a single line. It satisfies capture.Sink.
func (l *Log) Append(ctx context.Context, rec capture.Record) (err error) {
	_, span := o11y.StartSpan(ctx, "capturelog: append")
	defer o11y.End(span, &err)

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')
	span.AddRawField("capturelog.bytes", len(line))

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	prev, err := l.f.Seek(0, io.SeekEnd)
	if err != nil {
		l.failures++
		l.lastErr = err
		return fmt.Errorf("find capture log end: %w", err)
	}
	n, err := l.f.Write(line)
	if err != nil {
		l.failures++
		l.lastErr = err
		if n > 0 {
			l.dropTornLine(ctx, prev)
		}
		return fmt.Errorf("write capture log: %w", err)
	}
	l.lines++
	l.bytes += int64(n)
	if !l.torn {
		l.lastErr = nil
	}
	return nil
}

// dropTornLine removes a partly written line so the next append starts on a fresh line.
// When the file cannot be cut back, a newline keeps the fragment on a line of its own and
// the log stays unhealthy.
func (l *Log) dropTornLine(ctx context.Context, size int64) {
	err := l.f.Truncate(size)
	if err == nil {
		return
	}
	o11y.LogError(ctx, "capturelog: truncate torn line", err)
	l.torn = true
	l.lastErr = fmt.Errorf("capture log has a torn line at offset %d: %w", size, err)
	_, _ = l.f.Write([]byte{'\n'})
}

// Sync flushes the written lines to stable storage.
func (l *Log) Sync(ctx context.Context) (err error) {
	_, span := o11y.StartSpan(ctx, "capturelog: sync")
	defer o11y.End(span, &err)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if err = l.f.Sync(); err != nil {
		l.failures++
		l.lastErr = err
		return fmt.Errorf("sync capture log: %w", err)
	}
	return nil
}

// SyncLoop calls Sync every interval until ctx is done. It is shaped to be added as a
// system service.
func (l *Log) SyncLoop(interval time.Duration) func(ctx context.Context) error {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return func(ctx context.Context) error {
		worker.Every(ctx, "capturelog_sync", interval, func(ctx context.Context) error {
			if err := l.Sync(ctx); err != nil && !errors.Is(err, ErrClosed) {
				return err
			}
			return nil
		})
		return nil
	}
}

// Close syncs and closes the file. Appends after Close fail with ErrClosed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	serr := l.f.Sync()
	if err := l.f.Close(); err != nil {
		return err
	}
	return serr
}

// Stats are the log's running totals.
type Stats struct {
	Lines    int64
	Bytes    int64
	Failures int64
}

func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{Lines: l.lines, Bytes: l.bytes, Failures: l.failures}
}

// HealthChecks satisfies system.HealthChecker: the log is ready while it is open and the
// last write or sync succeeded.
func (l *Log) HealthChecks() (name string, ready, live func(ctx context.Context) error) {
	return "capture-log", func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.closed {
			return ErrClosed
		}
		return l.lastErr
	}, nil
}

func (l *Log) GaugeName() string {
	return "capture_log"
}

func (l *Log) Gauges(context.Context) map[string][]system.TaggedValue {
	s := l.Stats()
	return map[string][]system.TaggedValue{
		"lines":    {{Val: float64(s.Lines)}},
		"bytes":    {{Val: float64(s.Bytes)}},
		"failures": {{Val: float64(s.Failures)}},
	}
}
