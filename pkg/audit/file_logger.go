package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

const fileName = "audit.log"

// ErrLoggerClosed is returned by Log after Close
var ErrLoggerClosed = errors.New("audit: logger closed")

// FileLoggerConfig configures a FileLogger
type FileLoggerConfig struct {
	// Dir holds audit.log and its rotated generations audit.log.1 .. audit.log.N
	Dir string

	// MaxBytes rotates the current file once it reaches this size; zero
	// disables rotation
	MaxBytes int64

	// MaxFiles is the number of rotated generations kept
	MaxFiles int
}

// FileLogger appends events as JSON lines and rotates by size. Generations
// are shifted on rotation, so audit.log.1 is always the most recent.
type FileLogger struct {
	cfg FileLoggerConfig

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewFileLogger opens (or creates) Dir/audit.log for appending
func NewFileLogger(cfg FileLoggerConfig) (*FileLogger, error) {
	if cfg.Dir == "" {
		return nil, errors.New("audit directory is required")
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 1
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	l := &FileLogger{cfg: cfg}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) path(generation int) string {
	p := filepath.Join(l.cfg.Dir, fileName)
	if generation > 0 {
		p += "." + strconv.Itoa(generation)
	}
	return p
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path(0), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat audit file: %w", err)
	}
	l.file, l.size = f, info.Size()
	return nil
}

// rotate shifts every generation up by one, dropping the oldest, and starts
// a fresh current file. Caller holds mu.
func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit file: %w", err)
	}
	l.file = nil

	_ = os.Remove(l.path(l.cfg.MaxFiles))
	for gen := l.cfg.MaxFiles - 1; gen >= 0; gen-- {
		if err := os.Rename(l.path(gen), l.path(gen+1)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to shift audit file: %w", err)
		}
	}
	return l.open()
}

// Log implements Logger
func (l *FileLogger) Log(ctx context.Context, event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return ErrLoggerClosed
	}
	if l.cfg.MaxBytes > 0 && l.size > 0 && l.size+int64(len(line)) > l.cfg.MaxBytes {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	n, err := l.file.Write(line)
	l.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Tail returns the last n events of the current file, oldest first. n <= 0
// returns every event.
func (l *FileLogger) Tail(n int) ([]*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path(0))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	var events []*Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		event, err := FromJSON(scanner.Bytes())
		if err != nil {
			return nil, fmt.Errorf("failed to decode audit event: %w", err)
		}
		events = append(events, event)
		if n > 0 && len(events) > n {
			events = events[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit file: %w", err)
	}
	return events, nil
}

// Close implements Logger. Closing twice is a no-op.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
