// Package file implements the default durable audit backend: an append-only
// JSON-lines log with periodic compaction down to the retention cap.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	audit "repairhub/pkg/platform/audit"
	"repairhub/pkg/platform/sentinel"
)

// Store appends one line per event and mirrors the retained set in memory.
// All mutating access is serialized by mu; Snapshot reads the ring, which has
// its own read lock, so queries never wait on disk I/O.
type Store struct {
	path      string
	retention int
	slack     int
	fsync     bool
	logger    *slog.Logger

	mu    sync.Mutex
	file  *os.File
	size  int64
	lines int
	ring  *audit.Ring
}

type Option func(*Store)

// WithRetention sets the retention cap (default audit.DefaultRetention).
func WithRetention(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithCompactionSlack sets how many lines beyond the cap may accumulate on
// disk before the log is rewritten. Defaults to a tenth of the cap.
func WithCompactionSlack(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.slack = n
		}
	}
}

// WithoutFsync skips the per-append fsync. Only for tests and benchmarks.
func WithoutFsync() Option {
	return func(s *Store) {
		s.fsync = false
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a file store at path. Nothing touches the disk until Init.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:      path,
		retention: audit.DefaultRetention,
		fsync:     true,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.slack == 0 {
		s.slack = max(s.retention/10, 1)
	}
	s.ring = audit.NewRing(s.retention)
	return s
}

// Init creates the log if needed and replays it. Calling it again on an open
// store is a no-op.
func (s *Store) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create audit log directory: %w", err)
	}

	s.ring.Reset()
	lines, truncatedTail, err := s.replay()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	s.file = f
	s.size = info.Size()
	s.lines = lines

	if truncatedTail || s.lines > s.retention+s.slack {
		if err := s.compactLocked(); err != nil {
			_ = s.file.Close()
			s.file = nil
			return err
		}
	}
	return nil
}

// replay loads the log into the ring. A trailing line that does not decode is
// treated as an interrupted write and dropped; a bad line anywhere else is
// corruption.
func (s *Store) replay() (lines int, truncatedTail bool, err error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("open audit log for replay: %w", err)
	}
	defer f.Close()

	// No line cap: an event is as large as its details map.
	r := bufio.NewReaderSize(f, 64*1024)

	lineNo := 0
	badLine := 0
	for {
		chunk, readErr := r.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return 0, false, fmt.Errorf("read audit log: %w", readErr)
		}
		if len(chunk) > 0 {
			lineNo++
			raw := bytes.TrimSpace(chunk)
			if len(raw) > 0 {
				if badLine != 0 {
					return 0, false, fmt.Errorf("audit log line %d: %w", badLine, sentinel.ErrCorrupt)
				}
				var event audit.Event
				if err := json.Unmarshal(raw, &event); err != nil {
					badLine = lineNo
				} else {
					s.ring.Push(event)
					lines++
				}
			}
		}
		if readErr != nil {
			break
		}
	}

	if badLine != 0 {
		s.logger.Warn("dropping truncated audit log tail", "path", s.path, "line", badLine)
		return lines, true, nil
	}
	return lines, false, nil
}

// Append writes the event as one line and only then exposes it in the ring.
// A failed write is rolled back so the log never keeps a partial line.
func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("file audit store not initialized: %w", sentinel.ErrInvalidState)
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	line = append(line, '\n')

	n, err := s.file.Write(line)
	if err != nil {
		if n > 0 {
			_ = s.file.Truncate(s.size)
		}
		return fmt.Errorf("write audit log: %w", err)
	}
	if s.fsync {
		if err := s.file.Sync(); err != nil {
			_ = s.file.Truncate(s.size)
			return fmt.Errorf("sync audit log: %w", err)
		}
	}
	s.size += int64(n)
	s.lines++
	s.ring.Push(event)

	if s.lines > s.retention+s.slack {
		// The event is already durable; a failed compaction only leaves
		// extra lines that the next replay trims.
		if err := s.compactLocked(); err != nil {
			s.logger.Error("audit log compaction failed", "error", err, "path", s.path)
		}
	}
	return nil
}

// compactLocked rewrites the log with only the retained events and swaps it
// in atomically. Caller must hold s.mu.
func (s *Store) compactLocked() error {
	retained := s.ring.Snapshot()
	tmpPath := s.path + ".compact"

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("create compacted audit log: %w", err)
	}

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, event := range retained {
		if err := enc.Encode(event); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			return fmt.Errorf("encode compacted audit log: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("flush compacted audit log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync compacted audit log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close compacted audit log: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("swap compacted audit log: %w", err)
	}
	syncDir(filepath.Dir(s.path))

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("reopen audit log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}

	if s.file != nil {
		_ = s.file.Close()
	}
	s.file = f
	s.size = info.Size()
	s.lines = len(retained)
	s.logger.Debug("audit log compacted", "path", s.path, "events", s.lines)
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Snapshot returns the retained events, oldest first.
func (s *Store) Snapshot(_ context.Context) ([]audit.Event, error) {
	return s.ring.Snapshot(), nil
}

// Close flushes and closes the log. The store can be re-initialized afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
