package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/michaelswisa/FileExporter/internal/filesystem"
)

// Snapshot file names written next to the scanned failure directory.
const (
	ReasonsAllFile    = "reasons_all.json"
	ReasonsRecentFile = "reasons_recent.json"
	reasonsLockFile   = ".reasons.lock"
)

// ReasonEntry is the JSON value stored for each failed item.
type ReasonEntry struct {
	Reason        string    `json:"reason"`
	Image         *string   `json:"image"`
	LastWriteTime time.Time `json:"lastWriteTime"`
}

// Snapshot streams failure reasons into reasons_all.json and
// reasons_recent.json. Entries are appended as the walk finds them; the
// files become visible only on Commit. Concurrent scans of the same
// directory, in this or another process, are serialized by a lock file.
type Snapshot struct {
	dir    string
	unlock func() error

	mu     sync.Mutex
	all    *objectWriter
	recent *objectWriter
	err    error
	closed bool
}

// OpenSnapshot locks dir and opens both snapshot files for writing.
func OpenSnapshot(ctx context.Context, dir string) (*Snapshot, error) {
	unlock, err := filesystem.Lock(ctx, filepath.Join(dir, reasonsLockFile))
	if err != nil {
		return nil, err
	}

	all, err := newObjectWriter(filepath.Join(dir, ReasonsAllFile))
	if err != nil {
		_ = unlock()
		return nil, err
	}
	recent, err := newObjectWriter(filepath.Join(dir, ReasonsRecentFile))
	if err != nil {
		all.abort()
		_ = unlock()
		return nil, err
	}
	return &Snapshot{dir: dir, unlock: unlock, all: all, recent: recent}, nil
}

// Add appends m to the all-reasons object and, when recent, to the
// recent-reasons object. The first write error is sticky.
func (s *Snapshot) Add(m FailureMatch, recent bool) error {
	entry := ReasonEntry{Reason: m.Reason, LastWriteTime: m.LastWrite}
	if m.Image != "" {
		img := m.Image
		entry.Image = &img
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("snapshot already closed")
	}
	if s.err != nil {
		return s.err
	}
	if err := s.all.add(m.Path, entry); err != nil {
		s.err = err
		return err
	}
	if recent {
		if err := s.recent.add(m.Path, entry); err != nil {
			s.err = err
			return err
		}
	}
	return nil
}

// Commit closes both objects and moves them into place. If any earlier
// write failed, nothing is published and that error is returned.
func (s *Snapshot) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("snapshot already closed")
	}
	s.closed = true
	defer s.release()

	if s.err != nil {
		s.all.abort()
		s.recent.abort()
		return s.err
	}
	// reasons_recent.json goes first: if it cannot be moved into place, the
	// previous reasons_all.json is kept and the pair stays consistent.
	if err := s.recent.commit(); err != nil {
		s.all.abort()
		return fmt.Errorf("committing %s: %w", ReasonsRecentFile, err)
	}
	if err := s.all.commit(); err != nil {
		return fmt.Errorf("committing %s: %w", ReasonsAllFile, err)
	}
	return nil
}

// Abort discards both files. It is a no-op after Commit.
func (s *Snapshot) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.all.abort()
	s.recent.abort()
	s.release()
}

func (s *Snapshot) release() {
	if s.unlock != nil {
		_ = s.unlock()
		s.unlock = nil
	}
}

// objectWriter writes one JSON object incrementally.
type objectWriter struct {
	file  *filesystem.AtomicFile
	count int
	buf   bytes.Buffer
}

func newObjectWriter(target string) (*objectWriter, error) {
	f, err := filesystem.CreateAtomic(target, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write([]byte("{")); err != nil {
		f.Abort()
		return nil, fmt.Errorf("writing %s: %w", target, err)
	}
	return &objectWriter{file: f}, nil
}

func (w *objectWriter) add(key string, v ReasonEntry) error {
	w.buf.Reset()
	if w.count > 0 {
		w.buf.WriteByte(',')
	}
	w.buf.WriteString("\n  ")

	enc := json.NewEncoder(&w.buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(key); err != nil {
		return fmt.Errorf("encoding key: %w", err)
	}
	trimNewline(&w.buf)
	w.buf.WriteString(": ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	trimNewline(&w.buf)

	if _, err := w.file.Write(w.buf.Bytes()); err != nil {
		return fmt.Errorf("writing entry: %w", err)
	}
	w.count++
	return nil
}

func (w *objectWriter) commit() error {
	closing := "}\n"
	if w.count > 0 {
		closing = "\n}\n"
	}
	if _, err := w.file.Write([]byte(closing)); err != nil {
		w.file.Abort()
		return err
	}
	return w.file.Commit()
}

func (w *objectWriter) abort() {
	w.file.Abort()
}

// trimNewline drops the newline json.Encoder appends.
func trimNewline(b *bytes.Buffer) {
	if n := b.Len(); n > 0 && b.Bytes()[n-1] == '\n' {
		b.Truncate(n - 1)
	}
}
