package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicFile is a file written under a temporary name in the target's
// directory and moved into place by Commit. Readers of the target never see
// a partially written file.
type AtomicFile struct {
	target string
	perm   os.FileMode
	f      *os.File
	done   bool
}

// CreateAtomic opens a temporary file next to target.
func CreateAtomic(target string, perm os.FileMode) (*AtomicFile, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: snapshot directories are shared with readers
		return nil, fmt.Errorf("creating parent directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	return &AtomicFile{target: target, perm: perm, f: f}, nil
}

// Write implements io.Writer on the temporary file.
func (a *AtomicFile) Write(p []byte) (int, error) {
	return a.f.Write(p)
}

// Commit flushes the temporary file to disk and renames it over the target.
func (a *AtomicFile) Commit() error {
	if a.done {
		return fmt.Errorf("atomic file %s already finished", a.target)
	}
	a.done = true
	tmp := a.f.Name()

	if err := a.f.Sync(); err != nil {
		_ = a.f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := a.f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmp, a.perm); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("setting permissions: %w", err)
	}
	// The temp file shares the target's directory, so the rename never
	// crosses a device.
	if err := os.Rename(tmp, a.target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming temp to target: %w", err)
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (a *AtomicFile) Abort() {
	if a.done {
		return
	}
	a.done = true
	_ = a.f.Close()
	_ = os.Remove(a.f.Name())
}

// WriteFileAtomic writes data to target through an AtomicFile.
func WriteFileAtomic(target string, data []byte, perm os.FileMode) error {
	af, err := CreateAtomic(target, perm)
	if err != nil {
		return err
	}
	if _, err := af.Write(data); err != nil {
		af.Abort()
		return fmt.Errorf("writing temp file: %w", err)
	}
	return af.Commit()
}
