package filesystem

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func assertNoTemps(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("temp files remain: %v", matches)
	}
}

func TestWriteFileAtomic_NewFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "reasons_all.json")
	data := []byte(`{"a":1}`)

	if err := WriteFileAtomic(target, data, 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("content = %q, want %q", got, data)
	}
	assertNoTemps(t, dir)
}

func TestWriteFileAtomic_OverwriteExisting(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "reasons_all.json")
	if err := os.WriteFile(target, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := WriteFileAtomic(target, []byte("updated"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	got, _ := os.ReadFile(target)
	if string(got) != "updated" {
		t.Errorf("content = %q, want %q", got, "updated")
	}
	assertNoTemps(t, dir)
}

func TestAtomicFile_TargetUntouchedUntilCommit(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "snap.json")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	af, err := CreateAtomic(target, 0o644)
	if err != nil {
		t.Fatalf("CreateAtomic: %v", err)
	}
	if _, err := af.Write([]byte("new content")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, _ := os.ReadFile(target)
	if string(got) != "old" {
		t.Errorf("target changed before commit: %q", got)
	}

	if err := af.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, _ = os.ReadFile(target)
	if string(got) != "new content" {
		t.Errorf("content = %q, want %q", got, "new content")
	}
	if err := af.Commit(); err == nil {
		t.Error("second Commit should fail")
	}
}

func TestAtomicFile_Abort(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "snap.json")

	af, err := CreateAtomic(target, 0o644)
	if err != nil {
		t.Fatalf("CreateAtomic: %v", err)
	}
	_, _ = af.Write([]byte("partial"))
	af.Abort()
	af.Abort()

	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("target should not exist after abort")
	}
	assertNoTemps(t, dir)
}

func TestWriteFileAtomic_RenameFailureKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.json")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target, "keep"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := WriteFileAtomic(target, []byte("new"), 0o644); err == nil {
		t.Fatal("expected an error when the target is a directory")
	}
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		t.Fatalf("target was replaced: info=%v err=%v", info, err)
	}
	if _, err := os.Stat(filepath.Join(target, "keep")); err != nil {
		t.Errorf("directory contents lost: %v", err)
	}
	assertNoTemps(t, dir)
}

func TestWriteFileAtomic_CreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "Failed", "svc-landing-dir-prod", "reasons_all.json")

	if err := WriteFileAtomic(target, []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("stat target: %v", err)
	}
}

func TestLock_Serializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".reasons.lock")

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := Lock(context.Background(), path)
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inside.Add(-1)
			if err := unlock(); err != nil {
				t.Errorf("unlock: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := maxInside.Load(); got != 1 {
		t.Errorf("max holders = %d, want 1", got)
	}
}

func TestLock_ContextCanceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".reasons.lock")
	unlock, err := Lock(context.Background(), path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := Lock(ctx, path); err == nil {
		t.Error("expected error while lock is held")
	}
}
