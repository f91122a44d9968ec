package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const probePrefix = ".fileexporter_probe_"

// errNoEvents means the watch was accepted but the probe's Create event
// never arrived, which is typical of network mounts.
var errNoEvents = errors.New("no fsnotify event delivered")

// ProbeFSNotify creates a scratch directory under root and waits for its
// Create event. It returns how long delivery took, or why fsnotify cannot
// be used for root. The scratch directory is always removed.
func ProbeFSNotify(ctx context.Context, root string, timeout time.Duration) (time.Duration, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return 0, fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close() //nolint:errcheck

	if err := w.Add(root); err != nil {
		return 0, fmt.Errorf("watching %s: %w", root, err)
	}

	start := time.Now()
	scratch, err := os.MkdirTemp(root, probePrefix)
	if err != nil {
		return 0, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.Remove(scratch) //nolint:errcheck

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return 0, errNoEvents
			}
			if ev.Has(fsnotify.Create) && filepath.Clean(ev.Name) == scratch {
				return time.Since(start), nil
			}
		case err, ok := <-w.Errors:
			if !ok {
				return 0, errNoEvents
			}
			return 0, fmt.Errorf("watcher error: %w", err)
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return 0, fmt.Errorf("%w within %s", errNoEvents, timeout)
			}
			return 0, ctx.Err()
		}
	}
}
