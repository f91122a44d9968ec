package filesystem

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// lockRetry is how often a contended lock is re-tried.
const lockRetry = 50 * time.Millisecond

// Lock takes an exclusive advisory lock on path, creating the lock file if
// needed. It blocks until the lock is held or ctx ends. The returned func
// releases the lock.
func Lock(ctx context.Context, path string) (func() error, error) {
	fl := flock.New(path)
	ok, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("locking %s: not acquired", path)
	}
	return func() error {
		if err := fl.Unlock(); err != nil {
			return fmt.Errorf("unlocking %s: %w", path, err)
		}
		return nil
	}, nil
}
