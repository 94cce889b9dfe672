package timelog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLockTimeout means the workbook lock could not be acquired within the
// bounded wait. Callers must treat this as "busy", not "absent": readers
// degrade to fallback data instead of concluding there are no records.
var ErrLockTimeout = errors.New("timelog: lock timeout")

const lockPollInterval = 100 * time.Millisecond

// fileLock serializes workbook access across processes using an exclusive
// lock file next to the state. Acquire blocks up to timeout.
type fileLock struct {
	path string
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path}
}

// acquire takes the lock, waiting at most timeout. Returns a release
// function on success, ErrLockTimeout if somebody else holds it too long.
func (l *fileLock) acquire(timeout time.Duration) (release func(), err error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, fmt.Errorf("timelog: create lock directory: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			// Record the holder for post-mortem debugging of stale locks.
			fmt.Fprintf(f, "pid=%d at=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
			f.Close()
			return func() { os.Remove(l.path) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			// Permission problems and the like are not contention.
			return nil, fmt.Errorf("timelog: open lock file: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, l.path)
		}
		time.Sleep(lockPollInterval)
	}
}
