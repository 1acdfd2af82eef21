package progress

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/Iron-Ham/wtstate/internal/errors"
	"github.com/Iron-Ham/wtstate/internal/logging"
)

// lockPollInterval is how often a blocked update retries the lock.
const lockPollInterval = 25 * time.Millisecond

// errWouldBlock is returned by tryLock when another process holds the lock.
var errWouldBlock = errors.New("lock held by another process")

// Holder describes the process holding the progress lock. It is written into
// the lock file for diagnostics only; the lock itself is the flock.
type Holder struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// fileLock is an acquired advisory lock on workflow.lock.
type fileLock struct {
	file   *os.File
	logger *logging.Logger
}

// acquireLock takes the exclusive lock on path, polling until timeout. A zero
// timeout tries exactly once.
func acquireLock(ctx context.Context, path string, timeout time.Duration, logger *logging.Logger) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.NewStateError("failed to open lock file", err).WithPath(path)
	}

	deadline := time.Now().Add(timeout)
	for {
		err := tryLock(f)
		if err == nil {
			break
		}
		if err != errWouldBlock {
			f.Close()
			return nil, errors.NewStateError("failed to lock progress", err).WithPath(path)
		}
		if !time.Now().Before(deadline) {
			holder := readHolder(path)
			f.Close()
			if holder != nil {
				return nil, errors.Wrapf(errors.ErrLockTimeout, "held by PID %d on %s since %s",
					holder.PID, holder.Hostname, holder.AcquiredAt.Format(time.RFC3339))
			}
			return nil, errors.ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	holder := Holder{PID: os.Getpid(), Hostname: hostname, AcquiredAt: time.Now().UTC()}
	if data, err := json.Marshal(holder); err == nil {
		if err := f.Truncate(0); err == nil {
			_, _ = f.WriteAt(data, 0)
		}
	}

	logger.Debug("progress lock acquired", "path", path, "pid", holder.PID)
	return &fileLock{file: f, logger: logger}, nil
}

// release drops the lock. The lock file is left in place; removing it would
// let a waiter lock an unlinked inode.
func (l *fileLock) release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = l.file.Truncate(0)
	err := unlock(l.file)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	l.logger.Debug("progress lock released")
	return err
}

// readHolder returns the holder recorded in the lock file, if any.
func readHolder(path string) *Holder {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil
	}
	return &h
}
