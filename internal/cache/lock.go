package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// lockOptions tunes lockfile acquisition.
type lockOptions struct {
	retryDelay   time.Duration
	maxWait      time.Duration
	staleLockAge time.Duration
}

func defaultLockOptions() lockOptions {
	return lockOptions{
		retryDelay:   100 * time.Millisecond,
		maxWait:      60 * time.Second,
		staleLockAge: 30 * time.Second,
	}
}

// acquireFileLock creates lockPath exclusively, waiting for other holders and
// clearing locks left behind by dead processes. The returned func releases it.
func acquireFileLock(ctx context.Context, lockPath string, opts lockOptions) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	deadline := time.Now().Add(opts.maxWait)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = fmt.Fprintf(f, "%d", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating lock file: %w", err)
		}

		if removeStaleLock(lockPath, opts.staleLockAge) {
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("could not acquire lock on %s within %s", lockPath, opts.maxWait)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.retryDelay):
		}
	}
}

// removeStaleLock removes lockPath when it is older than staleLockAge and its
// owner is gone. Returns true if the caller should retry immediately.
func removeStaleLock(lockPath string, staleLockAge time.Duration) bool {
	info, statErr := os.Stat(lockPath)
	if statErr != nil || time.Since(info.ModTime()) <= staleLockAge {
		return false
	}

	if isLockHeldByLiveProcess(lockPath) {
		return false
	}

	return clearStaleLock(lockPath, info)
}

// clearStaleLock moves lockPath aside and deletes it only if it is still the
// file described by stale. Another waiter may have cleared the stale lock and
// taken a new one since stale was observed; that lock is put back.
func clearStaleLock(lockPath string, stale os.FileInfo) bool {
	aside := fmt.Sprintf("%s.stale.%d.%d", lockPath, os.Getpid(), time.Now().UnixNano())
	if err := os.Rename(lockPath, aside); err != nil {
		return os.IsNotExist(err)
	}

	moved, err := os.Stat(aside)
	if err == nil && !sameLock(stale, moved) {
		// Link fails if yet another lock already exists, leaving that one in place.
		_ = os.Link(aside, lockPath)
	}
	_ = os.Remove(aside)
	return true
}

// sameLock compares modification times as well because inodes are reused.
func sameLock(a, b os.FileInfo) bool {
	return os.SameFile(a, b) && a.ModTime().Equal(b.ModTime())
}

func isLockHeldByLiveProcess(lockPath string) bool {
	pidData, readErr := os.ReadFile(lockPath)
	if readErr != nil || len(pidData) == 0 {
		return false
	}
	var pid int
	if _, scanErr := fmt.Sscanf(string(pidData), "%d", &pid); scanErr != nil || pid <= 0 {
		return false
	}
	return processExists(pid) == nil
}

func processExists(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	// Signal 0 probes for existence without delivering anything.
	return proc.Signal(syscall.Signal(0))
}
