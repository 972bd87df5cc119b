package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// FixLockName is the lock file created next to the database while a
// remediation batch runs.
const FixLockName = ".integrity-fix.lock"

// ErrFixInProgress is returned when another live process holds the fix lock.
var ErrFixInProgress = errors.New("another remediation run holds the fix lock")

// FixLock is the lock file's content.
type FixLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// lockWriteGrace is how long an unreadable lock file is assumed to be
// mid-write by its creator rather than abandoned.
const lockWriteGrace = 5 * time.Second

// AcquireFixLock claims the database at dbPath for a remediation run.
// The lock file is created exclusively; a lock left behind by a dead local
// process is removed and the claim retried once. Returns the lock path for
// ReleaseFixLock.
func AcquireFixLock(dbPath, holder string) (string, error) {
	if dbPath == "" || dbPath == ":memory:" {
		return "", nil
	}
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("invalid database path: %w", err)
	}
	lockPath := filepath.Join(filepath.Dir(absPath), FixLockName)

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	data, err := json.MarshalIndent(FixLock{
		Holder:    holder,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		created, err := createLockFile(lockPath, data)
		if err != nil {
			return "", err
		}
		if created {
			return lockPath, nil
		}
		if err := checkExistingLock(lockPath); err != nil {
			return "", err
		}
		// Stale lock: remove it and race for a fresh one
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to remove stale fix lock: %w", err)
		}
	}
	return "", fmt.Errorf("%w (lock at %s was claimed concurrently)", ErrFixInProgress, lockPath)
}

// createLockFile writes data to a new file at lockPath. It reports false,
// with no error, when the file already exists.
func createLockFile(lockPath string, data []byte) (bool, error) {
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create fix lock: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(lockPath)
		return false, fmt.Errorf("failed to write fix lock: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(lockPath)
		return false, fmt.Errorf("failed to write fix lock: %w", err)
	}
	return true, nil
}

// checkExistingLock returns ErrFixInProgress unless the lock at lockPath is
// stale. A vanished lock counts as stale.
func checkExistingLock(lockPath string) error {
	info, err := os.Stat(lockPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat fix lock: %w", err)
	}
	data, err := os.ReadFile(lockPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read fix lock: %w", err)
	}

	var existing FixLock
	if json.Unmarshal(data, &existing) != nil {
		if time.Since(info.ModTime()) < lockWriteGrace {
			return fmt.Errorf("%w (lock at %s is being written)", ErrFixInProgress, lockPath)
		}
		return nil
	}
	if isProcessAlive(existing.PID, existing.Hostname) {
		return fmt.Errorf("%w (%s, PID %d on %s, started %s)",
			ErrFixInProgress, existing.Holder, existing.PID, existing.Hostname,
			existing.StartedAt.Format(time.RFC3339))
	}
	return nil
}

// ReleaseFixLock removes the lock file. An empty path is a no-op.
func ReleaseFixLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove fix lock: %w", err)
	}
	return nil
}

// isProcessAlive reports whether pid is running on hostname. Remote hosts
// and unverifiable processes count as alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 probes without delivering anything
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.EPERM) {
		return true
	}
	return false
}
