package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockMarkerSuffix = ".write.lock"
	openGuardSuffix  = ".open.lock"

	guardRetryDelay = 25 * time.Millisecond
	guardTimeout    = 5 * time.Second
)

// ErrIndexLocked is returned when a live process holds the lock marker.
var ErrIndexLocked = errors.New("index locked by another process")

// LockMarkerPath returns the lock marker file of the named index.
func LockMarkerPath(root, name string) string {
	return filepath.Join(root, name+lockMarkerSuffix)
}

func openGuardPath(root, name string) string {
	return filepath.Join(root, name+openGuardSuffix)
}

// LockInfo describes the lock marker of an index.
type LockInfo struct {
	Path   string
	Exists bool
	// PID is the recorded owner, 0 when unreadable.
	PID int
	// Stale is true when the marker exists and its owner is not running.
	Stale bool
}

// InspectLock reports the lock marker state without changing it.
func InspectLock(root, name string) (LockInfo, error) {
	info := LockInfo{Path: LockMarkerPath(root, name)}
	pid, err := readMarker(info.Path)
	if errors.Is(err, os.ErrNotExist) {
		return info, nil
	}
	info.Exists = true
	if err != nil {
		// An unreadable marker cannot name a live owner.
		info.Stale = true
		return info, nil
	}
	info.PID = pid
	info.Stale = !processExists(pid)
	return info, nil
}

// ClearStaleLock removes the marker when its owner is not running.
// It returns true if a marker was removed.
func ClearStaleLock(ctx context.Context, root, name string) (bool, error) {
	guard, err := acquireGuard(ctx, root, name)
	if err != nil {
		return false, err
	}
	defer func() { _ = guard.Unlock() }()

	info, err := InspectLock(root, name)
	if err != nil || !info.Exists {
		return false, err
	}
	if !info.Stale {
		return false, fmt.Errorf("%w: pid %d", ErrIndexLocked, info.PID)
	}
	if err := removeMarker(info.Path); err != nil {
		return false, err
	}
	slog.Warn("stale_lock_cleared",
		slog.String("index", name),
		slog.Int("pid", info.PID),
		slog.String("path", info.Path))
	return true, nil
}

// acquireMarker runs check-clear-create under the cross-process guard.
func acquireMarker(ctx context.Context, root, name string, opts Options) (string, error) {
	log := opts.logger()

	guard, err := acquireGuard(ctx, root, name)
	if err != nil {
		return "", err
	}
	defer func() { _ = guard.Unlock() }()

	info, err := InspectLock(root, name)
	if err != nil {
		return "", err
	}
	if info.Exists {
		switch {
		case opts.ForceUnlock:
			log.Warn("lock_force_cleared",
				slog.String("index", name),
				slog.Int("pid", info.PID))
		case info.Stale:
			log.Warn("stale_lock_cleared",
				slog.String("index", name),
				slog.Int("pid", info.PID),
				slog.String("path", info.Path))
		default:
			return "", fmt.Errorf("%w: pid %d holds %s", ErrIndexLocked, info.PID, info.Path)
		}
		if err := removeMarker(info.Path); err != nil {
			return "", err
		}
	}

	f, err := os.OpenFile(info.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create lock marker: %w", err)
	}
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(info.Path)
		return "", fmt.Errorf("failed to write lock marker: %w", errors.Join(werr, cerr))
	}
	return info.Path, nil
}

func acquireGuard(ctx context.Context, root, name string) (*flock.Flock, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, guardTimeout)
	defer cancel()

	guard := flock.New(openGuardPath(root, name))
	locked, err := guard.TryLockContext(ctx, guardRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire open guard: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("open guard %s busy", guard.Path())
	}
	return guard, nil
}

func readMarker(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in lock marker: %w", err)
	}
	return pid, nil
}

func removeMarker(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock marker: %w", err)
	}
	return nil
}

// processExists checks if a process with the given PID exists.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds; signal 0 probes for existence.
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
