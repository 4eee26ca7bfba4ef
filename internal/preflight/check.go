package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/cmsindex/internal/storage"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status written by MarshalText.
func (s *CheckStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "PASS":
		*s = StatusPass
	case "WARN":
		*s = StatusWarn
	case "FAIL":
		*s = StatusFail
	default:
		return fmt.Errorf("unknown check status %q", text)
	}
	return nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs preflight validation checks.
type Checker struct {
	minDiskBytes uint64
	minFiles     uint64
}

// Option configures a Checker.
type Option func(*Checker)

// WithMinDiskSpace overrides MinDiskSpaceBytes.
func WithMinDiskSpace(bytes uint64) Option {
	return func(c *Checker) {
		c.minDiskBytes = bytes
	}
}

// WithMinFileDescriptors overrides MinFileDescriptors.
func WithMinFileDescriptors(n uint64) Option {
	return func(c *Checker) {
		c.minFiles = n
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		minDiskBytes: MinDiskSpaceBytes,
		minFiles:     MinFileDescriptors,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check for the storage root and the on-disk descriptors.
// In-memory descriptors are skipped; with no on-disk index only the
// file descriptor check runs.
func (c *Checker) RunAll(ctx context.Context, root string, descs []storage.Descriptor) []CheckResult {
	var onDisk []storage.Descriptor
	for _, d := range descs {
		if !d.InMemory {
			onDisk = append(onDisk, d)
		}
	}

	var results []CheckResult
	if len(onDisk) > 0 {
		if err := os.MkdirAll(root, 0755); err != nil {
			results = append(results, CheckResult{
				Name:     "storage_root",
				Status:   StatusFail,
				Message:  fmt.Sprintf("cannot create %s: %v", root, err),
				Required: true,
			})
			return results
		}
		results = append(results, c.CheckDiskSpace(root))
		results = append(results, c.CheckWritePermissions(root))
	}
	results = append(results, c.CheckFileDescriptors())
	for _, d := range onDisk {
		if ctx.Err() != nil {
			break
		}
		results = append(results, c.CheckLock(d))
	}
	return results
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "ready", "ready_with_warnings" or "failed".
func SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// CheckWritePermissions checks that files can be created in path.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	testFile := filepath.Join(path, ".cmsindex-preflight-test")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckLock reports the lock marker state of one index. A live owner is a
// warning since opening will fail; a stale marker will be cleared on open.
func (c *Checker) CheckLock(d storage.Descriptor) CheckResult {
	result := CheckResult{Name: "lock_" + d.Name}

	info, err := storage.InspectLock(d.Root, d.Name)
	switch {
	case err != nil:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("unreadable marker: %v", err)
		result.Details = "Run 'cmsindex unlock " + d.Name + "' to inspect and clear it"
	case !info.Exists:
		result.Status = StatusPass
		result.Message = "not locked"
	case info.Stale:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("stale marker of pid %d, cleared on open", info.PID)
	default:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("held by running pid %d", info.PID)
		result.Details = "Stop that process, or run 'cmsindex unlock --force " + d.Name + "'"
	}
	return result
}
