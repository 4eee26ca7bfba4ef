package preflight

import (
	"fmt"
	"syscall"

	"github.com/Aman-CERP/cmsindex/internal/profiling"
)

// MinDiskSpaceBytes is the minimum free space on the storage root (100MB).
// Index merges need room for a second copy of the largest segment.
const MinDiskSpaceBytes = 100 * 1024 * 1024

// CheckDiskSpace checks the free space of the filesystem holding path.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot stat %s: %v", path, err)
		return result
	}

	free := stat.Bavail * uint64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free (minimum: %s)",
		profiling.FormatBytes(free), profiling.FormatBytes(c.minDiskBytes))
	if free < c.minDiskBytes {
		result.Status = StatusFail
		result.Details = "Commits fail with ERR_203_DISK_FULL once the disk fills"
		return result
	}

	result.Status = StatusPass
	return result
}
