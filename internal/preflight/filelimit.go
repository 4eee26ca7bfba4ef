package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the minimum open-file limit. Each on-disk index keeps
// one file open per segment.
const MinFileDescriptors = 1024

// CheckFileDescriptors checks the soft open-file limit. A low limit only
// warns: small trees stay well below it.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name: "file_descriptors",
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	current := uint64(rLimit.Cur)
	result.Message = fmt.Sprintf("%d (minimum: %d)", current, c.minFiles)
	if current < c.minFiles {
		result.Status = StatusWarn
		result.Details = "Run 'ulimit -n 10240' to increase the limit"
		return result
	}

	result.Status = StatusPass
	return result
}
