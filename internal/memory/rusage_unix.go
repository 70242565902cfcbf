//go:build unix

package memory

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// CurrentBytes returns the peak resident set size of the process in bytes.
func CurrentBytes() (uint64, error) {
	var usage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &usage); err != nil {
		return 0, fmt.Errorf("getrusage: %w", err)
	}
	// Linux reports kilobytes, Darwin bytes.
	if runtime.GOOS == "darwin" {
		return uint64(usage.Maxrss), nil
	}
	return uint64(usage.Maxrss) * 1024, nil
}
